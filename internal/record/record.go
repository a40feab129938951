package record

import (
	"errors"

	"github.com/maemio/maemio/internal/clock"
)

// ErrWriteConflict is returned by Stage when another transaction already
// has a pending write at the head of this record's chain.
var ErrWriteConflict = errors.New("maemio: write conflict")

// Visibility is the outcome of a ReadVisible scan.
type Visibility int

const (
	// Visible means the returned version may be read.
	Visible Visibility = iota
	// NotFound means the chain holds no version visible to the reader
	// (either genuinely empty, or every visible version is a tombstone).
	NotFound
	// Invisible means the newest chain entry is Pending and belongs to a
	// different transaction than the reader; the reader must abort rather
	// than block.
	Invisible
)

// ReadVisible scans the chain newest-first for the version visible to a
// transaction whose snapshot (begin) timestamp is readTS. Self-written
// Pending versions are handled by the caller before this is reached (see
// txn.Executor.Read), so any Pending head is treated as another
// transaction's.
//
// Returns (version, Visible) on a live version, (nil, NotFound) if no
// visible version exists or the visible version is a tombstone, and
// (nil, Invisible) if the head is Pending.
func (r *Record) ReadVisible(readTS clock.Timestamp) (*Version, Visibility) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.head()
	if v != nil && v.IsPending() {
		return nil, Invisible
	}

	for v != nil {
		if v.VisibleTo(readTS) {
			if v.Tombstone {
				return nil, NotFound
			}
			return v, Visible
		}
		v = v.next(r)
	}
	return nil, NotFound
}

// next walks from the inline slot into the overflow chain, or along the
// overflow chain itself.
func (v *Version) next(r *Record) *Version {
	if v == r.inline {
		return r.overflow
	}
	return v.Next
}

// Stage inserts a new Pending version at the head of the chain on behalf
// of writer, holding payload (or a tombstone if tombstone is true). Fails
// with ErrWriteConflict if another transaction's Pending version already
// sits at head. Must be called with r.mu held by the caller
// (store.Store.StageWrite takes the lock once to cover both the conflict
// check and the insert).
func (r *Record) Stage(writer TxID, payload []byte, tombstone bool) (*Version, error) {
	head := r.head()
	if head != nil && head.IsPending() && head.WriterID != writer {
		return nil, ErrWriteConflict
	}

	v := &Version{
		BeginTS:   clock.Pending,
		EndTS:     clock.Infinity,
		WriterID:  writer,
		Payload:   payload,
		Tombstone: tombstone,
	}

	if r.inline == nil {
		r.inline = v
	} else {
		r.inline.Next = r.overflow
		r.overflow = r.inline
		r.inline = v
	}
	r.setLatestWriteTS(clock.Pending)
	return v, nil
}

// Restage replaces the payload of the version currently staged at head by
// writer, without inserting a new chain node. Used for the "last write
// wins" rule when a transaction writes the same record twice.
func (r *Record) Restage(writer TxID, v *Version, payload []byte, tombstone bool) {
	_ = writer
	v.Payload = payload
	v.Tombstone = tombstone
}

// Finalize promotes the Pending version v to committed by stamping
// commitTS as its BeginTS, and closes out the version immediately behind
// it in the chain by setting its EndTS to commitTS. Must be called with
// r.mu held.
func (r *Record) Finalize(v *Version, commitTS clock.Timestamp) {
	v.BeginTS = commitTS
	if prev := v.next(r); prev != nil {
		prev.EndTS = commitTS
	}
	r.setLatestWriteTS(commitTS)
}

// Abort unlinks the Pending version v from the chain, restoring the
// record to the state it was in before Stage. Must be called with r.mu
// held.
func (r *Record) Abort(v *Version) {
	if r.inline == v {
		r.inline = nil
		if r.overflow != nil {
			r.inline = r.overflow
			r.overflow = r.overflow.Next
			r.inline.Next = nil
		}
	} else {
		// v must be the overflow head (Pending versions are always
		// inserted at head, and only one Pending version can exist at a
		// time per the single-writer-at-head invariant).
		r.overflow = v.Next
	}

	if head := r.head(); head != nil {
		r.setLatestWriteTS(head.BeginTS)
	} else {
		r.setLatestWriteTS(0)
	}
}

// Prune removes every version whose EndTS <= safeTS, keeping the newest
// such version's successor as the new tail (the invariant that nothing
// older can be visible once a version is pruned is established by the
// caller, internal/gc, which computes safeTS as the GC horizon). Returns
// the count of versions removed. Must be called with r.mu held.
func (r *Record) Prune(safeTS clock.Timestamp) int {
	removed := 0

	// The inline slot is only ever a candidate for removal once nothing
	// else holds the chain open, so walk overflow first, then inline.
	prev := &r.overflow
	cur := r.overflow
	for cur != nil {
		if cur.EndTS <= safeTS {
			*prev = cur.Next
			removed++
			cur = *prev
			continue
		}
		prev = &cur.Next
		cur = cur.Next
	}

	if r.inline != nil && r.inline.EndTS <= safeTS {
		r.inline = nil
		removed++
		// Refill the inline slot from the overflow head it left behind,
		// if any, so future writes get the fast path back.
		if r.overflow != nil {
			r.inline = r.overflow
			r.overflow = r.overflow.Next
			r.inline.Next = nil
		}
	}

	return removed
}

// NewerCommittedThan reports whether any committed version in the chain
// has BeginTS strictly greater than observedBegin. Used by validation to
// detect that a read has gone stale: if a newer version exists, whatever
// the reader observed is no longer the current value. Takes its own lock
// since validation calls this without already holding r.mu.
func (r *Record) NewerCommittedThan(observedBegin clock.Timestamp) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for v := r.head(); v != nil; v = v.next(r) {
		if v.IsPending() {
			continue
		}
		if v.BeginTS > observedBegin {
			return true
		}
		if v.BeginTS <= observedBegin {
			break // chain is newest-first: nothing older can be newer than observedBegin
		}
	}
	return false
}

// Chain returns the full newest-first slice of versions, for tests and
// diagnostics only; not used on any hot path.
func (r *Record) Chain() []*Version {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Version
	for v := r.head(); v != nil; v = v.next(r) {
		out = append(out, v)
	}
	return out
}

// Len returns the number of versions currently in the chain (inline plus
// overflow). For diagnostics and tests.
func (r *Record) Len() int {
	return len(r.Chain())
}
