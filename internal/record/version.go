// Package record implements Maemio's version chains: the per-record,
// newest-first linked list of versions that backs MVCC visibility.
//
// What: Version (one committed or in-flight snapshot of a record's payload)
// and Record (a record id, its head lock, and an inlined fast-path slot
// plus an overflow chain of older versions).
// How: Versions link forward-only, newest to oldest, so the structure can
// never cycle. Each record keeps one version inline (avoiding a pointer
// indirection on the hot read path) and chains the rest on the heap.
// Why: Best-effort inlining keeps the common case (a record with a small,
// recently-overwritten history) allocation-free on read.
package record

import (
	"sync"
	"sync/atomic"

	"github.com/maemio/maemio/internal/clock"
)

// ID uniquely identifies a record. Drawn from a monotonic allocator; never
// reused even if the record is deleted, so read-set entries referencing it
// remain stable for the lifetime of the process.
type ID uint64

// TxID identifies the transaction that wrote a version, used to resolve
// visibility of a Pending version and to detect self-reads/self-writes.
type TxID uint64

// Version is one entry in a record's version chain.
type Version struct {
	// BeginTS is the commit timestamp that made this version visible, or
	// clock.Pending while the version is still being installed.
	BeginTS clock.Timestamp
	// EndTS is the timestamp at which this version was superseded, or
	// clock.Infinity if it is still current.
	EndTS clock.Timestamp
	// WriterID identifies the transaction that staged this version. Only
	// meaningful while BeginTS == clock.Pending.
	WriterID TxID
	// Payload is the version's data, or nil for a tombstone (deletion).
	Payload []byte
	// Tombstone marks this version as a deletion rather than a write. A
	// tombstone's Payload is always nil.
	Tombstone bool
	// Next links to the next-older version. nil at the tail of the chain.
	Next *Version
}

// IsPending reports whether this version is still being installed by its
// writer and has not yet received a real begin timestamp.
func (v *Version) IsPending() bool {
	return v.BeginTS == clock.Pending
}

// VisibleTo reports whether v is visible to a reader whose snapshot
// timestamp is readTS: v.BeginTS <= readTS < v.EndTS and v is not pending.
func (v *Version) VisibleTo(readTS clock.Timestamp) bool {
	if v.IsPending() {
		return false
	}
	return v.BeginTS <= readTS && readTS < v.EndTS
}

// Record owns one key's entire version chain: an inlined fast-path slot
// plus an overflow chain of older versions, protected by a single head
// lock that serializes all chain mutation.
type Record struct {
	ID ID

	mu sync.Mutex // serializes insertion/removal of chain nodes

	// inline holds the newest version when it fits in the fast-path slot.
	// nil when the slot is empty (either never used, or freed by GC).
	inline *Version

	// overflow is the head of the heap-allocated chain for anything that
	// didn't fit inline. Older than inline, newer-first.
	overflow *Version

	// latestWriteTS is an atomic shadow of the newest version's BeginTS
	// (or clock.Pending), read lock-free by validation to short-circuit
	// the common "nothing changed" case without taking mu.
	latestWriteTS atomic.Uint64
}

// New creates an empty record ready to receive its first version.
func New(id ID) *Record {
	return &Record{ID: id}
}

// head returns the newest version in the chain (inline if occupied,
// otherwise the head of the overflow chain), or nil if the record has no
// versions at all. Callers must hold mu or tolerate benign staleness (the
// atomic shadow is for that second case).
func (r *Record) head() *Version {
	if r.inline != nil {
		return r.inline
	}
	return r.overflow
}

// Lock acquires the record's head lock. Exposed for store/txn code that
// needs a single critical section spanning several record operations
// (e.g. stage then immediately re-check).
func (r *Record) Lock()   { r.mu.Lock() }
func (r *Record) Unlock() { r.mu.Unlock() }

// LatestWriteTS returns the atomic shadow of the newest version's begin
// timestamp without taking the head lock. Used by validation as a
// short-circuit: if it hasn't moved past the read's observed value there
// is nothing to re-check under lock.
func (r *Record) LatestWriteTS() clock.Timestamp {
	return clock.Timestamp(r.latestWriteTS.Load())
}

// setLatestWriteTS updates the shadow after a chain mutation. Called with
// mu held.
func (r *Record) setLatestWriteTS(ts clock.Timestamp) {
	r.latestWriteTS.Store(uint64(ts))
}
