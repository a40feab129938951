// Package txn implements Maemio's per-transaction state (internal/txn.Context)
// and the begin/read/validate/write/apply executor state machine (§4.3).
package txn

import (
	"sort"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
)

// Status is the transaction's lifecycle state.
type Status int

const (
	StatusActive Status = iota
	StatusValidating
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusValidating:
		return "validating"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// readEntry is one read-set member: the record read, the version observed,
// and that version's begin timestamp (captured for validation).
type readEntry struct {
	id            record.ID
	version       *record.Version
	observedBegin clock.Timestamp
}

// writeEntry is one write-set member: the record written and the staged
// version installed during READ phase. It does not record whether the
// record was created by this transaction; abort unlinks the staged
// version either way, and the id is never reused.
type writeEntry struct {
	id      record.ID
	version *record.Version
}

// Context holds one transaction's accumulated state across BEGIN, READ,
// VALIDATE, WRITE and APPLY.
type Context struct {
	ID       record.TxID
	WorkerID int
	BeginTS  clock.Timestamp
	Status   Status

	readSet  []readEntry
	writeSet []writeEntry

	// writeIndex maps a record id already in the write set to its slot in
	// writeSet, so a second write to the same record replaces the staged
	// payload in place (last write wins) instead of appending.
	writeIndex map[record.ID]int
}

// newContext constructs a fresh Context for the given id/worker/snapshot.
// Unexported: only the executor creates contexts, since BEGIN is part of
// its state machine.
func newContext(id record.TxID, workerID int, beginTS clock.Timestamp) *Context {
	return &Context{
		ID:         id,
		WorkerID:   workerID,
		BeginTS:    beginTS,
		Status:     StatusActive,
		writeIndex: make(map[record.ID]int),
	}
}

// ownWrite returns the write-set entry for id if this transaction has
// already staged a write to it, for self-read and last-write-wins.
func (c *Context) ownWrite(id record.ID) (writeEntry, bool) {
	idx, ok := c.writeIndex[id]
	if !ok {
		return writeEntry{}, false
	}
	return c.writeSet[idx], true
}

// recordRead appends to the read set.
func (c *Context) recordRead(id record.ID, v *record.Version, begin clock.Timestamp) {
	c.readSet = append(c.readSet, readEntry{id: id, version: v, observedBegin: begin})
}

// recordWrite appends to the write set, or replaces the existing entry
// for id if this transaction already wrote it (last write wins).
func (c *Context) recordWrite(id record.ID, v *record.Version) {
	if idx, ok := c.writeIndex[id]; ok {
		c.writeSet[idx].version = v
		return
	}
	c.writeIndex[id] = len(c.writeSet)
	c.writeSet = append(c.writeSet, writeEntry{id: id, version: v})
}

// sortedWriteSet returns the write set ordered by record id, the order
// required by §4.3's WRITE phase and by GC-safe chain mutation.
func (c *Context) sortedWriteSet() []writeEntry {
	out := make([]writeEntry, len(c.writeSet))
	copy(out, c.writeSet)
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// sortedReadSet returns the read set ordered by record id, required by
// §4.3's VALIDATE phase to avoid livelock with concurrent validators.
func (c *Context) sortedReadSet() []readEntry {
	out := make([]readEntry, len(c.readSet))
	copy(out, c.readSet)
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
