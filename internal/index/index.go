// Package index defines the capability-set contract Maemio's core
// depends on for secondary indices, and ships two reference, black-box
// implementations used by the engine's CreateIndex pass-through and by
// the demo CLIs.
//
// The transactional core (internal/clock, internal/record, internal/store,
// internal/txn, internal/contention, internal/gc) never imports this
// package — it only ever sees record.ID values it allocated itself. The
// engine facade only constructs and registers indices (CreateIndex); it
// does not feed committed writes into them.
package index

import (
	"github.com/google/uuid"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
)

// Kind selects which reference implementation CreateIndex builds.
type Kind int

const (
	// KindBTree orders keys, supporting IterateBounded.
	KindBTree Kind = iota
	// KindHash gives O(1) point lookups but no ordered iteration.
	KindHash
)

// Index is the capability set the engine depends on: insert, lookup,
// remove, and bounded iteration over the key space. The engine never
// interprets key structure beyond this contract.
type Index interface {
	// Insert upserts key -> recordID, visible as of commitTS.
	Insert(key string, id record.ID, commitTS clock.Timestamp) error
	// Lookup returns the record id currently associated with key.
	Lookup(key string) (record.ID, bool)
	// Remove drops key's association, effective as of commitTS.
	Remove(key string, commitTS clock.Timestamp) error
	// IterateBounded calls fn for every key in [lo, hi) in index order.
	// A hash index returns ErrUnordered immediately since it has no
	// notion of key order.
	IterateBounded(lo, hi string, fn func(key string, id record.ID) bool) error
}

// Descriptor identifies one created index. The engine's CreateIndex
// records one per new index id; CreateIndex itself returns the Index.
type Descriptor struct {
	ID   uuid.UUID
	Name string
	Kind Kind
}

// New constructs a reference Index of the requested kind. The id/name are
// carried only in the Descriptor the engine's CreateIndex records;
// the Index implementations below are unaware of them.
func New(kind Kind) Index {
	switch kind {
	case KindHash:
		return newHashIndex()
	default:
		return newBTreeIndex()
	}
}
