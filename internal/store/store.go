// Package store implements Maemio's record store: allocation, visibility
// scans, and staged writes over the version chains defined in
// internal/record.
//
// What: create_record / read_visible / stage_write / finalize / abort,
// plus the record-id allocator and the map from id to Record.
// How: A sharded map keyed by record.ID; each shard has its own mutex so
// allocation and lookup on unrelated records never contend. Chain
// mutation itself is delegated to record.Record, which owns its own lock.
// Why: The store is the only place that knows how records are named and
// found; everything about version visibility stays in internal/record.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
)

// shardCount is the number of independent map shards. A power of two, so
// the unsigned modulo in shardFor reduces to a mask.
const shardCount = 64

// Store holds every record currently known to the engine.
type Store struct {
	nextID atomic.Uint64
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	records map[record.ID]*record.Record
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].records = make(map[record.ID]*record.Record)
	}
	return s
}

func (s *Store) shardFor(id record.ID) *shard {
	return &s.shards[uint64(id)%shardCount]
}

// CreateRecord allocates a new record id and stages an initial Pending
// version for writer holding payload. Returns the new id and its staged
// version (not yet finalized; the executor finalizes it during WRITE
// phase like any other staged write).
func (s *Store) CreateRecord(writer record.TxID, payload []byte) (record.ID, *record.Version) {
	id := record.ID(s.nextID.Add(1))
	r := record.New(id)

	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.records[id] = r
	sh.mu.Unlock()

	r.Lock()
	v, err := r.Stage(writer, payload, false)
	r.Unlock()
	if err != nil {
		// Impossible: r was just created and has no prior versions, so
		// Stage can never observe a conflicting Pending head.
		panic("maemio: internal invariant violated creating record " + err.Error())
	}
	return id, v
}

// Lookup returns the Record for id, or nil if it doesn't exist.
func (s *Store) Lookup(id record.ID) *record.Record {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.records[id]
}

// ReadVisible scans id's version chain for the version visible at readTS.
// Mirrors record.Record.ReadVisible but also handles "record doesn't
// exist at all", which is NotFound same as a visible tombstone.
func (s *Store) ReadVisible(id record.ID, readTS clock.Timestamp) (*record.Version, record.Visibility) {
	r := s.Lookup(id)
	if r == nil {
		return nil, record.NotFound
	}
	return r.ReadVisible(readTS)
}

// StageWrite inserts a Pending version for writer on id's chain, holding
// payload (or a tombstone if tombstone is true). Returns
// record.ErrWriteConflict if another transaction's Pending version
// already occupies the head.
func (s *Store) StageWrite(writer record.TxID, id record.ID, payload []byte, tombstone bool) (*record.Version, error) {
	r := s.Lookup(id)
	if r == nil {
		return nil, record.ErrWriteConflict // caller should have created it first
	}
	r.Lock()
	defer r.Unlock()
	return r.Stage(writer, payload, tombstone)
}

// Finalize promotes a Pending version to committed under its record's
// head lock, preserving chain monotonicity across concurrent finalizers
// on the same record.
func (s *Store) Finalize(id record.ID, v *record.Version, commitTS clock.Timestamp) {
	r := s.Lookup(id)
	if r == nil {
		return
	}
	r.Lock()
	r.Finalize(v, commitTS)
	r.Unlock()
}

// Abort unlinks a Pending version under its record's head lock.
func (s *Store) Abort(id record.ID, v *record.Version) {
	r := s.Lookup(id)
	if r == nil {
		return
	}
	r.Lock()
	r.Abort(v)
	r.Unlock()
}

// ForEach calls fn for every record currently in the store. Used by the
// garbage collector to sweep all chains; iteration order is unspecified.
func (s *Store) ForEach(fn func(*record.Record)) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		records := make([]*record.Record, 0, len(sh.records))
		for _, r := range sh.records {
			records = append(records, r)
		}
		sh.mu.RUnlock()

		for _, r := range records {
			fn(r)
		}
	}
}

// Len returns the number of records currently tracked, for diagnostics
// and tests.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}
