package index

import (
	"errors"
	"sort"
	"sync"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
)

// ErrUnordered is returned by a hash index's IterateBounded: it has no
// notion of key order to bound over.
var ErrUnordered = errors.New("maemio: index has no defined key order")

// btreeIndex is a reference ordered index: a sorted key slice plus a map
// for point lookups. It is not a real on-disk B+Tree (that belongs to a
// durability layer explicitly out of this engine's scope); it exists only
// to exercise the index.Index contract with real key ordering.
type btreeIndex struct {
	mu      sync.RWMutex
	keys    []string // sorted
	entries map[string]entry
}

type entry struct {
	id        record.ID
	updatedTS clock.Timestamp
	deleted   bool
}

func newBTreeIndex() *btreeIndex {
	return &btreeIndex{entries: make(map[string]entry)}
}

func (b *btreeIndex) Insert(key string, id record.ID, commitTS clock.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[key]; !exists {
		i := sort.SearchStrings(b.keys, key)
		b.keys = append(b.keys, "")
		copy(b.keys[i+1:], b.keys[i:])
		b.keys[i] = key
	}
	b.entries[key] = entry{id: id, updatedTS: commitTS}
	return nil
}

func (b *btreeIndex) Lookup(key string) (record.ID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[key]
	if !ok || e.deleted {
		return 0, false
	}
	return e.id, true
}

func (b *btreeIndex) Remove(key string, commitTS clock.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil
	}
	e.deleted = true
	e.updatedTS = commitTS
	b.entries[key] = e
	return nil
}

func (b *btreeIndex) IterateBounded(lo, hi string, fn func(key string, id record.ID) bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := sort.SearchStrings(b.keys, lo)
	for _, k := range b.keys[start:] {
		if k >= hi {
			break
		}
		e := b.entries[k]
		if e.deleted {
			continue
		}
		if !fn(k, e.id) {
			break
		}
	}
	return nil
}
