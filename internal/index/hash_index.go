package index

import (
	"sync"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
)

// hashIndex is a reference unordered index: O(1) point lookups, no
// ordering, so IterateBounded is unsupported.
type hashIndex struct {
	mu      sync.RWMutex
	entries map[string]record.ID
}

func newHashIndex() *hashIndex {
	return &hashIndex{entries: make(map[string]record.ID)}
}

func (h *hashIndex) Insert(key string, id record.ID, _ clock.Timestamp) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[key] = id
	return nil
}

func (h *hashIndex) Lookup(key string) (record.ID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.entries[key]
	return id, ok
}

func (h *hashIndex) Remove(key string, _ clock.Timestamp) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, key)
	return nil
}

func (h *hashIndex) IterateBounded(_, _ string, _ func(key string, id record.ID) bool) error {
	return ErrUnordered
}
