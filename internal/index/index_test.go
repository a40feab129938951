package index

import (
	"testing"

	"github.com/maemio/maemio/internal/record"
)

func TestBTreeIndexOrderedIteration(t *testing.T) {
	idx := New(KindBTree)
	idx.Insert("b", 2, 10)
	idx.Insert("a", 1, 10)
	idx.Insert("c", 3, 10)

	var got []string
	err := idx.IterateBounded("a", "c", func(key string, id record.ID) bool {
		got = append(got, key)
		return true
	})
	if err != nil {
		t.Fatalf("IterateBounded: %v", err)
	}
	want := []string{"a", "b"} // [lo, hi) excludes "c"
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBTreeIndexLookupAndRemove(t *testing.T) {
	idx := New(KindBTree)
	idx.Insert("k", 42, 1)

	id, ok := idx.Lookup("k")
	if !ok || id != 42 {
		t.Fatalf("Lookup: got (%d,%v), want (42,true)", id, ok)
	}

	idx.Remove("k", 2)
	if _, ok := idx.Lookup("k"); ok {
		t.Fatalf("expected removed key to be absent")
	}
}

func TestHashIndexRejectsIterateBounded(t *testing.T) {
	idx := New(KindHash)
	idx.Insert("x", 1, 1)

	err := idx.IterateBounded("a", "z", func(string, record.ID) bool { return true })
	if err != ErrUnordered {
		t.Fatalf("expected ErrUnordered, got %v", err)
	}

	id, ok := idx.Lookup("x")
	if !ok || id != 1 {
		t.Fatalf("Lookup: got (%d,%v), want (1,true)", id, ok)
	}
}
