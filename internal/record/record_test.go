package record

import (
	"testing"

	"github.com/maemio/maemio/internal/clock"
)

func stageAndFinalize(t *testing.T, r *Record, writer TxID, payload []byte, commitTS clock.Timestamp) *Version {
	t.Helper()
	r.Lock()
	v, err := r.Stage(writer, payload, false)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	r.Finalize(v, commitTS)
	r.Unlock()
	return v
}

func TestReadVisibleEmptyRecord(t *testing.T) {
	r := New(1)
	_, vis := r.ReadVisible(100)
	if vis != NotFound {
		t.Fatalf("expected NotFound on an empty chain, got %v", vis)
	}
}

func TestStageFinalizeReadVisible(t *testing.T) {
	r := New(1)
	stageAndFinalize(t, r, 1, []byte("a"), 10)

	v, vis := r.ReadVisible(100)
	if vis != Visible {
		t.Fatalf("expected Visible, got %v", vis)
	}
	if string(v.Payload) != "a" {
		t.Fatalf("got payload %q, want %q", v.Payload, "a")
	}

	_, vis = r.ReadVisible(5)
	if vis != NotFound {
		t.Fatalf("expected NotFound before begin_ts, got %v", vis)
	}
}

func TestStageConflict(t *testing.T) {
	r := New(1)
	r.Lock()
	_, err := r.Stage(1, []byte("a"), false)
	if err != nil {
		t.Fatalf("first Stage: %v", err)
	}
	_, err = r.Stage(2, []byte("b"), false)
	r.Unlock()
	if err != ErrWriteConflict {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
}

func TestReadVisiblePendingFromOtherTxIsInvisible(t *testing.T) {
	r := New(1)
	r.Lock()
	_, err := r.Stage(1, []byte("a"), false)
	r.Unlock()
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	_, vis := r.ReadVisible(100)
	if vis != Invisible {
		t.Fatalf("expected Invisible for a pending version from another tx, got %v", vis)
	}
}

func TestAbortUnlinksVersion(t *testing.T) {
	r := New(1)
	r.Lock()
	v, _ := r.Stage(1, []byte("a"), false)
	r.Abort(v)
	r.Unlock()

	if r.Len() != 0 {
		t.Fatalf("expected empty chain after abort, got len=%d", r.Len())
	}
}

func TestMultipleCommittedVersionsDoNotOverlap(t *testing.T) {
	r := New(1)
	stageAndFinalize(t, r, 1, []byte("a"), 10)
	stageAndFinalize(t, r, 2, []byte("b"), 20)

	chain := r.Chain()
	if len(chain) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(chain))
	}
	newest, older := chain[0], chain[1]
	if !(older.BeginTS < older.EndTS && older.EndTS == newest.BeginTS) {
		t.Fatalf("versions overlap: older=[%d,%d) newest begin=%d", older.BeginTS, older.EndTS, newest.BeginTS)
	}

	v, vis := r.ReadVisible(15)
	if vis != Visible || string(v.Payload) != "a" {
		t.Fatalf("snapshot at ts=15 should see %q, got %v/%q", "a", vis, v.Payload)
	}
	v, vis = r.ReadVisible(25)
	if vis != Visible || string(v.Payload) != "b" {
		t.Fatalf("snapshot at ts=25 should see %q, got %v/%q", "b", vis, v.Payload)
	}
}

func TestPruneRemovesVersionsBelowSafeTS(t *testing.T) {
	r := New(1)
	for i, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		stageAndFinalize(t, r, TxID(i+1), payload, clock.Timestamp((i+1)*10))
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 versions before GC, got %d", r.Len())
	}

	r.Lock()
	removed := r.Prune(25) // safe ts sits between commits 2 and 3
	r.Unlock()

	if removed == 0 {
		t.Fatalf("expected Prune to remove at least one version")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 versions (b, still visible at 25, and current c) after GC, got %d", r.Len())
	}
	v, vis := r.ReadVisible(1000)
	if vis != Visible || string(v.Payload) != "c" {
		t.Fatalf("expected current version %q to survive GC, got %v/%q", "c", vis, v.Payload)
	}
}

func TestTombstoneNotFound(t *testing.T) {
	r := New(1)
	r.Lock()
	v, _ := r.Stage(1, nil, true)
	r.Finalize(v, 10)
	r.Unlock()

	_, vis := r.ReadVisible(100)
	if vis != NotFound {
		t.Fatalf("expected tombstone to read as NotFound, got %v", vis)
	}
}
