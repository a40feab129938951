package gc

import (
	"testing"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
	"github.com/maemio/maemio/internal/store"
)

type fakeTracker struct {
	active []clock.Timestamp
}

func (f *fakeTracker) ActiveBeginTimestamps(dst []clock.Timestamp) []clock.Timestamp {
	return append(dst, f.active...)
}

func TestSafeTimestampWithNoActiveUsesClockNow(t *testing.T) {
	clk := clock.New(2)
	s := store.New()
	tracker := &fakeTracker{}
	c := New(s, tracker, clk, 0, nil)

	before := clk.Now(0)
	safe := c.SafeTimestamp()
	if safe <= before {
		t.Fatalf("expected SafeTimestamp to advance past %d, got %d", before, safe)
	}
}

func TestSafeTimestampWithActiveUsesMinimum(t *testing.T) {
	clk := clock.New(2)
	s := store.New()
	tracker := &fakeTracker{active: []clock.Timestamp{50, 10, 30}}
	c := New(s, tracker, clk, 0, nil)

	if got := c.SafeTimestamp(); got != 10 {
		t.Fatalf("expected minimum active begin_ts 10, got %d", got)
	}
}

func TestSweepReclaimsAfterFiveOverwrites(t *testing.T) {
	clk := clock.New(2)
	s := store.New()
	tracker := &fakeTracker{} // no active transactions

	id, v := s.CreateRecord(1, []byte("v0"))
	s.Finalize(id, v, clk.Now(0))

	for i := 1; i <= 5; i++ {
		nv, err := s.StageWrite(record.TxID(i+1), id, []byte("v"+string(rune('0'+i))), false)
		if err != nil {
			t.Fatalf("StageWrite: %v", err)
		}
		s.Finalize(id, nv, clk.Now(0))
	}

	r := s.Lookup(id)
	if r.Len() != 6 {
		t.Fatalf("expected 6 versions before GC, got %d", r.Len())
	}

	c := New(s, tracker, clk, 1, nil)
	result := c.Sweep()
	if result.VersionsPruned == 0 {
		t.Fatalf("expected GC to prune at least one version")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("expected exactly 1 version (current) after GC, got %d", got)
	}
}
