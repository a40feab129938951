// Package gc implements Maemio's garbage collector: periodic
// reclamation of record versions no longer visible to any active
// transaction.
//
// What: Collector.Sweep computes the GC safe timestamp as the minimum
// begin_ts of every active transaction (or the current time if none are
// active) and prunes every record's version chain up to that horizon.
// How: Sharded sweep via store.Store.ForEach, so unrelated records never
// contend; each record prunes under its own head lock.
// Why: Keeping the horizon computation and the sweep separate makes the
// safety argument checkable in one place (see Collector.SafeTimestamp).
package gc

import (
	"log"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
	"github.com/maemio/maemio/internal/store"
)

// ActiveTracker reports the set of currently active transactions' begin
// timestamps. The engine implements this over its live transaction
// table; it is a narrow interface so the collector can be tested without
// a whole engine.
type ActiveTracker interface {
	// ActiveBeginTimestamps appends the begin_ts of every transaction
	// that is currently ACTIVE or VALIDATING to dst and returns the
	// result. Returning an empty slice means "no active transactions".
	ActiveBeginTimestamps(dst []clock.Timestamp) []clock.Timestamp
}

// Result summarizes one GC sweep.
type Result struct {
	SafeTimestamp  clock.Timestamp
	VersionsPruned int
	RecordsSwept   int
}

// Collector periodically reclaims obsolete versions from a store.Store.
type Collector struct {
	store      *store.Store
	active     ActiveTracker
	clock      *clock.Clock
	syncWorker int
	logger     *log.Logger
}

// New builds a Collector. syncWorker is the clock worker id used to
// stamp SafeTimestamp when there are no active transactions at all.
func New(s *store.Store, active ActiveTracker, clk *clock.Clock, syncWorker int, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{store: s, active: active, clock: clk, syncWorker: syncWorker, logger: logger}
}

// SafeTimestamp computes the GC horizon: the minimum begin_ts across all
// active transactions, or clock.Now(syncWorker) if there are none.
func (c *Collector) SafeTimestamp() clock.Timestamp {
	actives := c.active.ActiveBeginTimestamps(nil)
	if len(actives) == 0 {
		return c.clock.Now(c.syncWorker)
	}
	safe := actives[0]
	for _, ts := range actives[1:] {
		if ts < safe {
			safe = ts
		}
	}
	return safe
}

// Sweep runs one GC pass: computes the safe timestamp and prunes every
// record's chain up to it.
func (c *Collector) Sweep() Result {
	safe := c.SafeTimestamp()
	result := Result{SafeTimestamp: safe}

	c.store.ForEach(func(r *record.Record) {
		result.RecordsSwept++
		r.Lock()
		result.VersionsPruned += r.Prune(safe)
		r.Unlock()
	})

	if result.VersionsPruned > 0 {
		c.logger.Printf("gc: swept %d records, pruned %d versions below safe_ts=%d",
			result.RecordsSwept, result.VersionsPruned, result.SafeTimestamp)
	}
	return result
}
