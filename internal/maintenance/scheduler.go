// Package maintenance drives Maemio's two background loops — GC sweeps
// and clock epoch advances — on a shared robfig/cron scheduler, mirroring
// how tinySQL's internal/storage.Scheduler wires cron.Cron for its job
// catalog (see DESIGN.md).
//
// What: Start/Stop a cron.Cron running an intervalSchedule-based GC job
// and an intervalSchedule-based clock-sync job.
// How: cron's textual schedules don't express "every N milliseconds" with
// sub-second resolution, so intervalSchedule implements cron.Schedule
// directly over a fixed time.Duration, following the same shape as
// tinySQL's CRON/INTERVAL job distinction in scheduleJob.
// Why: Keeps maintenance cadence declarative, restartable, and testable
// through the same cron.Cron machinery as any other scheduled job.
package maintenance

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/gc"
)

// titleCaser renders the first word of a maintenance diagnostic line in
// title case, matching the operator-facing log formatting tinySQL's
// dependency on golang.org/x/text enables elsewhere in the pack.
var titleCaser = cases.Title(language.English)

// intervalSchedule implements cron.Schedule for a fixed-period job. cron's
// built-in parser only understands second-resolution expressions, but GC
// and clock-sync both default to sub-second periods.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

// Scheduler owns the cron runtime backing Maemio's GC and clock-sync
// maintenance workers.
type Scheduler struct {
	cron   *cron.Cron
	gc     *gc.Collector
	clk    *clock.Clock
	logger *log.Logger

	gcInterval   time.Duration
	syncInterval time.Duration

	resultMu   sync.Mutex
	lastResult gc.Result
}

// New builds a Scheduler. It does not start any goroutines until Start
// is called.
func New(collector *gc.Collector, clk *clock.Clock, gcInterval, syncInterval time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds()),
		gc:           collector,
		clk:          clk,
		logger:       logger,
		gcInterval:   gcInterval,
		syncInterval: syncInterval,
	}
}

// Start registers the GC sweep and clock epoch-advance jobs and starts
// the cron runtime. Safe to call once; call Stop before calling Start
// again.
func (s *Scheduler) Start() {
	s.cron.Schedule(intervalSchedule{every: s.gcInterval}, cron.FuncJob(s.runGC))
	s.cron.Schedule(intervalSchedule{every: s.syncInterval}, cron.FuncJob(s.runClockSync))
	s.cron.Start()
}

// Stop halts the cron runtime and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runGC() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("%s: gc sweep panicked: %v", titleCaser.String("maintenance"), r)
			panic(r)
		}
	}()
	result := s.gc.Sweep()
	s.resultMu.Lock()
	s.lastResult = result
	s.resultMu.Unlock()
}

func (s *Scheduler) runClockSync() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("%s: clock sync panicked: %v", titleCaser.String("maintenance"), r)
		}
	}()
	epoch := s.clk.AdvanceEpoch()
	s.logger.Printf("%s: advanced clock epoch to %d", titleCaser.String("maintenance"), epoch)
}

// LastGCResult returns the most recent GC sweep's result, for
// diagnostics and the engine's Stats() surface.
func (s *Scheduler) LastGCResult() gc.Result {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return s.lastResult
}
