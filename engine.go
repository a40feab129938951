// Package maemio is an in-memory transactional key-value engine
// providing serializable isolation at high throughput on multi-core
// hardware. It implements optimistic multi-version concurrency control
// with loosely synchronized per-worker clocks, best-effort version
// inlining, and adaptive contention management, modeled on the Cicada
// design.
//
// # Basic usage
//
//	cfg := maemio.DefaultConfig()
//	eng, err := maemio.NewEngine(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Shutdown(context.Background())
//	eng.StartMaintenance()
//
//	var id record.ID
//	err = eng.Execute(context.Background(), 0, func(tx *maemio.Tx) error {
//		var err error
//		id, err = tx.Create([]byte("hello"))
//		return err
//	})
package maemio

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/contention"
	"github.com/maemio/maemio/internal/gc"
	"github.com/maemio/maemio/internal/index"
	"github.com/maemio/maemio/internal/maintenance"
	"github.com/maemio/maemio/internal/record"
	"github.com/maemio/maemio/internal/store"
	"github.com/maemio/maemio/internal/txn"
)

// Engine wires every core component together and is the only type
// application code constructs directly.
type Engine struct {
	cfg Config

	store    *store.Store
	clock    *clock.Clock
	executor *txn.Executor

	nextTxID atomic.Uint64

	contention []*contention.Manager // one per worker

	activeMu sync.Mutex
	active   map[record.TxID]clock.Timestamp

	gcCollector *gc.Collector
	maintSched  *maintenance.Scheduler

	indexMu sync.Mutex
	indices map[uuid.UUID]index.Descriptor
	backing map[uuid.UUID]index.Index

	logger *log.Logger

	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	stats EngineStats
}

// EngineStats is a point-in-time read-only snapshot, grounded on
// tinySQL's ConcurrencyStats shape (internal/storage/concurrency.go):
// plain atomic counters read without blocking writers.
type EngineStats struct {
	Committed         uint64
	Aborted           uint64
	RetryExhausted    uint64
	GCReclaimed       uint64
	BackoffMeanMicros []float64 // indexed by worker id
}

// NewEngine validates cfg and constructs an Engine ready to accept
// transactions. StartMaintenance must be called separately to begin the
// background GC and clock-sync loops.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		store:   store.New(),
		clock:   clock.New(cfg.ThreadCount),
		active:  make(map[record.TxID]clock.Timestamp),
		indices: make(map[uuid.UUID]index.Descriptor),
		backing: make(map[uuid.UUID]index.Index),
		logger:  log.Default(),
	}

	e.contention = make([]*contention.Manager, cfg.ThreadCount)
	for i := range e.contention {
		e.contention[i] = contention.NewManagerWithBounds(cfg.BackoffMinMicros, cfg.BackoffMaxMicros)
	}

	e.executor = txn.NewExecutor(e.store, e.clock, e.allocateTxID)
	e.gcCollector = gc.New(e.store, e, e.clock, 0, e.logger)
	e.maintSched = maintenance.New(e.gcCollector, e.clock, cfg.gcInterval(), cfg.clockSyncInterval(), e.logger)

	return e, nil
}

func (e *Engine) allocateTxID() record.TxID {
	return record.TxID(e.nextTxID.Add(1))
}

// ActiveBeginTimestamps implements gc.ActiveTracker.
func (e *Engine) ActiveBeginTimestamps(dst []clock.Timestamp) []clock.Timestamp {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	for _, ts := range e.active {
		dst = append(dst, ts)
	}
	return dst
}

// StartMaintenance starts the background GC sweep and clock epoch-advance
// loops.
func (e *Engine) StartMaintenance() {
	e.maintSched.Start()
}

// Execute runs body against a fresh transaction on workerID, retrying on
// contention-driven aborts up to Config.RetryCap times. Backoff between
// retries is sampled from the per-worker contention manager. Returns
// ErrShutdown if the engine is shutting down, ErrRetryExhausted if the
// retry cap is reached, or whatever error body itself returned on a
// non-conflict failure.
func (e *Engine) Execute(ctx context.Context, workerID int, body func(*Tx) error) error {
	if e.shuttingDown.Load() {
		return ErrShutdown
	}
	if workerID < 0 || workerID >= e.cfg.ThreadCount {
		return fmt.Errorf("maemio: workerID %d out of range [0,%d)", workerID, e.cfg.ThreadCount)
	}

	e.wg.Add(1)
	defer e.wg.Done()

	cm := e.contention[workerID]

	for attempt := 0; attempt <= e.cfg.RetryCap; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.shuttingDown.Load() {
			return ErrShutdown
		}

		txCtx := e.executor.Begin(workerID)
		e.trackActive(txCtx)

		tx := &Tx{exec: e.executor, ctx: txCtx}
		bodyErr := body(tx)

		var commitErr error
		if bodyErr == nil {
			commitErr = e.executor.Commit(txCtx)
		}

		e.untrackActive(txCtx)

		aborted := txCtx.Status == txn.StatusAborted
		committed := txCtx.Status == txn.StatusCommitted && bodyErr == nil && commitErr == nil

		if committed {
			cm.RecordCommit()
			atomic.AddUint64(&e.stats.Committed, 1)
			return nil
		}

		if aborted {
			cm.RecordAbort()
			atomic.AddUint64(&e.stats.Aborted, 1)
			if attempt == e.cfg.RetryCap {
				atomic.AddUint64(&e.stats.RetryExhausted, 1)
				return ErrRetryExhausted
			}
			time.Sleep(cm.SampleBackoff())
			continue
		}

		// The transaction never aborted (no conflict was observed) but
		// body or Commit still returned an error: a genuine application
		// failure, not contention. Roll back and surface it as-is.
		e.executor.Abort(txCtx)
		if bodyErr != nil {
			return bodyErr
		}
		return commitErr
	}

	return ErrRetryExhausted
}

func (e *Engine) trackActive(ctx *txn.Context) {
	e.activeMu.Lock()
	e.active[ctx.ID] = ctx.BeginTS
	e.activeMu.Unlock()
}

func (e *Engine) untrackActive(ctx *txn.Context) {
	e.activeMu.Lock()
	delete(e.active, ctx.ID)
	e.activeMu.Unlock()
}

// CreateIndex constructs (or returns, if id already exists) a reference
// index of the given kind and registers it under id/name. The engine
// treats the index purely as a black box keyed by user keys mapping to
// record IDs — see internal/index.
func (e *Engine) CreateIndex(id uuid.UUID, name string, kind index.Kind) (index.Index, error) {
	if e.shuttingDown.Load() {
		return nil, ErrShutdown
	}

	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	if existing, ok := e.backing[id]; ok {
		return existing, nil
	}

	idx := index.New(kind)
	e.indices[id] = index.Descriptor{ID: id, Name: name, Kind: kind}
	e.backing[id] = idx
	return idx, nil
}

// Stats returns a read-only snapshot of engine-wide counters.
func (e *Engine) Stats() EngineStats {
	means := make([]float64, len(e.contention))
	for i, cm := range e.contention {
		means[i] = cm.MeanMicros()
	}
	return EngineStats{
		Committed:         atomic.LoadUint64(&e.stats.Committed),
		Aborted:           atomic.LoadUint64(&e.stats.Aborted),
		RetryExhausted:    atomic.LoadUint64(&e.stats.RetryExhausted),
		GCReclaimed:       uint64(e.maintSched.LastGCResult().VersionsPruned),
		BackoffMeanMicros: means,
	}
}

// Shutdown quiesces the engine: it stops accepting new Execute calls,
// stops maintenance, and waits for in-flight transactions to finish
// (ctx can bound that wait).
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.shuttingDown.CompareAndSwap(false, true) {
		return nil // already shutting down
	}
	e.maintSched.Stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
