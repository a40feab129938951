package txn

import (
	"errors"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
	"github.com/maemio/maemio/internal/store"
)

// ErrNotFound is returned from Read when no version of the record is
// visible to the transaction's snapshot. It is the one conflict-adjacent
// error that is NOT recovered by aborting — it is surfaced to the caller
// as-is.
var ErrNotFound = errors.New("maemio: record not found")

// errAborted is returned internally whenever an operation forces the
// transaction to abort (a stale read or a write-write conflict). The
// engine's retry loop checks Context.Status rather than matching on this
// error, but it is still a distinct, non-nil value so user code that
// inspects the error from Read/Write/Delete/Create can tell "this
// transaction is now dead" apart from ErrNotFound.
var errAborted = errors.New("maemio: transaction aborted, retry")

// ErrInvalidState is returned when the caller misuses the API: writing
// after the transaction already aborted or committed, or committing
// twice.
var ErrInvalidState = errors.New("maemio: invalid transaction state")

// Executor runs the begin/read/validate/write/apply protocol for one
// transaction attempt. It does not retry — that loop belongs to the
// engine facade, which also owns contention-manager backoff decisions
// between attempts.
type Executor struct {
	store  *store.Store
	clock  *clock.Clock
	nextTx func() record.TxID
}

// NewExecutor builds an Executor over store s using clk for timestamps.
// nextTx supplies globally unique transaction ids (the engine wires this
// to a shared atomic counter so ids stay unique across all workers).
func NewExecutor(s *store.Store, clk *clock.Clock, nextTx func() record.TxID) *Executor {
	return &Executor{store: s, clock: clk, nextTx: nextTx}
}

// Begin allocates a transaction id and captures the snapshot timestamp.
func (e *Executor) Begin(workerID int) *Context {
	txID := e.nextTx()
	beginTS := e.clock.Now(workerID)
	return newContext(txID, workerID, beginTS)
}

// Read performs a visibility-checked read of id. Self-reads of this
// transaction's own uncommitted write short-circuit the chain scan
// entirely, including read-your-own-delete (which returns ErrNotFound).
func (e *Executor) Read(ctx *Context, id record.ID) ([]byte, error) {
	if ctx.Status != StatusActive {
		return nil, ErrInvalidState
	}

	if w, ok := ctx.ownWrite(id); ok {
		if w.version.Tombstone {
			return nil, ErrNotFound
		}
		return w.version.Payload, nil
	}

	v, vis := e.store.ReadVisible(id, ctx.BeginTS)
	switch vis {
	case record.Visible:
		ctx.recordRead(id, v, v.BeginTS)
		return v.Payload, nil
	case record.NotFound:
		return nil, ErrNotFound
	case record.Invisible:
		e.Abort(ctx)
		return nil, errAborted
	default:
		panic("maemio: unreachable visibility result")
	}
}

// Write stages payload as a new version of id. A second write to a
// record already in this transaction's write set replaces the staged
// payload in place (last write wins) rather than inserting a second
// chain node.
func (e *Executor) Write(ctx *Context, id record.ID, payload []byte) error {
	return e.stage(ctx, id, payload, false)
}

// Delete stages a tombstone for id.
func (e *Executor) Delete(ctx *Context, id record.ID) error {
	return e.stage(ctx, id, nil, true)
}

func (e *Executor) stage(ctx *Context, id record.ID, payload []byte, tombstone bool) error {
	if ctx.Status != StatusActive {
		return ErrInvalidState
	}

	if w, ok := ctx.ownWrite(id); ok {
		r := e.store.Lookup(id)
		r.Lock()
		r.Restage(record.TxID(ctx.ID), w.version, payload, tombstone)
		r.Unlock()
		return nil
	}

	v, err := e.store.StageWrite(record.TxID(ctx.ID), id, payload, tombstone)
	if err != nil {
		e.Abort(ctx)
		return errAborted
	}
	ctx.recordWrite(id, v)
	return nil
}

// Create allocates a brand-new record holding payload and stages it as
// this transaction's write, exactly like Write except the record id
// itself is new.
func (e *Executor) Create(ctx *Context, payload []byte) (record.ID, error) {
	if ctx.Status != StatusActive {
		return 0, ErrInvalidState
	}
	id, v := e.store.CreateRecord(record.TxID(ctx.ID), payload)
	ctx.recordWrite(id, v)
	return id, nil
}

// Commit runs VALIDATE, computes the commit timestamp, then WRITE/APPLY,
// and finally marks the transaction committed. Returns errAborted (via
// the returned error, and by setting ctx.Status) if validation fails.
// The apply step finalizes every staged version without re-checking the
// chain and never aborts.
func (e *Executor) Commit(ctx *Context) error {
	if ctx.Status != StatusActive {
		return ErrInvalidState
	}

	// Read-only fast path: nothing staged means nothing to validate or
	// apply. Committing is then a pure no-op beyond bookkeeping.
	if len(ctx.writeSet) == 0 {
		ctx.Status = StatusCommitted
		return nil
	}

	ctx.Status = StatusValidating
	if !e.validate(ctx) {
		e.Abort(ctx)
		return errAborted
	}

	commitTS := e.clock.Now(ctx.WorkerID)

	for _, w := range ctx.sortedWriteSet() {
		e.store.Finalize(w.id, w.version, commitTS)
	}

	ctx.Status = StatusCommitted
	return nil
}

// validate re-examines every read-set entry: if a newer committed
// version has appeared on that record since the read, the snapshot is
// stale and validation fails. Read-set entries are sorted by record id
// first, for a deterministic order that avoids livelock between
// concurrent validators with overlapping sets.
func (e *Executor) validate(ctx *Context) bool {
	for _, entry := range ctx.sortedReadSet() {
		r := e.store.Lookup(entry.id)
		if r == nil {
			continue // the record existed when we read it; nothing to invalidate against
		}

		// Lock-free short-circuit: if the shadow hasn't moved since our
		// read, there is nothing newer to find under lock.
		if r.LatestWriteTS() == entry.observedBegin {
			continue
		}

		if r.NewerCommittedThan(entry.observedBegin) {
			return false
		}
	}
	return true
}

// Abort unlinks every staged version in reverse (for chain locality) and
// marks the transaction aborted. Safe to call more than once; the second
// call is a no-op.
func (e *Executor) Abort(ctx *Context) {
	if ctx.Status == StatusAborted || ctx.Status == StatusCommitted {
		return
	}
	for i := len(ctx.writeSet) - 1; i >= 0; i-- {
		w := ctx.writeSet[i]
		e.store.Abort(w.id, w.version)
	}
	ctx.Status = StatusAborted
}
