package maemio

import (
	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/record"
	"github.com/maemio/maemio/internal/txn"
)

// Tx is the handle user code operates on inside an Execute body. It is
// only valid for the duration of that call; holding on to it afterward
// and calling Read, Write, Delete or Create on it returns ErrInvalidState.
type Tx struct {
	exec *txn.Executor
	ctx  *txn.Context
}

// Read returns the payload visible to this transaction's snapshot for
// id, or ErrNotFound if no version is visible.
func (t *Tx) Read(id record.ID) ([]byte, error) {
	payload, err := t.exec.Read(t.ctx, id)
	return payload, translate(err)
}

// Write stages payload as a new version of id, replacing any value
// previously staged by this same transaction.
func (t *Tx) Write(id record.ID, payload []byte) error {
	return translate(t.exec.Write(t.ctx, id, payload))
}

// Delete stages a tombstone for id.
func (t *Tx) Delete(id record.ID) error {
	return translate(t.exec.Delete(t.ctx, id))
}

// Create allocates a new record holding payload and stages it as this
// transaction's write.
func (t *Tx) Create(payload []byte) (record.ID, error) {
	id, err := t.exec.Create(t.ctx, payload)
	return id, translate(err)
}

// Timestamp returns this transaction's snapshot (begin) timestamp.
func (t *Tx) Timestamp() clock.Timestamp {
	return t.ctx.BeginTS
}

// translate maps internal/txn's sentinel errors onto the public ones;
// the internal "aborted, retry" sentinel is intentionally left as-is so
// Engine.Execute's retry loop (which checks ctx.Status, not this value)
// is the only place abort/retry decisions are made — user code just sees
// "this call failed, the transaction is dying."
func translate(err error) error {
	switch err {
	case nil:
		return nil
	case txn.ErrNotFound:
		return ErrNotFound
	case txn.ErrInvalidState:
		return ErrInvalidState
	default:
		return err
	}
}
