package maemio

import "errors"

// Error kinds surfaced to callers. Conflicts and validation failures
// are recovered inside the executor's retry loop and never reach this
// list unless the retry cap is exhausted.
var (
	// ErrNotFound is returned by Tx.Read when no version of the record is
	// visible to the transaction's snapshot.
	ErrNotFound = errors.New("maemio: record not found")

	// ErrRetryExhausted is returned by Engine.Execute when a transaction
	// body keeps aborting past Config.RetryCap attempts.
	ErrRetryExhausted = errors.New("maemio: retry cap exhausted")

	// ErrInvalidState is returned on API misuse: writing after abort or
	// committing twice. Execute after Shutdown returns ErrShutdown.
	ErrInvalidState = errors.New("maemio: invalid transaction state")

	// ErrShutdown is returned by Execute once the engine has begun
	// shutting down; no new transactions are accepted.
	ErrShutdown = errors.New("maemio: engine is shutting down")
)
