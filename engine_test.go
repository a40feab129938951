package maemio

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/maemio/maemio/internal/index"
	"github.com/maemio/maemio/internal/record"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ThreadCount = 4
	eng, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestExecuteCreateAndReadRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var id record.ID
	err := eng.Execute(ctx, 0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("hello"))
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = eng.Execute(ctx, 0, func(tx *Tx) error {
		got, err := tx.Read(id)
		if err != nil {
			return err
		}
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestExecuteSelfReadOwnWrite(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var id record.ID
	err := eng.Execute(ctx, 0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("v1"))
		if err != nil {
			return err
		}
		if err := tx.Write(id, []byte("v2")); err != nil {
			return err
		}
		got, err := tx.Read(id)
		if err != nil {
			return err
		}
		if string(got) != "v2" {
			t.Fatalf("self-read got %q, want v2", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestExecuteReadYourOwnDelete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var id record.ID
	err := eng.Execute(ctx, 0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("v1"))
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = eng.Execute(ctx, 0, func(tx *Tx) error {
		if err := tx.Delete(id); err != nil {
			return err
		}
		_, err := tx.Read(id)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after self-delete, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestExecuteLostUpdatePrevention(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var id record.ID
	if err := eng.Execute(ctx, 0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("0"))
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	attempts := 0
	err := eng.Execute(ctx, 0, func(tx *Tx) error {
		attempts++
		_, err := tx.Read(id)
		if err != nil {
			return err
		}
		if attempts == 1 {
			// Force a conflicting write to land from a second, fully
			// independent transaction mid-body, so this attempt's
			// validation must fail and the retry loop must re-run body.
			if err := eng.Execute(ctx, 1, func(inner *Tx) error {
				return inner.Write(id, []byte("racer"))
			}); err != nil {
				t.Fatalf("inner execute: %v", err)
			}
		}
		return tx.Write(id, []byte("mine"))
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least one retry after the conflicting write, got %d attempt(s)", attempts)
	}

	err = eng.Execute(ctx, 0, func(tx *Tx) error {
		got, err := tx.Read(id)
		if err != nil {
			return err
		}
		if string(got) != "mine" {
			t.Fatalf("final value got %q, want %q", got, "mine")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("final read: %v", err)
	}
}

func TestExecuteReadOnlyTransactionCommits(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var id record.ID
	if err := eng.Execute(ctx, 0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("snapshot"))
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := eng.Execute(ctx, 0, func(tx *Tx) error {
		_, err := tx.Read(id)
		return err
	})
	if err != nil {
		t.Fatalf("read-only transaction should commit as a no-op: %v", err)
	}
}

func TestExecuteApplicationErrorDoesNotRetry(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	sentinel := errors.New("application failure")

	attempts := 0
	err := eng.Execute(ctx, 0, func(tx *Tx) error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error to propagate, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("application errors must not be retried, got %d attempts", attempts)
	}
}

func TestExecuteRetryExhaustedOnPersistentConflict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThreadCount = 2
	cfg.RetryCap = 2
	eng, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	var id record.ID
	if err := eng.Execute(ctx, 0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("0"))
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	attempts := 0
	err = eng.Execute(ctx, 0, func(tx *Tx) error {
		attempts++
		_, err := tx.Read(id)
		if err != nil {
			return err
		}
		// Every attempt races a conflicting writer in, so validation can
		// never succeed and the retry cap must eventually be hit.
		if err := eng.Execute(ctx, 1, func(inner *Tx) error {
			return inner.Write(id, []byte("racer"))
		}); err != nil {
			t.Fatalf("inner execute: %v", err)
		}
		return tx.Write(id, []byte("mine"))
	})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if attempts != cfg.RetryCap+1 {
		t.Fatalf("expected %d attempts, got %d", cfg.RetryCap+1, attempts)
	}
}

func TestEngineCreateIndexIsIdempotentByID(t *testing.T) {
	eng := newTestEngine(t)
	id := uuid.New()

	first, err := eng.CreateIndex(id, "by_name", index.KindBTree)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	second, err := eng.CreateIndex(id, "by_name", index.KindBTree)
	if err != nil {
		t.Fatalf("CreateIndex (repeat): %v", err)
	}
	if first != second {
		t.Fatalf("expected CreateIndex to return the same instance for a repeated id")
	}
}

func TestEngineStatsReflectCommitsAndPerWorkerBackoff(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.Execute(ctx, 0, func(tx *Tx) error {
		_, err := tx.Create([]byte("x"))
		return err
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	stats := eng.Stats()
	if stats.Committed == 0 {
		t.Fatalf("expected at least one committed transaction in stats")
	}
	if len(stats.BackoffMeanMicros) != eng.cfg.ThreadCount {
		t.Fatalf("expected one backoff mean per worker, got %d", len(stats.BackoffMeanMicros))
	}
}

func TestEngineShutdownRejectsNewExecute(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	err := eng.Execute(ctx, 0, func(tx *Tx) error { return nil })
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown after Shutdown, got %v", err)
	}
}

func TestExecuteRejectsOutOfRangeWorkerID(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.Execute(context.Background(), eng.cfg.ThreadCount, func(tx *Tx) error { return nil })
	if err == nil {
		t.Fatalf("expected an error for an out-of-range worker id")
	}
}
