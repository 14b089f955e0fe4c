// Package worker reconciles stored aggregates against the transaction
// history and mirrors committed ledger data to an external spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/sheets"
	"tally/internal/storage"
)

// Store is the persistence surface the worker verifies.
// *storage.SQLiteRepository satisfies it.
type Store interface {
	AllTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	GetAggregate(ctx context.Context, userID string) (core.AggregateState, error)
	SetAggregate(ctx context.Context, userID string, state core.AggregateState) error
	GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// VerifyWorker recomputes account totals from history and repairs the
// stored aggregate when they diverge. The mirror is optional.
type VerifyWorker struct {
	store  Store
	mirror sheets.LedgerMirror
}

func NewVerifyWorker(store Store, mirror sheets.LedgerMirror) *VerifyWorker {
	return &VerifyWorker{
		store:  store,
		mirror: mirror,
	}
}

// HandleLedgerEvent processes a single ledger change notification.
func (w *VerifyWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"user_id", msg.UserID,
		"transaction_id", msg.TransactionID,
		"action", msg.Action)

	if err := w.VerifyUser(ctx, msg.UserID); err != nil {
		return fmt.Errorf("verify user %s: %w", msg.UserID, err)
	}

	if w.mirror != nil && msg.Action == amqp.ActionCreated && msg.TransactionID != "" {
		w.mirrorTransaction(ctx, msg.UserID, msg.TransactionID)
	}
	return nil
}

// VerifyUser folds the account's full history and compares the result with
// the stored aggregate. A mismatch is repaired by overwriting the stored
// state with the recomputed one.
func (w *VerifyWorker) VerifyUser(ctx context.Context, userID string) error {
	history, err := w.store.AllTransactions(ctx, userID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	recomputed := core.Recompute(history)

	stored, err := w.store.GetAggregate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load aggregate: %w", err)
	}

	if stored != recomputed {
		slog.WarnContext(ctx, "Stored aggregate diverges from history, repairing",
			"user_id", userID,
			"stored_balance", stored.Balance.Cents,
			"recomputed_balance", recomputed.Balance.Cents,
			"transactions", len(history))
		if err := w.store.SetAggregate(ctx, userID, recomputed); err != nil {
			return fmt.Errorf("repair aggregate: %w", err)
		}
	}

	if w.mirror != nil {
		if _, err := w.mirror.AppendSnapshot(ctx, userID, recomputed); err != nil {
			// The mirror is best effort; the repaired state is already
			// persisted locally.
			slog.ErrorContext(ctx, "Failed to mirror aggregate snapshot",
				"user_id", userID, "error", err)
		}
	}
	return nil
}

// SweepAll verifies every known account. Per-user failures are logged and
// the sweep continues.
func (w *VerifyWorker) SweepAll(ctx context.Context) error {
	userIDs, err := w.store.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var failures int
	for _, userID := range userIDs {
		if err := w.VerifyUser(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Sweep verification failed", "user_id", userID, "error", err)
			failures++
		}
	}

	slog.InfoContext(ctx, "Sweep completed", "users", len(userIDs), "failures", failures)
	if failures > 0 {
		return fmt.Errorf("sweep finished with %d failures", failures)
	}
	return nil
}

// RunPeriodicSweep runs SweepAll on the given interval until the context
// ends. It covers accounts whose change events were lost.
func (w *VerifyWorker) RunPeriodicSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}

func (w *VerifyWorker) mirrorTransaction(ctx context.Context, userID, transactionID string) {
	tx, err := w.store.GetTransaction(ctx, userID, transactionID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted again before the event was processed.
		slog.InfoContext(ctx, "Transaction gone before mirroring", "transaction_id", transactionID)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load transaction for mirroring",
			"transaction_id", transactionID, "error", err)
		return
	}

	ref, err := w.mirror.AppendTransaction(ctx, *tx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror transaction",
			"transaction_id", transactionID, "error", err)
		return
	}
	slog.InfoContext(ctx, "Mirrored transaction",
		"transaction_id", transactionID, "sheets_ref", ref)
}
