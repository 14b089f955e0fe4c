package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// Store is the persistence surface the ledger service mutates through.
// *storage.SQLiteRepository satisfies it; tests use an in-memory fake.
type Store interface {
	UpdateAccount(ctx context.Context, userID string, fn func(storage.AccountView) (*storage.Change, error)) error
	GetAggregate(ctx context.Context, userID string) (core.AggregateState, error)
	GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error)
	ListTransactions(ctx context.Context, userID string, f storage.Filter) ([]core.Transaction, error)
	AllTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
}

// EventPublisher notifies downstream consumers of committed mutations.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, userID, transactionID, action string) error
}

// LedgerService applies single create/edit/delete mutations against an
// account with all-or-nothing semantics: the transaction record and the
// aggregate totals commit together, or neither does.
type LedgerService struct {
	store  Store
	events EventPublisher
}

func NewLedgerService(store Store, events EventPublisher) *LedgerService {
	return &LedgerService{
		store:  store,
		events: events,
	}
}

// CreateTransaction validates the draft, resolves its settlement if any,
// and persists the record together with the new aggregate.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, draft core.Draft) (*core.Transaction, error) {
	draft = normalize(draft)
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	tx := newTransaction(userID, draft)
	err := s.store.UpdateAccount(ctx, userID, func(a storage.AccountView) (*storage.Change, error) {
		delta, err := s.forwardDelta(ctx, a, tx)
		if err != nil {
			return nil, err
		}

		next := a.Aggregate().Apply(delta)
		if err := guardBalance(next, draft); err != nil {
			return nil, err
		}

		return &storage.Change{Aggregate: next, Insert: &tx}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, userID, tx.ID, amqp.ActionCreated)
	return &tx, nil
}

// EditTransaction replaces the transaction's fields and applies the net of
// its reverse and forward deltas to the aggregate. On any violation both
// the record and the aggregate stay at their pre-edit state.
func (s *LedgerService) EditTransaction(ctx context.Context, userID, id string, draft core.Draft) (*core.Transaction, error) {
	draft = normalize(draft)
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var updated core.Transaction
	err := s.store.UpdateAccount(ctx, userID, func(a storage.AccountView) (*storage.Change, error) {
		prev, err := a.Transaction(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load transaction %s: %w", id, err)
		}

		updated = *prev
		updated.Name = draft.Name
		updated.Amount = draft.Amount
		updated.Type = draft.Type
		updated.Notes = draft.Notes
		updated.IsSettlement = draft.IsSettlement
		updated.RelatedTransactionID = draft.RelatedTransactionID
		if !draft.Date.IsZero() {
			updated.Date = draft.Date
		}

		forward, err := s.forwardDelta(ctx, a, updated)
		if err != nil {
			return nil, err
		}

		net := core.ReverseDelta(*prev).Add(forward)
		next := a.Aggregate().Apply(net)
		if err := guardBalance(next, draft); err != nil {
			return nil, err
		}

		return &storage.Change{Aggregate: next, Update: &updated}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, userID, id, amqp.ActionUpdated)
	return &updated, nil
}

// DeleteTransaction reverses the transaction's aggregate contribution and
// removes the record. Deletion is always permitted; the negative-balance
// guard does not apply.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id string) error {
	err := s.store.UpdateAccount(ctx, userID, func(a storage.AccountView) (*storage.Change, error) {
		prev, err := a.Transaction(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load transaction %s: %w", id, err)
		}

		next := a.Aggregate().Apply(core.ReverseDelta(*prev))
		return &storage.Change{Aggregate: next, Delete: id}, nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, userID, id, amqp.ActionDeleted)
	return nil
}

// GetSummary returns the stored aggregate totals for the account. The read
// path is non-locking; a caller may observe a snapshot that predates an
// in-flight mutation.
func (s *LedgerService) GetSummary(ctx context.Context, userID string) (core.AggregateState, error) {
	return s.store.GetAggregate(ctx, userID)
}

// ListTransactions returns the account's history matching the filter.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, f storage.Filter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, userID, f)
}

// RecomputeAggregate folds the account's complete history into fresh
// totals, independent of the stored aggregate. Usable as an offline
// consistency check.
func (s *LedgerService) RecomputeAggregate(ctx context.Context, userID string) (core.AggregateState, error) {
	history, err := s.store.AllTransactions(ctx, userID)
	if err != nil {
		return core.AggregateState{}, fmt.Errorf("load history: %w", err)
	}
	return core.Recompute(history), nil
}

// forwardDelta resolves the aggregate effect of tx, looking up the
// referenced transaction through the same snapshot when tx is a settlement.
func (s *LedgerService) forwardDelta(ctx context.Context, a storage.AccountView, tx core.Transaction) (core.Delta, error) {
	if !tx.IsSettlement {
		return core.ForwardDelta(tx), nil
	}

	related, err := a.Transaction(ctx, tx.RelatedTransactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Delta{}, fmt.Errorf("%w: %s", core.ErrMissingRelated, tx.RelatedTransactionID)
	}
	if err != nil {
		return core.Delta{}, fmt.Errorf("load related transaction %s: %w", tx.RelatedTransactionID, err)
	}
	return core.ResolveSettlement(tx, related)
}

func guardBalance(next core.AggregateState, draft core.Draft) error {
	if next.Balance.Cents < 0 && !draft.AllowsOverdraft() {
		return core.ErrInsufficientBalance
	}
	return nil
}

// publish is best effort: the mutation already committed, so a broker
// failure is logged and swallowed. The worker's periodic sweep covers
// missed events.
func (s *LedgerService) publish(ctx context.Context, userID, transactionID, action string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, userID, transactionID, action); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"user_id", userID,
			"transaction_id", transactionID,
			"action", action,
			"error", err)
	}
}

func normalize(d core.Draft) core.Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Notes = strings.TrimSpace(d.Notes)
	d.RelatedTransactionID = strings.TrimSpace(d.RelatedTransactionID)
	return d
}

func newTransaction(userID string, d core.Draft) core.Transaction {
	date := d.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return core.Transaction{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Name:                 d.Name,
		Amount:               d.Amount,
		Type:                 d.Type,
		Notes:                d.Notes,
		Date:                 date,
		IsSettlement:         d.IsSettlement,
		RelatedTransactionID: d.RelatedTransactionID,
	}
}
