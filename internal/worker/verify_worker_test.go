package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/sheets/memory"
	"tally/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedTx(t *testing.T, repo *storage.SQLiteRepository, tx core.Transaction, state core.AggregateState) {
	t.Helper()
	err := repo.UpdateAccount(context.Background(), tx.UserID, func(a storage.AccountView) (*storage.Change, error) {
		return &storage.Change{Aggregate: state, Insert: &tx}, nil
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func TestVerifyUserRepairsDivergentAggregate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := core.Transaction{
		ID: "t1", UserID: "u1", Name: "Salary", Amount: core.Money{Cents: 100_00},
		Type: core.Income, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	// Stored aggregate deliberately wrong.
	seedTx(t, repo, tx, core.AggregateState{Balance: core.Money{Cents: 1_00}})

	w := NewVerifyWorker(repo, nil)
	if err := w.VerifyUser(ctx, "u1"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	got, err := repo.GetAggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	want := core.AggregateState{
		Balance:     core.Money{Cents: 100_00},
		TotalIncome: core.Money{Cents: 100_00},
	}
	if got != want {
		t.Fatalf("aggregate not repaired: %+v", got)
	}
}

func TestVerifyUserLeavesConsistentStateAlone(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := core.Transaction{
		ID: "t1", UserID: "u1", Name: "Salary", Amount: core.Money{Cents: 50_00},
		Type: core.Income, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	want := core.AggregateState{
		Balance:     core.Money{Cents: 50_00},
		TotalIncome: core.Money{Cents: 50_00},
	}
	seedTx(t, repo, tx, want)

	w := NewVerifyWorker(repo, nil)
	if err := w.VerifyUser(ctx, "u1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := repo.GetAggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if got != want {
		t.Fatalf("consistent aggregate changed: %+v", got)
	}
}

func TestHandleLedgerEventMirrorsCreatedTransaction(t *testing.T) {
	repo := newTestRepo(t)
	mirror := memory.New()
	ctx := context.Background()

	tx := core.Transaction{
		ID: "t1", UserID: "u1", Name: "Salary", Amount: core.Money{Cents: 100_00},
		Type: core.Income, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	seedTx(t, repo, tx, core.AggregateState{
		Balance:     core.Money{Cents: 100_00},
		TotalIncome: core.Money{Cents: 100_00},
	})

	w := NewVerifyWorker(repo, mirror)
	msg := amqp.NewLedgerEventMessage("u1", "t1", amqp.ActionCreated)
	if err := w.HandleLedgerEvent(ctx, msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if len(mirror.Transactions) != 1 || mirror.Transactions[0].ID != "t1" {
		t.Fatalf("expected mirrored transaction, got %+v", mirror.Transactions)
	}
	if len(mirror.Snapshots) != 1 || mirror.Snapshots[0].State.Balance.Cents != 100_00 {
		t.Fatalf("expected mirrored snapshot, got %+v", mirror.Snapshots)
	}
}

func TestHandleLedgerEventDeletedSkipsTransactionMirror(t *testing.T) {
	repo := newTestRepo(t)
	mirror := memory.New()

	w := NewVerifyWorker(repo, mirror)
	msg := amqp.NewLedgerEventMessage("u1", "gone", amqp.ActionDeleted)
	if err := w.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(mirror.Transactions) != 0 {
		t.Fatalf("deleted events must not append transactions, got %+v", mirror.Transactions)
	}
}

func TestSweepAllRepairsEveryUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, userID := range []string{"u1", "u2"} {
		tx := core.Transaction{
			ID: "t" + userID, UserID: userID, Name: "Salary",
			Amount: core.Money{Cents: int64(i+1) * 10_00},
			Type:   core.Income, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		seedTx(t, repo, tx, core.AggregateState{})
	}

	w := NewVerifyWorker(repo, nil)
	if err := w.SweepAll(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for i, userID := range []string{"u1", "u2"} {
		got, err := repo.GetAggregate(ctx, userID)
		if err != nil {
			t.Fatalf("get aggregate for %s: %v", userID, err)
		}
		wantCents := int64(i+1) * 10_00
		if got.Balance.Cents != wantCents || got.TotalIncome.Cents != wantCents {
			t.Fatalf("user %s not repaired: %+v", userID, got)
		}
	}
}
