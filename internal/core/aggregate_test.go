package core

import (
	"math/rand"
	"testing"
	"time"
)

func tx(id string, typ TransactionType, cents int64) Transaction {
	return Transaction{
		ID:     id,
		UserID: "u-1",
		Name:   string(typ) + " " + id,
		Amount: Money{Cents: cents},
		Type:   typ,
		Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func settlementTx(id string, typ TransactionType, cents int64, relatedID string) Transaction {
	t := tx(id, typ, cents)
	t.IsSettlement = true
	t.RelatedTransactionID = relatedID
	return t
}

// Walks the running-total scenario end to end: income, expense, borrowing,
// then a partial repayment of the borrowed amount.
func TestRecomputeRunningTotals(t *testing.T) {
	var history []Transaction
	check := func(step string, want AggregateState) {
		t.Helper()
		got := Recompute(history)
		if got != want {
			t.Fatalf("%s: expected %+v, got %+v", step, want, got)
		}
	}

	history = append(history, tx("a", Income, 100_00))
	check("after income 100", AggregateState{
		Balance:     Money{Cents: 100_00},
		TotalIncome: Money{Cents: 100_00},
	})

	history = append(history, tx("b", Expense, 40_00))
	check("after expense 40", AggregateState{
		Balance:      Money{Cents: 60_00},
		TotalIncome:  Money{Cents: 100_00},
		TotalExpense: Money{Cents: 40_00},
	})

	history = append(history, tx("c", Payable, 50_00))
	check("after payable 50", AggregateState{
		Balance:      Money{Cents: 110_00},
		TotalIncome:  Money{Cents: 100_00},
		TotalExpense: Money{Cents: 40_00},
		TotalPayable: Money{Cents: 50_00},
	})

	history = append(history, settlementTx("d", Expense, 20_00, "c"))
	check("after settling 20 of the payable", AggregateState{
		Balance:      Money{Cents: 90_00},
		TotalIncome:  Money{Cents: 100_00},
		TotalExpense: Money{Cents: 40_00}, // repayment is a transfer, not spending
		TotalPayable: Money{Cents: 30_00},
	})
}

func TestRecomputeReceivableSettlementCountsAsIncome(t *testing.T) {
	history := []Transaction{
		tx("a", Income, 200_00),
		tx("b", Receivable, 80_00),
		settlementTx("c", Income, 30_00, "b"),
	}
	got := Recompute(history)
	want := AggregateState{
		Balance:         Money{Cents: 150_00},
		TotalIncome:     Money{Cents: 230_00},
		TotalReceivable: Money{Cents: 50_00},
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestRecomputeOrderIndependence(t *testing.T) {
	history := []Transaction{
		tx("a", Income, 500_00),
		tx("b", Expense, 123_45),
		tx("c", Payable, 75_00),
		tx("d", Receivable, 60_00),
		settlementTx("e", Expense, 25_00, "c"),
		settlementTx("f", Income, 60_00, "d"),
		tx("g", Income, 1),
		tx("h", Expense, 99),
	}
	want := Recompute(history)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]Transaction(nil), history...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := Recompute(shuffled); got != want {
			t.Fatalf("permutation %d: expected %+v, got %+v", i, want, got)
		}
	}
}

// Adding a transaction shifts the recomputed state by exactly its forward
// delta, and removing it restores the previous state.
func TestRecomputeCreateDeleteInverse(t *testing.T) {
	base := []Transaction{
		tx("a", Income, 300_00),
		tx("b", Expense, 50_00),
		tx("c", Payable, 40_00),
	}
	before := Recompute(base)

	extras := []Transaction{
		tx("x1", Income, 10_00),
		tx("x2", Expense, 5_00),
		tx("x3", Receivable, 20_00),
		settlementTx("x4", Expense, 15_00, "c"),
	}
	for i, extra := range extras {
		withExtra := Recompute(append(append([]Transaction(nil), base...), extra))
		if want := before.Apply(ForwardDelta(extra)); withExtra != want {
			t.Fatalf("case %d: expected %+v, got %+v", i, want, withExtra)
		}
		if restored := withExtra.Apply(ReverseDelta(extra)); restored != before {
			t.Fatalf("case %d: delete did not restore state: %+v vs %+v", i, restored, before)
		}
	}
}

func TestRecomputeEmpty(t *testing.T) {
	if got := Recompute(nil); got != (AggregateState{}) {
		t.Fatalf("expected zero state, got %+v", got)
	}
}

// A settlement referencing a transaction that was later deleted still folds
// deterministically: its effect is derived from its own type and amount.
func TestRecomputeDanglingSettlement(t *testing.T) {
	history := []Transaction{
		tx("a", Income, 100_00),
		settlementTx("s", Expense, 30_00, "gone"),
	}
	got := Recompute(history)
	want := AggregateState{
		Balance:     Money{Cents: 70_00},
		TotalIncome: Money{Cents: 100_00},
		// The payable total floors at zero; its ledger line is gone.
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDeltaAddNeg(t *testing.T) {
	d := Delta{Balance: 10, Income: 10}
	if got := d.Add(d.Neg()); !got.IsZero() {
		t.Fatalf("expected zero delta, got %+v", got)
	}
	sum := Delta{Balance: 5, Expense: 5}.Add(Delta{Balance: -3, Payable: 2})
	if sum != (Delta{Balance: 2, Expense: 5, Payable: 2}) {
		t.Fatalf("unexpected sum %+v", sum)
	}
}

func TestApplyFloorsLiabilityTotals(t *testing.T) {
	state := AggregateState{TotalPayable: Money{Cents: 10_00}}
	got := state.Apply(Delta{Payable: -15_00, Balance: -15_00})
	if got.TotalPayable.Cents != 0 {
		t.Fatalf("expected payable floored at 0, got %d", got.TotalPayable.Cents)
	}
	if got.Balance.Cents != -15_00 {
		t.Fatalf("balance must not be floored, got %d", got.Balance.Cents)
	}
}

func TestAllowsOverdraft(t *testing.T) {
	cases := []struct {
		d    Draft
		want bool
	}{
		{Draft{Type: Expense}, false},
		{Draft{Type: Income}, false},
		{Draft{Type: Receivable}, false},
		{Draft{Type: Payable}, true},
		{Draft{Type: Expense, IsSettlement: true}, true},
	}
	for i, tc := range cases {
		if got := tc.d.AllowsOverdraft(); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}
