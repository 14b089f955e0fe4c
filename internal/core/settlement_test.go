package core

import (
	"errors"
	"testing"
)

func TestResolveSettlementPairing(t *testing.T) {
	payable := tx("p", Payable, 50_00)
	receivable := tx("r", Receivable, 50_00)
	income := tx("i", Income, 50_00)

	cases := []struct {
		name     string
		settling Transaction
		related  Transaction
		want     error
	}{
		{"expense settles payable", settlementTx("s", Expense, 20_00, "p"), payable, nil},
		{"income settles receivable", settlementTx("s", Income, 20_00, "r"), receivable, nil},
		{"expense cannot settle receivable", settlementTx("s", Expense, 20_00, "r"), receivable, ErrInvalidSettlementPairing},
		{"income cannot settle payable", settlementTx("s", Income, 20_00, "p"), payable, ErrInvalidSettlementPairing},
		{"cannot settle plain income", settlementTx("s", Expense, 20_00, "i"), income, ErrInvalidSettlementPairing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveSettlement(tc.settling, &tc.related)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveSettlementBound(t *testing.T) {
	payable := tx("p", Payable, 50_00)

	if _, err := ResolveSettlement(settlementTx("s", Expense, 50_00, "p"), &payable); err != nil {
		t.Fatalf("settling the full amount should be allowed, got %v", err)
	}
	_, err := ResolveSettlement(settlementTx("s", Expense, 50_01, "p"), &payable)
	if !errors.Is(err, ErrSettlementExceedsOutstanding) {
		t.Fatalf("expected ErrSettlementExceedsOutstanding, got %v", err)
	}
}

func TestResolveSettlementDelta(t *testing.T) {
	payable := tx("p", Payable, 50_00)
	d, err := ResolveSettlement(settlementTx("s", Expense, 20_00, "p"), &payable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != (Delta{Balance: -20_00, Payable: -20_00}) {
		t.Fatalf("unexpected delta %+v", d)
	}

	receivable := tx("r", Receivable, 80_00)
	d, err = ResolveSettlement(settlementTx("s", Income, 30_00, "r"), &receivable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != (Delta{Balance: 30_00, Income: 30_00, Receivable: -30_00}) {
		t.Fatalf("unexpected delta %+v", d)
	}
}

func TestResolveSettlementMissingInputs(t *testing.T) {
	payable := tx("p", Payable, 50_00)

	if _, err := ResolveSettlement(tx("s", Expense, 20_00), &payable); !errors.Is(err, ErrDanglingRelated) {
		t.Fatalf("expected ErrDanglingRelated for non-settlement, got %v", err)
	}
	if _, err := ResolveSettlement(settlementTx("s", Expense, 20_00, "p"), nil); !errors.Is(err, ErrMissingRelated) {
		t.Fatalf("expected ErrMissingRelated for nil related, got %v", err)
	}
}
