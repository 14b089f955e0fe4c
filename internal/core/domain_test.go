package core

import (
	"strings"
	"testing"
	"time"
)

func TestTransactionTypeValid(t *testing.T) {
	for _, tt := range []TransactionType{Income, Expense, Payable, Receivable} {
		if !tt.Valid() {
			t.Fatalf("%s should be valid", tt)
		}
	}
	for _, tt := range []TransactionType{"", "transfer", "INCOME"} {
		if tt.Valid() {
			t.Fatalf("%q should be invalid", tt)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -100}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestDraftValidate(t *testing.T) {
	good := Draft{
		Name:   "Groceries",
		Amount: Money{Cents: 1250},
		Type:   Expense,
		Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	settlement := good
	settlement.IsSettlement = true
	settlement.RelatedTransactionID = "abc"
	if err := settlement.Validate(); err != nil {
		t.Fatalf("expected ok for settlement, got %v", err)
	}

	cases := []struct {
		mutate func(*Draft)
		want   error
	}{
		{func(d *Draft) { d.Name = "" }, ErrEmptyName},
		{func(d *Draft) { d.Name = "   " }, ErrEmptyName},
		{func(d *Draft) { d.Amount = Money{Cents: 0} }, ErrInvalidAmount},
		{func(d *Draft) { d.Amount = Money{Cents: -5} }, ErrInvalidAmount},
		{func(d *Draft) { d.Type = "loan" }, ErrInvalidType},
		{func(d *Draft) { d.IsSettlement = true }, ErrMissingRelated},
		{func(d *Draft) { d.RelatedTransactionID = "abc" }, ErrDanglingRelated},
	}
	for i, tc := range cases {
		d := good
		tc.mutate(&d)
		err := d.Validate()
		if err != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}

	long := good
	long.Name = strings.Repeat("x", 201)
	if err := long.Validate(); err == nil {
		t.Fatalf("expected error for overlong name")
	}
}

func TestTransactionDraftRoundTrip(t *testing.T) {
	tx := Transaction{
		ID:                   "id-1",
		UserID:               "u-1",
		Name:                 "Repay loan",
		Amount:               Money{Cents: 2000},
		Type:                 Expense,
		Notes:                "first installment",
		Date:                 time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
		IsSettlement:         true,
		RelatedTransactionID: "id-0",
	}
	d := tx.Draft()
	if d.Name != tx.Name || d.Amount != tx.Amount || d.Type != tx.Type ||
		d.Notes != tx.Notes || !d.Date.Equal(tx.Date) ||
		d.IsSettlement != tx.IsSettlement || d.RelatedTransactionID != tx.RelatedTransactionID {
		t.Fatalf("draft does not mirror transaction: %+v vs %+v", d, tx)
	}
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected valid transaction, got %v", err)
	}
}
