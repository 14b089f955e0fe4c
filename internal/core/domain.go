package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income     TransactionType = "income"
	Expense    TransactionType = "expense"
	Payable    TransactionType = "payable"
	Receivable TransactionType = "receivable"
)

type (
	// TransactionType is one of the four ledger entry kinds.
	TransactionType string

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger entry owned by one user account.
	// The ID is assigned at creation and never changes; edits replace
	// every other field.
	Transaction struct {
		ID           string
		UserID       string
		Name         string
		Amount       Money
		Type         TransactionType
		Notes        string
		Date         time.Time
		IsSettlement bool
		// RelatedTransactionID references the payable/receivable this
		// settlement discharges. Set if and only if IsSettlement.
		RelatedTransactionID string
	}

	// Draft carries user input for creating or editing a transaction.
	Draft struct {
		Name                 string
		Amount               Money
		Type                 TransactionType
		Notes                string
		Date                 time.Time
		IsSettlement         bool
		RelatedTransactionID string
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrMissingRelated  = errors.New("settlement requires a related transaction")
	ErrDanglingRelated = errors.New("related transaction set on a non-settlement")

	ErrInvalidSettlementPairing     = errors.New("settlement type does not match the referenced transaction")
	ErrSettlementExceedsOutstanding = errors.New("settlement amount exceeds the outstanding amount")
	ErrInsufficientBalance          = errors.New("balance cannot go negative after transaction")
)

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Payable, Receivable:
		return true
	}
	return false
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (d Draft) Validate() error {
	if len(strings.TrimSpace(d.Name)) == 0 {
		return ErrEmptyName
	}
	if len(d.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if !d.Type.Valid() {
		return ErrInvalidType
	}
	if d.IsSettlement && strings.TrimSpace(d.RelatedTransactionID) == "" {
		return ErrMissingRelated
	}
	if !d.IsSettlement && d.RelatedTransactionID != "" {
		return ErrDanglingRelated
	}
	return nil
}

func (t Transaction) Validate() error {
	return t.Draft().Validate()
}

// Draft returns the editable fields of the transaction.
func (t Transaction) Draft() Draft {
	return Draft{
		Name:                 t.Name,
		Amount:               t.Amount,
		Type:                 t.Type,
		Notes:                t.Notes,
		Date:                 t.Date,
		IsSettlement:         t.IsSettlement,
		RelatedTransactionID: t.RelatedTransactionID,
	}
}
