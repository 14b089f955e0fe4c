package core

// ResolveSettlement validates a settlement against the transaction it
// discharges and returns its aggregate effect.
//
// Pairing rule: an expense-typed settlement may only reference a payable
// (paying back borrowed money); an income-typed settlement may only
// reference a receivable (receiving lent money back).
//
// Bound rule: the settlement amount must not exceed the referenced
// transaction's original amount. Each reference is treated as fully
// outstanding for its original amount; cumulative outstanding tracking
// across repeated partial settlements is not supported.
func ResolveSettlement(settling Transaction, related *Transaction) (Delta, error) {
	if !settling.IsSettlement {
		return Delta{}, ErrDanglingRelated
	}
	if related == nil {
		return Delta{}, ErrMissingRelated
	}

	switch {
	case settling.Type == Expense && related.Type == Payable:
	case settling.Type == Income && related.Type == Receivable:
	default:
		return Delta{}, ErrInvalidSettlementPairing
	}

	if settling.Amount.Cents > related.Amount.Cents {
		return Delta{}, ErrSettlementExceedsOutstanding
	}

	return ForwardDelta(settling), nil
}
