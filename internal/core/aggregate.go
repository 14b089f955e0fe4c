package core

// AggregateState holds the cached per-user running totals. It is a
// materialized view over the transaction history: Recompute over the full
// history must reproduce it exactly.
type AggregateState struct {
	Balance         Money
	TotalIncome     Money
	TotalExpense    Money
	TotalPayable    Money
	TotalReceivable Money
}

// Delta is the aggregate effect of one transaction, in cents.
type Delta struct {
	Balance    int64
	Income     int64
	Expense    int64
	Payable    int64
	Receivable int64
}

func (d Delta) Neg() Delta {
	return Delta{
		Balance:    -d.Balance,
		Income:     -d.Income,
		Expense:    -d.Expense,
		Payable:    -d.Payable,
		Receivable: -d.Receivable,
	}
}

func (d Delta) Add(o Delta) Delta {
	return Delta{
		Balance:    d.Balance + o.Balance,
		Income:     d.Income + o.Income,
		Expense:    d.Expense + o.Expense,
		Payable:    d.Payable + o.Payable,
		Receivable: d.Receivable + o.Receivable,
	}
}

// IsZero reports whether the delta has no effect.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Apply returns the state after the delta. Settlements net out of the
// payable/receivable totals directly, so those two are floored at zero.
// Balance is not floored here; the negative-balance rule is a business
// guard enforced by the transactor, not an arithmetic clamp.
func (a AggregateState) Apply(d Delta) AggregateState {
	return AggregateState{
		Balance:         Money{Cents: a.Balance.Cents + d.Balance},
		TotalIncome:     Money{Cents: a.TotalIncome.Cents + d.Income},
		TotalExpense:    Money{Cents: a.TotalExpense.Cents + d.Expense},
		TotalPayable:    Money{Cents: floorZero(a.TotalPayable.Cents + d.Payable)},
		TotalReceivable: Money{Cents: floorZero(a.TotalReceivable.Cents + d.Receivable)},
	}
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// ForwardDelta returns the aggregate effect of recording t.
//
// For a settlement the effect depends only on t's own type and amount (an
// expense-typed settlement discharges a payable, an income-typed one a
// receivable), so the referenced transaction is not needed here. Pairing and
// bound checks against the referenced transaction happen in ResolveSettlement
// at mutation time; the fold trusts committed history.
func ForwardDelta(t Transaction) Delta {
	a := t.Amount.Cents
	if t.IsSettlement {
		switch t.Type {
		case Expense:
			// Paying back borrowed money: a transfer, not new spending.
			return Delta{Balance: -a, Payable: -a}
		case Income:
			// Receiving lent money back counts as income actually received.
			return Delta{Balance: a, Income: a, Receivable: -a}
		default:
			return Delta{}
		}
	}
	switch t.Type {
	case Income:
		return Delta{Balance: a, Income: a}
	case Expense:
		return Delta{Balance: -a, Expense: a}
	case Payable:
		// Borrowing is incoming cash now, with the liability tracked separately.
		return Delta{Balance: a, Payable: a}
	case Receivable:
		// Lending is outgoing cash now, with the asset tracked separately.
		return Delta{Balance: -a, Receivable: a}
	}
	return Delta{}
}

// ReverseDelta returns the delta that undoes t's contribution.
func ReverseDelta(t Transaction) Delta {
	return ForwardDelta(t).Neg()
}

// Recompute folds the complete transaction set of one user into its
// aggregate totals. The fold is pure and order-independent: all deltas are
// summed first and applied once, so any permutation of the input yields
// identical totals. It is the authoritative recomputation used for offline
// verification and repair.
func Recompute(transactions []Transaction) AggregateState {
	var sum Delta
	for _, t := range transactions {
		sum = sum.Add(ForwardDelta(t))
	}
	return AggregateState{}.Apply(sum)
}

// AllowsOverdraft reports whether the draft is exempt from the
// negative-balance guard. Settlements and payables may drive the balance
// below zero; every other transaction kind may not.
func (d Draft) AllowsOverdraft() bool {
	return d.IsSettlement || d.Type == Payable
}
