package domain

// RepaymentSplit is the outcome of applying a repayment to a position.
// Interest is settled before principal; the remainder reduces principal.
// Whether the settlement program shares this ordering is an assumption —
// the split is kept in one place so a different rule is a one-site change.
type RepaymentSplit struct {
	InterestPaid       float64
	PrincipalPaid      float64
	RemainingPrincipal float64
	RemainingInterest  float64
	Full               bool
}

// SplitRepayment applies amount against accrued interest first, then
// principal. Overpayment is clamped: paying more than the total debt
// yields a full repayment, never negative balances.
func SplitRepayment(principal, interest, amount float64) RepaymentSplit {
	if amount < 0 {
		amount = 0
	}
	split := RepaymentSplit{
		RemainingPrincipal: principal,
		RemainingInterest:  interest,
	}

	if amount >= interest {
		split.InterestPaid = interest
		split.RemainingInterest = 0
		amount -= interest
	} else {
		split.InterestPaid = amount
		split.RemainingInterest = interest - amount
		return split
	}

	if amount >= principal {
		split.PrincipalPaid = principal
		split.RemainingPrincipal = 0
	} else {
		split.PrincipalPaid = amount
		split.RemainingPrincipal = principal - amount
	}

	split.Full = split.RemainingPrincipal == 0 && split.RemainingInterest == 0
	return split
}

// RemainingDebt is the debt left after the split.
func (s RepaymentSplit) RemainingDebt() float64 {
	return s.RemainingPrincipal + s.RemainingInterest
}
