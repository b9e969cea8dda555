package domain

import "math"

// Risk thresholds, in health-factor units.
const (
	AtRiskHealthFactor       = 1.2
	LiquidatableHealthFactor = 1.0
)

// SafeHealthFactor is the sentinel for "no debt, nothing to liquidate".
// Kept finite so it serializes and compares cleanly, but far above any
// threshold that matters.
const SafeHealthFactor = math.MaxFloat64

// RiskInput bundles everything the risk functions need. All monetary
// amounts are in the loan currency; CollateralAmount is in collateral
// units priced by Price.
type RiskInput struct {
	CollateralAmount float64
	Price            float64
	PrincipalDebt    float64
	AccruedInterest  float64
	LiquidationBps   int64
	MaxLtvBps        int64

	// ChainHealthFactor is the authoritative already-decimal value read
	// from the ledger, preferred over the local computation when positive.
	ChainHealthFactor float64

	// LedgerOpen gates the risk flags: a ledger-closed position is never
	// at-risk or liquidatable, however stale the local cache is.
	LedgerOpen bool
}

// CollateralValue is the collateral amount at the current price.
func (in RiskInput) CollateralValue() float64 {
	return in.CollateralAmount * in.Price
}

// DebtValue is principal plus accrued interest.
func (in RiskInput) DebtValue() float64 {
	return in.PrincipalDebt + in.AccruedInterest
}

// CurrentLtv returns the loan-to-value as a percentage (0–100+).
// Zero collateral value yields 0, not infinity.
func CurrentLtv(in RiskInput) float64 {
	cv := in.CollateralValue()
	if cv <= 0 {
		return 0
	}
	return in.DebtValue() / cv * 100
}

// HealthFactor returns the position's health:
//
//	HF = collateralValue / (debtValue × liquidationThreshold)
//
// The authoritative on-chain value wins when positive. Zero debt means
// there is nothing to liquidate, so the result is SafeHealthFactor.
func HealthFactor(in RiskInput) float64 {
	if in.ChainHealthFactor > 0 {
		return in.ChainHealthFactor
	}
	return computeHealthFactor(in.CollateralValue(), in.DebtValue(), in.LiquidationBps)
}

func computeHealthFactor(collateralValue, debtValue float64, liquidationBps int64) float64 {
	if debtValue <= 0 {
		return SafeHealthFactor
	}
	threshold := float64(liquidationBps) / 10_000
	if threshold <= 0 {
		return SafeHealthFactor
	}
	return collateralValue / (debtValue * threshold)
}

// LiquidationPrice is the collateral price at which the health factor
// crosses 1.0:
//
//	P = debtValue / (collateralAmount × liquidationThreshold)
//
// Returns 0 when the denominator is 0 (no collateral, or no threshold).
func LiquidationPrice(in RiskInput) float64 {
	threshold := float64(in.LiquidationBps) / 10_000
	denom := in.CollateralAmount * threshold
	if denom <= 0 {
		return 0
	}
	return in.DebtValue() / denom
}

// IsAtRisk reports whether the position needs attention (HF < 1.2).
// Always false for a ledger-closed position.
func IsAtRisk(in RiskInput) bool {
	if !in.LedgerOpen {
		return false
	}
	return HealthFactor(in) < AtRiskHealthFactor
}

// IsLiquidatable reports whether the position can be liquidated (HF < 1.0).
// Always false for a ledger-closed position.
func IsLiquidatable(in RiskInput) bool {
	if !in.LedgerOpen {
		return false
	}
	return HealthFactor(in) < LiquidatableHealthFactor
}

// Projection is the recomputed risk picture after a hypothetical action.
type Projection struct {
	CollateralAmount float64
	DebtValue        float64
	HealthFactor     float64
	LiquidationPrice float64
	Ltv              float64
}

// ProjectAddCollateral recomputes the risk picture from first principles
// after adding (or, with a negative delta, withdrawing) collateral. With
// no usable price the health factor is scaled from the authoritative
// value by the collateral ratio instead.
func ProjectAddCollateral(in RiskInput, deltaCollateral float64) Projection {
	next := in
	next.CollateralAmount += deltaCollateral
	if next.CollateralAmount < 0 {
		next.CollateralAmount = 0
	}
	next.ChainHealthFactor = 0 // the chain value describes the old position
	p := project(next)
	if in.Price <= 0 && next.DebtValue() > 0 {
		p.HealthFactor = ScaledHealthFactor(in.ChainHealthFactor, in.CollateralAmount, next.CollateralAmount)
	}
	return p
}

// ProjectRepay recomputes the risk picture from first principles after a
// repayment. The split between interest and principal follows
// SplitRepayment; only the remaining debt matters here. With no usable
// price the health factor is scaled from the authoritative value by the
// debt ratio instead (HF is inverse in debt, so old and new swap).
func ProjectRepay(in RiskInput, repayAmount float64) Projection {
	split := SplitRepayment(in.PrincipalDebt, in.AccruedInterest, repayAmount)
	next := in
	next.PrincipalDebt = split.RemainingPrincipal
	next.AccruedInterest = split.RemainingInterest
	next.ChainHealthFactor = 0
	p := project(next)
	if in.Price <= 0 && next.DebtValue() > 0 {
		p.HealthFactor = ScaledHealthFactor(in.ChainHealthFactor, next.DebtValue(), in.DebtValue())
	}
	return p
}

func project(in RiskInput) Projection {
	return Projection{
		CollateralAmount: in.CollateralAmount,
		DebtValue:        in.DebtValue(),
		HealthFactor:     computeHealthFactor(in.CollateralValue(), in.DebtValue(), in.LiquidationBps),
		LiquidationPrice: LiquidationPrice(in),
		Ltv:              CurrentLtv(in),
	}
}

// ScaledHealthFactor scales the current health factor by a debt or
// collateral ratio. An approximation: the projections fall back to it
// when the cached price is unavailable and the picture cannot be
// recomputed from first principles.
func ScaledHealthFactor(current, oldValue, newValue float64) float64 {
	if oldValue <= 0 || current <= 0 {
		return current
	}
	return current * newValue / oldValue
}

// ValidateBorrowLtv rejects a requested loan that exceeds the maximum LTV
// for the collateral. Used pre-flight, before any pipeline starts.
func ValidateBorrowLtv(collateralAmount, price, loanAmount float64, params RiskParams) error {
	cv := collateralAmount * price
	if cv <= 0 {
		return ErrLtvExceeded
	}
	if loanAmount/cv > params.MaxLtv() {
		return ErrLtvExceeded
	}
	return nil
}
