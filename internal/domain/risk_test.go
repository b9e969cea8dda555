package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseInput() RiskInput {
	return RiskInput{
		CollateralAmount: 100,
		Price:            45_000,
		PrincipalDebt:    3_000_000,
		LiquidationBps:   8500,
		MaxLtvBps:        7000,
		LedgerOpen:       true,
	}
}

// --- health factor scenarios ---

func TestHealthFactor_HealthyPosition(t *testing.T) {
	// 100 × 45,000 = 4,500,000 collateral vs 3,000,000 debt at 85% threshold
	in := baseInput()
	assert.InDelta(t, 1.7647, HealthFactor(in), 0.001)
	assert.False(t, IsAtRisk(in))
	assert.False(t, IsLiquidatable(in))
}

func TestHealthFactor_AtRiskNotLiquidatable(t *testing.T) {
	in := baseInput()
	in.PrincipalDebt = 4_500_000
	assert.InDelta(t, 1.1765, HealthFactor(in), 0.001)
	assert.True(t, IsAtRisk(in))
	assert.False(t, IsLiquidatable(in))
}

func TestHealthFactor_LiquidationBoundary(t *testing.T) {
	in := baseInput()
	in.PrincipalDebt = 5_000_000
	assert.InDelta(t, 1.0588, HealthFactor(in), 0.001)
	assert.False(t, IsLiquidatable(in))

	in.PrincipalDebt = 5_400_000
	assert.InDelta(t, 0.9804, HealthFactor(in), 0.001)
	assert.True(t, IsLiquidatable(in))
	assert.True(t, IsAtRisk(in))
}

func TestHealthFactor_ZeroDebtIsSafe(t *testing.T) {
	in := baseInput()
	in.PrincipalDebt = 0
	assert.Equal(t, SafeHealthFactor, HealthFactor(in))
	assert.False(t, IsAtRisk(in))

	// even with no collateral
	in.CollateralAmount = 0
	assert.Equal(t, SafeHealthFactor, HealthFactor(in))
}

func TestHealthFactor_PrefersChainValue(t *testing.T) {
	in := baseInput()
	in.ChainHealthFactor = 1.5
	assert.Equal(t, 1.5, HealthFactor(in))

	// a zero/failed chain read falls back to the local computation
	in.ChainHealthFactor = 0
	assert.InDelta(t, 1.7647, HealthFactor(in), 0.001)
}

func TestHealthFactor_MonotonicInDebtAndPrice(t *testing.T) {
	in := baseInput()
	prev := HealthFactor(in)
	for _, debt := range []float64{3_500_000, 4_000_000, 5_000_000, 6_000_000} {
		in.PrincipalDebt = debt
		hf := HealthFactor(in)
		assert.Less(t, hf, prev, "health factor must fall as debt rises")
		prev = hf
	}

	in = baseInput()
	prev = HealthFactor(in)
	for _, price := range []float64{46_000, 50_000, 60_000} {
		in.Price = price
		hf := HealthFactor(in)
		assert.Greater(t, hf, prev, "health factor must rise with price")
		prev = hf
	}
}

func TestHealthFactor_ClosedPositionNeverFlagged(t *testing.T) {
	in := baseInput()
	in.PrincipalDebt = 10_000_000 // deeply underwater
	in.LedgerOpen = false
	assert.False(t, IsAtRisk(in))
	assert.False(t, IsLiquidatable(in))
}

func TestIsLiquidatable_ImpliesAtRisk(t *testing.T) {
	in := baseInput()
	for _, debt := range []float64{1_000_000, 4_500_000, 5_400_000, 8_000_000} {
		in.PrincipalDebt = debt
		if IsLiquidatable(in) {
			assert.True(t, IsAtRisk(in), "liquidatable must imply at-risk (debt=%v)", debt)
			assert.Less(t, HealthFactor(in), 1.0)
		}
		if IsAtRisk(in) {
			assert.Less(t, HealthFactor(in), 1.2)
		}
	}
}

// --- liquidation price ---

func TestLiquidationPrice_RoundTripsThroughDebt(t *testing.T) {
	in := baseInput()
	in.AccruedInterest = 120_000
	lp := LiquidationPrice(in)

	// lp × collateralAmount × threshold == debtValue
	recovered := lp * in.CollateralAmount * 0.85
	assert.InDelta(t, in.DebtValue(), recovered, 1e-6)
}

func TestLiquidationPrice_ZeroDenominator(t *testing.T) {
	in := baseInput()
	in.CollateralAmount = 0
	assert.Equal(t, 0.0, LiquidationPrice(in))

	in = baseInput()
	in.LiquidationBps = 0
	assert.Equal(t, 0.0, LiquidationPrice(in))
}

// --- LTV ---

func TestCurrentLtv(t *testing.T) {
	in := baseInput()
	assert.InDelta(t, 66.67, CurrentLtv(in), 0.01)
}

func TestCurrentLtv_ZeroCollateral(t *testing.T) {
	in := baseInput()
	in.CollateralAmount = 0
	assert.Equal(t, 0.0, CurrentLtv(in))
}

func TestValidateBorrowLtv(t *testing.T) {
	params := RiskParams{MaxLtvBps: 7000, LiquidationBps: 8000}
	assert.NoError(t, ValidateBorrowLtv(100, 45_000, 3_000_000, params))
	assert.ErrorIs(t, ValidateBorrowLtv(100, 45_000, 3_200_000, params), ErrLtvExceeded)
	assert.ErrorIs(t, ValidateBorrowLtv(0, 45_000, 1, params), ErrLtvExceeded)
}

// --- projections ---

func TestProjectAddCollateral_RecomputesFromScratch(t *testing.T) {
	in := baseInput()
	in.ChainHealthFactor = 1.5 // stale authoritative value must be ignored
	proj := ProjectAddCollateral(in, 20)

	assert.Equal(t, 120.0, proj.CollateralAmount)
	assert.InDelta(t, 120*45_000/(3_000_000*0.85), proj.HealthFactor, 1e-9)
	assert.Greater(t, proj.HealthFactor, HealthFactor(baseInput()))
}

func TestProjectAddCollateral_WithdrawClampsAtZero(t *testing.T) {
	in := baseInput()
	proj := ProjectAddCollateral(in, -150)
	assert.Equal(t, 0.0, proj.CollateralAmount)
	assert.Equal(t, 0.0, proj.LiquidationPrice)
}

func TestProjectRepay_ReducesDebt(t *testing.T) {
	in := baseInput()
	in.AccruedInterest = 20_000
	proj := ProjectRepay(in, 500_000)

	assert.InDelta(t, 2_520_000, proj.DebtValue, 1e-6)
	assert.Greater(t, proj.HealthFactor, HealthFactor(in))
}

func TestProjectRepay_FullRepayIsSafe(t *testing.T) {
	in := baseInput()
	in.AccruedInterest = 20_000
	proj := ProjectRepay(in, in.DebtValue())
	assert.Equal(t, 0.0, proj.DebtValue)
	assert.Equal(t, SafeHealthFactor, proj.HealthFactor)
}

// --- scaling fallback ---

func TestScaledHealthFactor_Fallback(t *testing.T) {
	assert.InDelta(t, 2.0, ScaledHealthFactor(1.0, 50, 100), 1e-9)
	assert.Equal(t, 1.5, ScaledHealthFactor(1.5, 0, 100)) // no ratio, unchanged
}

func TestProjectAddCollateral_NoPriceScalesChainValue(t *testing.T) {
	in := baseInput()
	in.Price = 0
	in.ChainHealthFactor = 1.5
	proj := ProjectAddCollateral(in, 50)

	// 1.5 × 150/100: collateral up by half, health up by half
	assert.InDelta(t, 2.25, proj.HealthFactor, 1e-9)
}

func TestProjectRepay_NoPriceScalesChainValue(t *testing.T) {
	in := baseInput()
	in.Price = 0
	in.ChainHealthFactor = 1.0
	proj := ProjectRepay(in, 1_500_000)

	// half the debt gone, health doubles
	assert.InDelta(t, 2.0, proj.HealthFactor, 1e-9)
}

func TestProjectRepay_NoPriceFullRepayStillSafe(t *testing.T) {
	in := baseInput()
	in.Price = 0
	in.ChainHealthFactor = 1.1
	proj := ProjectRepay(in, in.DebtValue())
	assert.Equal(t, SafeHealthFactor, proj.HealthFactor)
}
