package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitRepayment_InterestFirst(t *testing.T) {
	// 500,000 against 1,000,000 principal + 20,000 interest:
	// interest settles in full, the remaining 480,000 reduces principal.
	split := SplitRepayment(1_000_000, 20_000, 500_000)

	assert.Equal(t, 20_000.0, split.InterestPaid)
	assert.Equal(t, 480_000.0, split.PrincipalPaid)
	assert.Equal(t, 520_000.0, split.RemainingPrincipal)
	assert.Equal(t, 0.0, split.RemainingInterest)
	assert.Equal(t, 520_000.0, split.RemainingDebt())
	assert.False(t, split.Full)
}

func TestSplitRepayment_LessThanInterest(t *testing.T) {
	split := SplitRepayment(1_000_000, 20_000, 5_000)

	assert.Equal(t, 5_000.0, split.InterestPaid)
	assert.Equal(t, 0.0, split.PrincipalPaid)
	assert.Equal(t, 15_000.0, split.RemainingInterest)
	assert.Equal(t, 1_000_000.0, split.RemainingPrincipal)
	assert.False(t, split.Full)
}

func TestSplitRepayment_Full(t *testing.T) {
	split := SplitRepayment(1_000_000, 20_000, 1_020_000)

	assert.True(t, split.Full)
	assert.Equal(t, 0.0, split.RemainingDebt())
}

func TestSplitRepayment_OverpaymentClamped(t *testing.T) {
	split := SplitRepayment(1_000_000, 20_000, 5_000_000)

	assert.True(t, split.Full)
	assert.Equal(t, 20_000.0, split.InterestPaid)
	assert.Equal(t, 1_000_000.0, split.PrincipalPaid)
	assert.Equal(t, 0.0, split.RemainingDebt())
}

func TestSplitRepayment_NegativeAmount(t *testing.T) {
	split := SplitRepayment(1_000_000, 20_000, -100)

	assert.Equal(t, 0.0, split.InterestPaid)
	assert.Equal(t, 1_020_000.0, split.RemainingDebt())
}
