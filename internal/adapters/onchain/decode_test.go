package onchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func bn(v int64) *big.Int { return big.NewInt(v) }

// amt scales a display value to 1e18 base units for test fixtures.
func amt(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e18))
}

// --- offer records ---

func TestDecodeOfferRecord_Positional(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	collateral := common.HexToAddress("0x2222222222222222222222222222222222222222")

	rec := decodeOfferRecord([]any{
		bn(42), owner, collateral, amt(100), amt(3_000_000), bn(750), bn(30), uint8(1),
	})

	assert.Equal(t, uint64(42), rec.OnChainID)
	assert.Equal(t, owner.Hex(), rec.Owner)
	assert.Equal(t, collateral.Hex(), rec.CollateralToken)
	assert.Equal(t, 100.0, rec.CollateralAmount)
	assert.Equal(t, 3_000_000.0, rec.LoanAmount)
	assert.Equal(t, int64(750), rec.InterestRateBps)
	assert.Equal(t, int64(30), rec.MaturityDays)
	assert.Equal(t, uint8(1), rec.StatusCode)
}

func TestDecodeOfferRecord_Named(t *testing.T) {
	rec := decodeOfferRecord(map[string]any{
		"id":               bn(7),
		"owner":            "0xabc",
		"collateral":       "0xdef",
		"collateralAmount": amt(50),
		"loanAmount":       amt(1_000_000),
		"rateBps":          bn(500),
		"maturityDays":     bn(90),
		"status":           uint8(0),
	})

	assert.Equal(t, uint64(7), rec.OnChainID)
	assert.Equal(t, "0xabc", rec.Owner)
	assert.Equal(t, 50.0, rec.CollateralAmount)
	assert.Equal(t, int64(90), rec.MaturityDays)
	assert.Equal(t, uint8(0), rec.StatusCode)
}

func TestDecodeOfferRecord_ShortSliceDegradesToZero(t *testing.T) {
	rec := decodeOfferRecord([]any{bn(3), common.Address{}})

	assert.Equal(t, uint64(3), rec.OnChainID)
	assert.Equal(t, 0.0, rec.CollateralAmount)
	assert.Equal(t, 0.0, rec.LoanAmount)
	assert.Equal(t, uint8(0), rec.StatusCode)
}

func TestDecodeOfferRecord_GarbageShape(t *testing.T) {
	assert.NotPanics(t, func() {
		rec := decodeOfferRecord("not a record")
		assert.Equal(t, uint64(0), rec.OnChainID)
	})
	assert.NotPanics(t, func() {
		rec := decodeOfferRecord([]any{"x", 3.5, true, nil, []byte{1}, bn(-5), nil, nil})
		assert.Equal(t, uint64(0), rec.OnChainID)
		assert.Equal(t, int64(0), rec.InterestRateBps)
	})
}

// --- position health ---

func TestDecodePositionHealth_Positional(t *testing.T) {
	// health factor arrives 1e18-scaled: 1.76 → 1.76e18
	hf := new(big.Int).Mul(big.NewInt(176), big.NewInt(1e16))
	rec := decodePositionHealth([]any{amt(3_000_000), amt(20_000), hf, true})

	assert.Equal(t, 3_000_000.0, rec.PrincipalDebt)
	assert.Equal(t, 20_000.0, rec.AccruedInterest)
	assert.InDelta(t, 1.76, rec.HealthFactor, 1e-9)
	assert.True(t, rec.Open)
}

func TestDecodePositionHealth_Named(t *testing.T) {
	rec := decodePositionHealth(map[string]any{
		"principalDebt": amt(500_000),
		"open":          false,
	})

	assert.Equal(t, 500_000.0, rec.PrincipalDebt)
	assert.Equal(t, 0.0, rec.AccruedInterest)
	assert.False(t, rec.Open)
}

// --- status codes ---

func TestStatusCodeMapping_UnknownDegradesToActive(t *testing.T) {
	rec := decodeOfferRecord([]any{bn(1), nil, nil, nil, nil, nil, nil, uint8(99)})
	assert.Equal(t, uint8(99), rec.StatusCode)
}
