package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleOffer() domain.Offer {
	return domain.Offer{
		ID:   "offer-1",
		Kind: domain.OfferBorrow,
		CollateralToken: domain.Token{
			Address: "0x2222222222222222222222222222222222222222",
			Symbol:  "GOLD",
		},
		CollateralAmount: 100,
		LoanAmount:       3_000_000,
		InterestRateBps:  750,
		MaturityDays:     30,
		Status:           domain.StatusActive,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveOffer_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOffer(ctx, sampleOffer()))

	got, ok, err := s.OfferByID(ctx, "offer-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.OfferBorrow, got.Kind)
	assert.Equal(t, "GOLD", got.CollateralToken.Symbol)
	assert.Equal(t, 3_000_000.0, got.LoanAmount)
	assert.Nil(t, got.MatchedAt)
}

func TestSaveOffer_UpsertIsLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := sampleOffer()
	require.NoError(t, s.SaveOffer(ctx, o))

	now := time.Now().UTC().Truncate(time.Second)
	o.Status = domain.StatusMatched
	o.OnChainID = 42
	o.MatchedAt = &now
	require.NoError(t, s.SaveOffer(ctx, o))

	got, ok, err := s.OfferByID(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusMatched, got.Status)
	assert.Equal(t, uint64(42), got.OnChainID)
	require.NotNil(t, got.MatchedAt)

	all, err := s.Offers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not duplicate rows")
}

func TestOfferByID_Absent(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.OfferByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavePosition_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := domain.Position{
		OfferID:          "offer-1",
		OnChainID:        42,
		BorrowerAddress:  "0xb",
		LenderAddress:    "0xl",
		CollateralToken:  domain.Token{Address: "0x2", Symbol: "GOLD"},
		CollateralAmount: 100,
		PrincipalDebt:    3_000_000,
		AccruedInterest:  20_000,
		HealthFactor:     1.76,
		MaturityDate:     time.Now().UTC().Truncate(time.Second),
		LedgerOpen:       true,
	}
	require.NoError(t, s.SavePosition(ctx, p))

	got, ok, err := s.PositionByOffer(ctx, "offer-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3_020_000.0, got.TotalDebt())
	assert.True(t, got.LedgerOpen)

	// reconciliation overwrite: closed on ledger
	p.LedgerOpen = false
	p.PrincipalDebt = 0
	require.NoError(t, s.SavePosition(ctx, p))

	got, _, err = s.PositionByOffer(ctx, "offer-1")
	require.NoError(t, err)
	assert.False(t, got.LedgerOpen)
	assert.Equal(t, 0.0, got.PrincipalDebt)
}

func TestPrices_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SavePrice(ctx, "GOLD", 45_000, now))

	price, observedAt, ok, err := s.Price(ctx, "GOLD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 45_000.0, price)
	assert.Equal(t, now, observedAt.UTC())

	_, _, ok, err = s.Price(ctx, "SILVER")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdjustBalance_Accumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AdjustBalance(ctx, "user-1", "GOLD", 100))
	require.NoError(t, s.AdjustBalance(ctx, "user-1", "GOLD", -30))

	bal, err := s.Balance(ctx, "user-1", "GOLD")
	require.NoError(t, err)
	assert.Equal(t, 70.0, bal)

	bal, err = s.Balance(ctx, "user-2", "GOLD")
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal)
}
