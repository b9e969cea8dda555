package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// fakeStore is an in-memory mirror for poller tests.
type fakeStore struct {
	offers    map[string]domain.Offer
	positions map[string]domain.Position
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		offers:    map[string]domain.Offer{},
		positions: map[string]domain.Position{},
	}
}

func (f *fakeStore) SaveOffer(_ context.Context, o domain.Offer) error {
	f.offers[o.ID] = o
	return nil
}

func (f *fakeStore) OfferByID(_ context.Context, id string) (domain.Offer, bool, error) {
	o, ok := f.offers[id]
	return o, ok, nil
}

func (f *fakeStore) Offers(context.Context) ([]domain.Offer, error) {
	out := make([]domain.Offer, 0, len(f.offers))
	for _, o := range f.offers {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) SavePosition(_ context.Context, p domain.Position) error {
	f.positions[p.OfferID] = p
	return nil
}

func (f *fakeStore) PositionByOffer(_ context.Context, offerID string) (domain.Position, bool, error) {
	p, ok := f.positions[offerID]
	return p, ok, nil
}

func (f *fakeStore) Positions(context.Context) ([]domain.Position, error) {
	out := make([]domain.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) SavePrice(context.Context, string, float64, time.Time) error { return nil }
func (f *fakeStore) Price(context.Context, string) (float64, time.Time, bool, error) {
	return 0, time.Time{}, false, nil
}
func (f *fakeStore) AdjustBalance(context.Context, string, string, float64) error { return nil }
func (f *fakeStore) Balance(context.Context, string, string) (float64, error)     { return 0, nil }
func (f *fakeStore) Close() error                                                 { return nil }

func newPollerHarness(r *fakeReader) (*Poller, *fakeStore) {
	store := newFakeStore()
	return NewPoller(New(r, nil), r, store), store
}

// --- offer reconciliation ---

func TestReconcile_ChainStatusSupersedesOptimistic(t *testing.T) {
	r := &fakeReader{offers: map[uint64]domain.OfferRecord{
		7: {OnChainID: 7, CollateralAmount: 120, LoanAmount: 3_100_000, StatusCode: domain.ChainStatusMatched},
	}}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SaveOffer(ctx, domain.Offer{
		ID: "offer-1", OnChainID: 7, Status: domain.StatusActive,
		CollateralAmount: 100, LoanAmount: 3_000_000,
	}))

	p.Reconcile(ctx)

	got, ok, err := store.OfferByID(ctx, "offer-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusMatched, got.Status)
	assert.Equal(t, 120.0, got.CollateralAmount, "chain terms win over the mirror")
	assert.Equal(t, 3_100_000.0, got.LoanAmount)
}

func TestReconcile_IllegalChainTransitionIgnored(t *testing.T) {
	// matched → cancelled is not a legal move; a garbled read must not
	// corrupt the mirror.
	r := &fakeReader{offers: map[uint64]domain.OfferRecord{
		7: {OnChainID: 7, StatusCode: domain.ChainStatusCancelled},
	}}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SaveOffer(ctx, domain.Offer{
		ID: "offer-1", OnChainID: 7, Status: domain.StatusMatched, CollateralAmount: 100,
	}))

	p.Reconcile(ctx)

	got, _, _ := store.OfferByID(ctx, "offer-1")
	assert.Equal(t, domain.StatusMatched, got.Status)
	assert.Equal(t, 100.0, got.CollateralAmount, "terms untouched when the status is refused")
}

func TestReconcile_SkipsUnsubmittedAndTerminalOffers(t *testing.T) {
	r := &fakeReader{offers: map[uint64]domain.OfferRecord{
		0: {StatusCode: domain.ChainStatusMatched},
		9: {OnChainID: 9, StatusCode: domain.ChainStatusMatched},
	}}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SaveOffer(ctx, domain.Offer{
		ID: "pending", OnChainID: 0, Status: domain.StatusActive,
	}))
	require.NoError(t, store.SaveOffer(ctx, domain.Offer{
		ID: "done", OnChainID: 9, Status: domain.StatusClosed,
	}))

	p.Reconcile(ctx)

	pending, _, _ := store.OfferByID(ctx, "pending")
	assert.Equal(t, domain.StatusActive, pending.Status, "no on-chain id yet, nothing to read")
	done, _, _ := store.OfferByID(ctx, "done")
	assert.Equal(t, domain.StatusClosed, done.Status)
}

// --- position reconciliation ---

func TestReconcile_HealthOverwritesOptimisticDebt(t *testing.T) {
	r := &fakeReader{health: map[uint64]domain.PositionHealth{
		7: {PrincipalDebt: 2_900_000, AccruedInterest: 45_000, HealthFactor: 1.41, Open: true},
	}}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SavePosition(ctx, domain.Position{
		OfferID: "offer-1", OnChainID: 7,
		CollateralToken:  gold,
		CollateralAmount: 100,
		PrincipalDebt:    3_000_000, // optimistic, pre-confirmation
		AccruedInterest:  0,
		HealthFactor:     1.2,
		LedgerOpen:       true,
	}))

	p.Reconcile(ctx)

	got, _, _ := store.PositionByOffer(ctx, "offer-1")
	assert.Equal(t, 2_900_000.0, got.PrincipalDebt)
	assert.Equal(t, 45_000.0, got.AccruedInterest)
	assert.Equal(t, 1.41, got.HealthFactor)
	// default liquidation threshold 80%: 2_945_000 / (100 × 0.8)
	assert.InDelta(t, 36_812.5, got.LiquidationPrice, 0.1)
}

func TestReconcile_ChainCloseWinsOverOpenMirror(t *testing.T) {
	r := &fakeReader{health: map[uint64]domain.PositionHealth{
		7: {PrincipalDebt: 0, AccruedInterest: 0, HealthFactor: 0, Open: false},
	}}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SavePosition(ctx, domain.Position{
		OfferID: "offer-1", OnChainID: 7, PrincipalDebt: 500_000, LedgerOpen: true,
	}))

	p.Reconcile(ctx)

	got, _, _ := store.PositionByOffer(ctx, "offer-1")
	assert.False(t, got.LedgerOpen)
	assert.Equal(t, 0.0, got.PrincipalDebt)
}

func TestReconcile_ClosedPositionNotReRead(t *testing.T) {
	r := &fakeReader{healthErr: assert.AnError}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SavePosition(ctx, domain.Position{
		OfferID: "offer-1", OnChainID: 7, PrincipalDebt: 500_000, LedgerOpen: false,
	}))

	p.Reconcile(ctx)

	got, _, _ := store.PositionByOffer(ctx, "offer-1")
	assert.Equal(t, 500_000.0, got.PrincipalDebt, "closed positions are left alone")
}

func TestReconcile_FailedReadKeepsMirror(t *testing.T) {
	r := &fakeReader{offerErr: assert.AnError}
	p, store := newPollerHarness(r)
	ctx := context.Background()

	require.NoError(t, store.SaveOffer(ctx, domain.Offer{
		ID: "offer-1", OnChainID: 7, Status: domain.StatusActive, CollateralAmount: 100,
	}))

	p.Reconcile(ctx)

	got, _, _ := store.OfferByID(ctx, "offer-1")
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, 100.0, got.CollateralAmount)
}
