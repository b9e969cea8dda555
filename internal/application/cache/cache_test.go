package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// fakeReader scripts chain reads for cache and poller tests.
type fakeReader struct {
	prices      map[string]float64
	priceErr    error
	params      map[string]domain.RiskParams
	paramsErr   error
	categories  []uint64
	categoryErr error
	tokens      map[uint64][]domain.Token
	offers      map[uint64]domain.OfferRecord
	offerErr    error
	health      map[uint64]domain.PositionHealth
	healthErr   error
}

func (f *fakeReader) PriceByToken(_ context.Context, addr string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.prices[addr], nil
}

func (f *fakeReader) RiskParamsByToken(_ context.Context, addr string) (domain.RiskParams, error) {
	if f.paramsErr != nil {
		return domain.RiskParams{}, f.paramsErr
	}
	return f.params[addr], nil
}

func (f *fakeReader) Categories(_ context.Context) ([]uint64, error) {
	return f.categories, f.categoryErr
}

func (f *fakeReader) TokensByCategory(_ context.Context, id uint64) ([]domain.Token, error) {
	return f.tokens[id], nil
}

func (f *fakeReader) OfferByID(_ context.Context, id uint64) (domain.OfferRecord, error) {
	if f.offerErr != nil {
		return domain.OfferRecord{}, f.offerErr
	}
	return f.offers[id], nil
}

func (f *fakeReader) PositionHealthByID(_ context.Context, id uint64) (domain.PositionHealth, error) {
	if f.healthErr != nil {
		return domain.PositionHealth{}, f.healthErr
	}
	return f.health[id], nil
}

func (f *fakeReader) NativeBalance(context.Context, string) (float64, error) { return 0, nil }
func (f *fakeReader) TokenBalance(context.Context, string) (float64, error)  { return 0, nil }

var gold = domain.Token{Address: "0xAbCd000000000000000000000000000000000001", Symbol: "GOLD"}

func newTestCache(r *fakeReader) *Cache {
	c := New(r, nil)
	c.mu.Lock()
	c.tokens = map[string]domain.Token{"0xabcd000000000000000000000000000000000001": gold}
	c.mu.Unlock()
	return c
}

// --- price aliases ---

func TestRefreshPrices_ThreeAliasesResolveSameValue(t *testing.T) {
	r := &fakeReader{prices: map[string]float64{gold.Address: 45_000}}
	c := newTestCache(r)

	c.RefreshPrices(context.Background())

	for _, key := range []string{gold.Address, "0xabcd000000000000000000000000000000000001", "GOLD"} {
		price, ok := c.Price(key)
		assert.True(t, ok, "alias %s must resolve", key)
		assert.Equal(t, 45_000.0, price)
	}
}

func TestRefreshPrices_ZeroNeverClobbersPositive(t *testing.T) {
	r := &fakeReader{prices: map[string]float64{gold.Address: 45_000}}
	c := newTestCache(r)
	ctx := context.Background()

	c.RefreshPrices(ctx)

	// the next read fails
	r.priceErr = errors.New("oracle down")
	c.RefreshPrices(ctx)

	price, ok := c.Price("GOLD")
	assert.True(t, ok)
	assert.Equal(t, 45_000.0, price, "failed read must not clobber the prior value")

	// a zero read is equally ignored
	r.priceErr = nil
	r.prices[gold.Address] = 0
	c.RefreshPrices(ctx)
	price, _ = c.Price("GOLD")
	assert.Equal(t, 45_000.0, price)
}

func TestRefreshPrices_ZeroRecordedWhenNoPrior(t *testing.T) {
	r := &fakeReader{priceErr: errors.New("oracle down")}
	c := newTestCache(r)

	c.RefreshPrices(context.Background())

	price, ok := c.Price("GOLD")
	assert.True(t, ok, "token must exist in the map even after a failed first read")
	assert.Equal(t, 0.0, price)
}

func TestRefreshPrices_NewPositiveReplacesOld(t *testing.T) {
	r := &fakeReader{prices: map[string]float64{gold.Address: 45_000}}
	c := newTestCache(r)
	ctx := context.Background()

	c.RefreshPrices(ctx)
	r.prices[gold.Address] = 46_500
	c.RefreshPrices(ctx)

	price, _ := c.Price(gold.Address)
	assert.Equal(t, 46_500.0, price)
}

// --- risk params ---

func TestRefreshParams_FallbackDefaultsOnFailure(t *testing.T) {
	r := &fakeReader{paramsErr: errors.New("unreadable")}
	c := newTestCache(r)

	c.RefreshParams(context.Background())

	params := c.Params("GOLD")
	assert.Equal(t, domain.DefaultRiskParams, params)
}

func TestRefreshParams_PriorValueSurvivesFailure(t *testing.T) {
	custom := domain.RiskParams{MaxLtvBps: 6000, LiquidationBps: 7500, LiquidationPenaltyBps: 300}
	r := &fakeReader{params: map[string]domain.RiskParams{gold.Address: custom}}
	c := newTestCache(r)
	ctx := context.Background()

	c.RefreshParams(ctx)
	r.paramsErr = errors.New("unreadable")
	c.RefreshParams(ctx)

	assert.Equal(t, custom, c.Params(gold.Address))
}

func TestParams_UnknownTokenGetsDefaults(t *testing.T) {
	c := newTestCache(&fakeReader{})
	assert.Equal(t, domain.DefaultRiskParams, c.Params("0xunknown"))
}

// --- token universe ---

func TestRefreshCatalog_UnionDeduplicated(t *testing.T) {
	shared := domain.Token{Address: "0xAA", Symbol: "SHARED"}
	r := &fakeReader{
		categories: []uint64{1, 2},
		tokens: map[uint64][]domain.Token{
			1: {shared, {Address: "0xBB", Symbol: "ONE"}},
			2: {shared, {Address: "0xCC", Symbol: "TWO"}},
		},
	}
	c := New(r, nil)

	c.RefreshCatalog(context.Background())

	assert.Len(t, c.Tokens(), 3, "shared token must appear once")
}

func TestRefreshCatalog_FallsBackToStaticCatalog(t *testing.T) {
	r := &fakeReader{categoryErr: errors.New("registry down")}
	c := New(r, nil)

	c.RefreshCatalog(context.Background())

	assert.Len(t, c.Tokens(), len(domain.StaticCatalog), "never an empty universe")
}
