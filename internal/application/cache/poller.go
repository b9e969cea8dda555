package cache

// poller.go — fixed-interval refresh loops.
//
// Price and position health poll fastest, risk params slower, token
// catalogs slowest. The reconcile pass overwrites the local mirror with
// authoritative reads, superseding whatever optimistic updates the
// orchestrator applied since the last cycle.

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/lendbot/internal/domain"
	"github.com/alejandrodnm/lendbot/internal/ports"
)

// Poller drives the cache refreshes and the mirror reconciliation.
type Poller struct {
	cache  *Cache
	reader ports.ChainReader
	store  ports.LedgerStore

	PriceInterval   time.Duration
	ParamsInterval  time.Duration
	CatalogInterval time.Duration
}

// NewPoller wires a poller over the cache and the local mirror.
func NewPoller(c *Cache, reader ports.ChainReader, store ports.LedgerStore) *Poller {
	return &Poller{
		cache:           c,
		reader:          reader,
		store:           store,
		PriceInterval:   5 * time.Second,
		ParamsInterval:  30 * time.Second,
		CatalogInterval: 2 * time.Minute,
	}
}

// Run blocks until the context ends. The catalog is resolved once up
// front so the first price pass has a universe to work with.
func (p *Poller) Run(ctx context.Context) {
	p.cache.RefreshCatalog(ctx)
	p.cache.RefreshParams(ctx)
	p.cache.RefreshPrices(ctx)
	p.Reconcile(ctx)

	priceTick := time.NewTicker(p.PriceInterval)
	paramsTick := time.NewTicker(p.ParamsInterval)
	catalogTick := time.NewTicker(p.CatalogInterval)
	defer priceTick.Stop()
	defer paramsTick.Stop()
	defer catalogTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-priceTick.C:
			p.cache.RefreshPrices(ctx)
			p.Reconcile(ctx)
		case <-paramsTick.C:
			p.cache.RefreshParams(ctx)
		case <-catalogTick.C:
			p.cache.RefreshCatalog(ctx)
		}
	}
}

// Reconcile refreshes the local mirror from authoritative reads: offer
// statuses and position health. Confirmed ledger state always wins over
// the optimistic mirror.
func (p *Poller) Reconcile(ctx context.Context) {
	p.reconcileOffers(ctx)
	p.reconcilePositions(ctx)
}

func (p *Poller) reconcileOffers(ctx context.Context) {
	offers, err := p.store.Offers(ctx)
	if err != nil {
		slog.Warn("cache: offer reconcile read failed", "err", err)
		return
	}
	for _, o := range offers {
		if o.OnChainID == 0 || o.Status.Terminal() {
			continue
		}
		rec, err := p.reader.OfferByID(ctx, o.OnChainID)
		if err != nil {
			slog.Warn("cache: offer read failed", "offer", o.ID, "err", err)
			continue
		}
		next := domain.StatusFromCode(rec.StatusCode)
		if next == o.Status {
			continue
		}
		if !o.Status.CanTransition(next) {
			slog.Warn("cache: ignoring illegal status from chain",
				"offer", o.ID, "from", o.Status, "to", next)
			continue
		}
		o.Status = next
		o.CollateralAmount = rec.CollateralAmount
		o.LoanAmount = rec.LoanAmount
		if err := p.store.SaveOffer(ctx, o); err != nil {
			slog.Warn("cache: offer reconcile save failed", "offer", o.ID, "err", err)
		}
	}
}

func (p *Poller) reconcilePositions(ctx context.Context) {
	positions, err := p.store.Positions(ctx)
	if err != nil {
		slog.Warn("cache: position reconcile read failed", "err", err)
		return
	}
	for _, pos := range positions {
		if !pos.LedgerOpen {
			continue
		}
		health, err := p.reader.PositionHealthByID(ctx, pos.OnChainID)
		if err != nil {
			slog.Warn("cache: health read failed", "position", pos.OfferID, "err", err)
			continue
		}

		pos.PrincipalDebt = health.PrincipalDebt
		pos.AccruedInterest = health.AccruedInterest
		pos.HealthFactor = health.HealthFactor
		pos.LedgerOpen = health.Open

		params := p.cache.Params(pos.CollateralToken.Address)
		pos.LiquidationPrice = domain.LiquidationPrice(domain.RiskInput{
			CollateralAmount: pos.CollateralAmount,
			PrincipalDebt:    pos.PrincipalDebt,
			AccruedInterest:  pos.AccruedInterest,
			LiquidationBps:   params.LiquidationBps,
		})

		if err := p.store.SavePosition(ctx, pos); err != nil {
			slog.Warn("cache: position reconcile save failed", "position", pos.OfferID, "err", err)
		}
	}
}
