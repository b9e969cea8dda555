package cache

// cache.go — normalized view over the chain read entry points.
//
// Prices and risk params are cached under three aliases (exact address,
// lowercase address, symbol) so every caller spelling resolves to the same
// value. A failed or zero price read NEVER overwrites a previously
// observed positive price; with no prior value, zero is recorded so the
// token at least exists in the map.

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/lendbot/internal/domain"
	"github.com/alejandrodnm/lendbot/internal/ports"
)

type pricePoint struct {
	value     float64
	updatedAt time.Time
}

// Cache is the in-memory normalized read cache. Safe for concurrent use:
// the poller writes, everyone else reads.
type Cache struct {
	reader ports.ChainReader
	store  ports.LedgerStore // persisted snapshot, nil-able in tests

	mu     sync.RWMutex
	prices map[string]pricePoint
	params map[string]domain.RiskParams
	tokens map[string]domain.Token // keyed by lowercase address
}

// New builds an empty cache. The store may be nil; then snapshots are
// memory-only.
func New(reader ports.ChainReader, store ports.LedgerStore) *Cache {
	return &Cache{
		reader: reader,
		store:  store,
		prices: make(map[string]pricePoint),
		params: make(map[string]domain.RiskParams),
		tokens: make(map[string]domain.Token),
	}
}

// RefreshCatalog resolves the token universe: category ids, then each
// category's tokens, address-deduplicated. An empty or failed resolution
// falls back to the static catalog — never to an empty universe.
func (c *Cache) RefreshCatalog(ctx context.Context) {
	fresh := make(map[string]domain.Token)

	ids, err := c.reader.Categories(ctx)
	if err != nil {
		slog.Warn("cache: category read failed", "err", err)
	}
	for _, id := range ids {
		tokens, err := c.reader.TokensByCategory(ctx, id)
		if err != nil {
			slog.Warn("cache: token list read failed", "category", id, "err", err)
			continue
		}
		for _, t := range tokens {
			if t.Address == "" {
				continue
			}
			fresh[strings.ToLower(t.Address)] = t
		}
	}

	if len(fresh) == 0 {
		slog.Warn("cache: empty token universe, using static catalog")
		for _, t := range domain.StaticCatalog {
			fresh[strings.ToLower(t.Address)] = t
		}
	}

	c.mu.Lock()
	c.tokens = fresh
	c.mu.Unlock()
}

// RefreshPrices reads every known token's price and records it under all
// three aliases.
func (c *Cache) RefreshPrices(ctx context.Context) {
	for _, t := range c.Tokens() {
		price, err := c.reader.PriceByToken(ctx, t.Address)
		if err != nil {
			slog.Warn("cache: price read failed", "token", t.Symbol, "err", err)
			price = 0
		}
		c.recordPrice(ctx, t, price)
	}
}

// recordPrice applies the never-clobber rule and fans out to the aliases.
func (c *Cache) recordPrice(ctx context.Context, t domain.Token, price float64) {
	now := time.Now().UTC()

	c.mu.Lock()
	if prior, ok := c.prices[t.Address]; ok && prior.value > 0 && price <= 0 {
		c.mu.Unlock()
		return // keep the last known good value
	}
	point := pricePoint{value: price, updatedAt: now}
	for _, alias := range domain.PriceAliases(t.Address, t.Symbol) {
		c.prices[alias] = point
	}
	c.mu.Unlock()

	if c.store != nil {
		for _, alias := range domain.PriceAliases(t.Address, t.Symbol) {
			if err := c.store.SavePrice(ctx, alias, price, now); err != nil {
				slog.Warn("cache: persist price failed", "alias", alias, "err", err)
			}
		}
	}
}

// RefreshParams reads risk parameters per token. A failed read keeps the
// prior value if there is one, otherwise records the static defaults.
func (c *Cache) RefreshParams(ctx context.Context) {
	for _, t := range c.Tokens() {
		params, err := c.reader.RiskParamsByToken(ctx, t.Address)
		if err != nil {
			slog.Warn("cache: risk params read failed", "token", t.Symbol, "err", err)
			c.mu.Lock()
			if _, ok := c.params[t.Address]; !ok {
				for _, alias := range domain.PriceAliases(t.Address, t.Symbol) {
					c.params[alias] = domain.DefaultRiskParams
				}
			}
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		for _, alias := range domain.PriceAliases(t.Address, t.Symbol) {
			c.params[alias] = params
		}
		c.mu.Unlock()
	}
}

// Price resolves a price by any alias.
func (c *Cache) Price(key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.prices[key]; ok {
		return p.value, true
	}
	if p, ok := c.prices[strings.ToLower(key)]; ok {
		return p.value, true
	}
	return 0, false
}

// PriceAge returns how long ago the alias was last refreshed.
func (c *Cache) PriceAge(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.prices[key]; ok {
		return time.Since(p.updatedAt), true
	}
	return 0, false
}

// Params resolves risk parameters by any alias, falling back to the
// static defaults for unknown tokens.
func (c *Cache) Params(key string) domain.RiskParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.params[key]; ok {
		return p
	}
	if p, ok := c.params[strings.ToLower(key)]; ok {
		return p
	}
	return domain.DefaultRiskParams
}

// Tokens returns the current token universe.
func (c *Cache) Tokens() []domain.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Token, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, t)
	}
	return out
}

// PriceSnapshot returns a copy of the current alias→price map.
func (c *Cache) PriceSnapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.prices))
	for alias, p := range c.prices {
		out[alias] = p.value
	}
	return out
}
