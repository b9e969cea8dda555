package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// Reader implements ports.ChainReader against the deployed programs.
type Reader struct {
	c *Client
}

// NewReader wraps a shared client.
func NewReader(c *Client) *Reader {
	return &Reader{c: c}
}

// PriceByToken reads the oracle price for a token address.
func (r *Reader) PriceByToken(ctx context.Context, tokenAddr string) (float64, error) {
	vals, err := r.c.call(ctx, r.c.priceLimiter, r.c.addrs.Oracle, oracleABI, "getPrice", common.HexToAddress(tokenAddr))
	if err != nil {
		return 0, fmt.Errorf("onchain.PriceByToken: %w", err)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	return asAmount(vals[0]), nil
}

// RiskParamsByToken reads the risk parameters for a collateral token.
func (r *Reader) RiskParamsByToken(ctx context.Context, tokenAddr string) (domain.RiskParams, error) {
	vals, err := r.c.call(ctx, r.c.generalLimiter, r.c.addrs.Market, marketABI, "getRiskParams", common.HexToAddress(tokenAddr))
	if err != nil {
		return domain.RiskParams{}, fmt.Errorf("onchain.RiskParamsByToken: %w", err)
	}
	if len(vals) < 3 {
		return domain.RiskParams{}, fmt.Errorf("onchain.RiskParamsByToken: short result (%d values)", len(vals))
	}
	return domain.RiskParams{
		MaxLtvBps:             int64(asUint64(vals[0])),
		LiquidationBps:        int64(asUint64(vals[1])),
		LiquidationPenaltyBps: int64(asUint64(vals[2])),
	}, nil
}

// Categories reads the allow-list category ids.
func (r *Reader) Categories(ctx context.Context) ([]uint64, error) {
	vals, err := r.c.call(ctx, r.c.generalLimiter, r.c.addrs.Registry, registryABI, "getCategories")
	if err != nil {
		return nil, fmt.Errorf("onchain.Categories: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	raw, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, nil
	}
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, asUint64(id))
	}
	return ids, nil
}

// TokensByCategory reads one category's token list.
func (r *Reader) TokensByCategory(ctx context.Context, categoryID uint64) ([]domain.Token, error) {
	vals, err := r.c.call(ctx, r.c.generalLimiter, r.c.addrs.Registry, registryABI, "getTokens", new(big.Int).SetUint64(categoryID))
	if err != nil {
		return nil, fmt.Errorf("onchain.TokensByCategory: %w", err)
	}
	if len(vals) < 3 {
		return nil, nil
	}

	addrs, _ := vals[0].([]common.Address)
	symbols, _ := vals[1].([]string)
	decimals, _ := vals[2].([]uint8)

	tokens := make([]domain.Token, 0, len(addrs))
	for i, addr := range addrs {
		t := domain.Token{Address: addr.Hex(), Decimals: 18}
		if i < len(symbols) {
			t.Symbol = symbols[i]
			t.DisplayName = symbols[i]
		}
		if i < len(decimals) {
			t.Decimals = int(decimals[i])
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// OfferByID reads and decodes an offer record.
func (r *Reader) OfferByID(ctx context.Context, onChainID uint64) (domain.OfferRecord, error) {
	vals, err := r.c.call(ctx, r.c.generalLimiter, r.c.addrs.Market, marketABI, "getOffer", new(big.Int).SetUint64(onChainID))
	if err != nil {
		return domain.OfferRecord{}, fmt.Errorf("onchain.OfferByID: %w", err)
	}
	return decodeOfferRecord(vals), nil
}

// PositionHealthByID reads and decodes authoritative position health.
func (r *Reader) PositionHealthByID(ctx context.Context, onChainID uint64) (domain.PositionHealth, error) {
	vals, err := r.c.call(ctx, r.c.generalLimiter, r.c.addrs.Market, marketABI, "getPositionHealth", new(big.Int).SetUint64(onChainID))
	if err != nil {
		return domain.PositionHealth{}, fmt.Errorf("onchain.PositionHealthByID: %w", err)
	}
	return decodePositionHealth(vals), nil
}

// NativeBalance reads the native-currency balance of an address.
func (r *Reader) NativeBalance(ctx context.Context, addr string) (float64, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := r.c.generalLimiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("onchain.NativeBalance: rate limiter: %w", err)
		}
		bal, err := r.c.eth.BalanceAt(ctx, common.HexToAddress(addr), nil)
		if err != nil {
			if isRateLimited(err) && attempt < maxRetries {
				sleep(ctx, attempt)
				continue
			}
			if isRateLimited(err) {
				return 0, fmt.Errorf("onchain.NativeBalance: %w", domain.ErrRateLimited)
			}
			return 0, fmt.Errorf("onchain.NativeBalance: %w", err)
		}
		return fromBase(bal), nil
	}
	return 0, fmt.Errorf("onchain.NativeBalance: %w", domain.ErrRateLimited)
}

// TokenBalance reads the synthetic-token balance of an address.
func (r *Reader) TokenBalance(ctx context.Context, addr string) (float64, error) {
	vals, err := r.c.call(ctx, r.c.generalLimiter, r.c.addrs.Token, tokenABI, "balanceOf", common.HexToAddress(addr))
	if err != nil {
		return 0, fmt.Errorf("onchain.TokenBalance: %w", err)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	return asAmount(vals[0]), nil
}
