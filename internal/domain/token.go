package domain

import "strings"

// Token is an asset known to the marketplace. Address is the durable
// identity; Symbol is a presentation alias that may collide across chains.
type Token struct {
	Address     string
	Symbol      string
	DisplayName string
	Decimals    int
}

// RiskParams are the per-collateral safety limits, in basis points (0–10000).
type RiskParams struct {
	MaxLtvBps             int64
	LiquidationBps        int64
	LiquidationPenaltyBps int64
}

// DefaultRiskParams are the static fallbacks used when the on-chain
// parameters cannot be read: 70% max LTV, 80% liquidation, 5% penalty.
var DefaultRiskParams = RiskParams{
	MaxLtvBps:             7000,
	LiquidationBps:        8000,
	LiquidationPenaltyBps: 500,
}

// LiquidationThreshold returns the liquidation level as a decimal fraction.
func (p RiskParams) LiquidationThreshold() float64 {
	return float64(p.LiquidationBps) / 10_000
}

// MaxLtv returns the maximum loan-to-value as a decimal fraction.
func (p RiskParams) MaxLtv() float64 {
	return float64(p.MaxLtvBps) / 10_000
}

// StaticCatalog is the fallback token universe used when the on-chain
// allow-lists cannot be resolved. Never empty: an empty universe would make
// every position unpriceable.
var StaticCatalog = []Token{
	{Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", Symbol: "GOLD", DisplayName: "Tokenized Gold", Decimals: 18},
	{Address: "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", Symbol: "KRWS", DisplayName: "Won Stable", Decimals: 18},
	{Address: "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB", Symbol: "STOCK", DisplayName: "Tokenized Equity", Decimals: 18},
}

// PriceAliases returns the three cache keys a price is stored under:
// the exact address, the lowercased address, and the symbol. All three
// resolve to the same value so lookups survive mixed-case callers.
func PriceAliases(address, symbol string) []string {
	aliases := []string{address}
	if lower := strings.ToLower(address); lower != address {
		aliases = append(aliases, lower)
	}
	if symbol != "" {
		aliases = append(aliases, symbol)
	}
	return aliases
}
