package onchain

// decode.go — canonical record decoding.
//
// Offer and position reads arrive in heterogeneous shapes depending on the
// provider: a positional value slice, or a named map. Each record type has
// ONE decode function driven by a fixed field-index table; unexpected
// shapes degrade field-by-field to zero values instead of failing the
// whole read.

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// Field-index tables. Positional reads are addressed by index, named reads
// by key; both tables describe the same canonical record.
var offerFields = []struct {
	name  string
	index int
}{
	{"id", 0},
	{"owner", 1},
	{"collateral", 2},
	{"collateralAmount", 3},
	{"loanAmount", 4},
	{"rateBps", 5},
	{"maturityDays", 6},
	{"status", 7},
}

var positionHealthFields = []struct {
	name  string
	index int
}{
	{"principalDebt", 0},
	{"accruedInterest", 1},
	{"healthFactor", 2},
	{"open", 3},
}

// decodeOfferRecord turns a raw read result into the canonical offer
// record. Accepts positional slices and named maps.
func decodeOfferRecord(raw any) domain.OfferRecord {
	get := fieldGetter(raw, offerFields)
	return domain.OfferRecord{
		OnChainID:        asUint64(get("id")),
		Owner:            asAddress(get("owner")),
		CollateralToken:  asAddress(get("collateral")),
		CollateralAmount: asAmount(get("collateralAmount")),
		LoanAmount:       asAmount(get("loanAmount")),
		InterestRateBps:  int64(asUint64(get("rateBps"))),
		MaturityDays:     int64(asUint64(get("maturityDays"))),
		StatusCode:       uint8(asUint64(get("status"))),
	}
}

// decodePositionHealth turns a raw read result into the canonical position
// health record. The on-chain health factor is 1e18-scaled.
func decodePositionHealth(raw any) domain.PositionHealth {
	get := fieldGetter(raw, positionHealthFields)
	return domain.PositionHealth{
		PrincipalDebt:   asAmount(get("principalDebt")),
		AccruedInterest: asAmount(get("accruedInterest")),
		HealthFactor:    asAmount(get("healthFactor")),
		Open:            asBool(get("open")),
	}
}

// fieldGetter resolves one lookup strategy for the record shape: index
// into a positional slice, or key into a named map. Anything else yields
// a getter that always returns nil, which the coercions turn into zeros.
func fieldGetter(raw any, table []struct {
	name  string
	index int
}) func(string) any {
	switch shaped := raw.(type) {
	case []any:
		byName := make(map[string]any, len(table))
		for _, f := range table {
			if f.index < len(shaped) {
				byName[f.name] = shaped[f.index]
			}
		}
		return func(name string) any { return byName[name] }
	case map[string]any:
		return func(name string) any { return shaped[name] }
	default:
		return func(string) any { return nil }
	}
}

// --- tolerant coercions: wrong types become zero values, never panics ---

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case *big.Int:
		if n == nil || !n.IsUint64() {
			return 0
		}
		return n.Uint64()
	case uint64:
		return n
	case uint8:
		return uint64(n)
	case int64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case float64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	}
	return 0
}

// asAmount reads a 1e18-scaled integer amount into display units.
func asAmount(v any) float64 {
	switch n := v.(type) {
	case *big.Int:
		return fromBase(n)
	case float64:
		return n
	}
	return 0
}

func asAddress(v any) string {
	switch a := v.(type) {
	case common.Address:
		return a.Hex()
	case string:
		return a
	}
	return ""
}

func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
