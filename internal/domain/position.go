package domain

import "time"

// Position is the matched economic relationship between a borrower and a
// lender. It is always derived from a matched offer pair, never created
// on its own. PrincipalDebt comes from the authoritative ledger read and
// supersedes the cached offer LoanAmount.
type Position struct {
	OfferID          string
	OnChainID        uint64
	BorrowerAddress  string
	LenderAddress    string
	CollateralToken  Token
	CollateralAmount float64
	PrincipalDebt    float64
	AccruedInterest  float64
	InterestRateBps  int64
	HealthFactor     float64
	LiquidationPrice float64
	MaturityDate     time.Time
	LedgerOpen       bool
}

// TotalDebt is principal plus interest accrued since the last checkpoint.
func (p Position) TotalDebt() float64 {
	return p.PrincipalDebt + p.AccruedInterest
}

// FromMatchedOffer derives a position from an offer that just matched.
// The caller fills authoritative fields (debt, health) from ledger reads.
func FromMatchedOffer(o Offer, borrower, lender string, matchedAt time.Time) Position {
	return Position{
		OfferID:          o.ID,
		OnChainID:        o.OnChainID,
		BorrowerAddress:  borrower,
		LenderAddress:    lender,
		CollateralToken:  o.CollateralToken,
		CollateralAmount: o.CollateralAmount,
		PrincipalDebt:    o.LoanAmount,
		InterestRateBps:  o.InterestRateBps,
		MaturityDate:     matchedAt.AddDate(0, 0, o.MaturityDays),
		LedgerOpen:       true,
	}
}
