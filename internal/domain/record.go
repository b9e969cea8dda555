package domain

// OfferRecord is the canonical field set decoded from an on-chain offer
// read, whatever shape the provider returned it in. Amounts are already
// converted out of base units.
type OfferRecord struct {
	OnChainID        uint64
	Owner            string
	CollateralToken  string
	CollateralAmount float64
	LoanAmount       float64
	InterestRateBps  int64
	MaturityDays     int64
	StatusCode       uint8
}

// PositionHealth is the canonical field set decoded from a position
// health/interest read.
type PositionHealth struct {
	PrincipalDebt   float64
	AccruedInterest float64
	HealthFactor    float64
	Open            bool
}

// On-chain status codes, as stored by the ledger program.
const (
	ChainStatusActive     uint8 = 0
	ChainStatusMatched    uint8 = 1
	ChainStatusClosed     uint8 = 2
	ChainStatusCancelled  uint8 = 3
	ChainStatusLiquidated uint8 = 4
)

// StatusFromCode maps a ledger status code to the client status. Unknown
// codes degrade to active rather than failing the decode.
func StatusFromCode(code uint8) OfferStatus {
	switch code {
	case ChainStatusMatched:
		return StatusMatched
	case ChainStatusClosed:
		return StatusClosed
	case ChainStatusCancelled:
		return StatusCancelled
	case ChainStatusLiquidated:
		return StatusLiquidated
	default:
		return StatusActive
	}
}
