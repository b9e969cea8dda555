package ports

import (
	"context"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// ChainReader covers every read entry point of the ledger programs.
// Implementations retry rate-limited reads with bounded exponential
// backoff; all other errors surface immediately.
type ChainReader interface {
	// PriceByToken returns the oracle price for the token address.
	PriceByToken(ctx context.Context, tokenAddr string) (float64, error)

	// RiskParamsByToken returns the risk parameters for a collateral token.
	RiskParamsByToken(ctx context.Context, tokenAddr string) (domain.RiskParams, error)

	// Categories returns the allow-list category ids.
	Categories(ctx context.Context) ([]uint64, error)

	// TokensByCategory returns the tokens allowed under one category.
	TokensByCategory(ctx context.Context, categoryID uint64) ([]domain.Token, error)

	// OfferByID reads an offer record by its on-chain id.
	OfferByID(ctx context.Context, onChainID uint64) (domain.OfferRecord, error)

	// PositionHealthByID reads authoritative debt, accrued interest and
	// health factor for a matched position.
	PositionHealthByID(ctx context.Context, onChainID uint64) (domain.PositionHealth, error)

	// NativeBalance returns the native-currency balance of an address.
	NativeBalance(ctx context.Context, addr string) (float64, error)

	// TokenBalance returns the synthetic-token balance of an address.
	TokenBalance(ctx context.Context, addr string) (float64, error)
}

// ChainWriter covers every write entry point. Each call signs with the
// user's custody key, submits, and awaits confirmation before returning
// the transaction hash. A revert or confirmation timeout is an error;
// confirmed writes are never rolled back.
type ChainWriter interface {
	CreateOffer(ctx context.Context, userID string, o domain.Offer) (txHash string, onChainID uint64, err error)
	UpdateOffer(ctx context.Context, userID string, o domain.Offer) (txHash string, err error)
	CancelOffer(ctx context.Context, userID string, onChainID uint64) (txHash string, err error)

	// TakeOffer matches an existing offer from the opposite side.
	TakeOffer(ctx context.Context, userID string, onChainID uint64) (txHash string, err error)

	Repay(ctx context.Context, userID string, onChainID uint64, amount float64) (txHash string, err error)
	AddCollateral(ctx context.Context, userID string, onChainID uint64, amount float64) (txHash string, err error)
	WithdrawCollateral(ctx context.Context, userID string, onChainID uint64, amount float64) (txHash string, err error)
	Liquidate(ctx context.Context, userID string, onChainID uint64, amount float64) (txHash string, err error)

	// Approve grants the ledger program an allowance over the user's
	// synthetic tokens.
	Approve(ctx context.Context, userID string, amount float64) (txHash string, err error)
}

// Minter is the authority capability: synthetic-token minting backed by
// the authority signing key, never a user key.
type Minter interface {
	// Mint issues amount synthetic tokens to the address.
	Mint(ctx context.Context, toAddr string, amount float64) (txHash string, err error)
}

// Funder is the authority capability for native-currency top-ups.
type Funder interface {
	// Fund transfers amount native currency to the address and awaits
	// confirmation.
	Fund(ctx context.Context, toAddr string, amount float64) error
}
