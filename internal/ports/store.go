package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// LedgerStore is the persisted client mirror of balances, offers and
// positions. The orchestrator updates it optimistically after confirmed
// writes; the next cache poll supersedes it with authoritative state.
// Updates are whole-record last-write-wins, acceptable under the
// one-active-pipeline-per-user constraint.
type LedgerStore interface {
	SaveOffer(ctx context.Context, o domain.Offer) error
	OfferByID(ctx context.Context, id string) (domain.Offer, bool, error)
	Offers(ctx context.Context) ([]domain.Offer, error)

	SavePosition(ctx context.Context, p domain.Position) error
	PositionByOffer(ctx context.Context, offerID string) (domain.Position, bool, error)
	Positions(ctx context.Context) ([]domain.Position, error)

	// SavePrice records an observed price under one cache alias.
	SavePrice(ctx context.Context, alias string, price float64, observedAt time.Time) error
	// Price returns the last persisted price for an alias.
	Price(ctx context.Context, alias string) (float64, time.Time, bool, error)

	// AdjustBalance applies a delta to the user's local token balance.
	// Timed to specific pipeline steps, not to pipeline completion.
	AdjustBalance(ctx context.Context, userID, token string, delta float64) error
	Balance(ctx context.Context, userID, token string) (float64, error)

	Close() error
}
