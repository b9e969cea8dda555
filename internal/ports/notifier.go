package ports

import (
	"context"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// Notifier consumes discrete pipeline status events and renders the
// current book. Any presentation layer can implement it; the pipeline
// emits the same events regardless.
type Notifier interface {
	// PipelineUpdated is called on every step-status change.
	PipelineUpdated(p *domain.TxPipeline)

	// ShowPositions renders the current positions with their risk picture.
	ShowPositions(ctx context.Context, positions []domain.Position, prices map[string]float64) error

	// ShowOffers renders the open offer book with requested LTVs at the
	// given prices.
	ShowOffers(ctx context.Context, offers []domain.Offer, prices map[string]float64) error
}
