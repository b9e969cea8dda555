package orchestrator

// preflight.go — checks that run before a pipeline starts, and the gas
// step shared by every pipeline. A preflight rejection means no pipeline
// ever existed: nothing to display, nothing to roll back.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// ensureGasBalance tops up the wallet's native balance when it is below
// the minimum. The balance read retries internally on rate limiting; a
// failed top-up aborts the pipeline.
func (o *Orchestrator) ensureGasBalance(ctx context.Context, addr string) error {
	balance, err := o.reader.NativeBalance(ctx, addr)
	if err != nil {
		return fmt.Errorf("gas balance read: %w", err)
	}
	if balance >= o.cfg.MinGasBalance {
		return nil
	}
	slog.Info("orchestrator: topping up gas",
		"addr", addr, "balance", balance, "topup", o.cfg.TopUpAmount)
	if err := o.funder.Fund(ctx, addr, o.cfg.TopUpAmount); err != nil {
		return fmt.Errorf("gas top-up: %w", err)
	}
	return nil
}

// requireLocalBalance rejects a pipeline that would spend more of a local
// asset than the user holds.
func (o *Orchestrator) requireLocalBalance(ctx context.Context, userID, token string, amount float64) error {
	held, err := o.store.Balance(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("balance read: %w", err)
	}
	if held < amount {
		return fmt.Errorf("%s: have %.4f, need %.4f: %w",
			token, held, amount, domain.ErrInsufficientBalance)
	}
	return nil
}

// validateBorrowTerms rejects a borrow-side offer whose requested loan
// exceeds the maximum LTV for its collateral at the cached price.
func (o *Orchestrator) validateBorrowTerms(offer domain.Offer) error {
	price, ok := o.cache.Price(offer.CollateralToken.Address)
	if !ok || price <= 0 {
		return fmt.Errorf("no price for %s: %w",
			offer.CollateralToken.Symbol, domain.ErrLtvExceeded)
	}
	params := o.cache.Params(offer.CollateralToken.Address)
	if err := domain.ValidateBorrowLtv(offer.CollateralAmount, price, offer.LoanAmount, params); err != nil {
		return fmt.Errorf("loan %.2f against %.4f %s at %.2f: %w",
			offer.LoanAmount, offer.CollateralAmount, offer.CollateralToken.Symbol, price, err)
	}
	return nil
}

// requireAction rejects a pipeline whose action is illegal for the offer's
// current status.
func requireAction(offer domain.Offer, action domain.Action) error {
	if !domain.ActionAllowed(offer.Status, action) {
		return fmt.Errorf("action %s not allowed on %s offer %s", action, offer.Status, offer.ID)
	}
	return nil
}

// loadOffer fetches the local mirror record or rejects the pipeline.
func (o *Orchestrator) loadOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	offer, ok, err := o.store.OfferByID(ctx, offerID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("load offer: %w", err)
	}
	if !ok {
		return domain.Offer{}, fmt.Errorf("unknown offer %q", offerID)
	}
	return offer, nil
}

// loadPosition fetches the position behind a matched offer.
func (o *Orchestrator) loadPosition(ctx context.Context, offerID string) (domain.Position, error) {
	pos, ok, err := o.store.PositionByOffer(ctx, offerID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("load position: %w", err)
	}
	if !ok {
		return domain.Position{}, fmt.Errorf("no position for offer %q", offerID)
	}
	return pos, nil
}
