package orchestrator

// actions.go — one pipeline builder per user action.
//
// Pipelines differ by branch, not by flag: a collateral increase and a
// collateral withdrawal are different step lists, as are a partial and a
// full repayment. Local mirror mutations are timed to the step they belong
// to — the asset debit lands right after the mint, the collateral return
// right after the closing write — never bundled at pipeline end.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// CreateOffer runs the creation pipeline for a new borrow or lend offer.
// Borrow offers escrow collateral (debiting the local asset balance); lend
// offers escrow the loan amount in freshly minted synthetic currency.
func (o *Orchestrator) CreateOffer(ctx context.Context, userID string, offer domain.Offer) (*domain.TxPipeline, error) {
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.CreateOffer: %w", err)
	}

	escrow := offer.LoanAmount
	if offer.Kind == domain.OfferBorrow {
		escrow = offer.CollateralAmount
		if err := o.validateBorrowTerms(offer); err != nil {
			return nil, fmt.Errorf("orchestrator.CreateOffer: %w", err)
		}
		if err := o.requireLocalBalance(ctx, userID, offer.CollateralToken.Symbol, escrow); err != nil {
			return nil, fmt.Errorf("orchestrator.CreateOffer: %w", err)
		}
	}

	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	offer.CounterpartyAddress = wallet.Address
	offer.Status = domain.StatusActive
	offer.CreatedAt = time.Now().UTC()

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
		{id: "settle", label: "Settle off-chain", run: o.settle},
		{id: "mint", label: "Mint escrow tokens", run: func(ctx context.Context) error {
			if _, err := o.minter.Mint(ctx, wallet.Address, escrow); err != nil {
				return err
			}
			if offer.Kind == domain.OfferBorrow {
				return o.store.AdjustBalance(ctx, userID, offer.CollateralToken.Symbol, -escrow)
			}
			return nil
		}},
		{id: "approve", label: "Approve escrow", run: func(ctx context.Context) error {
			_, err := o.writer.Approve(ctx, userID, escrow)
			return err
		}},
		{id: "submit", label: "Submit offer", run: func(ctx context.Context) error {
			hash, id, err := o.writer.CreateOffer(ctx, userID, offer)
			if err != nil {
				return err
			}
			st.txHash, st.onChainID = hash, id
			return nil
		}},
		{id: "record", label: "Record offer", run: func(ctx context.Context) error {
			offer.OnChainID = st.onChainID
			return o.store.SaveOffer(ctx, offer)
		}},
	}
	return o.run(ctx, domain.ActionCreate, steps, st)
}

// EditOffer updates an active offer's terms. Raising the collateral adds a
// mint-and-approve branch for the delta; lowering it credits the freed
// amount back to the local balance right after the write confirms.
func (o *Orchestrator) EditOffer(ctx context.Context, userID string, updated domain.Offer) (*domain.TxPipeline, error) {
	current, err := o.loadOffer(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.EditOffer: %w", err)
	}
	if err := requireAction(current, domain.ActionEdit); err != nil {
		return nil, fmt.Errorf("orchestrator.EditOffer: %w", err)
	}
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.EditOffer: %w", err)
	}

	updated.OnChainID = current.OnChainID
	updated.Kind = current.Kind
	updated.CounterpartyAddress = current.CounterpartyAddress
	updated.Status = current.Status
	updated.CreatedAt = current.CreatedAt
	updated.MatchedAt = current.MatchedAt
	delta := updated.CollateralAmount - current.CollateralAmount

	if updated.Kind == domain.OfferBorrow {
		if err := o.validateBorrowTerms(updated); err != nil {
			return nil, fmt.Errorf("orchestrator.EditOffer: %w", err)
		}
		if delta > 0 {
			if err := o.requireLocalBalance(ctx, userID, updated.CollateralToken.Symbol, delta); err != nil {
				return nil, fmt.Errorf("orchestrator.EditOffer: %w", err)
			}
		}
	}

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
	}
	if updated.Kind == domain.OfferBorrow && delta > 0 {
		steps = append(steps,
			step{id: "settle", label: "Settle off-chain", run: o.settle},
			step{id: "mint", label: "Mint extra escrow", run: func(ctx context.Context) error {
				if _, err := o.minter.Mint(ctx, wallet.Address, delta); err != nil {
					return err
				}
				return o.store.AdjustBalance(ctx, userID, updated.CollateralToken.Symbol, -delta)
			}},
			step{id: "approve", label: "Approve extra escrow", run: func(ctx context.Context) error {
				_, err := o.writer.Approve(ctx, userID, delta)
				return err
			}},
		)
	}
	steps = append(steps,
		step{id: "submit", label: "Submit update", run: func(ctx context.Context) error {
			hash, err := o.writer.UpdateOffer(ctx, userID, updated)
			if err != nil {
				return err
			}
			st.txHash = hash
			if updated.Kind == domain.OfferBorrow && delta < 0 {
				return o.store.AdjustBalance(ctx, userID, updated.CollateralToken.Symbol, -delta)
			}
			return nil
		}},
		step{id: "record", label: "Record update", run: func(ctx context.Context) error {
			return o.store.SaveOffer(ctx, updated)
		}},
	)
	return o.run(ctx, domain.ActionEdit, steps, st)
}

// CancelOffer withdraws an active offer and returns any escrowed collateral
// to the local balance.
func (o *Orchestrator) CancelOffer(ctx context.Context, userID, offerID string) (*domain.TxPipeline, error) {
	offer, err := o.loadOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.CancelOffer: %w", err)
	}
	if err := requireAction(offer, domain.ActionCancel); err != nil {
		return nil, fmt.Errorf("orchestrator.CancelOffer: %w", err)
	}
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.CancelOffer: %w", err)
	}

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
		{id: "submit", label: "Submit cancellation", run: func(ctx context.Context) error {
			hash, err := o.writer.CancelOffer(ctx, userID, offer.OnChainID)
			if err != nil {
				return err
			}
			st.txHash = hash
			if offer.Kind == domain.OfferBorrow {
				return o.store.AdjustBalance(ctx, userID, offer.CollateralToken.Symbol, offer.CollateralAmount)
			}
			return nil
		}},
		{id: "record", label: "Record cancellation", run: func(ctx context.Context) error {
			if !offer.Status.CanTransition(domain.StatusCancelled) {
				return fmt.Errorf("offer %s cannot move %s → cancelled", offer.ID, offer.Status)
			}
			offer.Status = domain.StatusCancelled
			return o.store.SaveOffer(ctx, offer)
		}},
	}
	return o.run(ctx, domain.ActionCancel, steps, st)
}

// MatchOffer takes an active offer from the opposite side. The verify step
// re-reads the on-chain terms just before committing: any drift from the
// cached record aborts rather than matching terms the user never saw.
func (o *Orchestrator) MatchOffer(ctx context.Context, userID, offerID string) (*domain.TxPipeline, error) {
	offer, err := o.loadOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.MatchOffer: %w", err)
	}
	if err := requireAction(offer, domain.ActionMatch); err != nil {
		return nil, fmt.Errorf("orchestrator.MatchOffer: %w", err)
	}
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.MatchOffer: %w", err)
	}

	// Taking a borrow offer means lending the loan amount. Taking a lend
	// offer means borrowing, which escrows the taker's collateral.
	escrow := offer.LoanAmount
	debitsAsset := false
	if offer.Kind == domain.OfferLend {
		escrow = offer.CollateralAmount
		debitsAsset = true
		if err := o.validateBorrowTerms(offer); err != nil {
			return nil, fmt.Errorf("orchestrator.MatchOffer: %w", err)
		}
		if err := o.requireLocalBalance(ctx, userID, offer.CollateralToken.Symbol, escrow); err != nil {
			return nil, fmt.Errorf("orchestrator.MatchOffer: %w", err)
		}
	}

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
		{id: "verify", label: "Verify current terms", run: func(ctx context.Context) error {
			rec, err := o.reader.OfferByID(ctx, offer.OnChainID)
			if err != nil {
				return err
			}
			if rec.LoanAmount != offer.LoanAmount ||
				rec.CollateralAmount != offer.CollateralAmount ||
				rec.InterestRateBps != offer.InterestRateBps {
				return fmt.Errorf("offer %s terms changed on chain: %w",
					offer.ID, domain.ErrStaleGuard)
			}
			if domain.StatusFromCode(rec.StatusCode) != domain.StatusActive {
				return fmt.Errorf("offer %s no longer active: %w",
					offer.ID, domain.ErrStaleGuard)
			}
			return nil
		}},
		{id: "settle", label: "Settle off-chain", run: o.settle},
		{id: "mint", label: "Mint escrow tokens", run: func(ctx context.Context) error {
			if _, err := o.minter.Mint(ctx, wallet.Address, escrow); err != nil {
				return err
			}
			if debitsAsset {
				return o.store.AdjustBalance(ctx, userID, offer.CollateralToken.Symbol, -escrow)
			}
			return nil
		}},
		{id: "approve", label: "Approve escrow", run: func(ctx context.Context) error {
			_, err := o.writer.Approve(ctx, userID, escrow)
			return err
		}},
		{id: "submit", label: "Submit match", run: func(ctx context.Context) error {
			hash, err := o.writer.TakeOffer(ctx, userID, offer.OnChainID)
			if err != nil {
				return err
			}
			st.txHash = hash
			return nil
		}},
		{id: "record", label: "Record match", run: func(ctx context.Context) error {
			now := time.Now().UTC()
			offer.Status = domain.StatusMatched
			offer.MatchedAt = &now
			if err := o.store.SaveOffer(ctx, offer); err != nil {
				return err
			}

			borrower, lender := offer.CounterpartyAddress, wallet.Address
			if offer.Kind == domain.OfferLend {
				borrower, lender = wallet.Address, offer.CounterpartyAddress
			}
			pos := domain.FromMatchedOffer(offer, borrower, lender, now)
			if health, err := o.reader.PositionHealthByID(ctx, offer.OnChainID); err == nil {
				pos.PrincipalDebt = health.PrincipalDebt
				pos.AccruedInterest = health.AccruedInterest
				pos.HealthFactor = health.HealthFactor
				pos.LedgerOpen = health.Open
			}
			params := o.cache.Params(pos.CollateralToken.Address)
			pos.LiquidationPrice = domain.LiquidationPrice(domain.RiskInput{
				CollateralAmount: pos.CollateralAmount,
				PrincipalDebt:    pos.PrincipalDebt,
				AccruedInterest:  pos.AccruedInterest,
				LiquidationBps:   params.LiquidationBps,
			})
			return o.store.SavePosition(ctx, pos)
		}},
	}
	return o.run(ctx, domain.ActionMatch, steps, st)
}

// AdjustCollateral adds (delta > 0) or withdraws (delta < 0) collateral on
// a matched position. Withdrawals that would leave the position at risk
// are refused before any pipeline starts.
func (o *Orchestrator) AdjustCollateral(ctx context.Context, userID, offerID string, delta float64) (*domain.TxPipeline, error) {
	offer, err := o.loadOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.AdjustCollateral: %w", err)
	}
	if err := requireAction(offer, domain.ActionAddCollateral); err != nil {
		return nil, fmt.Errorf("orchestrator.AdjustCollateral: %w", err)
	}
	pos, err := o.loadPosition(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.AdjustCollateral: %w", err)
	}
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.AdjustCollateral: %w", err)
	}
	if delta == 0 {
		return nil, fmt.Errorf("orchestrator.AdjustCollateral: zero delta")
	}

	projected := domain.ProjectAddCollateral(o.riskInput(pos), delta)

	if delta > 0 {
		if err := o.requireLocalBalance(ctx, userID, pos.CollateralToken.Symbol, delta); err != nil {
			return nil, fmt.Errorf("orchestrator.AdjustCollateral: %w", err)
		}
	} else {
		if -delta > pos.CollateralAmount {
			return nil, fmt.Errorf("orchestrator.AdjustCollateral: withdraw %.4f exceeds collateral %.4f",
				-delta, pos.CollateralAmount)
		}
		if projected.HealthFactor < domain.AtRiskHealthFactor {
			return nil, fmt.Errorf("orchestrator.AdjustCollateral: withdrawal leaves position at risk (hf %.4f)",
				projected.HealthFactor)
		}
	}

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
	}
	if delta > 0 {
		steps = append(steps,
			step{id: "settle", label: "Settle off-chain", run: o.settle},
			step{id: "mint", label: "Mint collateral tokens", run: func(ctx context.Context) error {
				if _, err := o.minter.Mint(ctx, wallet.Address, delta); err != nil {
					return err
				}
				return o.store.AdjustBalance(ctx, userID, pos.CollateralToken.Symbol, -delta)
			}},
			step{id: "approve", label: "Approve collateral", run: func(ctx context.Context) error {
				_, err := o.writer.Approve(ctx, userID, delta)
				return err
			}},
			step{id: "submit", label: "Add collateral", run: func(ctx context.Context) error {
				hash, err := o.writer.AddCollateral(ctx, userID, pos.OnChainID, delta)
				if err != nil {
					return err
				}
				st.txHash = hash
				return nil
			}},
		)
	} else {
		steps = append(steps,
			step{id: "submit", label: "Withdraw collateral", run: func(ctx context.Context) error {
				hash, err := o.writer.WithdrawCollateral(ctx, userID, pos.OnChainID, -delta)
				if err != nil {
					return err
				}
				st.txHash = hash
				return o.store.AdjustBalance(ctx, userID, pos.CollateralToken.Symbol, -delta)
			}},
		)
	}
	steps = append(steps, step{id: "record", label: "Record new collateral", run: func(ctx context.Context) error {
		pos.CollateralAmount = projected.CollateralAmount
		pos.HealthFactor = projected.HealthFactor
		pos.LiquidationPrice = projected.LiquidationPrice
		if err := o.store.SavePosition(ctx, pos); err != nil {
			return err
		}
		offer.CollateralAmount = projected.CollateralAmount
		return o.store.SaveOffer(ctx, offer)
	}})
	return o.run(ctx, domain.ActionAddCollateral, steps, st)
}

// Repay pays down a matched position, interest before principal. A full
// repayment closes the position and returns the collateral to the local
// balance right after the closing write confirms.
func (o *Orchestrator) Repay(ctx context.Context, userID, offerID string, amount float64) (*domain.TxPipeline, error) {
	offer, err := o.loadOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.Repay: %w", err)
	}
	if err := requireAction(offer, domain.ActionRepay); err != nil {
		return nil, fmt.Errorf("orchestrator.Repay: %w", err)
	}
	pos, err := o.loadPosition(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.Repay: %w", err)
	}
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.Repay: %w", err)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("orchestrator.Repay: non-positive amount %.2f", amount)
	}

	split := domain.SplitRepayment(pos.PrincipalDebt, pos.AccruedInterest, amount)
	pay := split.InterestPaid + split.PrincipalPaid // overpayment clamped
	projected := domain.ProjectRepay(o.riskInput(pos), amount)

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
		{id: "settle", label: "Settle off-chain", run: o.settle},
		{id: "mint", label: "Mint repayment tokens", run: func(ctx context.Context) error {
			_, err := o.minter.Mint(ctx, wallet.Address, pay)
			return err
		}},
		{id: "approve", label: "Approve repayment", run: func(ctx context.Context) error {
			_, err := o.writer.Approve(ctx, userID, pay)
			return err
		}},
		{id: "submit", label: "Submit repayment", run: func(ctx context.Context) error {
			hash, err := o.writer.Repay(ctx, userID, pos.OnChainID, pay)
			if err != nil {
				return err
			}
			st.txHash = hash
			if split.Full {
				// collateral comes back with the closing write
				return o.store.AdjustBalance(ctx, userID, pos.CollateralToken.Symbol, pos.CollateralAmount)
			}
			return nil
		}},
	}
	if split.Full {
		steps = append(steps, step{id: "close", label: "Close position", run: func(ctx context.Context) error {
			pos.PrincipalDebt = 0
			pos.AccruedInterest = 0
			pos.HealthFactor = domain.SafeHealthFactor
			pos.LedgerOpen = false
			if err := o.store.SavePosition(ctx, pos); err != nil {
				return err
			}
			if !offer.Status.CanTransition(domain.StatusClosed) {
				return fmt.Errorf("offer %s cannot move %s → closed", offer.ID, offer.Status)
			}
			offer.Status = domain.StatusClosed
			return o.store.SaveOffer(ctx, offer)
		}})
	} else {
		steps = append(steps, step{id: "record", label: "Record remaining debt", run: func(ctx context.Context) error {
			pos.PrincipalDebt = split.RemainingPrincipal
			pos.AccruedInterest = split.RemainingInterest
			pos.HealthFactor = projected.HealthFactor
			pos.LiquidationPrice = projected.LiquidationPrice
			return o.store.SavePosition(ctx, pos)
		}})
	}
	return o.run(ctx, domain.ActionRepay, steps, st)
}

// Liquidate seizes an undercollateralized position. The cached health
// factor gates the attempt; the verify step re-reads authoritative health
// just before the write and aborts if the position recovered in between.
// The mint is oversized by the configured buffer to absorb interest accrued
// since the snapshot.
func (o *Orchestrator) Liquidate(ctx context.Context, userID, offerID string) (*domain.TxPipeline, error) {
	offer, err := o.loadOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.Liquidate: %w", err)
	}
	if err := requireAction(offer, domain.ActionLiquidate); err != nil {
		return nil, fmt.Errorf("orchestrator.Liquidate: %w", err)
	}
	pos, err := o.loadPosition(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.Liquidate: %w", err)
	}
	wallet, err := o.walletFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.Liquidate: %w", err)
	}
	if !domain.IsLiquidatable(o.riskInput(pos)) {
		return nil, fmt.Errorf("orchestrator.Liquidate: position %s not liquidatable (hf %.4f)",
			offerID, pos.HealthFactor)
	}

	mintAmount := pos.TotalDebt() * (1 + o.cfg.LiquidationBufferPct)

	st := &pipeState{}
	steps := []step{
		{id: "gas", label: "Ensure gas balance", run: func(ctx context.Context) error {
			return o.ensureGasBalance(ctx, wallet.Address)
		}},
		{id: "verify", label: "Verify liquidatable", run: func(ctx context.Context) error {
			health, err := o.reader.PositionHealthByID(ctx, pos.OnChainID)
			if err != nil {
				return err
			}
			fresh := o.riskInput(pos)
			fresh.PrincipalDebt = health.PrincipalDebt
			fresh.AccruedInterest = health.AccruedInterest
			fresh.ChainHealthFactor = health.HealthFactor
			fresh.LedgerOpen = health.Open
			if !domain.IsLiquidatable(fresh) {
				return fmt.Errorf("position %s recovered (hf %.4f): %w",
					offerID, domain.HealthFactor(fresh), domain.ErrStaleGuard)
			}
			mintAmount = fresh.DebtValue() * (1 + o.cfg.LiquidationBufferPct)
			return nil
		}},
		{id: "settle", label: "Settle off-chain", run: o.settle},
		{id: "mint", label: "Mint repayment tokens", run: func(ctx context.Context) error {
			_, err := o.minter.Mint(ctx, wallet.Address, mintAmount)
			return err
		}},
		{id: "approve", label: "Approve repayment", run: func(ctx context.Context) error {
			_, err := o.writer.Approve(ctx, userID, mintAmount)
			return err
		}},
		{id: "submit", label: "Submit liquidation", run: func(ctx context.Context) error {
			hash, err := o.writer.Liquidate(ctx, userID, pos.OnChainID, mintAmount)
			if err != nil {
				return err
			}
			st.txHash = hash
			return nil
		}},
		{id: "record", label: "Record liquidation", run: func(ctx context.Context) error {
			pos.LedgerOpen = false
			if err := o.store.SavePosition(ctx, pos); err != nil {
				return err
			}
			if !offer.Status.CanTransition(domain.StatusLiquidated) {
				return fmt.Errorf("offer %s cannot move %s → liquidated", offer.ID, offer.Status)
			}
			offer.Status = domain.StatusLiquidated
			return o.store.SaveOffer(ctx, offer)
		}},
	}
	return o.run(ctx, domain.ActionLiquidate, steps, st)
}

// riskInput assembles the risk inputs for a position from the cache.
func (o *Orchestrator) riskInput(pos domain.Position) domain.RiskInput {
	price, _ := o.cache.Price(pos.CollateralToken.Address)
	params := o.cache.Params(pos.CollateralToken.Address)
	return domain.RiskInput{
		CollateralAmount:  pos.CollateralAmount,
		Price:             price,
		PrincipalDebt:     pos.PrincipalDebt,
		AccruedInterest:   pos.AccruedInterest,
		LiquidationBps:    params.LiquidationBps,
		MaxLtvBps:         params.MaxLtvBps,
		ChainHealthFactor: pos.HealthFactor,
		LedgerOpen:        pos.LedgerOpen,
	}
}
