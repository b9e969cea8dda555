package domain

import "time"

// OfferKind distinguishes the two sides of the book.
type OfferKind string

const (
	OfferBorrow OfferKind = "borrow"
	OfferLend   OfferKind = "lend"
)

// OfferStatus is the lifecycle state of an offer. Transitions are monotonic:
// active → matched|cancelled, matched → closed|liquidated. Everything else
// is terminal.
type OfferStatus string

const (
	StatusActive     OfferStatus = "active"
	StatusMatched    OfferStatus = "matched"
	StatusClosed     OfferStatus = "closed"
	StatusCancelled  OfferStatus = "cancelled"
	StatusLiquidated OfferStatus = "liquidated"
)

// Action names a user operation the orchestrator can run against an offer.
type Action string

const (
	ActionCreate        Action = "create"
	ActionEdit          Action = "edit"
	ActionCancel        Action = "cancel"
	ActionMatch         Action = "match"
	ActionAddCollateral Action = "add_collateral"
	ActionRepay         Action = "repay"
	ActionLiquidate     Action = "liquidate"
)

// Offer is an open order to borrow or lend. OnChainID is the authoritative
// identity; ID is the client-side handle assigned at creation.
type Offer struct {
	ID                  string
	OnChainID           uint64
	Kind                OfferKind
	CounterpartyAddress string
	CollateralToken     Token
	CollateralAmount    float64
	LoanAmount          float64
	InterestRateBps     int64
	MaturityDays        int
	EarlyRepayFeeBps    int64
	Status              OfferStatus
	CreatedAt           time.Time
	MatchedAt           *time.Time
}

// Terminal reports whether the status admits no further transitions.
func (s OfferStatus) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusLiquidated:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal status
// change. Local transitions are provisional until the next cache poll
// confirms them, but even provisional moves must be legal.
func (s OfferStatus) CanTransition(next OfferStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusMatched || next == StatusCancelled
	case StatusMatched:
		return next == StatusClosed || next == StatusLiquidated
	}
	return false
}

// AllowedActions returns the pipelines that may be started while the offer
// is in the given status. The orchestrator refuses anything else up front.
func AllowedActions(s OfferStatus) []Action {
	switch s {
	case StatusActive:
		return []Action{ActionEdit, ActionCancel, ActionMatch}
	case StatusMatched:
		return []Action{ActionAddCollateral, ActionRepay, ActionLiquidate}
	}
	return nil
}

// ActionAllowed reports whether the action is valid from the given status.
func ActionAllowed(s OfferStatus, a Action) bool {
	if a == ActionCreate {
		return true
	}
	for _, allowed := range AllowedActions(s) {
		if allowed == a {
			return true
		}
	}
	return false
}
