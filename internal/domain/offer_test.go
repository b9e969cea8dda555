package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfferStatus_LegalTransitions(t *testing.T) {
	assert.True(t, StatusActive.CanTransition(StatusMatched))
	assert.True(t, StatusActive.CanTransition(StatusCancelled))
	assert.True(t, StatusMatched.CanTransition(StatusClosed))
	assert.True(t, StatusMatched.CanTransition(StatusLiquidated))
}

func TestOfferStatus_IllegalTransitions(t *testing.T) {
	assert.False(t, StatusActive.CanTransition(StatusClosed))
	assert.False(t, StatusActive.CanTransition(StatusLiquidated))
	assert.False(t, StatusMatched.CanTransition(StatusActive))
	assert.False(t, StatusMatched.CanTransition(StatusCancelled))
}

func TestOfferStatus_TerminalStatesAdmitNothing(t *testing.T) {
	all := []OfferStatus{StatusActive, StatusMatched, StatusClosed, StatusCancelled, StatusLiquidated}
	for _, terminal := range []OfferStatus{StatusClosed, StatusCancelled, StatusLiquidated} {
		assert.True(t, terminal.Terminal())
		for _, next := range all {
			assert.False(t, terminal.CanTransition(next),
				"%s must never leave terminal state (tried %s)", terminal, next)
		}
	}
}

func TestActionAllowed_ByStatus(t *testing.T) {
	assert.True(t, ActionAllowed(StatusActive, ActionCancel))
	assert.True(t, ActionAllowed(StatusActive, ActionMatch))
	assert.True(t, ActionAllowed(StatusMatched, ActionRepay))
	assert.True(t, ActionAllowed(StatusMatched, ActionLiquidate))

	assert.False(t, ActionAllowed(StatusActive, ActionRepay))
	assert.False(t, ActionAllowed(StatusMatched, ActionCancel))
	assert.False(t, ActionAllowed(StatusClosed, ActionRepay))
	assert.False(t, ActionAllowed(StatusCancelled, ActionMatch))
}

func TestActionAllowed_CreateAlwaysAllowed(t *testing.T) {
	assert.True(t, ActionAllowed(StatusClosed, ActionCreate))
}
