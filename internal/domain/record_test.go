package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromCode(t *testing.T) {
	assert.Equal(t, StatusActive, StatusFromCode(ChainStatusActive))
	assert.Equal(t, StatusMatched, StatusFromCode(ChainStatusMatched))
	assert.Equal(t, StatusClosed, StatusFromCode(ChainStatusClosed))
	assert.Equal(t, StatusCancelled, StatusFromCode(ChainStatusCancelled))
	assert.Equal(t, StatusLiquidated, StatusFromCode(ChainStatusLiquidated))
}

func TestStatusFromCode_UnknownDegradesToActive(t *testing.T) {
	assert.Equal(t, StatusActive, StatusFromCode(99))
}
