package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictError(t *testing.T) {
	err := &ConflictError{LotID: "lot-1", Requested: 10, Available: 3}
	assert.EqualValues(t, 7, err.Shortfall())
	assert.Contains(t, err.Error(), "lot-1")

	wrapped := fmt.Errorf("reserve: %w", err)
	var conflict *ConflictError
	require.True(t, errors.As(wrapped, &conflict))
	assert.Equal(t, "lot-1", conflict.LotID)
}

func TestSentinelWrapping(t *testing.T) {
	err := fmt.Errorf("order abc is FAILED: %w", ErrOrderNotPending)
	assert.True(t, errors.Is(err, ErrOrderNotPending))
	assert.False(t, errors.Is(err, ErrNotFound))
}
