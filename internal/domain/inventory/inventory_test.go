package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDeduct(t *testing.T) {
	l, err := NewLevel("v1", "wh-1", 3)
	require.NoError(t, err)
	require.NoError(t, l.Deduct(2))
	assert.Equal(t, 1, l.Available)
	assert.ErrorIs(t, l.Deduct(2), ErrInsufficientStock)
	assert.ErrorIs(t, l.Deduct(0), ErrInvalidQuantity)

	_, err = NewLevel("v1", "wh-1", -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlanSpreadsAcrossLocations(t *testing.T) {
	levels := []Level{
		{StockKey: "v1", LocationID: "b", Priority: 1, Available: 5},
		{StockKey: "v1", LocationID: "a", Priority: 0, Available: 2},
		{StockKey: "v1", LocationID: "c", Priority: 1, Available: 0},
	}
	plan, err := Plan(levels, 4)
	require.NoError(t, err)
	assert.Equal(t, []Deduction{{LocationID: "a", Quantity: 2}, {LocationID: "b", Quantity: 2}}, plan)

	_, err = Plan(levels, 8)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestInsufficientStockError(t *testing.T) {
	var err error = &InsufficientStockError{LineID: "B", StockKey: "v2", Requested: 3, Available: 1}
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	var target *InsufficientStockError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "B", target.LineID)
}
