package inventory

import (
	"context"
)

// Oracle reports and reserves stock summed across locations. Inside an order
// transaction both calls must observe and lock the current committed rows.
type Oracle interface {
	GetAvailable(ctx context.Context, stockKey string) (int, error)
	Reserve(ctx context.Context, stockKey string, quantity int) error
}
