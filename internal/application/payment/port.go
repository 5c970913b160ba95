package payment

import (
	"context"

	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
)

// OrderReader is the slice of the order repository payment needs.
type OrderReader interface {
	Get(ctx context.Context, id string) (*domorder.Order, error)
}
