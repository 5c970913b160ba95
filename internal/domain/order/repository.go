package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
)

type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	// Update persists the order and appends events in one write. It fails with
	// ErrConflict when the stored version moved since o was read.
	Update(ctx context.Context, o *Order, events ...AuditEvent) error
	// FindByIdempotency returns the orders a previous checkout with key created.
	FindByIdempotency(ctx context.Context, key string) ([]*Order, error)
	AuditTrail(ctx context.Context, orderID string) ([]AuditEvent, error)
}

// Tx is the unit of work the order assembler runs in. Inventory reads through
// Tx observe and lock the rows they return until the transaction ends.
type Tx interface {
	inventory.Oracle
	InsertOrder(ctx context.Context, o *Order) error
	// IncrementPromotionUsage fails with promotion.ErrUsageLimitReached when the
	// counter is already at its limit.
	IncrementPromotionUsage(ctx context.Context, ruleID string) error
	AppendAudit(ctx context.Context, e AuditEvent) error
}

// UnitOfWork runs fn atomically: when fn returns an error nothing it did persists.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
