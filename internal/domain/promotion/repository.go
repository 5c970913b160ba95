package promotion

import (
	"context"
	"time"
)

// Repository reads promotion rules. Usage counters are only written inside the
// order transaction.
type Repository interface {
	// ListAutomatic returns active rules without a code whose window contains now.
	ListAutomatic(ctx context.Context, now time.Time) ([]*Rule, error)
	// FindByCode returns ErrCodeNotFound unless an active rule carries the code.
	FindByCode(ctx context.Context, code string) (*Rule, error)
}
