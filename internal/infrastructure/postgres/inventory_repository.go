package postgres

import (
	"context"
	"database/sql"
	"fmt"

	dominventory "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
)

const (
	qSumAvailable = `SELECT COUNT(*), COALESCE(SUM(available), 0) FROM inventory_levels WHERE stock_key = $1`
	qUpsertLevel  = `INSERT INTO inventory_levels (stock_key, location_id, priority, available) VALUES ($1, $2, $3, $4) ` +
		`ON CONFLICT (stock_key, location_id) DO UPDATE SET priority = EXCLUDED.priority, available = EXCLUDED.available, updated_at = now()`
)

// GetAvailable is an unlocked read for pre-checks. Order creation re-reads under lock.
func (s *Store) GetAvailable(ctx context.Context, stockKey string) (int, error) {
	var locations int
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, qSumAvailable, stockKey).Scan(&locations, &total); err != nil {
		return 0, fmt.Errorf("postgres: available %s: %w", stockKey, err)
	}
	if locations == 0 {
		return 0, dominventory.ErrNotFound
	}
	return int(total.Int64), nil
}

func (s *Store) Reserve(ctx context.Context, stockKey string, quantity int) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx domorder.Tx) error {
		return tx.Reserve(ctx, stockKey, quantity)
	})
}

// UpsertLevel sets the stock held for stockKey at one location.
func (s *Store) UpsertLevel(ctx context.Context, l dominventory.Level) error {
	if l.Available < 0 {
		return dominventory.ErrInvalidQuantity
	}
	if _, err := s.db.ExecContext(ctx, qUpsertLevel, l.StockKey, l.LocationID, l.Priority, l.Available); err != nil {
		return fmt.Errorf("postgres: upsert level %s@%s: %w", l.StockKey, l.LocationID, err)
	}
	return nil
}
