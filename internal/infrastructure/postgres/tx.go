package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	dominventory "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
)

const (
	qLockLevels = `SELECT location_id, priority, available FROM inventory_levels WHERE stock_key = $1 ORDER BY priority, location_id FOR UPDATE`
	qDeduct     = `UPDATE inventory_levels SET available = available - $1, updated_at = now() WHERE stock_key = $2 AND location_id = $3 AND available >= $1`

	qClaimKey   = `INSERT INTO checkout_idempotency (idempotency_key, checkout_id) VALUES ($1, $2) ON CONFLICT (idempotency_key) DO NOTHING`
	qKeyOwner   = `SELECT checkout_id FROM checkout_idempotency WHERE idempotency_key = $1`
	qInsertLine = `INSERT INTO order_line_items (order_id, position, cart_line_id, listing_id, variant_id, quantity, unit_price, subtotal, discount_amount, promotion_id, options) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	qUseRule    = `UPDATE promotion_rules SET usage_count = usage_count + 1 WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`
	qRuleExists = `SELECT 1 FROM promotion_rules WHERE id = $1`

	qInsertAudit = `INSERT INTO order_audit_events (order_id, kind, payload, occurred_at) VALUES ($1, $2, $3, $4)`
)

var qInsertOrder = `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

type tx struct {
	q querier
}

func (t *tx) GetAvailable(ctx context.Context, stockKey string) (int, error) {
	levels, err := lockLevels(ctx, t.q, stockKey)
	if err != nil {
		return 0, err
	}
	if len(levels) == 0 {
		return 0, dominventory.ErrNotFound
	}
	return dominventory.Total(levels), nil
}

// Reserve deducts quantity across the locked levels of stockKey by priority.
func (t *tx) Reserve(ctx context.Context, stockKey string, quantity int) error {
	levels, err := lockLevels(ctx, t.q, stockKey)
	if err != nil {
		return err
	}
	plan, err := dominventory.Plan(levels, quantity)
	if err != nil {
		if errors.Is(err, dominventory.ErrInsufficientStock) {
			return &dominventory.InsufficientStockError{
				StockKey:  stockKey,
				Requested: quantity,
				Available: dominventory.Total(levels),
			}
		}
		return err
	}
	for _, d := range plan {
		res, err := t.q.ExecContext(ctx, qDeduct, d.Quantity, stockKey, d.LocationID)
		if err != nil {
			return fmt.Errorf("postgres: deduct %s@%s: %w", stockKey, d.LocationID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return &dominventory.InsufficientStockError{StockKey: stockKey, Requested: quantity, Available: dominventory.Total(levels)}
		}
	}
	return nil
}

func lockLevels(ctx context.Context, q querier, stockKey string) ([]dominventory.Level, error) {
	rows, err := q.QueryContext(ctx, qLockLevels, stockKey)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock levels %s: %w", stockKey, err)
	}
	defer rows.Close()

	var out []dominventory.Level
	for rows.Next() {
		l := dominventory.Level{StockKey: stockKey}
		if err := rows.Scan(&l.LocationID, &l.Priority, &l.Available); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *tx) InsertOrder(ctx context.Context, o *domorder.Order) error {
	if o == nil || o.ID == "" {
		return errMissingID
	}
	if key := o.IdempotencyKey; key != "" {
		if err := t.claimKey(ctx, key, o.CheckoutID); err != nil {
			return err
		}
	}

	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, qInsertOrder, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s: %w", domorder.ErrConflict, o.ID, err)
		}
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	for i, li := range o.LineItems {
		opts, err := encodeOptions(li.Options)
		if err != nil {
			return err
		}
		if _, err := t.q.ExecContext(ctx, qInsertLine,
			o.ID, i, li.CartLineID, li.ListingID, li.VariantID, li.Quantity,
			li.UnitPrice, li.Subtotal, li.DiscountAmount, li.PromotionID, opts,
		); err != nil {
			return fmt.Errorf("postgres: insert line %s/%s: %w", o.ID, li.CartLineID, err)
		}
	}
	return nil
}

// claimKey binds key to checkoutID. A key already bound to another checkout conflicts.
func (t *tx) claimKey(ctx context.Context, key, checkoutID string) error {
	if _, err := t.q.ExecContext(ctx, qClaimKey, key, checkoutID); err != nil {
		return fmt.Errorf("postgres: claim idempotency key: %w", err)
	}
	var owner string
	if err := t.q.QueryRowContext(ctx, qKeyOwner, key).Scan(&owner); err != nil {
		return fmt.Errorf("postgres: read idempotency key: %w", err)
	}
	if owner != checkoutID {
		return fmt.Errorf("%w: idempotency key used by checkout %s", domorder.ErrConflict, owner)
	}
	return nil
}

// IncrementPromotionUsage re-checks the limit in the same statement that bumps the counter.
func (t *tx) IncrementPromotionUsage(ctx context.Context, ruleID string) error {
	res, err := t.q.ExecContext(ctx, qUseRule, ruleID)
	if err != nil {
		return fmt.Errorf("postgres: increment usage %s: %w", ruleID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var one int
	switch err := t.q.QueryRowContext(ctx, qRuleExists, ruleID).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", dompromo.ErrNotFound, ruleID)
	case err != nil:
		return fmt.Errorf("postgres: read rule %s: %w", ruleID, err)
	}
	return fmt.Errorf("%w: %s", dompromo.ErrUsageLimitReached, ruleID)
}

func (t *tx) AppendAudit(ctx context.Context, e domorder.AuditEvent) error {
	return appendAudit(ctx, t.q, e)
}

func appendAudit(ctx context.Context, q querier, e domorder.AuditEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("postgres: encode audit event: %w", err)
	}
	if _, err := q.ExecContext(ctx, qInsertAudit, e.OrderID, string(e.Kind), payload, e.OccurredAt); err != nil {
		return fmt.Errorf("postgres: append audit %s: %w", e.OrderID, err)
	}
	return nil
}
