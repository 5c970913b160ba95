package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
)

var errMissingID = errors.New("postgres: order id is required")

const orderColumns = `id, checkout_id, merchant_id, customer_id, customer_email, currency, ` +
	`subtotal, discount_amount, shipping_amount, tax_amount, total_amount, ` +
	`shipping_service, shipping_address, notes, payment_status, fulfillment_status, ` +
	`status, workflow_status, hold_reason, idempotency_key, version, created_at, updated_at`

const (
	qGetOrder    = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	qGetLines    = `SELECT cart_line_id, listing_id, variant_id, quantity, unit_price, subtotal, discount_amount, promotion_id, options FROM order_line_items WHERE order_id = $1 ORDER BY position`
	qOrdersByKey = `SELECT id FROM orders WHERE idempotency_key = $1 ORDER BY merchant_id, id`
	qUpdateOrder = `UPDATE orders SET payment_status = $2, fulfillment_status = $3, status = $4, workflow_status = $5, hold_reason = $6, updated_at = $7, version = version + 1 WHERE id = $1 AND version = $8`
	qOrderExists = `SELECT 1 FROM orders WHERE id = $1`
	qAuditTrail  = `SELECT payload FROM order_audit_events WHERE order_id = $1 ORDER BY seq`
)

func orderArgs(o *domorder.Order) ([]any, error) {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode address: %w", err)
	}
	return []any{
		o.ID, o.CheckoutID, o.MerchantID, o.CustomerID, o.CustomerEmail, o.Currency,
		o.Subtotal, o.DiscountAmount, o.ShippingAmount, o.TaxAmount, o.TotalAmount,
		o.ShippingService, addr, o.Notes, string(o.PaymentStatus), string(o.FulfillmentStatus),
		string(o.Status), string(o.WorkflowStatus), o.HoldReason, nullString(o.IdempotencyKey),
		o.Version, o.CreatedAt, o.UpdatedAt,
	}, nil
}

// lineOption is the stored shape of one selected variant option.
type lineOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeOptions(opts cart.VariantOptions) ([]byte, error) {
	out := make([]lineOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, lineOption{Name: o.Name, Value: o.Value})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode options: %w", err)
	}
	return b, nil
}

func decodeOptions(b []byte) (cart.VariantOptions, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var stored []lineOption
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("postgres: decode options: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}
	opts := make(cart.VariantOptions, 0, len(stored))
	for _, o := range stored {
		opts = append(opts, cart.Option{Name: o.Name, Value: o.Value})
	}
	return opts, nil
}

func scanOrder(row interface{ Scan(...any) error }) (*domorder.Order, error) {
	var (
		o                                  domorder.Order
		addr                               []byte
		payment, fulfillment, status, flow string
		key                                sql.NullString
	)
	if err := row.Scan(
		&o.ID, &o.CheckoutID, &o.MerchantID, &o.CustomerID, &o.CustomerEmail, &o.Currency,
		&o.Subtotal, &o.DiscountAmount, &o.ShippingAmount, &o.TaxAmount, &o.TotalAmount,
		&o.ShippingService, &addr, &o.Notes, &payment, &fulfillment,
		&status, &flow, &o.HoldReason, &key, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var a cart.Address
	if err := json.Unmarshal(addr, &a); err != nil {
		return nil, fmt.Errorf("postgres: decode address: %w", err)
	}
	o.ShippingAddress = a
	o.PaymentStatus = domorder.PaymentStatus(payment)
	o.FulfillmentStatus = domorder.FulfillmentStatus(fulfillment)
	o.Status = domorder.Status(status)
	o.WorkflowStatus = domorder.WorkflowStatus(flow)
	o.IdempotencyKey = key.String
	return &o, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domorder.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, qGetOrder, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domorder.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, qGetLines, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get lines %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			li   domorder.LineItem
			opts []byte
		)
		if err := rows.Scan(&li.CartLineID, &li.ListingID, &li.VariantID, &li.Quantity,
			&li.UnitPrice, &li.Subtotal, &li.DiscountAmount, &li.PromotionID, &opts); err != nil {
			return nil, err
		}
		if li.Options, err = decodeOptions(opts); err != nil {
			return nil, err
		}
		o.LineItems = append(o.LineItems, li)
	}
	return o, rows.Err()
}

// Update writes the order's status fields and appends events in one
// transaction. The row must still be at o.Version; a concurrent writer turns
// the update into ErrConflict.
func (s *Store) Update(ctx context.Context, o *domorder.Order, events ...domorder.AuditEvent) error {
	if o == nil || o.ID == "" {
		return errMissingID
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	res, err := sqlTx.ExecContext(ctx, qUpdateOrder, o.ID,
		string(o.PaymentStatus), string(o.FulfillmentStatus), string(o.Status),
		string(o.WorkflowStatus), o.HoldReason, o.UpdatedAt, o.Version)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		switch err := sqlTx.QueryRowContext(ctx, qOrderExists, o.ID).Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: %s", domorder.ErrNotFound, o.ID)
		case err != nil:
			return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
		}
		return fmt.Errorf("%w: order %s changed since version %d", domorder.ErrConflict, o.ID, o.Version)
	}
	for _, e := range events {
		if err := appendAudit(ctx, sqlTx, e); err != nil {
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	o.Version++
	return nil
}

func (s *Store) FindByIdempotency(ctx context.Context, key string) ([]*domorder.Order, error) {
	if key == "" {
		return nil, domorder.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, qOrdersByKey, key)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by idempotency: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, domorder.ErrNotFound
	}

	out := make([]*domorder.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) AuditTrail(ctx context.Context, orderID string) ([]domorder.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, qAuditTrail, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit trail %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domorder.AuditEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e domorder.AuditEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("postgres: decode audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
