package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"

	"github.com/shopspring/decimal"
)

const ruleColumns = `id, name, code, value_type, value, currency, eligibility, scope, ` +
	`min_purchase_amount, min_purchase_quantity, usage_limit, usage_count, ` +
	`starts_at, ends_at, is_active, created_at`

const (
	qListAutomatic = `SELECT ` + ruleColumns + ` FROM promotion_rules ` +
		`WHERE is_active AND code IS NULL AND (starts_at IS NULL OR starts_at <= $1) AND (ends_at IS NULL OR ends_at > $1) ` +
		`ORDER BY created_at, id`
	qFindByCode = `SELECT ` + ruleColumns + ` FROM promotion_rules WHERE code = $1 AND is_active`
	qUpsertRule = `INSERT INTO promotion_rules (` + ruleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) ` +
		`ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, code = EXCLUDED.code, value_type = EXCLUDED.value_type, ` +
		`value = EXCLUDED.value, currency = EXCLUDED.currency, eligibility = EXCLUDED.eligibility, scope = EXCLUDED.scope, ` +
		`min_purchase_amount = EXCLUDED.min_purchase_amount, min_purchase_quantity = EXCLUDED.min_purchase_quantity, ` +
		`usage_limit = EXCLUDED.usage_limit, starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at, is_active = EXCLUDED.is_active`
)

type eligibilityDoc struct {
	Kind      dompromo.EligibilityKind `json:"kind"`
	Customers []string                 `json:"customers,omitempty"`
}

type scopeDoc struct {
	Kind       dompromo.ScopeKind `json:"kind"`
	ProductIDs []string           `json:"product_ids,omitempty"`
}

func (s *Store) ListAutomatic(ctx context.Context, now time.Time) ([]*dompromo.Rule, error) {
	rows, err := s.db.QueryContext(ctx, qListAutomatic, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list automatic rules: %w", err)
	}
	defer rows.Close()

	var out []*dompromo.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) FindByCode(ctx context.Context, code string) (*dompromo.Rule, error) {
	code = dompromo.NormalizeCode(code)
	r, err := scanRule(s.db.QueryRowContext(ctx, qFindByCode, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", dompromo.ErrCodeNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find rule by code: %w", err)
	}
	return r, nil
}

// PutRule inserts or replaces a rule definition. The usage counter is left untouched.
func (s *Store) PutRule(ctx context.Context, r *dompromo.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	elig, err := json.Marshal(eligibilityDoc{Kind: r.Eligibility.Kind, Customers: r.Eligibility.Customers})
	if err != nil {
		return err
	}
	scope, err := json.Marshal(scopeDoc{Kind: r.Scope.Kind, ProductIDs: r.Scope.ProductIDs})
	if err != nil {
		return err
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, qUpsertRule,
		r.ID, r.Name, nullString(dompromo.NormalizeCode(r.Code)), string(r.ValueType), r.Value, r.Currency,
		elig, scope, nullInt64(r.MinPurchaseAmount), nullInt(r.MinPurchaseQuantity), nullInt(r.UsageLimit),
		r.UsageCount, nullTime(r.Window.StartsAt), nullTime(r.Window.EndsAt), r.IsActive, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: code %q already assigned: %w", r.Code, err)
		}
		return fmt.Errorf("postgres: put rule %s: %w", r.ID, err)
	}
	return nil
}

func scanRule(row interface{ Scan(...any) error }) (*dompromo.Rule, error) {
	var (
		r             dompromo.Rule
		code          sql.NullString
		valueType     string
		value         decimal.Decimal
		elig, scope   []byte
		minAmount     sql.NullInt64
		minQty, limit sql.NullInt32
		starts, ends  sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Name, &code, &valueType, &value, &r.Currency, &elig, &scope,
		&minAmount, &minQty, &limit, &r.UsageCount, &starts, &ends, &r.IsActive, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Code = strings.TrimSpace(code.String)
	r.ValueType = dompromo.ValueType(valueType)
	r.Value = value

	var ed eligibilityDoc
	if err := json.Unmarshal(elig, &ed); err != nil {
		return nil, fmt.Errorf("postgres: decode eligibility of %s: %w", r.ID, err)
	}
	r.Eligibility = dompromo.CustomerEligibility{Kind: ed.Kind, Customers: ed.Customers}
	var sd scopeDoc
	if err := json.Unmarshal(scope, &sd); err != nil {
		return nil, fmt.Errorf("postgres: decode scope of %s: %w", r.ID, err)
	}
	r.Scope = dompromo.TargetScope{Kind: sd.Kind, ProductIDs: sd.ProductIDs}

	if minAmount.Valid {
		r.MinPurchaseAmount = &minAmount.Int64
	}
	if minQty.Valid {
		n := int(minQty.Int32)
		r.MinPurchaseQuantity = &n
	}
	if limit.Valid {
		n := int(limit.Int32)
		r.UsageLimit = &n
	}
	if starts.Valid {
		r.Window.StartsAt = &starts.Time
	}
	if ends.Valid {
		r.Window.EndsAt = &ends.Time
	}
	return &r, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt32 {
	if p == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
