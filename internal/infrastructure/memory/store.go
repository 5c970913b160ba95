package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	dominventory "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
)

// Store keeps orders, stock levels and promotion rules in one process. A single
// writer lock serialises transactions, so every read inside WithinTx sees the
// latest committed state and no other checkout can change it until commit.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	levels map[string][]dominventory.Level
	orders map[string]*domorder.Order
	byKey  map[string][]string // idempotency key -> order ids
	audit  map[string][]domorder.AuditEvent
	rules  map[string]*dompromo.Rule
	codes  map[string]string // normalised code -> rule id
}

func NewStore() *Store {
	return &Store{st: &state{
		levels: make(map[string][]dominventory.Level),
		orders: make(map[string]*domorder.Order),
		byKey:  make(map[string][]string),
		audit:  make(map[string][]domorder.AuditEvent),
		rules:  make(map[string]*dompromo.Rule),
		codes:  make(map[string]string),
	}}
}

// clone copies everything a transaction may write. Orders are immutable once
// stored, so the order map only needs a shallow copy.
func (s *state) clone() *state {
	next := &state{
		levels: make(map[string][]dominventory.Level, len(s.levels)),
		orders: maps.Clone(s.orders),
		byKey:  make(map[string][]string, len(s.byKey)),
		audit:  make(map[string][]domorder.AuditEvent, len(s.audit)),
		rules:  make(map[string]*dompromo.Rule, len(s.rules)),
		codes:  maps.Clone(s.codes),
	}
	for k, v := range s.levels {
		next.levels[k] = slices.Clone(v)
	}
	for k, v := range s.byKey {
		next.byKey[k] = slices.Clip(v)
	}
	for k, v := range s.audit {
		next.audit[k] = slices.Clip(v)
	}
	for k, r := range s.rules {
		copied := *r
		next.rules[k] = &copied
	}
	return next
}

// WithinTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domorder.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

type tx struct{ st *state }

func (t *tx) GetAvailable(ctx context.Context, stockKey string) (int, error) {
	_ = ctx
	levels, ok := t.st.levels[stockKey]
	if !ok {
		return 0, dominventory.ErrNotFound
	}
	return dominventory.Total(levels), nil
}

func (t *tx) Reserve(ctx context.Context, stockKey string, quantity int) error {
	_ = ctx
	levels := t.st.levels[stockKey]
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
		for i := range levels {
			if levels[i].LocationID == d.LocationID {
				if err := levels[i].Deduct(d.Quantity); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o *domorder.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return errMissingID
	}
	if _, exists := t.st.orders[o.ID]; exists {
		return domorder.ErrConflict
	}
	if key := o.IdempotencyKey; key != "" {
		if ids := t.st.byKey[key]; len(ids) > 0 && t.st.orders[ids[0]].CheckoutID != o.CheckoutID {
			return domorder.ErrConflict
		}
		t.st.byKey[key] = append(t.st.byKey[key], o.ID)
	}
	t.st.orders[o.ID] = o.Clone()
	return nil
}

func (t *tx) IncrementPromotionUsage(ctx context.Context, ruleID string) error {
	_ = ctx
	r, ok := t.st.rules[ruleID]
	if !ok {
		return dompromo.ErrNotFound
	}
	if r.UsageLimit != nil && r.UsageCount >= *r.UsageLimit {
		return dompromo.ErrUsageLimitReached
	}
	r.UsageCount++
	return nil
}

func (t *tx) AppendAudit(ctx context.Context, e domorder.AuditEvent) error {
	_ = ctx
	t.st.audit[e.OrderID] = append(t.st.audit[e.OrderID], e)
	return nil
}
