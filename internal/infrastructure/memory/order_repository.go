package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
)

var errMissingID = errors.New("order repository: id is required")

func (s *Store) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.st.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

// Update replaces the stored order and appends its audit events atomically.
// The write is rejected with ErrConflict unless order.Version matches the
// stored revision; on success order.Version is advanced.
func (s *Store) Update(ctx context.Context, order *domain.Order, events ...domain.AuditEvent) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return errMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.st.orders[order.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Version != order.Version {
		return fmt.Errorf("%w: order %s is at version %d, update read %d",
			domain.ErrConflict, order.ID, stored.Version, order.Version)
	}

	order.Version++
	s.st.orders[order.ID] = order.Clone()
	s.st.audit[order.ID] = append(slices.Clip(s.st.audit[order.ID]), events...)
	return nil
}

func (s *Store) FindByIdempotency(ctx context.Context, key string) ([]*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.st.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		if o, found := s.st.orders[id]; found {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *Store) AuditTrail(ctx context.Context, orderID string) ([]domain.AuditEvent, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.st.audit[orderID]), nil
}
