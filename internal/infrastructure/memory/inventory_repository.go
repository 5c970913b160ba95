package memory

import (
	"cmp"
	"context"
	"slices"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
)

// SeedLevel sets the stock of one location, replacing any previous value.
func (s *Store) SeedLevel(stockKey, locationID string, priority, available int) error {
	level, err := domain.NewLevel(stockKey, locationID, available)
	if err != nil {
		return err
	}
	level.Priority = priority

	s.mu.Lock()
	defer s.mu.Unlock()

	levels := slices.DeleteFunc(slices.Clone(s.st.levels[stockKey]), func(l domain.Level) bool {
		return l.LocationID == locationID
	})
	levels = append(levels, *level)
	slices.SortFunc(levels, func(a, b domain.Level) int { return cmp.Compare(a.LocationID, b.LocationID) })
	s.st.levels[stockKey] = levels
	return nil
}

// GetAvailable is the committed read used outside order transactions.
func (s *Store) GetAvailable(ctx context.Context, stockKey string) (int, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	levels, ok := s.st.levels[stockKey]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return domain.Total(levels), nil
}

// Levels returns a copy of the per-location stock for stockKey.
func (s *Store) Levels(stockKey string) []domain.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.levels[stockKey])
}

// Reserve deducts stock in its own transaction. Order creation reserves through
// the transaction handle instead.
func (s *Store) Reserve(ctx context.Context, stockKey string, quantity int) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx domorder.Tx) error {
		return tx.Reserve(ctx, stockKey, quantity)
	})
}
