package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
)

// PutRule stores or replaces a rule. Codes are kept in normalised form.
func (s *Store) PutRule(r *domain.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	copied := *r
	copied.Code = domain.NormalizeCode(r.Code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.st.rules[r.ID]; ok && prev.Code != "" {
		delete(s.st.codes, prev.Code)
	}
	s.st.rules[r.ID] = &copied
	if copied.Code != "" {
		s.st.codes[copied.Code] = copied.ID
	}
	return nil
}

func (s *Store) Rule(id string) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.st.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *Store) ListAutomatic(ctx context.Context, now time.Time) ([]*domain.Rule, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Rule, 0, len(s.st.rules))
	for _, r := range s.st.rules {
		if r.Coded() || !r.IsActive || !r.Window.Contains(now) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (*domain.Rule, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.st.codes[domain.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	r := s.st.rules[id]
	if !r.IsActive {
		return nil, domain.ErrCodeNotFound
	}
	copied := *r
	return &copied, nil
}
