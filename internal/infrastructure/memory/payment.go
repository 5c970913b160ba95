package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *SessionStore) FindByKey(ctx context.Context, key string) (*domain.Session, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Save keeps the first session stored under a key.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.IdempotencyKey]; !ok {
		s.sessions[sess.IdempotencyKey] = cloneSession(sess)
	}
	return nil
}

func cloneSession(s *domain.Session) *domain.Session {
	clone := *s
	clone.OrderIDs = append([]string(nil), s.OrderIDs...)
	return &clone
}

// Gateway is a local stand-in for the hosted payment page. It honours the
// idempotency key the way real gateways do.
type Gateway struct {
	mu       sync.Mutex
	baseURL  string
	sessions map[string]*domain.Session
	calls    int
}

func NewGateway(baseURL string) *Gateway {
	return &Gateway{baseURL: baseURL, sessions: make(map[string]*domain.Session)}
}

func (g *Gateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if s, ok := g.sessions[req.IdempotencyKey]; ok {
		return cloneSession(s), nil
	}
	id := fmt.Sprintf("cs_%d", len(g.sessions)+1)
	s := &domain.Session{
		ID:             id,
		IdempotencyKey: req.IdempotencyKey,
		OrderIDs:       append([]string(nil), req.OrderIDs...),
		Amount:         req.Amount,
		Currency:       req.Currency,
		RedirectURL:    g.baseURL + "/pay/" + id,
		CreatedAt:      time.Now().UTC(),
	}
	g.sessions[req.IdempotencyKey] = s
	return cloneSession(s), nil
}

// Calls reports how many CreateSession requests reached the gateway.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
