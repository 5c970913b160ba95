package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	dompay "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"

	goredis "github.com/redis/go-redis/v9"
)

// SessionStore keeps payment sessions by idempotency key. Save uses SETNX so a
// concurrent second writer never replaces the first session.
type SessionStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewSessionStore(client goredis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: "settlement:payment_session"}
}

func (s *SessionStore) key(k string) string { return s.prefix + ":" + k }

func (s *SessionStore) FindByKey(ctx context.Context, key string) (*dompay.Session, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, dompay.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session: %w", err)
	}
	var sess dompay.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("redis: decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *dompay.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: encode session: %w", err)
	}
	if err := s.client.SetNX(ctx, s.key(sess.IdempotencyKey), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: save session: %w", err)
	}
	return nil
}
