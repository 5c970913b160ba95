package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	ErrSessionNotFound = errors.New("payment: session not found")
	ErrNothingToPay    = errors.New("payment: no payable orders")
	ErrMixedCurrency   = errors.New("payment: orders use different currencies")
)

// SessionRequest is what the gateway needs to open a checkout session.
type SessionRequest struct {
	IdempotencyKey string
	OrderIDs       []string
	Amount         int64
	Currency       string
	CustomerEmail  string
}

type Session struct {
	ID             string
	IdempotencyKey string
	OrderIDs       []string
	Amount         int64
	Currency       string
	RedirectURL    string
	CreatedAt      time.Time
}

// Gateway is the external payment gateway. Implementations must honour the
// idempotency key.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type SessionStore interface {
	FindByKey(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// SessionKey derives the idempotency key from the order ids, independent of order.
func SessionKey(orderIDs []string) string {
	ids := append([]string(nil), orderIDs...)
	slices.Sort(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return "ps_" + hex.EncodeToString(sum[:16])
}
