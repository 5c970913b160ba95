package payment

import "time"

// SessionCreatedEvent is emitted once per new gateway session.
type SessionCreatedEvent struct {
	SessionID  string
	OrderIDs   []string
	Amount     int64
	Currency   string
	OccurredAt time.Time
}

func (SessionCreatedEvent) EventName() string  { return "payment.session_created" }
func (e SessionCreatedEvent) EventKey() string { return e.SessionID }

// CapturedEvent is the gateway callback for a successful capture.
type CapturedEvent struct {
	SessionID  string
	OrderIDs   []string
	OccurredAt time.Time
}

func (CapturedEvent) EventName() string  { return "payment.captured" }
func (e CapturedEvent) EventKey() string { return e.SessionID }

func NewCapturedEvent(s *Session) CapturedEvent {
	return CapturedEvent{
		SessionID:  s.ID,
		OrderIDs:   append([]string(nil), s.OrderIDs...),
		OccurredAt: time.Now().UTC(),
	}
}
