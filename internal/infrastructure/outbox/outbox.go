package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"
)

const componentOutbox = "outbox"

// ErrClosed is returned by Publish after Stop.
var ErrClosed = errors.New("outbox: bus stopped")

// Bus is an in-memory event bus. Events published after the settlement
// transaction commits are fanned out to subscribed workers. It is not durable.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]domoutbox.Handler
	closed    bool
	queue     chan domoutbox.Event
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc

	concurrency    int
	handlerTimeout time.Duration
	log            observability.Logger
	dispatched     observability.Counter // outbox_events_total{event,outcome}
}

type Option func(*Bus)

// WithQueueSize sets the buffered queue length.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan domoutbox.Event, n)
		}
	}
}

// WithConcurrency caps concurrent handlers per event.
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func NewBus(tel observability.Observability, opts ...Option) *Bus {
	if tel == nil {
		tel = observability.Nop()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		queue:          make(chan domoutbox.Event, 1024),
		done:           make(chan struct{}),
		concurrency:    8,
		handlerTimeout: 30 * time.Second,
		log:            tel.Logger().With(observability.F("component", componentOutbox)),
		dispatched:     tel.Metrics().Counter(observability.MOutboxEvents),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop drains queued events and waits for the dispatcher, or for ctx.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()

		started := b.cancel != nil
		if started {
			select {
			case <-b.done:
			case <-ctx.Done():
			}
			b.cancel()
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.queue:
			if !ok {
				return
			}
			b.fanout(ctx, e)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		b.dispatched.Add(1, observability.L("event", name), observability.L("outcome", "dropped"))
		return
	}

	ctx = logctx.With(context.WithoutCancel(ctx), logger)
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			outcome := "success"
			defer func() {
				if r := recover(); r != nil {
					outcome = "panic"
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				b.dispatched.Add(1, observability.L("event", name), observability.L("outcome", outcome))
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			if err := h(hctx, e); err != nil {
				outcome = "error"
				logger.Warn("event_handler_error", observability.F("error", err))
			}
		}()
	}
	wg.Wait()

	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}

// Tee publishes every event to each publisher in order and joins their errors.
type Tee []domoutbox.Publisher

func (t Tee) Publish(ctx context.Context, e domoutbox.Event) error {
	var errs []error
	for _, p := range t {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
