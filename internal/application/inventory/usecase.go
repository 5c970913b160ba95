package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	inventoryService     = "inventory-service"
	useCaseAvailability  = "inventory.availability"
	oraclePeer           = "inventory_oracle"
	defaultOracleTimeout = 2 * time.Second
	availabilitySpanName = "CheckAvailability"
)

// ErrUnavailable is returned when stock lookups time out; callers may retry.
var ErrUnavailable = errors.New("inventory: stock lookup unavailable, retry")

// Shortage is a line the current committed stock cannot cover.
type Shortage struct {
	LineID    string
	StockKey  string
	Requested int
	Available int
}

// AvailabilityUseCase is the read-only stock pre-check shown at quote time. It
// never reserves; the order transaction re-reads stock before committing.
type AvailabilityUseCase struct {
	oracle  dominv.Oracle
	timeout time.Duration
	in      application.Instruments
}

func NewAvailabilityUseCase(oracle dominv.Oracle, tel observability.Observability, timeout time.Duration) *AvailabilityUseCase {
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	return &AvailabilityUseCase{oracle: oracle, timeout: timeout, in: application.NewInstruments(tel, inventoryService)}
}

func (uc *AvailabilityUseCase) Execute(ctx context.Context, lines []cart.Line) (_ []Shortage, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseAvailability, availabilitySpanName,
		attribute.Int("cart.lines", len(lines)),
	)
	defer func() { run.End(err) }()

	needed := make(map[string]int)
	for _, l := range lines {
		needed[l.StockKey()] += l.Quantity
	}

	lookupCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var mu sync.Mutex
	available := make(map[string]int, len(needed))
	g, gctx := errgroup.WithContext(lookupCtx)
	for key := range needed {
		g.Go(func() error {
			start := time.Now()
			n, err := uc.oracle.GetAvailable(gctx, key)
			uc.in.External(oraclePeer, "get_available", start, err)
			if err != nil && !errors.Is(err, dominv.ErrNotFound) {
				return fmt.Errorf("stock %s: %w", key, err)
			}
			mu.Lock()
			available[key] = n
			mu.Unlock()
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		run.Fail("ORACLE_UNAVAILABLE")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, werr)
	}

	var shortages []Shortage
	running := make(map[string]int)
	for _, l := range lines {
		key := l.StockKey()
		running[key] += l.Quantity
		if running[key] > available[key] {
			shortages = append(shortages, Shortage{
				LineID:    l.ID,
				StockKey:  key,
				Requested: running[key],
				Available: available[key],
			})
		}
	}
	sort.Slice(shortages, func(i, j int) bool { return shortages[i].LineID < shortages[j].LineID })
	if len(shortages) > 0 {
		run.Status("SHORTAGE")
		run.With(observability.F("short_lines", len(shortages)))
	}
	return shortages, nil
}
