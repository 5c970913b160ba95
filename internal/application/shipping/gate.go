package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	shippingService       = "shipping-service"
	useCaseGate           = "shipping.gate"
	catalogPeer           = "catalog"
	defaultCatalogTimeout = 2 * time.Second
)

// Gate blocks carts that have any line the destination cannot receive.
type Gate struct {
	catalog domship.Catalog
	timeout time.Duration
	in      application.Instruments
}

func NewGate(catalog domship.Catalog, tel observability.Observability, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = defaultCatalogTimeout
	}
	return &Gate{catalog: catalog, timeout: timeout, in: application.NewInstruments(tel, shippingService)}
}

// Check returns the blocked lines; a non-empty result also yields an
// *UnshippableError so callers can stop the pipeline with one check.
func (g *Gate) Check(ctx context.Context, lines []cart.Line, country string) (blocked []domship.BlockedLine, err error) {
	ctx, run := g.in.Begin(ctx, useCaseGate, "ShippabilityGate",
		attribute.Int("cart.lines", len(lines)),
		attribute.String("destination.country", country),
	)
	defer func() { run.End(err) }()

	if len(country) != 2 {
		run.Fail("INVALID_COUNTRY")
		return nil, cart.Invalid("destination country must be an ISO 3166-1 alpha-2 code")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	for _, line := range lines {
		eg.Go(func() error {
			ok, reason, err := g.IsShippable(egctx, line, country)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				blocked = append(blocked, domship.BlockedLine{
					CartLineID: line.ID,
					ProductID:  line.ProductID(),
					MerchantID: line.MerchantID,
					Reason:     reason,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if werr := eg.Wait(); werr != nil {
		run.Fail("CATALOG_UNAVAILABLE")
		if errors.Is(werr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domship.ErrCatalogUnavailable, werr)
		}
		return nil, fmt.Errorf("shipping: profile lookup: %w", werr)
	}

	if len(blocked) == 0 {
		return nil, nil
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].CartLineID < blocked[j].CartLineID })
	run.Status("UNSHIPPABLE")
	run.With(observability.F("blocked_lines", len(blocked)))
	return blocked, &domship.UnshippableError{Country: country, Lines: blocked}
}

// IsShippable consults the product's own profile first and the merchant default
// profile second. A line with neither cannot ship anywhere.
func (g *Gate) IsShippable(ctx context.Context, line cart.Line, country string) (bool, string, error) {
	start := time.Now()
	profile, err := g.catalog.ProductProfile(ctx, line.ProductID())
	g.in.External(catalogPeer, "product_profile", start, err)
	if err != nil {
		return false, "", err
	}
	if profile == nil {
		start = time.Now()
		profile, err = g.catalog.GetShippingProfile(ctx, line.MerchantID)
		g.in.External(catalogPeer, "merchant_profile", start, err)
		if err != nil {
			return false, "", err
		}
	}
	if profile == nil {
		return false, "no shipping profile configured", nil
	}
	if !profile.Covers(country) {
		return false, fmt.Sprintf("does not ship to %s", country), nil
	}
	return true, "", nil
}
