package shipping

import (
	"context"
	"errors"
	"fmt"
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
	useCaseOptions      = "shipping.options"
	ratesPeer           = "carrier_rates"
	defaultRatesTimeout = 3 * time.Second
)

type OptionsInput struct {
	Cart    cart.Cart
	Country string
}

// OptionsUseCase quotes every contributing merchant and consolidates the result.
type OptionsUseCase struct {
	rates   domship.RateProvider
	timeout time.Duration
	in      application.Instruments
}

func NewOptionsUseCase(rates domship.RateProvider, tel observability.Observability, timeout time.Duration) *OptionsUseCase {
	if timeout <= 0 {
		timeout = defaultRatesTimeout
	}
	return &OptionsUseCase{rates: rates, timeout: timeout, in: application.NewInstruments(tel, shippingService)}
}

func (uc *OptionsUseCase) Execute(ctx context.Context, cmd OptionsInput) (_ domship.Options, err error) {
	merchants := cmd.Cart.Merchants()
	ctx, run := uc.in.Begin(ctx, useCaseOptions, "GetShippingOptions",
		attribute.Int("cart.merchants", len(merchants)),
		attribute.String("destination.country", cmd.Country),
	)
	defer func() { run.End(err) }()

	if err := cmd.Cart.Validate(); err != nil {
		run.Fail("CART_INVALID")
		return domship.Options{}, err
	}

	quotes, err := uc.fetch(ctx, merchants, cmd.Country)
	if err != nil {
		run.Fail("RATES_UNAVAILABLE")
		return domship.Options{}, err
	}

	currency := cmd.Cart.Currency()
	for m, qs := range quotes {
		kept := make([]domship.Quote, 0, len(qs))
		for _, q := range qs {
			if q.Currency == currency {
				kept = append(kept, q)
			}
		}
		quotes[m] = kept
	}

	opts, err := Consolidate(merchants, quotes, cmd.Country)
	if err != nil {
		var unquoted *domship.UnquotedError
		switch {
		case errors.As(err, &unquoted):
			run.Fail("MERCHANT_UNQUOTED")
			run.With(observability.F("unquoted_merchants", unquoted.Merchants))
		default:
			run.Fail("NO_VALID_OPTION")
		}
		return domship.Options{}, err
	}

	run.With(
		observability.F("candidates", len(opts.Candidates)),
		observability.F("default_service", opts.Default.ServiceName),
	)
	return opts, nil
}

// Select returns the candidate named serviceName, or the default when empty.
func Select(opts domship.Options, serviceName string) (domship.Selection, error) {
	if serviceName == "" {
		if opts.Default.ServiceName == "" {
			return domship.Selection{}, domship.ErrNoValidShippingOption
		}
		return opts.Default, nil
	}
	return opts.Find(serviceName)
}

func (uc *OptionsUseCase) fetch(ctx context.Context, merchants []string, country string) (map[string][]domship.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var mu sync.Mutex
	out := make(map[string][]domship.Quote, len(merchants))
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range merchants {
		g.Go(func() error {
			start := time.Now()
			qs, err := uc.rates.GetRates(gctx, m, country)
			uc.in.External(ratesPeer, "get_rates", start, err)
			if err != nil {
				return fmt.Errorf("merchant %s: %w", m, err)
			}
			mu.Lock()
			out[m] = qs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// any failed or slow carrier makes the whole quote unusable
		return nil, fmt.Errorf("%w: %w", domship.ErrRatesUnavailable, err)
	}
	return out, nil
}
