package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	appinventory "github.com/Zhima-Mochi/minishop-settlement/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-settlement/internal/application/order"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	appship "github.com/Zhima-Mochi/minishop-settlement/internal/application/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	checkoutService = "checkout-service"
	useCaseQuote    = "checkout.quote"
	useCasePlace    = "checkout.place"
)

type IDGenerator interface {
	NewID() string
}

type QuoteInput struct {
	Cart     cart.Cart
	Customer cart.Customer
	Code     string
	Country  string
}

// Quote is everything the buyer sees before placing the order.
type Quote struct {
	Promotions    *apppromo.EvaluateResult
	Shipping      domship.Options
	Shortages     []appinventory.Shortage
	Subtotal      int64
	Discount      int64
	ShippingTotal int64
	Total         int64
	Currency      string
}

type PlaceInput struct {
	CheckoutID     string
	Cart           cart.Cart
	Customer       cart.Customer
	Code           string
	Address        cart.Address
	ServiceName    string
	Notes          string
	TaxByMerchant  map[string]int64
	IdempotencyKey string
}

type PlaceResult struct {
	Orders    *apporder.CreateOrdersResult
	Quote     *Quote
	Selection domship.Selection
}

// Service runs the settlement pipeline. The shippability gate always runs
// first and stops the pipeline before any promotion or order work.
type Service struct {
	gate       *appship.Gate
	stock      *appinventory.AvailabilityUseCase
	promotions *apppromo.EvaluateUseCase
	shipping   *appship.OptionsUseCase
	orders     *apporder.CreateOrdersUseCase
	ids        IDGenerator

	in     application.Instruments
	stages observability.Counter // checkout_stage_total{stage,outcome}
}

func NewService(
	gate *appship.Gate,
	stock *appinventory.AvailabilityUseCase,
	promotions *apppromo.EvaluateUseCase,
	shipping *appship.OptionsUseCase,
	orders *apporder.CreateOrdersUseCase,
	ids IDGenerator,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		gate:       gate,
		stock:      stock,
		promotions: promotions,
		shipping:   shipping,
		orders:     orders,
		ids:        ids,
		in:         application.NewInstruments(tel, checkoutService),
		stages:     tel.Metrics().Counter(observability.MCheckoutStages),
	}
}

func (s *Service) Quote(ctx context.Context, cmd QuoteInput) (_ *Quote, err error) {
	ctx, run := s.in.Begin(ctx, useCaseQuote, "Quote",
		attribute.Int("cart.lines", len(cmd.Cart.Lines)),
		attribute.String("destination.country", cmd.Country),
	)
	defer func() { run.End(err) }()

	q, err := s.quote(ctx, cmd)
	if err != nil {
		run.Fail(failureStatus(err))
		return nil, err
	}
	run.With(observability.F("total", q.Total))
	return q, nil
}

func (s *Service) quote(ctx context.Context, cmd QuoteInput) (*Quote, error) {
	if err := cmd.Cart.Validate(); err != nil {
		return nil, err
	}
	country := strings.ToUpper(cmd.Country)
	if _, err := s.gate.Check(ctx, cmd.Cart.Lines, country); err != nil {
		s.stage("gate", err)
		return nil, err
	}
	s.stage("gate", nil)

	q := &Quote{Subtotal: cmd.Cart.Subtotal(), Currency: cmd.Cart.Currency()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.promotions.Execute(gctx, apppromo.EvaluateInput{Cart: cmd.Cart, Customer: cmd.Customer, Code: cmd.Code})
		s.stage("promotions", err)
		q.Promotions = res
		return err
	})
	g.Go(func() error {
		opts, err := s.shipping.Execute(gctx, appship.OptionsInput{Cart: cmd.Cart, Country: country})
		s.stage("shipping", err)
		q.Shipping = opts
		return err
	})
	if s.stock != nil {
		// Advisory only; the assembler re-checks stock under lock.
		g.Go(func() error {
			short, err := s.stock.Execute(gctx, cmd.Cart.Lines)
			s.stage("stock", err)
			q.Shortages = short
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	q.Discount = q.Promotions.Resolution.TotalAmount
	q.ShippingTotal = q.Shipping.Default.TotalPrice
	q.Total = q.Subtotal - q.Discount + q.ShippingTotal
	return q, nil
}

// Place settles the cart and creates the orders. Replays of an idempotency key
// return the first result without re-running the pipeline.
func (s *Service) Place(ctx context.Context, cmd PlaceInput) (_ *PlaceResult, err error) {
	ctx, run := s.in.Begin(ctx, useCasePlace, "Place",
		attribute.Int("cart.lines", len(cmd.Cart.Lines)),
		attribute.String("shipping.requested", cmd.ServiceName),
	)
	defer func() { run.End(err) }()

	if replay, ok, rerr := s.orders.Replay(ctx, cmd.IdempotencyKey); rerr != nil {
		run.Fail("IDEMPOTENCY_LOOKUP_FAILED")
		return nil, rerr
	} else if ok {
		run.Status("IDEMPOTENT_REPLAY")
		return &PlaceResult{Orders: replay}, nil
	}

	if err := cmd.Address.Validate(); err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, err
	}

	q, err := s.quote(ctx, QuoteInput{Cart: cmd.Cart, Customer: cmd.Customer, Code: cmd.Code, Country: cmd.Address.Country})
	if err != nil {
		run.Fail(failureStatus(err))
		return nil, err
	}

	sel, err := appship.Select(q.Shipping, cmd.ServiceName)
	if err != nil {
		run.Fail(failureStatus(err))
		return nil, err
	}

	checkoutID := cmd.CheckoutID
	if checkoutID == "" {
		checkoutID = s.ids.NewID()
	}
	created, err := s.orders.Execute(ctx, apporder.CreateOrdersInput{
		CheckoutID:     checkoutID,
		Cart:           cmd.Cart,
		Resolution:     q.Promotions.Resolution,
		Selection:      sel,
		Customer:       cmd.Customer,
		Address:        cmd.Address,
		Notes:          cmd.Notes,
		TaxByMerchant:  cmd.TaxByMerchant,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	s.stage("orders", err)
	if err != nil {
		run.Fail(failureStatus(err))
		return nil, err
	}

	run.With(
		observability.F("checkout_id", checkoutID),
		observability.F("order_ids", created.OrderIDs()),
	)
	return &PlaceResult{Orders: created, Quote: q, Selection: sel}, nil
}

func (s *Service) stage(name string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.stages.Add(1, observability.L("stage", name), observability.L("outcome", outcome))
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, cart.ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, domship.ErrUnshippable):
		return "UNSHIPPABLE"
	case errors.Is(err, domship.ErrMerchantUnquoted):
		return "MERCHANT_UNQUOTED"
	case errors.Is(err, domship.ErrNoValidShippingOption):
		return "NO_VALID_OPTION"
	case errors.Is(err, domship.ErrRatesUnavailable), errors.Is(err, domship.ErrCatalogUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, domship.ErrInvalidSelection):
		return "INVALID_SELECTION"
	case errors.Is(err, apppromo.ErrRulesUnavailable):
		return "RULES_UNAVAILABLE"
	case errors.Is(err, domorder.ErrTransactionAborted):
		return "TRANSACTION_ABORTED"
	default:
		return "FAILED"
	}
}
