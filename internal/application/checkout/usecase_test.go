package checkout

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	appinventory "github.com/Zhima-Mochi/minishop-settlement/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-settlement/internal/application/order"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	appship "github.com/Zhima-Mochi/minishop-settlement/internal/application/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type countingRules struct {
	dompromo.Repository
	calls atomic.Int32
}

func (c *countingRules) ListAutomatic(ctx context.Context, now time.Time) ([]*dompromo.Rule, error) {
	c.calls.Add(1)
	return c.Repository.ListAutomatic(ctx, now)
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domoutbox.Event) error { return nil }

type ServiceSuite struct {
	suite.Suite
	store *memory.Store
	rules *countingRules
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.NewStore()
	s.Require().NoError(s.store.SeedLevel("p-a", "loc-1", 0, 10))
	s.Require().NoError(s.store.SeedLevel("p-b", "loc-1", 0, 10))
	s.Require().NoError(s.store.PutRule(&dompromo.Rule{
		ID: "ten", Name: "10% off", ValueType: dompromo.ValuePercentage,
		Value: decimal.NewFromInt(10), IsActive: true,
	}))

	catalog := memory.NewCatalog()
	catalog.SetMerchantDefault("M1", domship.Profile{ID: "m1", MerchantID: "M1", Countries: []string{"US", "CA"}})
	catalog.SetMerchantDefault("M2", domship.Profile{ID: "m2", MerchantID: "M2", Countries: []string{"US"}})

	rates := memory.NewRateTable()
	rates.Set("M1", "US",
		domship.Quote{MerchantID: "M1", ServiceName: "standard", PriceMinor: 500, Currency: "USD"},
		domship.Quote{MerchantID: "M1", ServiceName: "express", PriceMinor: 1500, Currency: "USD"},
	)
	rates.Set("M2", "US",
		domship.Quote{MerchantID: "M2", ServiceName: "standard", PriceMinor: 700, Currency: "USD"},
		domship.Quote{MerchantID: "M2", ServiceName: "express", PriceMinor: 2000, Currency: "USD"},
	)

	s.rules = &countingRules{Repository: s.store}
	ids := &seqIDs{}
	s.svc = NewService(
		appship.NewGate(catalog, nil, time.Second),
		appinventory.NewAvailabilityUseCase(s.store, nil, time.Second),
		apppromo.NewEvaluateUseCase(s.rules, nil),
		appship.NewOptionsUseCase(rates, nil, time.Second),
		apporder.NewCreateOrdersUseCase(s.store, s.store, ids, nopPublisher{}, nil, time.Second),
		ids,
		nil,
	)
}

func (s *ServiceSuite) cart() cart.Cart {
	return cart.Cart{ID: "cart-1", Lines: []cart.Line{
		{ID: "A", ListingID: "p-a", MerchantID: "M1", Quantity: 2, UnitPrice: 1000, Currency: "USD"},
		{ID: "B", ListingID: "p-b", MerchantID: "M2", Quantity: 1, UnitPrice: 5000, Currency: "USD"},
	}}
}

func (s *ServiceSuite) address(country string) cart.Address {
	return cart.Address{Line1: "1 Main St", City: "Springfield", Country: country}
}

func (s *ServiceSuite) TestQuoteTotals() {
	q, err := s.svc.Quote(context.Background(), QuoteInput{Cart: s.cart(), Customer: cart.Customer{ID: "c1"}, Country: "us"})
	s.Require().NoError(err)
	s.Equal(int64(7000), q.Subtotal)
	s.Equal(int64(700), q.Discount)
	s.Equal("standard", q.Shipping.Default.ServiceName)
	s.Equal(int64(1200), q.ShippingTotal)
	s.Equal(int64(7000-700+1200), q.Total)
	s.Empty(q.Shortages)
}

func (s *ServiceSuite) TestGateShortCircuitsBeforePromotions() {
	_, err := s.svc.Quote(context.Background(), QuoteInput{Cart: s.cart(), Country: "CA"})
	s.Require().ErrorIs(err, domship.ErrUnshippable)
	var ue *domship.UnshippableError
	s.Require().ErrorAs(err, &ue)
	s.Require().Len(ue.Lines, 1)
	s.Equal("B", ue.Lines[0].CartLineID)
	s.Zero(s.rules.calls.Load())
}

func (s *ServiceSuite) TestQuoteReportsShortagesWithoutFailing() {
	c := s.cart()
	c.Lines[1].Quantity = 11
	q, err := s.svc.Quote(context.Background(), QuoteInput{Cart: c, Country: "US"})
	s.Require().NoError(err)
	s.Require().Len(q.Shortages, 1)
	s.Equal("B", q.Shortages[0].LineID)
}

func (s *ServiceSuite) TestPlaceUsesRequestedService() {
	res, err := s.svc.Place(context.Background(), PlaceInput{
		Cart: s.cart(), Customer: cart.Customer{ID: "c1"}, Address: s.address("US"),
		ServiceName: "express", IdempotencyKey: "k-1",
	})
	s.Require().NoError(err)
	s.Equal("express", res.Selection.ServiceName)
	s.Require().Len(res.Orders.Orders, 2)
	s.Equal("id-1", res.Orders.CheckoutID)

	n, err := s.store.GetAvailable(context.Background(), "p-a")
	s.Require().NoError(err)
	s.Equal(8, n)
}

func (s *ServiceSuite) TestPlaceRejectsUnknownService() {
	_, err := s.svc.Place(context.Background(), PlaceInput{
		Cart: s.cart(), Address: s.address("US"), ServiceName: "overnight",
	})
	s.Require().ErrorIs(err, domship.ErrInvalidSelection)
}

func (s *ServiceSuite) TestPlaceReplaysIdempotencyKey() {
	in := PlaceInput{Cart: s.cart(), Address: s.address("US"), IdempotencyKey: "k-2"}
	first, err := s.svc.Place(context.Background(), in)
	s.Require().NoError(err)
	calls := s.rules.calls.Load()

	second, err := s.svc.Place(context.Background(), in)
	s.Require().NoError(err)
	s.True(second.Orders.Replayed)
	s.ElementsMatch(first.Orders.OrderIDs(), second.Orders.OrderIDs())
	s.Equal(calls, s.rules.calls.Load())
}

func (s *ServiceSuite) TestPlaceStockShortfallAborts() {
	c := s.cart()
	c.Lines[0].Quantity = 20
	_, err := s.svc.Place(context.Background(), PlaceInput{Cart: c, Address: s.address("US")})
	s.Require().ErrorIs(err, domorder.ErrTransactionAborted)
	n, err := s.store.GetAvailable(context.Background(), "p-b")
	s.Require().NoError(err)
	s.Equal(10, n)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
