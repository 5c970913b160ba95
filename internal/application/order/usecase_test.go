package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dominventory "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("ord-%d", s.n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type CreateOrdersSuite struct {
	suite.Suite
	store *memory.Store
	pub   *recordingPublisher
	uc    *CreateOrdersUseCase
}

func (s *CreateOrdersSuite) SetupTest() {
	s.store = memory.NewStore()
	s.Require().NoError(s.store.SeedLevel("v-a", "loc-1", 0, 5))
	s.Require().NoError(s.store.SeedLevel("p-b", "loc-1", 0, 1))
	limit := 10
	s.Require().NoError(s.store.PutRule(&dompromo.Rule{
		ID: "ten", Name: "10% off everything", ValueType: dompromo.ValuePercentage,
		Value: decimal.NewFromInt(10), UsageLimit: &limit, IsActive: true,
	}))
	s.pub = &recordingPublisher{}
	s.uc = NewCreateOrdersUseCase(s.store, s.store, &seqIDs{}, s.pub, nil, 0)
}

func (s *CreateOrdersSuite) input() CreateOrdersInput {
	return CreateOrdersInput{
		CheckoutID: "chk-1",
		Cart: cart.Cart{ID: "cart-1", Lines: []cart.Line{
			{ID: "A", ListingID: "p-a", VariantID: "v-a", MerchantID: "M1", Quantity: 2, UnitPrice: 1000, Currency: "USD"},
			{ID: "B", ListingID: "p-b", MerchantID: "M2", Quantity: 1, UnitPrice: 5000, Currency: "USD"},
		}},
		Resolution: dompromo.Resolution{
			Allocations: []dompromo.Allocation{
				{CartLineID: "A", PromotionID: "ten", Amount: 200},
				{CartLineID: "B", PromotionID: "ten", Amount: 500},
			},
			TotalAmount: 700,
		},
		Selection: domship.Selection{
			ServiceName:      "standard",
			PerMerchantPrice: map[string]int64{"M1": 500, "M2": 700},
			Currency:         "USD",
			TotalPrice:       1200,
		},
		Customer:      cart.Customer{ID: "c1", Email: "c1@example.com"},
		Address:       cart.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
		TaxByMerchant: map[string]int64{"M2": 100},
	}
}

func (s *CreateOrdersSuite) available(key string) int {
	n, err := s.store.GetAvailable(context.Background(), key)
	s.Require().NoError(err)
	return n
}

func (s *CreateOrdersSuite) usage() int {
	r, err := s.store.Rule("ten")
	s.Require().NoError(err)
	return r.UsageCount
}

func (s *CreateOrdersSuite) TestCreatesOneOrderPerMerchant() {
	res, err := s.uc.Execute(context.Background(), s.input())
	s.Require().NoError(err)
	s.Require().Len(res.Orders, 2)

	m1, m2 := res.Orders[0], res.Orders[1]
	s.Equal("M1", m1.MerchantID)
	s.Equal(int64(2000), m1.Subtotal)
	s.Equal(int64(200), m1.DiscountAmount)
	s.Equal(int64(500), m1.ShippingAmount)
	s.Equal(int64(2300), m1.TotalAmount)

	s.Equal("M2", m2.MerchantID)
	s.Equal(int64(100), m2.TaxAmount)
	s.Equal(int64(5000-500+700+100), m2.TotalAmount)

	for _, o := range res.Orders {
		s.Equal(domain.PaymentPending, o.PaymentStatus)
		s.Equal(domain.FulfillmentUnfulfilled, o.FulfillmentStatus)
		s.Equal(domain.StatusOpen, o.Status)
		s.Equal(domain.WorkflowNormal, o.WorkflowStatus)
	}

	s.Equal(3, s.available("v-a"))
	s.Equal(0, s.available("p-b"))
	s.Equal(1, s.usage(), "usage counts once per checkout")

	trail, err := s.store.AuditTrail(context.Background(), m2.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(domain.KindCreated, trail[0].Kind)
	s.Require().NotNil(trail[0].Settlement)
	s.Equal([]dompromo.Allocation{{CartLineID: "B", PromotionID: "ten", Amount: 500}}, trail[0].Settlement.Allocations)
	s.Equal(int64(700), trail[0].Settlement.ShippingPrice)

	s.Contains(s.pub.names(), "checkout.orders_created")
	s.Contains(s.pub.names(), "inventory.reserved")
	s.Contains(s.pub.names(), string(domain.KindCreated))
}

func (s *CreateOrdersSuite) TestShortfallOnSecondMerchantLeavesNoTrace() {
	cmd := s.input()
	cmd.Cart.Lines[1].Quantity = 2
	cmd.Resolution.Allocations[1].Amount = 1000

	_, err := s.uc.Execute(context.Background(), cmd)

	s.Require().Error(err)
	s.ErrorIs(err, domain.ErrTransactionAborted)
	s.ErrorIs(err, dominventory.ErrInsufficientStock)
	var short *dominventory.InsufficientStockError
	s.Require().True(errors.As(err, &short))
	s.Equal("B", short.LineID)

	s.Equal(5, s.available("v-a"))
	s.Equal(1, s.available("p-b"))
	s.Zero(s.usage())
	_, err = s.store.Get(context.Background(), "ord-1")
	s.ErrorIs(err, domain.ErrNotFound)
	s.Empty(s.pub.names())
}

func (s *CreateOrdersSuite) TestUsageLimitRaceAbortsCheckout() {
	limit := 1
	s.Require().NoError(s.store.PutRule(&dompromo.Rule{
		ID: "ten", Name: "10% off everything", ValueType: dompromo.ValuePercentage,
		Value: decimal.NewFromInt(10), UsageLimit: &limit, UsageCount: 1, IsActive: true,
	}))

	_, err := s.uc.Execute(context.Background(), s.input())

	s.ErrorIs(err, domain.ErrTransactionAborted)
	s.ErrorIs(err, dompromo.ErrUsageLimitReached)
	s.Equal(5, s.available("v-a"))
}

func (s *CreateOrdersSuite) TestSharedStockKeyCountsBothLines() {
	cmd := s.input()
	cmd.Cart.Lines = append(cmd.Cart.Lines, cart.Line{
		ID: "C", ListingID: "p-a", VariantID: "v-a", MerchantID: "M1", Quantity: 4, UnitPrice: 1000, Currency: "USD",
	})

	_, err := s.uc.Execute(context.Background(), cmd)

	var short *dominventory.InsufficientStockError
	s.Require().True(errors.As(err, &short))
	s.Equal("C", short.LineID)
	s.Equal(6, short.Requested)
}

func (s *CreateOrdersSuite) TestRejectsSelectionMissingAMerchant() {
	cmd := s.input()
	cmd.Selection.PerMerchantPrice = map[string]int64{"M1": 500}

	_, err := s.uc.Execute(context.Background(), cmd)

	s.ErrorIs(err, domship.ErrInvalidSelection)
	s.NotErrorIs(err, domain.ErrTransactionAborted)
}

func (s *CreateOrdersSuite) TestRejectsOversizedAllocation() {
	cmd := s.input()
	cmd.Resolution.Allocations[0].Amount = 2001

	_, err := s.uc.Execute(context.Background(), cmd)

	s.ErrorIs(err, cart.ErrValidation)
}

func (s *CreateOrdersSuite) TestIdempotencyKeyReplaysFirstResult() {
	cmd := s.input()
	cmd.IdempotencyKey = "idem-1"

	first, err := s.uc.Execute(context.Background(), cmd)
	s.Require().NoError(err)
	second, err := s.uc.Execute(context.Background(), cmd)
	s.Require().NoError(err)

	s.True(second.Replayed)
	s.ElementsMatch(first.OrderIDs(), second.OrderIDs())
	s.Equal(3, s.available("v-a"), "replay reserves nothing")
}

func (s *CreateOrdersSuite) TestPublishFailureDoesNotUndoCommit() {
	s.pub.err = errors.New("bus full")

	res, err := s.uc.Execute(context.Background(), s.input())

	s.Require().NoError(err)
	s.Len(res.Orders, 2)
}

func (s *CreateOrdersSuite) TestLineOptionsAreRecorded() {
	cmd := s.input()
	cmd.Cart.Lines[0].Options = cart.VariantOptions{{Name: "Size", Value: "M"}, {Name: "Color", Value: "Red"}}

	res, err := s.uc.Execute(context.Background(), cmd)
	s.Require().NoError(err)

	cmd.Cart.Lines[0].Options[0].Value = "XL"
	stored, err := s.store.Get(context.Background(), res.Orders[0].ID)
	s.Require().NoError(err)
	s.Require().Len(stored.LineItems, 1)
	s.Equal(cart.VariantOptions{{Name: "Size", Value: "M"}, {Name: "Color", Value: "Red"}}, stored.LineItems[0].Options)
	s.Empty(res.Orders[1].LineItems[0].Options)
}

// oneLine narrows the fixture to a single line of one merchant.
func (s *CreateOrdersSuite) oneLine(checkoutID string, line int) CreateOrdersInput {
	cmd := s.input()
	l := cmd.Cart.Lines[line]
	l.Quantity = 1
	cmd.CheckoutID = checkoutID
	cmd.Cart.Lines = []cart.Line{l}
	cmd.Resolution = dompromo.Resolution{
		Allocations: []dompromo.Allocation{{CartLineID: l.ID, PromotionID: "ten", Amount: l.UnitPrice / 10}},
		TotalAmount: l.UnitPrice / 10,
	}
	price := cmd.Selection.PerMerchantPrice[l.MerchantID]
	cmd.Selection.PerMerchantPrice = map[string]int64{l.MerchantID: price}
	cmd.Selection.TotalPrice = price
	return cmd
}

// race runs n checkouts built by mk at once and returns their errors.
func (s *CreateOrdersSuite) race(n int, mk func(i int) CreateOrdersInput) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.uc.Execute(context.Background(), mk(i))
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func (s *CreateOrdersSuite) TestConcurrentCheckoutsForLastUnit() {
	errs := s.race(20, func(i int) CreateOrdersInput {
		return s.oneLine(fmt.Sprintf("chk-%d", i), 1)
	})

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.ErrorIs(err, domain.ErrTransactionAborted)
		s.ErrorIs(err, dominventory.ErrInsufficientStock)
	}
	s.Equal(1, ok)
	s.Equal(0, s.available("p-b"))
	s.Equal(1, s.usage())
}

func (s *CreateOrdersSuite) TestConcurrentRedemptionsAgainstLimit() {
	limit := 1
	s.Require().NoError(s.store.PutRule(&dompromo.Rule{
		ID: "ten", Name: "10% off everything", ValueType: dompromo.ValuePercentage,
		Value: decimal.NewFromInt(10), UsageLimit: &limit, IsActive: true,
	}))

	errs := s.race(5, func(i int) CreateOrdersInput {
		return s.oneLine(fmt.Sprintf("chk-%d", i), 0)
	})

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.ErrorIs(err, dompromo.ErrUsageLimitReached)
	}
	s.Equal(1, ok)
	s.Equal(1, s.usage())
	s.Equal(4, s.available("v-a"), "only the winning checkout holds stock")
}

func TestCreateOrdersSuite(t *testing.T) {
	suite.Run(t, new(CreateOrdersSuite))
}
