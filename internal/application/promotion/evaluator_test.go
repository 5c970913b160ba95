package promotion

import (
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func twoMerchantCart() []cart.Line {
	return []cart.Line{
		{ID: "A", ListingID: "p-a", MerchantID: "M1", Quantity: 2, UnitPrice: 1000, Currency: "USD"},
		{ID: "B", ListingID: "p-b", MerchantID: "M2", Quantity: 1, UnitPrice: 5000, Currency: "USD"},
	}
}

func percentRule(id string, pct int64) *dompromo.Rule {
	return &dompromo.Rule{
		ID:          id,
		Name:        id,
		ValueType:   dompromo.ValuePercentage,
		Value:       decimal.NewFromInt(pct),
		Eligibility: dompromo.CustomerEligibility{Kind: dompromo.EligibleAll},
		Scope:       dompromo.TargetScope{Kind: dompromo.ScopeAllProducts},
		IsActive:    true,
		CreatedAt:   now.Add(-time.Hour),
	}
}

func fixedRule(id, amount string) *dompromo.Rule {
	r := percentRule(id, 1)
	r.ValueType = dompromo.ValueFixed
	r.Value = decimal.RequireFromString(amount)
	r.Currency = "USD"
	return r
}

func in(lines []cart.Line) Input {
	return Input{Lines: lines, Customer: cart.Customer{ID: "c1", Email: "c1@example.com"}, Now: now}
}

func TestEvaluatePercentageAcrossMerchants(t *testing.T) {
	eval := Evaluate(percentRule("ten", 10), in(twoMerchantCart()))

	require.True(t, eval.Eligible)
	assert.Equal(t, []dompromo.Allocation{
		{CartLineID: "A", PromotionID: "ten", Amount: 200},
		{CartLineID: "B", PromotionID: "ten", Amount: 500},
	}, eval.Allocations)
	assert.Equal(t, int64(700), eval.Total())
}

func TestEvaluatePercentageRoundsHalfAwayFromZero(t *testing.T) {
	lines := []cart.Line{{ID: "A", ListingID: "p", MerchantID: "M1", Quantity: 1, UnitPrice: 105, Currency: "USD"}}
	eval := Evaluate(percentRule("half", 50), in(lines))

	require.True(t, eval.Eligible)
	assert.Equal(t, int64(53), eval.Allocations[0].Amount)
}

func TestEvaluateMinimumPurchaseShortfall(t *testing.T) {
	lines := []cart.Line{{ID: "A", ListingID: "p", MerchantID: "M1", Quantity: 7, UnitPrice: 1000, Currency: "USD"}}
	rule := percentRule("min100", 10)
	minimum := int64(10000)
	rule.MinPurchaseAmount = &minimum

	eval := Evaluate(rule, in(lines))

	assert.False(t, eval.Eligible)
	assert.Equal(t, dompromo.ReasonMinimumAmount, eval.Reason)
	require.NotNil(t, eval.Shortfall)
	assert.Equal(t, int64(3000), eval.Shortfall.MissingAmount)
	assert.ErrorIs(t, eval.Err(), dompromo.ErrNotEligible)
	assert.Equal(t, "minimum purchase of 100.00 required, add 30.00 more", eval.Err().Error())
	assert.Empty(t, eval.Allocations)
}

func TestEvaluateMinimumQuantityCountsEligibleLinesOnly(t *testing.T) {
	rule := percentRule("qty", 10)
	rule.Scope = dompromo.TargetScope{Kind: dompromo.ScopeSpecificProducts, ProductIDs: []string{"p-a"}}
	three := 3
	rule.MinPurchaseQuantity = &three

	eval := Evaluate(rule, in(twoMerchantCart()))

	assert.Equal(t, dompromo.ReasonMinimumQuantity, eval.Reason)
	assert.Equal(t, 1, eval.Shortfall.MissingQuantity)
	assert.Equal(t, "minimum of 3 items required, add 1 more", eval.Shortfall.Message())
}

func TestEvaluateScopeLimitsAllocation(t *testing.T) {
	rule := percentRule("b-only", 20)
	rule.Scope = dompromo.TargetScope{Kind: dompromo.ScopeSpecificProducts, ProductIDs: []string{"p-b"}}

	eval := Evaluate(rule, in(twoMerchantCart()))

	require.True(t, eval.Eligible)
	assert.Equal(t, []dompromo.Allocation{{CartLineID: "B", PromotionID: "b-only", Amount: 1000}}, eval.Allocations)

	rule.Scope.ProductIDs = []string{"p-z"}
	assert.Equal(t, dompromo.ReasonScope, Evaluate(rule, in(twoMerchantCart())).Reason)
}

func TestEvaluateFixedIsProportionalAndExact(t *testing.T) {
	lines := []cart.Line{
		{ID: "A", ListingID: "p-a", MerchantID: "M1", Quantity: 1, UnitPrice: 1000, Currency: "USD"},
		{ID: "B", ListingID: "p-b", MerchantID: "M1", Quantity: 1, UnitPrice: 1000, Currency: "USD"},
		{ID: "C", ListingID: "p-c", MerchantID: "M2", Quantity: 1, UnitPrice: 1000, Currency: "USD"},
	}
	eval := Evaluate(fixedRule("ten-off", "10.00"), in(lines))

	require.True(t, eval.Eligible)
	assert.Equal(t, int64(1000), eval.Total())
	byLine := map[string]int64{}
	for _, a := range eval.Allocations {
		byLine[a.CartLineID] = a.Amount
	}
	assert.Equal(t, map[string]int64{"A": 333, "B": 333, "C": 334}, byLine)
}

func TestEvaluateFixedLargeSubtotalsStayExact(t *testing.T) {
	lines := []cart.Line{
		{ID: "A", ListingID: "p-a", MerchantID: "M1", Quantity: 1, UnitPrice: 4_000_000_000_000, Currency: "USD"},
		{ID: "B", ListingID: "p-b", MerchantID: "M2", Quantity: 1, UnitPrice: 4_000_000_000_000, Currency: "USD"},
	}
	eval := Evaluate(fixedRule("huge", "50000000000.00"), in(lines))

	require.True(t, eval.Eligible)
	assert.Equal(t, int64(5_000_000_000_000), eval.Total())
	for _, a := range eval.Allocations {
		assert.Equal(t, int64(2_500_000_000_000), a.Amount, a.CartLineID)
	}
}

func TestEvaluateFixedCappedAtEligibleSubtotal(t *testing.T) {
	lines := []cart.Line{
		{ID: "A", ListingID: "p-a", MerchantID: "M1", Quantity: 1, UnitPrice: 300, Currency: "USD"},
		{ID: "B", ListingID: "p-b", MerchantID: "M1", Quantity: 1, UnitPrice: 100, Currency: "USD"},
	}
	eval := Evaluate(fixedRule("big", "50.00"), in(lines))

	require.True(t, eval.Eligible)
	assert.Equal(t, int64(400), eval.Total())
	for _, a := range eval.Allocations {
		l, _ := cart.Cart{Lines: lines}.Line(a.CartLineID)
		assert.LessOrEqual(t, a.Amount, l.Subtotal())
	}
}

func TestEvaluateFixedCurrencyMismatch(t *testing.T) {
	rule := fixedRule("eur", "5.00")
	rule.Currency = "EUR"
	assert.Equal(t, dompromo.ReasonCurrency, Evaluate(rule, in(twoMerchantCart())).Reason)
}

func TestEvaluateCustomerEligibility(t *testing.T) {
	rule := percentRule("vip", 15)
	rule.Eligibility = dompromo.CustomerEligibility{Kind: dompromo.EligibleSpecific, Customers: []string{"VIP@example.com"}}

	guest := in(twoMerchantCart())
	guest.Customer = cart.Customer{Email: "vip@example.com"}
	assert.Equal(t, dompromo.ReasonCustomer, Evaluate(rule, guest).Reason)

	member := in(twoMerchantCart())
	member.Customer = cart.Customer{ID: "c9", Email: "vip@example.com"}
	assert.True(t, Evaluate(rule, member).Eligible)
}

func TestEvaluateAvailability(t *testing.T) {
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	limit := 5

	cases := map[string]struct {
		mutate func(r *dompromo.Rule)
		want   dompromo.Reason
	}{
		"inactive":    {func(r *dompromo.Rule) { r.IsActive = false }, dompromo.ReasonInactive},
		"not started": {func(r *dompromo.Rule) { r.Window.StartsAt = &future }, dompromo.ReasonNotStarted},
		"expired":     {func(r *dompromo.Rule) { r.Window.EndsAt = &past }, dompromo.ReasonExpired},
		"used up": {func(r *dompromo.Rule) {
			r.UsageLimit = &limit
			r.UsageCount = 5
		}, dompromo.ReasonUsageLimitReached},
		"coded without code": {func(r *dompromo.Rule) { r.Code = "SAVE" }, dompromo.ReasonCodeRequired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rule := percentRule("r", 10)
			tc.mutate(rule)
			eval := Evaluate(rule, in(twoMerchantCart()))
			assert.False(t, eval.Eligible)
			assert.Equal(t, tc.want, eval.Reason)
		})
	}
}
