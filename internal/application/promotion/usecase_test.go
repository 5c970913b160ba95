package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeRules struct {
	automatic []*dompromo.Rule
	coded     map[string]*dompromo.Rule
	delay     time.Duration
	err       error
}

func (f *fakeRules) ListAutomatic(ctx context.Context, _ time.Time) ([]*dompromo.Rule, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.automatic, f.err
}

func (f *fakeRules) FindByCode(_ context.Context, code string) (*dompromo.Rule, error) {
	if r, ok := f.coded[code]; ok {
		return r, nil
	}
	return nil, dompromo.ErrCodeNotFound
}

type EvaluateSuite struct {
	suite.Suite
	repo *fakeRules
	uc   *EvaluateUseCase
	cart cart.Cart
}

func (s *EvaluateSuite) SetupTest() {
	auto := percentRule("auto10", 10)

	minimum := int64(10000)
	minCode := percentRule("min-code", 30)
	minCode.Code = "BIG"
	minCode.MinPurchaseAmount = &minimum

	weak := percentRule("weak-code", 5)
	weak.Code = "WEAK"

	strong := fixedRule("strong-code", "15.00")
	strong.Code = "STRONG"
	strong.Scope = dompromo.TargetScope{Kind: dompromo.ScopeSpecificProducts, ProductIDs: []string{"p-a"}}

	off := percentRule("off-code", 50)
	off.Code = "OFF"
	off.IsActive = false

	s.repo = &fakeRules{
		automatic: []*dompromo.Rule{auto},
		coded:     map[string]*dompromo.Rule{"BIG": minCode, "WEAK": weak, "STRONG": strong, "OFF": off},
	}
	s.uc = NewEvaluateUseCase(s.repo, nil, WithClock(func() time.Time { return now }))
	s.cart = cart.Cart{ID: "cart-1", Lines: twoMerchantCart()}
}

func (s *EvaluateSuite) run(code string) *EvaluateResult {
	res, err := s.uc.Execute(context.Background(), EvaluateInput{
		Cart:     s.cart,
		Customer: cart.Customer{ID: "c1"},
		Code:     code,
	})
	s.Require().NoError(err)
	return res
}

func (s *EvaluateSuite) TestBaselineWithoutCode() {
	res := s.run("")
	s.Equal(int64(700), res.Resolution.TotalAmount)
	s.Equal(dompromo.CodeNone, res.Code.Status)
	s.Len(res.Automatic, 1)
}

func (s *EvaluateSuite) TestUnknownAndInactiveCodes() {
	for _, code := range []string{"NOPE", "off"} {
		res := s.run(code)
		s.Equal(dompromo.CodeNotFound, res.Code.Status, code)
		s.ErrorIs(res.Code.Err, dompromo.ErrCodeNotFound)
		s.Equal(int64(700), res.Resolution.TotalAmount)
	}
}

func (s *EvaluateSuite) TestIneligibleCodeSurfacesShortfall() {
	res := s.run(" big ")
	s.Equal("BIG", res.Code.Code)
	s.Equal(dompromo.CodeNotEligible, res.Code.Status)
	s.ErrorIs(res.Code.Err, dompromo.ErrNotEligible)
	s.Equal("minimum purchase of 100.00 required, add 30.00 more", res.Code.Message)
	s.Require().NotNil(res.Code.Shortfall)
	s.Equal(int64(3000), res.Code.Shortfall.MissingAmount)
	s.Equal(int64(700), res.Resolution.TotalAmount)
}

func (s *EvaluateSuite) TestWeakerCodeIsNoImprovement() {
	res := s.run("WEAK")
	s.Equal(dompromo.CodeNoImprovement, res.Code.Status)
	s.ErrorIs(res.Code.Err, dompromo.ErrNoImprovement)
	s.Equal(int64(700), res.Resolution.TotalAmount)
	s.False(res.Resolution.Won("weak-code"))
}

func (s *EvaluateSuite) TestStrongerCodeDisplacesOnlyTargetedLines() {
	res := s.run("STRONG")
	s.Equal(dompromo.CodeApplied, res.Code.Status)
	s.NoError(res.Code.Err)
	byLine := res.Resolution.ByLine()
	s.Equal("strong-code", byLine["A"].PromotionID)
	s.Equal(int64(1500), byLine["A"].Amount)
	s.Equal("auto10", byLine["B"].PromotionID)
	s.Equal(int64(2000), res.Resolution.TotalAmount)
}

func (s *EvaluateSuite) TestInvalidCart() {
	_, err := s.uc.Execute(context.Background(), EvaluateInput{Cart: cart.Cart{}})
	s.ErrorIs(err, cart.ErrValidation)
}

func TestEvaluateSuite(t *testing.T) {
	suite.Run(t, new(EvaluateSuite))
}

func TestEvaluateRulesTimeoutIsRetryable(t *testing.T) {
	repo := &fakeRules{delay: time.Second}
	uc := NewEvaluateUseCase(repo, nil, WithTimeout(10*time.Millisecond))

	_, err := uc.Execute(context.Background(), EvaluateInput{Cart: cart.Cart{Lines: twoMerchantCart()}})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRulesUnavailable)
}

func TestEvaluateRepositoryFailure(t *testing.T) {
	boom := errors.New("boom")
	uc := NewEvaluateUseCase(&fakeRules{err: boom}, nil)

	_, err := uc.Execute(context.Background(), EvaluateInput{Cart: cart.Cart{Lines: twoMerchantCart()}})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRulesUnavailable)
}
