package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	promotionService    = "promotion-service"
	useCaseEvaluate     = "promotion.evaluate"
	rulesPeer           = "promotion_rules"
	defaultRulesTimeout = 2 * time.Second
)

// ErrRulesUnavailable is returned when rule lookups time out; callers may retry.
var ErrRulesUnavailable = errors.New("promotion: rules unavailable, retry")

type EvaluateInput struct {
	Cart     cart.Cart
	Customer cart.Customer
	Code     string
}

// CodeResult reports what happened to an entered code. Err is nil for CodeNone
// and CodeApplied; it is never returned as the use case error.
type CodeResult struct {
	Code      string
	RuleID    string
	Status    dompromo.CodeStatus
	Err       error
	Message   string
	Shortfall *dompromo.Shortfall
}

type EvaluateResult struct {
	Resolution dompromo.Resolution
	// Automatic holds every automatic rule's evaluation, including ineligible
	// ones, so callers can surface "add X more" hints.
	Automatic []dompromo.Evaluation
	Code      CodeResult
}

type EvaluateUseCase struct {
	repo    dompromo.Repository
	now     func() time.Time
	timeout time.Duration
	in      application.Instruments
}

type Option func(*EvaluateUseCase)

func WithClock(now func() time.Time) Option { return func(uc *EvaluateUseCase) { uc.now = now } }

func WithTimeout(d time.Duration) Option { return func(uc *EvaluateUseCase) { uc.timeout = d } }

func NewEvaluateUseCase(repo dompromo.Repository, tel observability.Observability, opts ...Option) *EvaluateUseCase {
	uc := &EvaluateUseCase{
		repo:    repo,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: defaultRulesTimeout,
		in:      application.NewInstruments(tel, promotionService),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute resolves automatic rules and, when a code is given, re-resolves with the
// coded rule in the pool.
func (uc *EvaluateUseCase) Execute(ctx context.Context, cmd EvaluateInput) (_ *EvaluateResult, err error) {
	code := dompromo.NormalizeCode(cmd.Code)
	ctx, run := uc.in.Begin(ctx, useCaseEvaluate, "EvaluatePromotions",
		attribute.Int("cart.lines", len(cmd.Cart.Lines)),
		attribute.Bool("promotion.code_entered", code != ""),
	)
	defer func() { run.End(err) }()

	if err := cmd.Cart.Validate(); err != nil {
		run.Fail("CART_INVALID")
		return nil, err
	}

	now := uc.now()
	automatic, coded, codeErr, err := uc.load(ctx, now, code)
	if err != nil {
		run.Fail("RULES_LOOKUP_FAILED")
		return nil, err
	}

	in := Input{Lines: cmd.Cart.Lines, Customer: cmd.Customer, Now: now}
	result := &EvaluateResult{Code: CodeResult{Code: code, Status: dompromo.CodeNone}}
	for _, rule := range automatic {
		result.Automatic = append(result.Automatic, Evaluate(rule, in))
	}
	result.Resolution = Resolve(result.Automatic)

	if code != "" {
		result.Resolution, result.Code = uc.applyCode(result.Resolution, result.Automatic, coded, codeErr, in)
		result.Code.Code = code
		run.With(observability.F("code_status", string(result.Code.Status)))
	}

	run.Span().SetAttributes(
		attribute.Int64("promotion.total_amount", result.Resolution.TotalAmount),
		attribute.StringSlice("promotion.applied", result.Resolution.AppliedRuleNames),
	)
	run.With(
		observability.F("total_discount", result.Resolution.TotalAmount),
		observability.F("applied_rules", result.Resolution.AppliedRuleNames),
	)
	return result, nil
}

func (uc *EvaluateUseCase) applyCode(
	baseline dompromo.Resolution,
	automatic []dompromo.Evaluation,
	rule *dompromo.Rule,
	lookupErr error,
	in Input,
) (dompromo.Resolution, CodeResult) {
	if lookupErr != nil {
		return baseline, CodeResult{Status: dompromo.CodeNotFound, Err: lookupErr, Message: "promotion code not found"}
	}

	in.IncludeCoded = true
	eval := Evaluate(rule, in)
	if !eval.Eligible {
		nerr := eval.Err()
		var ne *dompromo.NotEligibleError
		msg := nerr.Error()
		if errors.As(nerr, &ne) {
			msg = ne.Message()
		}
		return baseline, CodeResult{
			RuleID:    rule.ID,
			Status:    dompromo.CodeNotEligible,
			Err:       nerr,
			Message:   msg,
			Shortfall: eval.Shortfall,
		}
	}

	combined := ResolveWithCode(automatic, eval)
	if !combined.Won(rule.ID) {
		return baseline, CodeResult{
			RuleID:  rule.ID,
			Status:  dompromo.CodeNoImprovement,
			Err:     dompromo.ErrNoImprovement,
			Message: "your current discount is already better",
		}
	}
	return combined, CodeResult{RuleID: rule.ID, Status: dompromo.CodeApplied}
}

// load fetches automatic rules and the coded rule concurrently under one deadline.
func (uc *EvaluateUseCase) load(ctx context.Context, now time.Time, code string) (
	automatic []*dompromo.Rule, coded *dompromo.Rule, codeErr error, err error,
) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		rules, lerr := uc.repo.ListAutomatic(gctx, now)
		uc.in.External(rulesPeer, "list_automatic", start, lerr)
		if lerr != nil {
			return lerr
		}
		for _, r := range rules {
			if !r.Coded() {
				automatic = append(automatic, r)
			}
		}
		return nil
	})
	if code != "" {
		g.Go(func() error {
			start := time.Now()
			rule, ferr := uc.repo.FindByCode(gctx, code)
			uc.in.External(rulesPeer, "find_by_code", start, ferr)
			switch {
			case ferr == nil && rule.IsActive:
				coded = rule
			case ferr == nil, errors.Is(ferr, dompromo.ErrCodeNotFound):
				codeErr = dompromo.ErrCodeNotFound
			default:
				return ferr
			}
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		if errors.Is(werr, context.DeadlineExceeded) {
			return nil, nil, nil, fmt.Errorf("%w: %w", ErrRulesUnavailable, werr)
		}
		return nil, nil, nil, fmt.Errorf("promotion: load rules: %w", werr)
	}
	return automatic, coded, codeErr, nil
}
