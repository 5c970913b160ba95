package promotion

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/money"
)

// Reason is a stable machine code for why a rule did not apply.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInactive          Reason = "inactive"
	ReasonNotStarted        Reason = "not_started"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonCodeRequired      Reason = "code_required"
	ReasonCustomer          Reason = "customer_not_eligible"
	ReasonScope             Reason = "no_eligible_products"
	ReasonMinimumAmount     Reason = "minimum_amount_not_met"
	ReasonMinimumQuantity   Reason = "minimum_quantity_not_met"
	ReasonCurrency          Reason = "currency_mismatch"
)

var reasonText = map[Reason]string{
	ReasonInactive:          "promotion is not active",
	ReasonNotStarted:        "promotion has not started yet",
	ReasonExpired:           "promotion has expired",
	ReasonUsageLimitReached: "promotion usage limit has been reached",
	ReasonCodeRequired:      "promotion requires a code",
	ReasonCustomer:          "promotion is not available for this customer",
	ReasonScope:             "no items in the cart qualify for this promotion",
	ReasonCurrency:          "promotion is not available in the cart currency",
}

// Allocation is the discount one promotion assigns to one cart line, in minor units.
type Allocation struct {
	CartLineID  string
	PromotionID string
	Amount      int64
}

// Shortfall says how far the eligible lines are from a rule's minimums.
type Shortfall struct {
	RequiredAmount   int64
	MissingAmount    int64
	RequiredQuantity int
	MissingQuantity  int
}

// Message renders the shortfall as an actionable sentence.
func (s Shortfall) Message() string {
	if s.MissingAmount > 0 {
		return fmt.Sprintf("minimum purchase of %s required, add %s more",
			money.Format(s.RequiredAmount), money.Format(s.MissingAmount))
	}
	return fmt.Sprintf("minimum of %d items required, add %d more", s.RequiredQuantity, s.MissingQuantity)
}

// Evaluation is the outcome of one rule against one cart.
type Evaluation struct {
	RuleID        string
	RuleName      string
	RuleCreatedAt time.Time
	Eligible      bool
	Allocations   []Allocation
	Reason        Reason
	Shortfall     *Shortfall
}

// Total is the sum the rule's own allocation produced.
func (e Evaluation) Total() int64 {
	var total int64
	for _, a := range e.Allocations {
		total += a.Amount
	}
	return total
}

// Err returns nil for an eligible evaluation and a *NotEligibleError otherwise.
func (e Evaluation) Err() error {
	if e.Eligible {
		return nil
	}
	return &NotEligibleError{RuleID: e.RuleID, Reason: e.Reason, Shortfall: e.Shortfall}
}

// NotEligibleError carries the structured reason a rule was rejected.
type NotEligibleError struct {
	RuleID    string
	Reason    Reason
	Shortfall *Shortfall
}

func (e *NotEligibleError) Error() string { return e.Message() }

func (e *NotEligibleError) Is(target error) bool { return target == ErrNotEligible }

// Message is the user-facing sentence for the rejection.
func (e *NotEligibleError) Message() string {
	if e.Shortfall != nil {
		return e.Shortfall.Message()
	}
	if text, ok := reasonText[e.Reason]; ok {
		return text
	}
	return "promotion is not applicable"
}

// RuleApplication summarises how a rule fared in resolution.
type RuleApplication struct {
	RuleID      string
	RuleName    string
	LinesWon    int
	LinesTarget int
}

// FullyApplied is true when the rule won every line it targeted.
func (a RuleApplication) FullyApplied() bool { return a.LinesWon == a.LinesTarget && a.LinesWon > 0 }

// Resolution is the conflict-free allocation set: at most one allocation per line.
type Resolution struct {
	Allocations      []Allocation
	TotalAmount      int64
	AppliedRuleNames []string
	Rules            []RuleApplication
}

func (r Resolution) ByLine() map[string]Allocation {
	out := make(map[string]Allocation, len(r.Allocations))
	for _, a := range r.Allocations {
		out[a.CartLineID] = a
	}
	return out
}

// RuleIDs returns the distinct ids of rules that won at least one line, in allocation order.
func (r Resolution) RuleIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range r.Allocations {
		if _, ok := seen[a.PromotionID]; ok {
			continue
		}
		seen[a.PromotionID] = struct{}{}
		out = append(out, a.PromotionID)
	}
	return out
}

// Won reports whether ruleID holds at least one line.
func (r Resolution) Won(ruleID string) bool {
	for _, a := range r.Allocations {
		if a.PromotionID == ruleID {
			return true
		}
	}
	return false
}

// CodeStatus is the outcome of an explicitly entered code.
type CodeStatus string

const (
	CodeNone          CodeStatus = "none"
	CodeApplied       CodeStatus = "applied"
	CodeNotFound      CodeStatus = "not_found"
	CodeNotEligible   CodeStatus = "not_eligible"
	CodeNoImprovement CodeStatus = "no_improvement"
)
