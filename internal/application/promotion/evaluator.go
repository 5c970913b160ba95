package promotion

import (
	"sort"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/money"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
)

// Input is the cart context one rule is evaluated against.
type Input struct {
	Lines        []cart.Line
	Customer     cart.Customer
	Now          time.Time
	IncludeCoded bool
}

// Evaluate runs availability, eligibility, scope and minimum checks for one rule
// and computes its allocation over the eligible lines only.
func Evaluate(rule *dompromo.Rule, in Input) dompromo.Evaluation {
	eval := dompromo.Evaluation{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		RuleCreatedAt: rule.CreatedAt,
	}
	reject := func(r dompromo.Reason) dompromo.Evaluation {
		eval.Reason = r
		return eval
	}

	if r := rule.Availability(in.Now); r != dompromo.ReasonNone {
		return reject(r)
	}
	if rule.Coded() && !in.IncludeCoded {
		return reject(dompromo.ReasonCodeRequired)
	}
	if !rule.EligibleCustomer(in.Customer) {
		return reject(dompromo.ReasonCustomer)
	}

	eligible := make([]cart.Line, 0, len(in.Lines))
	for _, l := range in.Lines {
		if rule.Targets(l.ProductID()) {
			eligible = append(eligible, l)
		}
	}
	if len(eligible) == 0 {
		return reject(dompromo.ReasonScope)
	}
	if rule.ValueType == dompromo.ValueFixed && rule.Currency != eligible[0].Currency {
		return reject(dompromo.ReasonCurrency)
	}

	var subtotal int64
	var quantity int
	for _, l := range eligible {
		subtotal += l.Subtotal()
		quantity += l.Quantity
	}
	if sf := shortfall(rule, subtotal, quantity); sf != nil {
		eval.Shortfall = sf
		if sf.MissingAmount > 0 {
			return reject(dompromo.ReasonMinimumAmount)
		}
		return reject(dompromo.ReasonMinimumQuantity)
	}

	eval.Eligible = true
	switch rule.ValueType {
	case dompromo.ValuePercentage:
		eval.Allocations = allocatePercentage(rule, eligible)
	case dompromo.ValueFixed:
		eval.Allocations = allocateFixed(rule, eligible, subtotal)
	}
	return eval
}

func shortfall(rule *dompromo.Rule, subtotal int64, quantity int) *dompromo.Shortfall {
	var sf dompromo.Shortfall
	if rule.MinPurchaseAmount != nil && subtotal < *rule.MinPurchaseAmount {
		sf.RequiredAmount = *rule.MinPurchaseAmount
		sf.MissingAmount = *rule.MinPurchaseAmount - subtotal
	}
	if rule.MinPurchaseQuantity != nil && quantity < *rule.MinPurchaseQuantity {
		sf.RequiredQuantity = *rule.MinPurchaseQuantity
		sf.MissingQuantity = *rule.MinPurchaseQuantity - quantity
	}
	if sf.MissingAmount == 0 && sf.MissingQuantity == 0 {
		return nil
	}
	return &sf
}

func allocatePercentage(rule *dompromo.Rule, lines []cart.Line) []dompromo.Allocation {
	out := make([]dompromo.Allocation, 0, len(lines))
	for _, l := range lines {
		amount := min(money.Percent(rule.Value, l.Subtotal()), l.Subtotal())
		if amount <= 0 {
			continue
		}
		out = append(out, dompromo.Allocation{CartLineID: l.ID, PromotionID: rule.ID, Amount: amount})
	}
	return out
}

// allocateFixed splits the rule value across lines by subtotal share. Shares are
// floored; the remainder goes to the last line by subtotal so the sum equals the
// (capped) value exactly and no line exceeds its own subtotal.
func allocateFixed(rule *dompromo.Rule, lines []cart.Line, subtotal int64) []dompromo.Allocation {
	if subtotal <= 0 {
		return nil
	}
	value := min(money.FromDecimal(rule.Value), subtotal)

	ordered := append([]cart.Line(nil), lines...)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := ordered[i].Subtotal(), ordered[j].Subtotal()
		if si != sj {
			return si < sj
		}
		return ordered[i].ID < ordered[j].ID
	})

	amounts := make(map[string]int64, len(ordered))
	var assigned int64
	last := len(ordered) - 1
	for _, l := range ordered[:last] {
		share := money.Share(value, l.Subtotal(), subtotal)
		amounts[l.ID] = share
		assigned += share
	}
	tail := ordered[last]
	remainder := value - assigned
	amounts[tail.ID] = min(remainder, tail.Subtotal())
	leftover := remainder - amounts[tail.ID]
	for i := last - 1; i >= 0 && leftover > 0; i-- {
		l := ordered[i]
		room := l.Subtotal() - amounts[l.ID]
		take := min(room, leftover)
		amounts[l.ID] += take
		leftover -= take
	}

	out := make([]dompromo.Allocation, 0, len(lines))
	for _, l := range lines {
		if amounts[l.ID] <= 0 {
			continue
		}
		out = append(out, dompromo.Allocation{CartLineID: l.ID, PromotionID: rule.ID, Amount: amounts[l.ID]})
	}
	return out
}
