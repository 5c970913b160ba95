package promotion

import (
	"sort"
	"time"

	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
)

type candidate struct {
	ruleID     string
	ruleName   string
	createdAt  time.Time
	amount     int64
	challenger bool
}

// better orders candidates for one line: larger amount, then the incumbent over a
// challenger, then earliest rule creation, then lowest rule id.
func better(a, b candidate) bool {
	if a.amount != b.amount {
		return a.amount > b.amount
	}
	if a.challenger != b.challenger {
		return !a.challenger
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.ruleID < b.ruleID
}

// Resolve composes the eligible evaluations into at most one allocation per cart
// line. Identical input always yields the same resolution.
func Resolve(evals []dompromo.Evaluation) dompromo.Resolution {
	return resolve(evals, nil)
}

// ResolveWithCode lets a coded rule displace automatic winners only on lines it
// targets and only where it is strictly larger.
func ResolveWithCode(automatic []dompromo.Evaluation, coded dompromo.Evaluation) dompromo.Resolution {
	return resolve(automatic, &coded)
}

func resolve(evals []dompromo.Evaluation, challenger *dompromo.Evaluation) dompromo.Resolution {
	all := append([]dompromo.Evaluation(nil), evals...)
	if challenger != nil {
		all = append(all, *challenger)
	}

	byLine := make(map[string][]candidate)
	targeted := make(map[string]map[string]struct{})
	names := make(map[string]string)
	for i, ev := range all {
		if !ev.Eligible {
			continue
		}
		isChallenger := challenger != nil && i == len(all)-1
		for _, a := range ev.Allocations {
			if a.Amount <= 0 {
				continue
			}
			byLine[a.CartLineID] = append(byLine[a.CartLineID], candidate{
				ruleID:     ev.RuleID,
				ruleName:   ev.RuleName,
				createdAt:  ev.RuleCreatedAt,
				amount:     a.Amount,
				challenger: isChallenger,
			})
			if targeted[ev.RuleID] == nil {
				targeted[ev.RuleID] = make(map[string]struct{})
			}
			targeted[ev.RuleID][a.CartLineID] = struct{}{}
			names[ev.RuleID] = ev.RuleName
		}
	}

	lineIDs := make([]string, 0, len(byLine))
	for id := range byLine {
		lineIDs = append(lineIDs, id)
	}
	sort.Strings(lineIDs)

	var res dompromo.Resolution
	won := make(map[string]int)
	nameSet := make(map[string]struct{})
	for _, lineID := range lineIDs {
		cands := byLine[lineID]
		best := cands[0]
		for _, c := range cands[1:] {
			if better(c, best) {
				best = c
			}
		}
		res.Allocations = append(res.Allocations, dompromo.Allocation{
			CartLineID:  lineID,
			PromotionID: best.ruleID,
			Amount:      best.amount,
		})
		res.TotalAmount += best.amount
		won[best.ruleID]++
		nameSet[best.ruleName] = struct{}{}
	}

	for name := range nameSet {
		res.AppliedRuleNames = append(res.AppliedRuleNames, name)
	}
	sort.Strings(res.AppliedRuleNames)

	ruleIDs := make([]string, 0, len(targeted))
	for id := range targeted {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)
	for _, id := range ruleIDs {
		res.Rules = append(res.Rules, dompromo.RuleApplication{
			RuleID:      id,
			RuleName:    names[id],
			LinesWon:    won[id],
			LinesTarget: len(targeted[id]),
		})
	}
	return res
}
