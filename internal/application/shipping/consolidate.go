package shipping

import (
	"fmt"
	"sort"

	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
)

// Consolidate builds the cart-wide options from per-merchant quotes. A service is
// offered only when every merchant quotes it; unquoted merchants are reported
// separately from a cart with quotes but no common service.
func Consolidate(merchants []string, quotes map[string][]domship.Quote, country string) (domship.Options, error) {
	if len(merchants) == 0 {
		return domship.Options{}, fmt.Errorf("%w: no merchants to ship from", domship.ErrNoValidShippingOption)
	}

	var unquoted []string
	for _, m := range merchants {
		if len(quotes[m]) == 0 {
			unquoted = append(unquoted, m)
		}
	}
	if len(unquoted) > 0 {
		sort.Strings(unquoted)
		return domship.Options{}, &domship.UnquotedError{Country: country, Merchants: unquoted}
	}

	// cheapest quote per merchant per service
	byService := make(map[string]map[string]domship.Quote)
	for _, m := range merchants {
		for _, q := range quotes[m] {
			if q.ServiceName == "" || q.PriceMinor < 0 {
				continue
			}
			q.MerchantID = m
			if byService[q.ServiceName] == nil {
				byService[q.ServiceName] = make(map[string]domship.Quote)
			}
			if cur, ok := byService[q.ServiceName][m]; !ok || cheaper(q, cur) {
				byService[q.ServiceName][m] = q
			}
		}
	}

	var candidates []domship.Selection
	for name, perMerchant := range byService {
		if len(perMerchant) != len(merchants) {
			continue
		}
		sel, ok := combine(name, merchants, perMerchant)
		if ok {
			candidates = append(candidates, sel)
		}
	}
	if len(candidates) == 0 {
		return domship.Options{}, domship.ErrNoValidShippingOption
	}

	sort.Slice(candidates, func(i, j int) bool { return ranksBefore(candidates[i], candidates[j]) })
	return domship.Options{Candidates: candidates, Default: candidates[0]}, nil
}

func cheaper(a, b domship.Quote) bool {
	if a.PriceMinor != b.PriceMinor {
		return a.PriceMinor < b.PriceMinor
	}
	return daysLess(a.EstimatedDays, b.EstimatedDays)
}

// combine sums one service across merchants. Mixed quote currencies cannot be
// summed, so such a service is dropped.
func combine(name string, merchants []string, perMerchant map[string]domship.Quote) (domship.Selection, bool) {
	sel := domship.Selection{
		ServiceName:      name,
		PerMerchantPrice: make(map[string]int64, len(merchants)),
	}
	for _, m := range merchants {
		q := perMerchant[m]
		if sel.Currency == "" {
			sel.Currency = q.Currency
		} else if q.Currency != sel.Currency {
			return domship.Selection{}, false
		}
		sel.PerMerchantPrice[m] = q.PriceMinor
		sel.TotalPrice += q.PriceMinor
		if q.EstimatedDays != nil && (sel.EstimatedDays == nil || *q.EstimatedDays > *sel.EstimatedDays) {
			days := *q.EstimatedDays
			sel.EstimatedDays = &days
		}
	}
	return sel, true
}

// ranksBefore orders by total price, then fewer estimated days (unknown last),
// then service name.
func ranksBefore(a, b domship.Selection) bool {
	if a.TotalPrice != b.TotalPrice {
		return a.TotalPrice < b.TotalPrice
	}
	if daysLess(a.EstimatedDays, b.EstimatedDays) {
		return true
	}
	if daysLess(b.EstimatedDays, a.EstimatedDays) {
		return false
	}
	return a.ServiceName < b.ServiceName
}

func daysLess(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
