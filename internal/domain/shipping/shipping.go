package shipping

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	ErrUnshippable           = errors.New("shipping: cart cannot ship to destination")
	ErrMerchantUnquoted      = errors.New("shipping: merchant has no carrier rates for destination")
	ErrNoValidShippingOption = errors.New("shipping: no shipping service common to all merchants")
	ErrInvalidSelection      = errors.New("shipping: selection is not a valid option for this cart")
	ErrRatesUnavailable      = errors.New("shipping: carrier rates unavailable, retry")
	ErrCatalogUnavailable    = errors.New("shipping: shipping profiles unavailable, retry")
)

// Quote is one carrier service offered by one merchant for a destination.
type Quote struct {
	MerchantID    string
	ServiceName   string
	PriceMinor    int64
	Currency      string
	EstimatedDays *int
}

// Selection is a cart-wide shipping option priced per contributing merchant.
type Selection struct {
	ServiceName      string
	PerMerchantPrice map[string]int64
	Currency         string
	TotalPrice       int64
	EstimatedDays    *int
}

// Covers checks the selection prices exactly the given merchants.
func (s Selection) Covers(merchants []string) error {
	if s.ServiceName == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidSelection)
	}
	for _, m := range merchants {
		if _, ok := s.PerMerchantPrice[m]; !ok {
			return fmt.Errorf("%w: no %q price for merchant %s", ErrInvalidSelection, s.ServiceName, m)
		}
	}
	if len(s.PerMerchantPrice) != len(merchants) {
		return fmt.Errorf("%w: selection prices merchants outside the cart", ErrInvalidSelection)
	}
	for m, p := range s.PerMerchantPrice {
		if p < 0 {
			return fmt.Errorf("%w: negative price for merchant %s", ErrInvalidSelection, m)
		}
	}
	return nil
}

// Options is the consolidated result: valid candidates, cheapest first, and the default.
type Options struct {
	Candidates []Selection
	Default    Selection
}

// Find returns the candidate with serviceName.
func (o Options) Find(serviceName string) (Selection, error) {
	for _, c := range o.Candidates {
		if c.ServiceName == serviceName {
			return c, nil
		}
	}
	return Selection{}, fmt.Errorf("%w: %q", ErrInvalidSelection, serviceName)
}

// Profile lists the countries a shipping profile delivers to.
type Profile struct {
	ID         string
	MerchantID string
	Name       string
	Countries  []string
}

func (p *Profile) Covers(country string) bool {
	if p == nil {
		return false
	}
	return slices.ContainsFunc(p.Countries, func(c string) bool {
		return c == "*" || strings.EqualFold(c, country)
	})
}

// BlockedLine is a cart line that cannot ship, with the reason shown to the buyer.
type BlockedLine struct {
	CartLineID string
	ProductID  string
	MerchantID string
	Reason     string
}

// UnshippableError names every blocked line.
type UnshippableError struct {
	Country string
	Lines   []BlockedLine
}

func (e *UnshippableError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s (%s)", l.CartLineID, l.Reason))
	}
	return fmt.Sprintf("shipping: cannot ship to %s: %s", e.Country, strings.Join(parts, "; "))
}

func (e *UnshippableError) Is(target error) bool { return target == ErrUnshippable }

// UnquotedError names merchants without any carrier quote.
type UnquotedError struct {
	Country   string
	Merchants []string
}

func (e *UnquotedError) Error() string {
	m := append([]string(nil), e.Merchants...)
	sort.Strings(m)
	return fmt.Sprintf("shipping: no carrier rates to %s for merchants %s", e.Country, strings.Join(m, ", "))
}

func (e *UnquotedError) Is(target error) bool { return target == ErrMerchantUnquoted }
