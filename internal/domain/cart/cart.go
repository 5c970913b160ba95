package cart

import (
	"errors"
	"fmt"
	"sort"
)

// ErrValidation marks malformed input anywhere in the settlement flow.
var ErrValidation = errors.New("validation")

// Invalid wraps a message as a validation error.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Line is one listing or variant entry in a checkout attempt. Prices are minor units.
type Line struct {
	ID         string
	ListingID  string
	VariantID  string
	MerchantID string
	Quantity   int
	UnitPrice  int64
	Currency   string
	Options    VariantOptions
}

// ProductID is the identifier promotion scopes and shipping profiles refer to.
func (l Line) ProductID() string { return l.ListingID }

// StockKey is the inventory key: the variant when present, the listing otherwise.
func (l Line) StockKey() string {
	if l.VariantID != "" {
		return l.VariantID
	}
	return l.ListingID
}

func (l Line) Subtotal() int64 { return l.UnitPrice * int64(l.Quantity) }

func (l Line) Validate() error {
	switch {
	case l.ID == "":
		return Invalid("line id is required")
	case l.ListingID == "":
		return Invalid("line %s: listing id is required", l.ID)
	case l.MerchantID == "":
		return Invalid("line %s: merchant id is required", l.ID)
	case l.Quantity < 1:
		return Invalid("line %s: quantity must be at least 1", l.ID)
	case l.UnitPrice < 0:
		return Invalid("line %s: unit price must be zero or greater", l.ID)
	case l.Currency == "":
		return Invalid("line %s: currency is required", l.ID)
	}
	return nil
}

type Cart struct {
	ID    string
	Lines []Line
}

// Validate checks every line and requires unique line ids and a single currency.
func (c Cart) Validate() error {
	if len(c.Lines) == 0 {
		return Invalid("cart has no lines")
	}
	seen := make(map[string]struct{}, len(c.Lines))
	currency := c.Lines[0].Currency
	for _, l := range c.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
		if _, dup := seen[l.ID]; dup {
			return Invalid("duplicate line id %s", l.ID)
		}
		seen[l.ID] = struct{}{}
		if l.Currency != currency {
			return Invalid("line %s: currency %s differs from cart currency %s", l.ID, l.Currency, currency)
		}
	}
	return nil
}

// Currency of the cart; empty for an empty cart.
func (c Cart) Currency() string {
	if len(c.Lines) == 0 {
		return ""
	}
	return c.Lines[0].Currency
}

func (c Cart) Subtotal() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c Cart) Line(id string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// Merchants returns the distinct contributing merchant ids, sorted.
func (c Cart) Merchants() []string {
	set := make(map[string]struct{})
	for _, l := range c.Lines {
		set[l.MerchantID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ByMerchant partitions lines by merchant, preserving cart order within a partition.
func (c Cart) ByMerchant() map[string][]Line {
	out := make(map[string][]Line)
	for _, l := range c.Lines {
		out[l.MerchantID] = append(out[l.MerchantID], l)
	}
	return out
}

// Customer identifies the buyer. A guest has no ID.
type Customer struct {
	ID    string
	Email string
}

func (c Customer) IsGuest() bool { return c.ID == "" }

type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

func (a Address) Validate() error {
	if a.Line1 == "" || a.City == "" {
		return Invalid("address line1 and city are required")
	}
	if len(a.Country) != 2 {
		return Invalid("address country must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}
