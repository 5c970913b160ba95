package promotion

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	"github.com/shopspring/decimal"
)

var (
	ErrCodeNotFound       = errors.New("promotion: code not found")
	ErrNotEligible        = errors.New("promotion: not eligible")
	ErrNoImprovement      = errors.New("promotion: no improvement over current allocation")
	ErrUsageLimitReached  = errors.New("promotion: usage limit reached")
	ErrNotFound           = errors.New("promotion: rule not found")
	errInvalidRuleValue   = errors.New("promotion: value must be greater than zero")
	errInvalidPercentage  = errors.New("promotion: percentage must not exceed 100")
	errUnknownValueType   = errors.New("promotion: unknown value type")
	errMissingRuleID      = errors.New("promotion: rule id is required")
	errFixedNeedsCurrency = errors.New("promotion: fixed rule requires a currency")
)

type ValueType string

const (
	ValuePercentage ValueType = "percentage"
	ValueFixed      ValueType = "fixed"
)

type EligibilityKind string

const (
	EligibleAll      EligibilityKind = "all"
	EligibleSpecific EligibilityKind = "specific"
)

// CustomerEligibility restricts a rule to listed customer ids or emails.
type CustomerEligibility struct {
	Kind      EligibilityKind
	Customers []string
}

type ScopeKind string

const (
	ScopeAllProducts      ScopeKind = "all_products"
	ScopeSpecificProducts ScopeKind = "specific_products"
)

type TargetScope struct {
	Kind       ScopeKind
	ProductIDs []string
}

type Window struct {
	StartsAt *time.Time
	EndsAt   *time.Time
}

// Contains reports whether now falls inside the window. Open ends are unbounded.
func (w Window) Contains(now time.Time) bool {
	if w.StartsAt != nil && now.Before(*w.StartsAt) {
		return false
	}
	if w.EndsAt != nil && !now.Before(*w.EndsAt) {
		return false
	}
	return true
}

// Rule is a discount definition. Value is a percent for percentage rules and a
// major-unit amount for fixed rules; minimum amounts are minor units.
type Rule struct {
	ID                  string
	Name                string
	Code                string
	ValueType           ValueType
	Value               decimal.Decimal
	Currency            string
	Eligibility         CustomerEligibility
	Scope               TargetScope
	MinPurchaseAmount   *int64
	MinPurchaseQuantity *int
	UsageLimit          *int
	UsageCount          int
	Window              Window
	IsActive            bool
	CreatedAt           time.Time
}

func (r *Rule) Validate() error {
	if r.ID == "" {
		return errMissingRuleID
	}
	if !r.Value.IsPositive() {
		return errInvalidRuleValue
	}
	switch r.ValueType {
	case ValuePercentage:
		if r.Value.GreaterThan(decimal.NewFromInt(100)) {
			return errInvalidPercentage
		}
	case ValueFixed:
		if r.Currency == "" {
			return errFixedNeedsCurrency
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownValueType, r.ValueType)
	}
	return nil
}

func (r *Rule) Coded() bool { return r.Code != "" }

// Availability reports why a rule cannot be redeemed right now, or ReasonNone.
func (r *Rule) Availability(now time.Time) Reason {
	switch {
	case !r.IsActive:
		return ReasonInactive
	case r.Window.StartsAt != nil && now.Before(*r.Window.StartsAt):
		return ReasonNotStarted
	case !r.Window.Contains(now):
		return ReasonExpired
	case r.UsageLimit != nil && r.UsageCount >= *r.UsageLimit:
		return ReasonUsageLimitReached
	}
	return ReasonNone
}

// EligibleCustomer matches the customer against the eligibility set. Guests only
// qualify for rules open to all customers.
func (r *Rule) EligibleCustomer(c cart.Customer) bool {
	if r.Eligibility.Kind != EligibleSpecific {
		return true
	}
	if c.IsGuest() {
		return false
	}
	for _, id := range r.Eligibility.Customers {
		if id == c.ID || (c.Email != "" && strings.EqualFold(id, c.Email)) {
			return true
		}
	}
	return false
}

func (r *Rule) Targets(productID string) bool {
	if r.Scope.Kind != ScopeSpecificProducts {
		return true
	}
	return slices.Contains(r.Scope.ProductIDs, productID)
}

// NormalizeCode is the canonical form codes are stored and looked up with.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
