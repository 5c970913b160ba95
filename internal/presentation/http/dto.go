package httppresentation

import (
	"strings"
	"time"

	appcheckout "github.com/Zhima-Mochi/minishop-settlement/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-settlement/internal/application/inventory"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
)

type optionDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type lineDTO struct {
	ID         string      `json:"id"`
	ListingID  string      `json:"listing_id"`
	VariantID  string      `json:"variant_id,omitempty"`
	MerchantID string      `json:"merchant_id"`
	Quantity   int         `json:"quantity"`
	UnitPrice  int64       `json:"unit_price"`
	Currency   string      `json:"currency"`
	Options    []optionDTO `json:"options,omitempty"`
}

type cartDTO struct {
	ID    string    `json:"id"`
	Lines []lineDTO `json:"lines"`
}

func (c cartDTO) toDomain() cart.Cart {
	out := cart.Cart{ID: c.ID, Lines: make([]cart.Line, 0, len(c.Lines))}
	for _, l := range c.Lines {
		line := cart.Line{
			ID:         l.ID,
			ListingID:  l.ListingID,
			VariantID:  l.VariantID,
			MerchantID: l.MerchantID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			Currency:   strings.ToUpper(l.Currency),
		}
		for _, o := range l.Options {
			line.Options = append(line.Options, cart.Option{Name: o.Name, Value: o.Value})
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

type customerDTO struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c customerDTO) toDomain() cart.Customer { return cart.Customer{ID: c.ID, Email: c.Email} }

type addressDTO struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressDTO) toDomain() cart.Address {
	return cart.Address{
		Name: a.Name, Line1: a.Line1, Line2: a.Line2, City: a.City, Region: a.Region,
		PostalCode: a.PostalCode, Country: strings.ToUpper(a.Country), Phone: a.Phone,
	}
}

type allocationDTO struct {
	CartLineID  string `json:"cart_line_id"`
	PromotionID string `json:"promotion_id"`
	Amount      int64  `json:"amount"`
}

func toAllocations(as []dompromo.Allocation) []allocationDTO {
	out := make([]allocationDTO, 0, len(as))
	for _, a := range as {
		out = append(out, allocationDTO{CartLineID: a.CartLineID, PromotionID: a.PromotionID, Amount: a.Amount})
	}
	return out
}

type ruleApplicationDTO struct {
	RuleID       string `json:"rule_id"`
	RuleName     string `json:"rule_name"`
	FullyApplied bool   `json:"fully_applied"`
}

type hintDTO struct {
	RuleID  string `json:"rule_id"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type codeDTO struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type promotionsResponse struct {
	Allocations      []allocationDTO      `json:"allocations"`
	TotalDiscount    int64                `json:"total_discount"`
	AppliedRuleNames []string             `json:"applied_rule_names"`
	Rules            []ruleApplicationDTO `json:"rules"`
	Hints            []hintDTO            `json:"hints,omitempty"`
	Code             *codeDTO             `json:"code,omitempty"`
}

func toPromotions(res *apppromo.EvaluateResult) promotionsResponse {
	out := promotionsResponse{
		Allocations:      toAllocations(res.Resolution.Allocations),
		TotalDiscount:    res.Resolution.TotalAmount,
		AppliedRuleNames: append([]string{}, res.Resolution.AppliedRuleNames...),
	}
	for _, r := range res.Resolution.Rules {
		out.Rules = append(out.Rules, ruleApplicationDTO{RuleID: r.RuleID, RuleName: r.RuleName, FullyApplied: r.FullyApplied()})
	}
	for _, ev := range res.Automatic {
		if ev.Eligible || ev.Shortfall == nil {
			continue
		}
		out.Hints = append(out.Hints, hintDTO{RuleID: ev.RuleID, Reason: string(ev.Reason), Message: ev.Shortfall.Message()})
	}
	if res.Code.Status != dompromo.CodeNone && res.Code.Status != "" {
		out.Code = &codeDTO{Code: res.Code.Code, Status: string(res.Code.Status), RuleID: res.Code.RuleID, Message: res.Code.Message}
	}
	return out
}

type selectionDTO struct {
	ServiceName      string           `json:"service_name"`
	PerMerchantPrice map[string]int64 `json:"per_merchant_price"`
	Currency         string           `json:"currency"`
	TotalPrice       int64            `json:"total_price"`
	EstimatedDays    *int             `json:"estimated_days,omitempty"`
}

func toSelection(s domship.Selection) selectionDTO {
	return selectionDTO{
		ServiceName: s.ServiceName, PerMerchantPrice: s.PerMerchantPrice,
		Currency: s.Currency, TotalPrice: s.TotalPrice, EstimatedDays: s.EstimatedDays,
	}
}

type shippingOptionsResponse struct {
	Candidates []selectionDTO `json:"candidates"`
	Default    selectionDTO   `json:"default"`
}

func toOptions(o domship.Options) shippingOptionsResponse {
	out := shippingOptionsResponse{Default: toSelection(o.Default), Candidates: make([]selectionDTO, 0, len(o.Candidates))}
	for _, c := range o.Candidates {
		out.Candidates = append(out.Candidates, toSelection(c))
	}
	return out
}

type shortageDTO struct {
	LineID    string `json:"line_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func toShortages(ss []appinventory.Shortage) []shortageDTO {
	var out []shortageDTO
	for _, s := range ss {
		out = append(out, shortageDTO{LineID: s.LineID, Requested: s.Requested, Available: s.Available})
	}
	return out
}

type quoteResponse struct {
	Currency      string                  `json:"currency"`
	Subtotal      int64                   `json:"subtotal"`
	Discount      int64                   `json:"discount"`
	ShippingTotal int64                   `json:"shipping_total"`
	Total         int64                   `json:"total"`
	Promotions    promotionsResponse      `json:"promotions"`
	Shipping      shippingOptionsResponse `json:"shipping"`
	Shortages     []shortageDTO           `json:"shortages,omitempty"`
}

func toQuote(q *appcheckout.Quote) quoteResponse {
	return quoteResponse{
		Currency:      q.Currency,
		Subtotal:      q.Subtotal,
		Discount:      q.Discount,
		ShippingTotal: q.ShippingTotal,
		Total:         q.Total,
		Promotions:    toPromotions(q.Promotions),
		Shipping:      toOptions(q.Shipping),
		Shortages:     toShortages(q.Shortages),
	}
}

type lineItemDTO struct {
	CartLineID     string      `json:"cart_line_id"`
	ListingID      string      `json:"listing_id"`
	VariantID      string      `json:"variant_id,omitempty"`
	Quantity       int         `json:"quantity"`
	UnitPrice      int64       `json:"unit_price"`
	Subtotal       int64       `json:"subtotal"`
	DiscountAmount int64       `json:"discount_amount"`
	PromotionID    string      `json:"promotion_id,omitempty"`
	Options        []optionDTO `json:"options,omitempty"`
}

type orderDTO struct {
	ID                string        `json:"id"`
	CheckoutID        string        `json:"checkout_id"`
	MerchantID        string        `json:"merchant_id"`
	Currency          string        `json:"currency"`
	LineItems         []lineItemDTO `json:"line_items"`
	Subtotal          int64         `json:"subtotal"`
	DiscountAmount    int64         `json:"discount_amount"`
	ShippingAmount    int64         `json:"shipping_amount"`
	TaxAmount         int64         `json:"tax_amount"`
	TotalAmount       int64         `json:"total_amount"`
	ShippingService   string        `json:"shipping_service"`
	PaymentStatus     string        `json:"payment_status"`
	FulfillmentStatus string        `json:"fulfillment_status"`
	Status            string        `json:"status"`
	WorkflowStatus    string        `json:"workflow_status"`
	HoldReason        string        `json:"hold_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

func toOrder(o *domorder.Order) orderDTO {
	out := orderDTO{
		ID: o.ID, CheckoutID: o.CheckoutID, MerchantID: o.MerchantID, Currency: o.Currency,
		Subtotal: o.Subtotal, DiscountAmount: o.DiscountAmount, ShippingAmount: o.ShippingAmount,
		TaxAmount: o.TaxAmount, TotalAmount: o.TotalAmount, ShippingService: o.ShippingService,
		PaymentStatus: string(o.PaymentStatus), FulfillmentStatus: string(o.FulfillmentStatus),
		Status: string(o.Status), WorkflowStatus: string(o.WorkflowStatus), HoldReason: o.HoldReason,
		CreatedAt: o.CreatedAt,
	}
	for _, li := range o.LineItems {
		item := lineItemDTO{
			CartLineID: li.CartLineID, ListingID: li.ListingID, VariantID: li.VariantID,
			Quantity: li.Quantity, UnitPrice: li.UnitPrice, Subtotal: li.Subtotal,
			DiscountAmount: li.DiscountAmount, PromotionID: li.PromotionID,
		}
		for _, opt := range li.Options {
			item.Options = append(item.Options, optionDTO{Name: opt.Name, Value: opt.Value})
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

func toOrders(os []*domorder.Order) []orderDTO {
	out := make([]orderDTO, 0, len(os))
	for _, o := range os {
		out = append(out, toOrder(o))
	}
	return out
}

type sessionDTO struct {
	ID             string   `json:"id"`
	IdempotencyKey string   `json:"idempotency_key"`
	OrderIDs       []string `json:"order_ids"`
	Amount         int64    `json:"amount"`
	Currency       string   `json:"currency"`
	RedirectURL    string   `json:"redirect_url"`
}

func toSession(s *dompay.Session) sessionDTO {
	return sessionDTO{
		ID: s.ID, IdempotencyKey: s.IdempotencyKey, OrderIDs: s.OrderIDs,
		Amount: s.Amount, Currency: s.Currency, RedirectURL: s.RedirectURL,
	}
}
