package main

import (
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
)

// seedDemo fills the memory driver with two merchants so the service is usable
// without external collaborators.
func seedDemo(st *memory.Store) error {
	for _, lvl := range []struct {
		key, location string
		priority, qty int
	}{
		{"sku-mug", "wh-east", 0, 25},
		{"sku-mug", "wh-west", 1, 10},
		{"sku-tee", "wh-east", 0, 40},
		{"sku-poster", "studio", 0, 5},
	} {
		if err := st.SeedLevel(lvl.key, lvl.location, lvl.priority, lvl.qty); err != nil {
			return err
		}
	}

	minPurchase := int64(100_00)
	limit := 500
	rules := []*promotion.Rule{
		{
			ID: "rule-welcome", Name: "Welcome 10%", ValueType: promotion.ValuePercentage,
			Value: decimal.NewFromInt(10), IsActive: true,
		},
		{
			ID: "rule-big", Name: "Big basket", Code: "BIG20", ValueType: promotion.ValueFixed,
			Value: decimal.NewFromInt(20), Currency: "USD", MinPurchaseAmount: &minPurchase,
			UsageLimit: &limit, IsActive: true,
		},
	}
	for _, r := range rules {
		if err := st.PutRule(r); err != nil {
			return err
		}
	}
	return nil
}

func seedShipping(catalog *memory.Catalog, rates *memory.RateTable) {
	days := func(n int) *int { return &n }

	catalog.SetMerchantDefault("merchant-kiln", shipping.Profile{ID: "kiln-default", MerchantID: "merchant-kiln", Name: "Domestic", Countries: []string{"US", "CA"}})
	catalog.SetMerchantDefault("merchant-print", shipping.Profile{ID: "print-default", MerchantID: "merchant-print", Name: "US only", Countries: []string{"US"}})
	catalog.AssignProduct("sku-poster", shipping.Profile{ID: "poster-tube", MerchantID: "merchant-print", Name: "Poster tube", Countries: []string{"US", "CA", "GB"}})

	for _, c := range []string{"US", "CA"} {
		rates.Set("merchant-kiln", c,
			shipping.Quote{MerchantID: "merchant-kiln", ServiceName: "standard", PriceMinor: 6_00, Currency: "USD", EstimatedDays: days(5)},
			shipping.Quote{MerchantID: "merchant-kiln", ServiceName: "express", PriceMinor: 18_00, Currency: "USD", EstimatedDays: days(2)},
		)
	}
	rates.Set("merchant-print", "US",
		shipping.Quote{MerchantID: "merchant-print", ServiceName: "standard", PriceMinor: 4_50, Currency: "USD", EstimatedDays: days(4)},
		shipping.Quote{MerchantID: "merchant-print", ServiceName: "express", PriceMinor: 12_00, Currency: "USD", EstimatedDays: days(1)},
	)
}
