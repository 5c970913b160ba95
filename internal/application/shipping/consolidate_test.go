package shipping

import (
	"errors"
	"testing"

	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func days(n int) *int { return &n }

func q(m, service string, price int64, d *int) domship.Quote {
	return domship.Quote{MerchantID: m, ServiceName: service, PriceMinor: price, Currency: "USD", EstimatedDays: d}
}

func TestConsolidateRequiresUniversalCoverage(t *testing.T) {
	quotes := map[string][]domship.Quote{
		"M1": {q("M1", "standard", 500, days(5)), q("M1", "express", 1500, days(2))},
		"M2": {q("M2", "standard", 700, days(4))},
	}

	opts, err := Consolidate([]string{"M1", "M2"}, quotes, "US")

	require.NoError(t, err)
	require.Len(t, opts.Candidates, 1)
	assert.Equal(t, "standard", opts.Default.ServiceName)
	assert.Equal(t, int64(1200), opts.Default.TotalPrice)
	assert.Equal(t, map[string]int64{"M1": 500, "M2": 700}, opts.Default.PerMerchantPrice)
	assert.Equal(t, 5, *opts.Default.EstimatedDays)

	_, err = opts.Find("express")
	assert.ErrorIs(t, err, domship.ErrInvalidSelection)
}

func TestConsolidateUnquotedMerchantIsDistinct(t *testing.T) {
	quotes := map[string][]domship.Quote{"M1": {q("M1", "standard", 500, nil)}}

	_, err := Consolidate([]string{"M1", "M2"}, quotes, "US")

	var unquoted *domship.UnquotedError
	require.True(t, errors.As(err, &unquoted))
	assert.Equal(t, []string{"M2"}, unquoted.Merchants)
	assert.False(t, errors.Is(err, domship.ErrNoValidShippingOption))
}

func TestConsolidateNoCommonService(t *testing.T) {
	quotes := map[string][]domship.Quote{
		"M1": {q("M1", "standard", 500, nil)},
		"M2": {q("M2", "economy", 300, nil)},
	}

	_, err := Consolidate([]string{"M1", "M2"}, quotes, "US")

	assert.ErrorIs(t, err, domship.ErrNoValidShippingOption)
}

func TestConsolidateDefaultTieBreaks(t *testing.T) {
	quotes := map[string][]domship.Quote{
		"M1": {
			q("M1", "bravo", 500, days(3)),
			q("M1", "alpha", 500, days(3)),
			q("M1", "slow", 500, days(9)),
			q("M1", "unknown", 500, nil),
		},
	}

	opts, err := Consolidate([]string{"M1"}, quotes, "US")

	require.NoError(t, err)
	names := make([]string, 0, len(opts.Candidates))
	for _, c := range opts.Candidates {
		names = append(names, c.ServiceName)
	}
	assert.Equal(t, []string{"alpha", "bravo", "slow", "unknown"}, names)
	assert.Equal(t, "alpha", opts.Default.ServiceName)
}

func TestConsolidateKeepsCheapestDuplicateQuote(t *testing.T) {
	quotes := map[string][]domship.Quote{
		"M1": {q("M1", "standard", 900, nil), q("M1", "standard", 400, nil)},
	}

	opts, err := Consolidate([]string{"M1"}, quotes, "US")

	require.NoError(t, err)
	assert.Equal(t, int64(400), opts.Default.TotalPrice)
}

func TestConsolidateDropsMixedCurrencyService(t *testing.T) {
	eur := q("M2", "standard", 700, nil)
	eur.Currency = "EUR"
	quotes := map[string][]domship.Quote{
		"M1": {q("M1", "standard", 500, nil)},
		"M2": {eur},
	}

	_, err := Consolidate([]string{"M1", "M2"}, quotes, "US")

	assert.ErrorIs(t, err, domship.ErrNoValidShippingOption)
}

func TestSelectFallsBackToDefault(t *testing.T) {
	opts := domship.Options{
		Candidates: []domship.Selection{{ServiceName: "standard"}, {ServiceName: "express"}},
		Default:    domship.Selection{ServiceName: "standard"},
	}

	sel, err := Select(opts, "")
	require.NoError(t, err)
	assert.Equal(t, "standard", sel.ServiceName)

	sel, err = Select(opts, "express")
	require.NoError(t, err)
	assert.Equal(t, "express", sel.ServiceName)

	_, err = Select(opts, "overnight")
	assert.ErrorIs(t, err, domship.ErrInvalidSelection)
}
