package memory

import (
	"context"
	"strings"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
)

// RateTable is a static carrier rate provider keyed by merchant and country.
// The country "*" applies when no exact entry exists.
type RateTable struct {
	mu     sync.RWMutex
	quotes map[string]map[string][]domain.Quote
}

func NewRateTable() *RateTable {
	return &RateTable{quotes: make(map[string]map[string][]domain.Quote)}
}

func (t *RateTable) Set(merchantID, country string, quotes ...domain.Quote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quotes[merchantID] == nil {
		t.quotes[merchantID] = make(map[string][]domain.Quote)
	}
	for i := range quotes {
		quotes[i].MerchantID = merchantID
	}
	t.quotes[merchantID][strings.ToUpper(country)] = append([]domain.Quote(nil), quotes...)
}

func (t *RateTable) GetRates(ctx context.Context, merchantID, country string) ([]domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	byCountry := t.quotes[merchantID]
	qs, ok := byCountry[strings.ToUpper(country)]
	if !ok {
		qs = byCountry["*"]
	}
	return append([]domain.Quote(nil), qs...), nil
}
