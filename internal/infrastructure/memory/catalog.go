package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
)

// Catalog holds shipping profiles by product and by merchant.
type Catalog struct {
	mu        sync.RWMutex
	products  map[string]*domain.Profile
	merchants map[string]*domain.Profile
}

func NewCatalog() *Catalog {
	return &Catalog{
		products:  make(map[string]*domain.Profile),
		merchants: make(map[string]*domain.Profile),
	}
}

func (c *Catalog) AssignProduct(productID string, p domain.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID] = cloneProfile(&p)
}

func (c *Catalog) SetMerchantDefault(merchantID string, p domain.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.MerchantID = merchantID
	c.merchants[merchantID] = cloneProfile(&p)
}

func (c *Catalog) ProductProfile(ctx context.Context, productID string) (*domain.Profile, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneProfile(c.products[productID]), nil
}

func (c *Catalog) GetShippingProfile(ctx context.Context, merchantID string) (*domain.Profile, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneProfile(c.merchants[merchantID]), nil
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Countries = append([]string(nil), p.Countries...)
	return &clone
}
