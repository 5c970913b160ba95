package shipping

import "context"

// RateProvider is the Carrier Rate service.
type RateProvider interface {
	GetRates(ctx context.Context, merchantID, country string) ([]Quote, error)
}

// Catalog is the Catalog/Shipping-profile service.
type Catalog interface {
	// ProductProfile returns the profile assigned directly to the product, or nil.
	ProductProfile(ctx context.Context, productID string) (*Profile, error)
	// GetShippingProfile returns the merchant's default profile, or nil.
	GetShippingProfile(ctx context.Context, merchantID string) (*Profile, error)
}
