package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"

	goredis "github.com/redis/go-redis/v9"
)

const componentRateCache = "rate_cache"

// RateCache serves carrier quotes from Redis for a short TTL and falls through
// to the wrapped provider on a miss. A Redis outage degrades to uncached reads.
type RateCache struct {
	client goredis.UniversalClient
	next   domship.RateProvider
	ttl    time.Duration
	prefix string
	log    observability.Logger
}

func NewRateCache(client goredis.UniversalClient, next domship.RateProvider, ttl time.Duration, log observability.Logger) *RateCache {
	if log == nil {
		log = observability.NopLogger()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RateCache{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: "settlement:rates",
		log:    log.With(observability.F("component", componentRateCache)),
	}
}

func (c *RateCache) key(merchantID, country string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, merchantID, strings.ToUpper(country))
}

func (c *RateCache) GetRates(ctx context.Context, merchantID, country string) ([]domship.Quote, error) {
	key := c.key(merchantID, country)
	logger := logctx.FromOr(ctx, c.log).With(observability.F("cache_key", key))

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var quotes []domship.Quote
		if jerr := json.Unmarshal(raw, &quotes); jerr == nil {
			return quotes, nil
		}
		logger.Warn("rate_cache_corrupt_entry")
	case errors.Is(err, goredis.Nil):
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		logger.Warn("rate_cache_read_failed", observability.F("error", err))
	}

	quotes, err := c.next.GetRates(ctx, merchantID, country)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(quotes)
	if err != nil {
		return quotes, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.Warn("rate_cache_write_failed", observability.F("error", err))
	}
	return quotes, nil
}
