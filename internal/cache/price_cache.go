package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"buildmart/internal/core"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	// price:{product}:{customer}:{qty}:{yyyy-mm-dd} -> core.PriceResult JSON
	keyPrice = "price:%d:%d:%s:%s"
)

var ttlPrice = 5 * time.Minute

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// cachedPricing decorates a PricingService with a short-lived Redis cache on
// price resolution. Resolution is deterministic for a given day, so the cache
// key includes the asOf date; contract activations and list changes become
// visible after at most the TTL. Redis failures degrade to the inner service.
type cachedPricing struct {
	core.PricingService
	rdb *redis.Client
}

// NewCachedPricing wraps pricing with the Redis read-through cache. A nil
// client returns pricing unchanged.
func NewCachedPricing(pricing core.PricingService, rdb *redis.Client) core.PricingService {
	if rdb == nil {
		return pricing
	}
	return &cachedPricing{PricingService: pricing, rdb: rdb}
}

func (c *cachedPricing) GetEffectivePrice(ctx context.Context, productID, customerID int, quantity decimal.Decimal, asOf time.Time) (*core.PriceResult, error) {
	key := fmt.Sprintf(keyPrice, productID, customerID, quantity.String(), asOf.Format("2006-01-02"))

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached core.PriceResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	} else if err != redis.Nil {
		log.Printf("cache: get %s: %v", key, err)
	}

	result, err := c.PricingService.GetEffectivePrice(ctx, productID, customerID, quantity, asOf)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(result); err == nil {
		if err := c.rdb.Set(ctx, key, raw, ttlPrice).Err(); err != nil {
			log.Printf("cache: set %s: %v", key, err)
		}
	}
	return result, nil
}

// GetPricesForOrder goes through the cached single-item path so batch pricing
// benefits from (and warms) the same entries.
func (c *cachedPricing) GetPricesForOrder(ctx context.Context, customerID int, items []core.PriceRequestItem) ([]core.PriceResult, error) {
	asOf := time.Now()
	results := make([]core.PriceResult, 0, len(items))
	for _, item := range items {
		r, err := c.GetEffectivePrice(ctx, item.ProductID, customerID, item.Quantity, asOf)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}
