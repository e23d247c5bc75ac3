package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/accounting"
)

// Config holds the Redis connection settings.
type Config struct {
	RedisURL string
	Password string
	DB       int
	TTL      time.Duration
}

// Connect opens and pings a Redis client.
func Connect(ctx context.Context, cfg *Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// PricingCache is a read-through cache in front of a pricing lookup.
// Pricing rows change rarely, so the database only sees a lookup once
// per model per TTL window. Cache trouble never fails a request; the
// backing lookup answers instead.
type PricingCache struct {
	client *redis.Client
	source accounting.PricingLookup
	ttl    time.Duration
	logger *zap.Logger
}

// NewPricingCache wraps source with a Redis read-through layer. A nil
// client disables caching and delegates every call.
func NewPricingCache(client *redis.Client, source accounting.PricingLookup, ttl time.Duration, logger *zap.Logger) *PricingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PricingCache{
		client: client,
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

// GetPricing implements accounting.PricingLookup.
func (c *PricingCache) GetPricing(ctx context.Context, model string) (*accounting.Pricing, error) {
	if c.client == nil {
		return c.source.GetPricing(ctx, model)
	}

	key := pricingKey(model)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var pricing accounting.Pricing
		if unmarshalErr := json.Unmarshal(data, &pricing); unmarshalErr == nil {
			return &pricing, nil
		}
		// Corrupt entry, drop it and fall through to the source.
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("Pricing cache read failed", zap.String("model", model), zap.Error(err))
	}

	pricing, err := c.source.GetPricing(ctx, model)
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(pricing); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.logger.Warn("Pricing cache write failed", zap.String("model", model), zap.Error(setErr))
		}
	}

	return pricing, nil
}

// Invalidate evicts one model's cached pricing, used after a reseed.
func (c *PricingCache) Invalidate(ctx context.Context, model string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, pricingKey(model)).Err()
}

func pricingKey(model string) string {
	return "pricing:" + model
}
