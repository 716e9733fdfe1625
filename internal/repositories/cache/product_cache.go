// Package cache decorates repositories with a Redis read-through layer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories"
)

const (
	productKeyPrefix  = "product:"
	notFoundMarker    = "notfound"
	notFoundTTL       = time.Minute
	defaultProductTTL = 5 * time.Minute
)

// ProductRepository serves FindByID from Redis and delegates every other call. Reads inside a unit of work
// always reach the backing repository, and writes drop the cached entry.
type ProductRepository struct {
	next   repositories.ProductRepository
	redis  redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository wraps next. A non-positive ttl falls back to five minutes.
func NewProductRepository(next repositories.ProductRepository, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *ProductRepository {
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductRepository{next: next, redis: client, ttl: ttl, logger: logger.Named("product_cache")}
}

func productKey(id string) string {
	return productKeyPrefix + id
}

func (c *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if repositories.InTx(ctx) {
		return c.next.FindByID(ctx, productID)
	}

	key := productKey(productID)
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return domain.Product{}, repositories.NewNotFound("cache.product.find", "product %q not found", productID)
		}
		var product domain.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return product, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis read failed, continuing with backing store", zap.String("key", key), zap.Error(err))
	}

	product, err := c.next.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			c.set(ctx, key, notFoundMarker, notFoundTTL)
		}
		return domain.Product{}, err
	}

	payload, err := json.Marshal(product)
	if err != nil {
		c.logger.Warn("encode product for cache", zap.String("key", key), zap.Error(err))
		return product, nil
	}
	c.set(ctx, key, payload, c.ttl)
	return product, nil
}

func (c *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if err := c.next.Insert(ctx, product); err != nil {
		return err
	}
	// Clears a cached notfound marker.
	c.invalidate(ctx, product.ID)
	return nil
}

func (c *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	err := c.next.Update(ctx, product)
	c.invalidate(ctx, product.ID)
	return err
}

func (c *ProductRepository) Delete(ctx context.Context, productID string) error {
	err := c.next.Delete(ctx, productID)
	c.invalidate(ctx, productID)
	return err
}

func (c *ProductRepository) DecrementStock(ctx context.Context, productID string, amount int) error {
	err := c.next.DecrementStock(ctx, productID, amount)
	c.invalidate(ctx, productID)
	return err
}

func (c *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	return c.next.List(ctx, filter)
}

func (c *ProductRepository) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("redis write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate runs with a detached context so a cancelled request still drops the stale entry.
func (c *ProductRepository) invalidate(ctx context.Context, productID string) {
	key := productKey(productID)
	if err := c.redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		c.logger.Warn("redis invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
