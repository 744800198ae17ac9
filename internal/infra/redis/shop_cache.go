package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/infra/metrics"
)

var _ repository.ShopRepository = (*shopRepoCacheDecorator)(nil)

// shopRepoCacheDecorator caches shop lookups by ID. Shops are read on every
// create and verify but change rarely.
type shopRepoCacheDecorator struct {
	inner repository.ShopRepository
	cache RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewShopRepoCacheDecorator(inner repository.ShopRepository, cache RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ShopRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &shopRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func shopKey(id string) string { return fmt.Sprintf("shop:id:%s", id) }

// For write operations, we must invalidate before delegating.
func (d *shopRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, s *model.Shop) error {
	_ = d.cache.Del(ctx, shopKey(s.ID))
	return d.inner.Save(ctx, tx, s)
}

func (d *shopRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Shop, error) {
	key := shopKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var shop model.Shop
		if json.Unmarshal([]byte(val), &shop) == nil {
			metrics.IncCacheRequest("shop", "hit")
			return &shop, nil
		}
	} else if !errors.Is(err, redis.Nil) && d.log != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("shop cache read failed")
	}

	metrics.IncCacheRequest("shop", "miss")
	shop, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(shop); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return shop, nil
}

// Pass-through; the list is only used by admin tooling.
func (d *shopRepoCacheDecorator) List(ctx context.Context, tx repository.Tx) ([]*model.Shop, error) {
	metrics.IncCacheRequest("shop_list", "bypass")
	return d.inner.List(ctx, tx)
}
