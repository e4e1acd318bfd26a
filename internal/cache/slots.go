package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

const generationKey = "slots:generation"

// SlotCache keeps slot listings in Redis. Every write bumps a generation
// counter that is part of each listing key, so stale listings are never read
// and simply expire. A nil *SlotCache is a valid disabled cache.
type SlotCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewSlotCache(client *redis.Client, ttl time.Duration, log *zerolog.Logger) *SlotCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &SlotCache{redis: client, ttl: ttl, log: log}
}

func (c *SlotCache) listKey(ctx context.Context, f model.SlotFilter) (string, error) {
	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("slots:list:%d:%s:%s:%s:%t", gen, f.Category, f.Date, f.Kind, f.IncludeDeleted), nil
}

// Get returns the cached listing for f, if any, and the key a listing read
// after this miss has to be stored under. The key is bound to the generation
// seen here, so a write that lands before Set makes the stored listing
// unreachable. Redis errors count as a miss with an empty key.
func (c *SlotCache) Get(ctx context.Context, f model.SlotFilter) ([]model.Slot, string, bool) {
	if c == nil {
		return nil, "", false
	}
	key, err := c.listKey(ctx, f)
	if err != nil {
		c.log.Warn().Err(err).Msg("slot cache: failed to read generation")
		return nil, "", false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Str("key", key).Msg("slot cache: read failed")
		}
		return nil, key, false
	}
	var slots []model.Slot
	if err := json.Unmarshal(val, &slots); err != nil {
		return nil, key, false
	}
	return slots, key, true
}

// Set stores slots under a key returned by Get. An empty key is ignored.
func (c *SlotCache) Set(ctx context.Context, key string, slots []model.Slot) {
	if c == nil || key == "" {
		return
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("slot cache: write failed")
	}
}

// Invalidate drops every cached listing.
func (c *SlotCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.redis.Incr(ctx, generationKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("slot cache: invalidate failed")
	}
}
