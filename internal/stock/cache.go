package stock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// recentKey is a sorted set of "location|code" members scored by last use.
const recentKey = "billing:stock:recent"

// CachedProvider serves snapshots from Redis and fills misses from next.
// Concurrent misses for the same query share one upstream call.
type CachedProvider struct {
	client  *redis.Client
	next    Provider
	ttl     time.Duration
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedProvider wraps next with a Redis cache.
func NewCachedProvider(client *redis.Client, next Provider, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{client: client, next: next, ttl: ttl, metrics: metrics, logger: logger}
}

// Snapshot returns cached items and fetches the rest.
func (c *CachedProvider) Snapshot(ctx context.Context, q Query) ([]billing.StockAvailability, error) {
	if len(q.ItemCodes) == 0 {
		return c.next.Snapshot(ctx, q)
	}
	c.touch(ctx, q)

	cached, missing := c.lookup(ctx, q)
	if len(missing) == 0 {
		c.metrics.ObserveStockFetch("cache", "hit")
		return ordered(q.ItemCodes, cached), nil
	}
	c.metrics.ObserveStockFetch("cache", "miss")

	miss := Query{Location: q.Location, ItemCodes: missing}
	res := c.group.DoChan(miss.Key(), func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), miss)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			c.metrics.ObserveStockFetch("upstream", "error")
			return nil, r.Err
		}
		c.metrics.ObserveStockFetch("upstream", "ok")
		for _, s := range r.Val.([]billing.StockAvailability) {
			cached[billing.NormalizeCode(s.ItemCode)] = s
		}
	}
	return ordered(q.ItemCodes, cached), nil
}

// Refresh re-reads q from the upstream provider and overwrites the cache.
func (c *CachedProvider) Refresh(ctx context.Context, q Query) (int, error) {
	snaps, err := c.fill(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// RecentQueries groups the items looked up within window by location. Older
// entries are pruned.
func (c *CachedProvider) RecentQueries(ctx context.Context, window time.Duration) ([]Query, error) {
	cutoff := time.Now().Add(-window).UnixMilli()
	if err := c.client.ZRemRangeByScore(ctx, recentKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, err
	}
	members, err := c.client.ZRangeByScore(ctx, recentKey, &redis.ZRangeBy{Min: strconv.FormatInt(cutoff, 10), Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	byLocation := map[string][]string{}
	var locations []string
	for _, m := range members {
		loc, code, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		if _, seen := byLocation[loc]; !seen {
			locations = append(locations, loc)
		}
		byLocation[loc] = append(byLocation[loc], code)
	}
	out := make([]Query, 0, len(locations))
	for _, loc := range locations {
		out = append(out, Query{Location: loc, ItemCodes: byLocation[loc]}.Normalized())
	}
	return out, nil
}

func (c *CachedProvider) lookup(ctx context.Context, q Query) (map[string]billing.StockAvailability, []string) {
	found := make(map[string]billing.StockAvailability, len(q.ItemCodes))
	keys := make([]string, len(q.ItemCodes))
	for i, code := range q.ItemCodes {
		keys[i] = shared.StockCacheKey(q.Location, code)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "stock cache read failed", slog.Any("error", err))
		return found, append([]string(nil), q.ItemCodes...)
	}
	var missing []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, q.ItemCodes[i])
			continue
		}
		var snap billing.StockAvailability
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			missing = append(missing, q.ItemCodes[i])
			continue
		}
		found[q.ItemCodes[i]] = snap
	}
	return found, missing
}

func (c *CachedProvider) fill(ctx context.Context, q Query) ([]billing.StockAvailability, error) {
	snaps, err := c.next.Snapshot(ctx, q)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for _, s := range snaps {
		payload, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		pipe.Set(ctx, shared.StockCacheKey(q.Location, billing.NormalizeCode(s.ItemCode)), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "stock cache write failed", slog.Any("error", err))
	}
	return snaps, nil
}

func (c *CachedProvider) touch(ctx context.Context, q Query) {
	now := float64(time.Now().UnixMilli())
	members := make([]redis.Z, len(q.ItemCodes))
	for i, code := range q.ItemCodes {
		members[i] = redis.Z{Score: now, Member: q.Location + "|" + code}
	}
	if err := c.client.ZAdd(ctx, recentKey, members...).Err(); err != nil {
		c.logger.WarnContext(ctx, "stock recent-set update failed", slog.Any("error", err))
	}
}

func ordered(codes []string, found map[string]billing.StockAvailability) []billing.StockAvailability {
	out := make([]billing.StockAvailability, 0, len(found))
	for _, code := range codes {
		if s, ok := found[code]; ok {
			out = append(out, s)
		}
	}
	return out
}
