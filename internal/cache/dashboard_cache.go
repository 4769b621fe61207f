package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"as-service/internal/config"
	"as-service/internal/model"
)

const dashboardKey = "as:dashboard:kpis"

// NewRedisClient connects to the configured Redis server. It returns nil
// when no address is configured or the server does not answer a ping, in
// which case callers run without caching.
func NewRedisClient(cfg config.RedisConfig, log zerolog.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable, dashboard cache disabled")
		_ = client.Close()
		return nil
	}
	return client
}

// DashboardCache stores the last computed KPI snapshot. A nil cache is valid
// and behaves as permanently empty.
type DashboardCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewDashboardCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *DashboardCache {
	if client == nil {
		return nil
	}
	return &DashboardCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached snapshot, or ok=false on a miss or any Redis error.
func (c *DashboardCache) Get(ctx context.Context) (*model.DashboardKPIs, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, dashboardKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("dashboard cache read failed")
		}
		return nil, false
	}
	var kpis model.DashboardKPIs
	if err := json.Unmarshal(raw, &kpis); err != nil {
		c.log.Warn().Err(err).Msg("dashboard cache entry corrupt")
		return nil, false
	}
	return &kpis, true
}

func (c *DashboardCache) Set(ctx context.Context, kpis *model.DashboardKPIs) {
	if c == nil || kpis == nil {
		return
	}
	raw, err := json.Marshal(kpis)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, dashboardKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("dashboard cache write failed")
	}
}

func (c *DashboardCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, dashboardKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("dashboard cache invalidate failed")
	}
}
