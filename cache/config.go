package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warp/points-engine/loyalty"
)

const DefaultConfigTTL = time.Minute

// ConfigCache is a read-through cache of tenant points configuration.
// Only configuration is cached: balances are always folded from the ledger.
// Cache failures fall through to the source.
type ConfigCache struct {
	Source loyalty.ConfigSource
	Cache  Cache
	TTL    time.Duration
	Logger *slog.Logger
}

func NewConfigCache(source loyalty.ConfigSource, c Cache, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigCache{Source: source, Cache: c, TTL: ttl, Logger: slog.Default()}
}

// cachedConfig remembers absence too, so tenants on defaults do not hit the
// database on every conversion.
type cachedConfig struct {
	Found  bool                        `json:"found"`
	Config *loyalty.TenantPointsConfig `json:"config,omitempty"`
}

const configKeyPrefix = "tenant-config:"

func configKey(tenantID loyalty.TenantID) string {
	return configKeyPrefix + string(tenantID)
}

func (c *ConfigCache) TenantConfig(ctx context.Context, tenantID loyalty.TenantID) (*loyalty.TenantPointsConfig, error) {
	key := configKey(tenantID)

	var hit cachedConfig
	err := GetJSON(ctx, c.Cache, key, &hit)
	switch {
	case err == nil:
		if !hit.Found {
			return nil, nil
		}
		return hit.Config, nil
	case !errors.Is(err, ErrNotFound):
		c.Logger.WarnContext(ctx, "tenant config cache read failed", "tenant_id", tenantID, "error", err)
	}

	cfg, err := c.Source.TenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := SetJSON(ctx, c.Cache, key, cachedConfig{Found: cfg != nil, Config: cfg}, c.TTL); err != nil {
		c.Logger.WarnContext(ctx, "tenant config cache write failed", "tenant_id", tenantID, "error", err)
	}
	return cfg, nil
}

// Invalidate drops a tenant's cached configuration after an update.
func (c *ConfigCache) Invalidate(ctx context.Context, tenantID loyalty.TenantID) error {
	return c.Cache.Delete(ctx, configKey(tenantID))
}

// InvalidateAll drops every cached tenant configuration, including cached
// absence. Used after the store is wiped.
func (c *ConfigCache) InvalidateAll(ctx context.Context) error {
	return c.Cache.DeletePrefix(ctx, configKeyPrefix)
}
