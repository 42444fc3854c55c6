package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"service-intake/internal/common/logger"
	"service-intake/internal/common/metrics"
	"service-intake/internal/models"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "catalog:"

// CachedCatalog is a read-through Redis cache in front of another Catalog.
// Entries expire after ttl; writers invalidate by key or pattern.
type CachedCatalog struct {
	next   Catalog
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedCatalog(next Catalog, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Component(log, "catalog-cache"),
	}
}

func ServiceKey(code string) string { return cachePrefix + "service:" + code }
func ZoneKey(code string) string    { return cachePrefix + "zone:" + code }
func availabilityKey(zone string) string {
	return cachePrefix + "availability:" + zone
}
func searchKey(query string, limit int) string {
	return fmt.Sprintf("%ssearch:%d:%s", cachePrefix, limit, strings.ToLower(strings.TrimSpace(query)))
}

const (
	servicesKey = cachePrefix + "services"
	zonesKey    = cachePrefix + "zones"
)

// cached returns the value stored at key, or calls load and stores its result.
func cached[T any](ctx context.Context, c *CachedCatalog, entity, key string, load func() (T, error)) (T, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			metrics.CatalogCacheLookups.WithLabelValues(entity, "hit").Inc()
			return v, nil
		}
	} else if !stderrors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache read failed", map[string]interface{}{"key": key, "error": err})
	}
	metrics.CatalogCacheLookups.WithLabelValues(entity, "miss").Inc()

	v, err := load()
	if err != nil {
		return v, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return v, nil
}

func (c *CachedCatalog) GetService(ctx context.Context, code string) (models.Service, error) {
	return cached(ctx, c, "service", ServiceKey(code), func() (models.Service, error) {
		return c.next.GetService(ctx, code)
	})
}

func (c *CachedCatalog) GetZone(ctx context.Context, code string) (models.Zone, error) {
	return cached(ctx, c, "zone", ZoneKey(code), func() (models.Zone, error) {
		return c.next.GetZone(ctx, code)
	})
}

func (c *CachedCatalog) ListServices(ctx context.Context) ([]models.Service, error) {
	return cached(ctx, c, "services", servicesKey, func() ([]models.Service, error) {
		return c.next.ListServices(ctx)
	})
}

func (c *CachedCatalog) ListZones(ctx context.Context) ([]models.Zone, error) {
	return cached(ctx, c, "zones", zonesKey, func() ([]models.Zone, error) {
		return c.next.ListZones(ctx)
	})
}

func (c *CachedCatalog) SearchServices(ctx context.Context, query string, limit int) ([]ServiceMatch, error) {
	return cached(ctx, c, "search", searchKey(query, limit), func() ([]ServiceMatch, error) {
		return c.next.SearchServices(ctx, query, limit)
	})
}

func (c *CachedCatalog) ZoneAvailability(ctx context.Context, zoneCode string) ([]models.Availability, error) {
	return cached(ctx, c, "availability", availabilityKey(zoneCode), func() ([]models.Availability, error) {
		return c.next.ZoneAvailability(ctx, zoneCode)
	})
}

func (c *CachedCatalog) IsServiceAvailable(ctx context.Context, serviceCode, zoneCode string) (bool, error) {
	rows, err := c.ZoneAvailability(ctx, zoneCode)
	if err != nil {
		return false, err
	}
	for _, a := range rows {
		if a.Active && a.ServiceCode == serviceCode {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops specific cache keys, e.g. ServiceKey(code).
func (c *CachedCatalog) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// InvalidatePattern drops every cached key matching a glob relative to the
// catalog prefix, e.g. "search:*". It returns the number of keys removed.
func (c *CachedCatalog) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if !strings.HasPrefix(pattern, cachePrefix) {
		pattern = cachePrefix + pattern
	}

	removed := 0
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete %s: %w", pattern, err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("catalog cache invalidated", map[string]interface{}{
		"pattern": pattern,
		"removed": removed,
	})
	return removed, nil
}
