package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/infrastructure/secrets"
)

// cacheEntry is one live connector plus its last-use timestamp.
// lastUsed is guarded by Cache.mu.
type cacheEntry struct {
	connector integration.Connector
	lastUsed  time.Time
}

// Cache holds at most one live connector per (platform, integration id).
// On a miss it loads the integration row, unseals the credentials, builds
// the connector through the registry and initializes it. Only successfully
// initialized connectors are stored; a failed initialization is disconnected
// best-effort and the next request starts from scratch. Creation is
// single-flight per key, so concurrent misses share one initialization.
type Cache struct {
	integrations integration.Repository
	sealer       secrets.Sealer
	registry     integration.ConnectorRegistry
	logger       *zap.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	group   singleflight.Group
}

// NewCache creates an empty connector cache
func NewCache(
	integrations integration.Repository,
	sealer secrets.Sealer,
	registry integration.ConnectorRegistry,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		integrations: integrations,
		sealer:       sealer,
		registry:     registry,
		logger:       logger,
		entries:      make(map[string]*cacheEntry),
	}
}

// cacheKey builds the map key for one (platform, integration) pair
func cacheKey(platform integration.PlatformType, integrationID uuid.UUID) string {
	return platform.String() + ":" + integrationID.String()
}

// Get returns the cached connector for the pair, creating and initializing
// one on a miss. Duplicate concurrent callers share a single creation; the
// first caller's context drives it.
func (c *Cache) Get(ctx context.Context, platform integration.PlatformType, integrationID uuid.UUID) (integration.Connector, error) {
	key := cacheKey(platform, integrationID)

	if conn := c.lookup(key); conn != nil {
		return conn, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have populated the entry while this call
		// waited on the flight group.
		if conn := c.lookup(key); conn != nil {
			return conn, nil
		}
		return c.create(ctx, platform, integrationID, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(integration.Connector), nil
}

// lookup returns the cached connector and touches its last-use time
func (c *Cache) lookup(key string) integration.Connector {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.lastUsed = time.Now()
	return e.connector
}

// create loads, builds and initializes a connector, storing it only when
// initialization succeeds
func (c *Cache) create(ctx context.Context, platform integration.PlatformType, integrationID uuid.UUID, key string) (integration.Connector, error) {
	in, err := c.integrations.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !in.Active {
		return nil, fmt.Errorf("%w: %s", integration.ErrIntegrationInactive, in.Name)
	}
	if in.Platform != platform {
		return nil, fmt.Errorf("%w: integration %s is %s, requested %s",
			integration.ErrInvalidPlatform, integrationID, in.Platform, platform)
	}

	credentials, err := c.sealer.Unseal(in.SealedCredentials)
	if err != nil {
		return nil, fmt.Errorf("unseal credentials for integration %s: %w", integrationID, err)
	}

	conn, err := c.registry.Build(platform, integration.ConnectorConfig{
		Platform:      platform,
		IntegrationID: in.ID,
		OrgID:         in.OrgID,
		Credentials:   credentials,
		Settings:      in.Settings,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Initialize(ctx); err != nil {
		// Never cache a connector that failed to initialize; disconnect it
		// so the next attempt gets a fresh instance instead of a poisoned one.
		if derr := conn.Disconnect(ctx); derr != nil {
			c.logger.Warn("disconnect after failed initialization",
				zap.String("platform", platform.String()),
				zap.String("integration_id", integrationID.String()),
				zap.Error(derr),
			)
		}
		return nil, fmt.Errorf("%w: %v", integration.ErrConnectorInitFailed, err)
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry{connector: conn, lastUsed: time.Now()}
	c.mu.Unlock()

	c.logger.Info("connector initialized and cached",
		zap.String("platform", platform.String()),
		zap.String("integration_id", integrationID.String()),
	)
	return conn, nil
}

// EvictIntegration removes and disconnects every cached connector for the
// integration, across platforms. Used when credentials rotate. Returns the
// number of evicted connectors.
func (c *Cache) EvictIntegration(ctx context.Context, integrationID uuid.UUID) int {
	suffix := ":" + integrationID.String()

	c.mu.Lock()
	var victims []integration.Connector
	for key, e := range c.entries {
		if strings.HasSuffix(key, suffix) {
			victims = append(victims, e.connector)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	c.disconnectAll(ctx, victims)
	if len(victims) > 0 {
		c.logger.Info("evicted connectors for integration",
			zap.String("integration_id", integrationID.String()),
			zap.Int("count", len(victims)),
		)
	}
	return len(victims)
}

// EvictAll removes and disconnects every cached connector. Used at shutdown.
func (c *Cache) EvictAll(ctx context.Context) int {
	c.mu.Lock()
	victims := make([]integration.Connector, 0, len(c.entries))
	for key, e := range c.entries {
		victims = append(victims, e.connector)
		delete(c.entries, key)
	}
	c.mu.Unlock()

	c.disconnectAll(ctx, victims)
	return len(victims)
}

// EvictIdle removes and disconnects connectors unused for longer than
// maxIdle. The scheduler calls this on a fixed tick.
func (c *Cache) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	c.mu.Lock()
	var victims []integration.Connector
	for key, e := range c.entries {
		if e.lastUsed.Before(cutoff) {
			victims = append(victims, e.connector)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	c.disconnectAll(ctx, victims)
	if len(victims) > 0 {
		c.logger.Info("evicted idle connectors",
			zap.Duration("max_idle", maxIdle),
			zap.Int("count", len(victims)),
		)
	}
	return len(victims)
}

// disconnectAll disconnects connectors best-effort; failures are logged,
// never propagated
func (c *Cache) disconnectAll(ctx context.Context, connectors []integration.Connector) {
	for _, conn := range connectors {
		if err := conn.Disconnect(ctx); err != nil {
			c.logger.Warn("connector disconnect failed during eviction",
				zap.String("platform", conn.Platform().String()),
				zap.Error(err),
			)
		}
	}
}

// Size returns the number of cached connectors (for testing/monitoring)
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
