package cache

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/config"
)

// ProgressStoreFactory creates progress stores based on configuration
type ProgressStoreFactory struct {
	redisConfig           config.RedisConfig
	progressTTL           time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ProgressStoreFactoryOption is a functional option for configuring the factory
type ProgressStoreFactoryOption func(*ProgressStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ProgressStoreFactoryOption {
	return func(f *ProgressStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory store
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) ProgressStoreFactoryOption {
	return func(f *ProgressStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewProgressStoreFactory creates a new factory
func NewProgressStoreFactory(cfg config.RedisConfig, ttl time.Duration, opts ...ProgressStoreFactoryOption) *ProgressStoreFactory {
	f := &ProgressStoreFactory{
		redisConfig:           cfg,
		progressTTL:           ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisStore creates a Redis-based progress store
func (f *ProgressStoreFactory) CreateRedisStore() (domainsync.ProgressStore, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	store, err := NewRedisProgressStore(redisCfg, f.progressTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis progress store: %w", err)
	}

	return store, nil
}

// CreateInMemoryStore creates an in-memory progress store
// WARNING: in-memory snapshots are not shared across process instances,
// so progress requests served by another instance will come back empty
func (f *ProgressStoreFactory) CreateInMemoryStore() domainsync.ProgressStore {
	return NewInMemoryProgressStore(f.progressTTL)
}

// CreateStore creates a progress store based on whether Redis is available
// It tries Redis first and falls back to in-memory if Redis is not available
// and AllowInMemoryFallback is true
func (f *ProgressStoreFactory) CreateStore() (domainsync.ProgressStore, error) {
	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis progress store")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for progress snapshots but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory progress store. "+
		"Progress requests served by other instances will return no snapshot.",
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}
