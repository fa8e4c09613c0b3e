package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainsync "github.com/truthsource/backend/internal/domain/sync"
)

// RedisProgressStore implements ProgressStore using Redis
// This is suitable for distributed deployments where the API instance
// answering a progress request is not the instance executing the job
type RedisProgressStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisProgressStore creates a new Redis-based progress store
func NewRedisProgressStore(cfg RedisConfig, ttl time.Duration) (*RedisProgressStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisProgressStore{
		client:    client,
		keyPrefix: "sync:progress:",
		ttl:       ttl,
	}, nil
}

// NewRedisProgressStoreWithClient creates a store with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisProgressStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisProgressStore {
	if keyPrefix == "" {
		keyPrefix = "sync:progress:"
	}
	return &RedisProgressStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Set overwrites the snapshot for the job. The TTL is refreshed on every
// write, so snapshots of dead jobs expire on their own.
func (s *RedisProgressStore) Set(ctx context.Context, progress *domainsync.SyncProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}

	key := s.keyPrefix + progress.JobID.String()
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store progress snapshot: %w", err)
	}
	return nil
}

// Get returns the latest snapshot for the job
func (s *RedisProgressStore) Get(ctx context.Context, jobID uuid.UUID) (*domainsync.SyncProgress, error) {
	key := s.keyPrefix + jobID.String()

	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domainsync.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress snapshot: %w", err)
	}

	var progress domainsync.SyncProgress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress snapshot: %w", err)
	}
	return &progress, nil
}

// Delete drops the snapshot once a job is terminal
func (s *RedisProgressStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	key := s.keyPrefix + jobID.String()
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete progress snapshot: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisProgressStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisProgressStore) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisProgressStore implements ProgressStore
var _ domainsync.ProgressStore = (*RedisProgressStore)(nil)
