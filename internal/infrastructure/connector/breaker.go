package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/integration"
)

// BreakerConnector decorates a Connector with a circuit breaker so a
// platform outage fails fast instead of tying up executors in timeouts.
// The breaker guards Sync and TestConnection; Initialize stays unguarded
// because the cache already discards connectors that fail to initialize.
type BreakerConnector struct {
	inner integration.Connector
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerConnector wraps a connector with a circuit breaker.
// The breaker opens after a 60% failure rate over at least 5 requests,
// resets its counts every minute while closed, and probes again two
// minutes after opening.
func NewBreakerConnector(inner integration.Connector, logger *zap.Logger) *BreakerConnector {
	name := inner.Platform().String() + "-connector"

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("connector circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakerConnector{inner: inner, cb: cb}
}

// Platform returns the platform type of the wrapped connector
func (b *BreakerConnector) Platform() integration.PlatformType {
	return b.inner.Platform()
}

// Initialize authenticates the wrapped connector
func (b *BreakerConnector) Initialize(ctx context.Context) error {
	return b.inner.Initialize(ctx)
}

// Sync runs the wrapped sync call under the breaker. When the breaker is
// open the call is rejected as ErrConnectorUnavailable without touching
// the platform.
func (b *BreakerConnector) Sync(ctx context.Context, entityType integration.EntityType, opts integration.SyncOptions) (*integration.EntitySyncResult, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Sync(ctx, entityType, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", integration.ErrConnectorUnavailable, err)
		}
		return nil, err
	}

	result, ok := v.(*integration.EntitySyncResult)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected breaker result type %T", integration.ErrInvalidResponse, v)
	}
	return result, nil
}

// TestConnection probes the platform under the breaker. An open breaker
// reports unreachable without issuing a request.
func (b *BreakerConnector) TestConnection(ctx context.Context) bool {
	v, err := b.cb.Execute(func() (any, error) {
		if !b.inner.TestConnection(ctx) {
			return false, errors.New("connection test failed")
		}
		return true, nil
	})
	if err != nil {
		return false
	}
	reachable, ok := v.(bool)
	return ok && reachable
}

// Disconnect releases the wrapped connector's resources
func (b *BreakerConnector) Disconnect(ctx context.Context) error {
	return b.inner.Disconnect(ctx)
}

// Ensure BreakerConnector implements Connector
var _ integration.Connector = (*BreakerConnector)(nil)
