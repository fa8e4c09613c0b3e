package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidMonitorConfig is returned when monitor configuration is invalid
var ErrInvalidMonitorConfig = errors.New("offline: invalid monitor configuration")

// ---------------------------------------------------------------------------
// Pinger Port
// ---------------------------------------------------------------------------

// Pinger answers whether the backend is reachable. Satisfied by the
// record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// MonitorConfig
// ---------------------------------------------------------------------------

// MonitorConfig holds configuration for the connection monitor
type MonitorConfig struct {
	// ProbeInterval is how often the backend is probed
	ProbeInterval time.Duration
	// ProbeTimeout bounds one probe
	ProbeTimeout time.Duration
}

// DefaultMonitorConfig returns default monitor configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProbeInterval: 10 * time.Second,
		ProbeTimeout:  3 * time.Second,
	}
}

// Validate validates the configuration
func (c *MonitorConfig) Validate() error {
	if c.ProbeInterval <= 0 {
		return ErrInvalidMonitorConfig
	}
	if c.ProbeTimeout <= 0 {
		return ErrInvalidMonitorConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// ConnectionMonitor
// ---------------------------------------------------------------------------

// ConnectionMonitor probes the backend on a fixed cadence and tracks the
// link state. Subscribers are notified exactly once per offline-to-online
// transition; the monitor starts offline, so the first successful probe
// after startup counts as a transition and flushes whatever a previous
// run left queued.
type ConnectionMonitor struct {
	config MonitorConfig
	pinger Pinger
	logger *zap.Logger

	connected atomic.Bool

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	subscribers []func()
}

// NewConnectionMonitor creates a new connection monitor
func NewConnectionMonitor(config MonitorConfig, pinger Pinger, logger *zap.Logger) (*ConnectionMonitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionMonitor{
		config: config,
		pinger: pinger,
		logger: logger,
	}, nil
}

// Subscribe registers a callback fired on every offline-to-online
// transition. Callbacks run on the monitor's probe goroutine.
func (m *ConnectionMonitor) Subscribe(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// IsConnected reports the last probed link state
func (m *ConnectionMonitor) IsConnected() bool {
	return m.connected.Load()
}

// Start starts the probe loop. The first probe runs immediately.
func (m *ConnectionMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = true
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.probeLoop(ctx)

	m.logger.Info("Connection monitor started",
		zap.Duration("probe_interval", m.config.ProbeInterval),
		zap.Duration("probe_timeout", m.config.ProbeTimeout),
	)
	return nil
}

// Stop gracefully stops the probe loop
func (m *ConnectionMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Connection monitor stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Connection monitor stop timed out")
		return ctx.Err()
	}
}

// probeLoop probes immediately, then on every tick
func (m *ConnectionMonitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	m.probe(ctx)

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe pings the backend once and settles the link state. The swap keeps
// transition detection exact: probes run on one goroutine only.
func (m *ConnectionMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	err := m.pinger.Ping(probeCtx)
	cancel()

	online := err == nil
	was := m.connected.Swap(online)
	switch {
	case online && !was:
		m.logger.Info("Backend connection restored")
		m.notify()
	case !online && was:
		m.logger.Warn("Backend connection lost", zap.Error(err))
	}
}

// notify runs every subscriber for one transition
func (m *ConnectionMonitor) notify() {
	m.mu.Lock()
	subs := make([]func(), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
