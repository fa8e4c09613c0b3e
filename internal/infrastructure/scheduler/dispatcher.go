// Package scheduler drains the persisted sync queue into the job executor
// and keeps the connector cache trimmed. One dispatcher runs per server
// instance; the queue table and the executor's single-flight registry keep
// concurrent instances from double-running a job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainsync "github.com/truthsource/backend/internal/domain/sync"
)

// ErrInvalidConfig is returned when dispatcher configuration is invalid
var ErrInvalidConfig = errors.New("scheduler: invalid dispatcher configuration")

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// JobRunner executes one sync job from pickup to terminal status.
// Implemented by the job executor in the application layer.
type JobRunner interface {
	Execute(ctx context.Context, jobID uuid.UUID) error
}

// ConnectorEvictor drops cached connectors that sat idle too long.
// Implemented by the connector cache.
type ConnectorEvictor interface {
	EvictIdle(ctx context.Context, maxIdle time.Duration) int
}

// ---------------------------------------------------------------------------
// DispatcherConfig
// ---------------------------------------------------------------------------

// DispatcherConfig holds configuration for the queue dispatcher
type DispatcherConfig struct {
	// DispatchInterval is how often the queue is polled for due entries
	DispatchInterval time.Duration
	// PollBatch is the maximum number of entries claimed per tick
	PollBatch int
	// JobTimeout is the outer time bound for one dispatched job run
	JobTimeout time.Duration
	// RetryBackoff is the base delay for re-dispatching failed entries
	RetryBackoff time.Duration
	// ConnectorIdleTimeout is the idle age above which connectors are evicted
	ConnectorIdleTimeout time.Duration
	// EvictionInterval is how often idle eviction runs
	EvictionInterval time.Duration
}

// DefaultDispatcherConfig returns default dispatcher configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DispatchInterval:     5 * time.Second,
		PollBatch:            10,
		JobTimeout:           30 * time.Minute,
		RetryBackoff:         30 * time.Second,
		ConnectorIdleTimeout: 15 * time.Minute,
		EvictionInterval:     time.Minute,
	}
}

// Validate validates the configuration
func (c *DispatcherConfig) Validate() error {
	if c.DispatchInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.PollBatch <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryBackoff <= 0 {
		return ErrInvalidConfig
	}
	if c.ConnectorIdleTimeout <= 0 || c.EvictionInterval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher polls the persisted queue and hands due entries to the job
// runner. Entries are removed only after their job reached a terminal
// state, so a crash between pickup and completion re-dispatches the job.
type Dispatcher struct {
	config DispatcherConfig
	queue  domainsync.QueueRepository
	jobs   domainsync.JobRepository
	runner JobRunner
	// evictor may be nil when no connector cache is wired (agent mode)
	evictor ConnectorEvictor
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inflight  map[uuid.UUID]struct{}
}

// NewDispatcher creates a new queue dispatcher
func NewDispatcher(
	config DispatcherConfig,
	queue domainsync.QueueRepository,
	jobs domainsync.JobRepository,
	runner JobRunner,
	evictor ConnectorEvictor,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		config:   config,
		queue:    queue,
		jobs:     jobs,
		runner:   runner,
		evictor:  evictor,
		logger:   logger,
		inflight: make(map[uuid.UUID]struct{}),
	}, nil
}

// Start starts the dispatch and eviction loops
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = true
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.dispatchLoop(ctx)

	if d.evictor != nil {
		d.wg.Add(1)
		go d.evictionLoop(ctx)
	}

	d.logger.Info("Sync dispatcher started",
		zap.Duration("dispatch_interval", d.config.DispatchInterval),
		zap.Int("poll_batch", d.config.PollBatch),
		zap.Duration("job_timeout", d.config.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the dispatcher, waiting for in-flight jobs
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Sync dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Sync dispatcher stop timed out")
		return ctx.Err()
	}
}

// dispatchLoop polls the queue on every tick
func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims due entries and runs each in its own goroutine.
// Entries already in flight on this instance are skipped.
func (d *Dispatcher) dispatchDue(ctx context.Context) {
	entries, err := d.queue.Due(ctx, time.Now().UTC(), d.config.PollBatch)
	if err != nil {
		d.logger.Error("Failed to poll sync queue", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if !d.tryClaim(entry.ID) {
			continue
		}
		d.wg.Add(1)
		go d.runEntry(ctx, entry)
	}
}

// runEntry executes one queue entry and settles its queue row
func (d *Dispatcher) runEntry(ctx context.Context, entry *domainsync.QueueEntry) {
	defer d.wg.Done()
	defer d.releaseClaim(entry.ID)

	jobCtx, cancel := context.WithTimeout(ctx, d.config.JobTimeout)
	defer cancel()

	err := d.runner.Execute(jobCtx, entry.JobID)
	switch {
	case err == nil:
		d.removeEntry(ctx, entry)

	case errors.Is(err, domainsync.ErrTooManyActiveJobs):
		// Executor is at capacity; the entry stays due for the next tick.
		d.logger.Debug("Executor at capacity, deferring job",
			zap.String("job_id", entry.JobID.String()),
		)

	case errors.Is(err, domainsync.ErrJobAlreadyActive):
		// Another instance picked the job up; its dispatcher settles the row.
		d.logger.Debug("Job already running elsewhere",
			zap.String("job_id", entry.JobID.String()),
		)

	case errors.Is(err, domainsync.ErrJobNotPending),
		errors.Is(err, domainsync.ErrJobTerminal),
		errors.Is(err, domainsync.ErrTimedOutBeforeRun):
		// Nothing left to dispatch for this entry.
		d.removeEntry(ctx, entry)

	default:
		d.retryEntry(ctx, entry, err)
	}
}

// retryEntry consumes an attempt and either re-schedules the entry or,
// once attempts are exhausted, fails the job for good.
func (d *Dispatcher) retryEntry(ctx context.Context, entry *domainsync.QueueEntry, cause error) {
	// Queue bookkeeping must survive shutdown cancellation.
	storeCtx := context.WithoutCancel(ctx)

	if retryErr := entry.ScheduleRetry(d.config.RetryBackoff); retryErr != nil {
		d.logger.Warn("Queue entry attempts exhausted, failing job",
			zap.String("job_id", entry.JobID.String()),
			zap.Int("attempts", entry.Attempts),
			zap.Error(cause),
		)
		d.removeEntry(ctx, entry)
		d.failJob(storeCtx, entry, cause)
		return
	}

	if err := d.queue.Update(storeCtx, entry); err != nil {
		d.logger.Error("Failed to persist queue retry",
			zap.String("job_id", entry.JobID.String()),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("Sync job dispatch failed, retry scheduled",
		zap.String("job_id", entry.JobID.String()),
		zap.Int("attempt", entry.Attempts),
		zap.Int("max_attempts", entry.MaxAttempts),
		zap.Time("run_after", entry.RunAfter),
		zap.Error(cause),
	)
}

// failJob finalizes a job whose dispatch attempts ran out
func (d *Dispatcher) failJob(ctx context.Context, entry *domainsync.QueueEntry, cause error) {
	errMsg := fmt.Sprintf("gave up after %d dispatch attempts: %v", entry.Attempts, cause)
	err := d.jobs.Finalize(ctx, entry.JobID, domainsync.JobStatusFailed, nil, errMsg, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domainsync.ErrJobTerminal) {
			// Cancelled through the API between attempts; already settled.
			return
		}
		d.logger.Error("Failed to finalize exhausted job",
			zap.String("job_id", entry.JobID.String()),
			zap.Error(err),
		)
	}
}

// removeEntry deletes a settled queue row
func (d *Dispatcher) removeEntry(ctx context.Context, entry *domainsync.QueueEntry) {
	if err := d.queue.Remove(context.WithoutCancel(ctx), entry.ID); err != nil {
		// The entry re-dispatches on the next tick and the executor
		// reports the job terminal, so this heals on its own.
		d.logger.Warn("Failed to remove queue entry",
			zap.String("job_id", entry.JobID.String()),
			zap.Error(err),
		)
	}
}

// evictionLoop periodically trims idle connectors from the cache
func (d *Dispatcher) evictionLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.evictor.EvictIdle(ctx, d.config.ConnectorIdleTimeout); n > 0 {
				d.logger.Info("Idle connectors evicted", zap.Int("count", n))
			}
		}
	}
}

// tryClaim marks an entry as in flight on this instance
func (d *Dispatcher) tryClaim(entryID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inflight[entryID]; exists {
		return false
	}
	d.inflight[entryID] = struct{}{}
	return true
}

// releaseClaim frees an in-flight entry
func (d *Dispatcher) releaseClaim(entryID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, entryID)
}

// InflightCount returns the number of entries currently being executed
func (d *Dispatcher) InflightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// GetStatus returns the current status of the dispatcher
func (d *Dispatcher) GetStatus() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return map[string]any{
		"is_running":        d.isRunning,
		"dispatch_interval": d.config.DispatchInterval.String(),
		"poll_batch":        d.config.PollBatch,
		"inflight":          len(d.inflight),
	}
}
