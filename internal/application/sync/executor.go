// Package sync contains the application services driving sync jobs from
// intake through execution to conflict feedback. The executor owns the job
// lifecycle; repositories, connectors and the progress store are injected
// as ports.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/perf"
	"github.com/truthsource/backend/internal/infrastructure/telemetry"
)

// defaultMaxActiveJobs caps concurrent executions when the caller passes
// no explicit limit.
const defaultMaxActiveJobs = 5

// ---------------------------------------------------------------------------
// ConnectorSource Port
// ---------------------------------------------------------------------------

// ConnectorSource hands out live connectors per integration. Implemented
// by the connector cache in the infrastructure layer.
type ConnectorSource interface {
	// Get returns a ready-to-use connector for the integration
	Get(ctx context.Context, platform integration.PlatformType, integrationID uuid.UUID) (integration.Connector, error)

	// EvictIntegration disconnects and drops any cached connector for the
	// integration, returning the number of entries evicted
	EvictIntegration(ctx context.Context, integrationID uuid.UUID) int
}

// ---------------------------------------------------------------------------
// JobExecutor
// ---------------------------------------------------------------------------

// JobExecutor drives queued sync jobs to a terminal state. One executor
// serves the whole process; active runs are capped per instance and each
// job holds a cancel token for the duration of its run.
type JobExecutor struct {
	jobs         domainsync.JobRepository
	integrations integration.Repository
	metrics      domainsync.MetricsRepository
	connectors   ConnectorSource
	resolver     *ConflictResolver
	progress     domainsync.ProgressStore
	eventBus     shared.EventPublisher
	syncMetrics  *telemetry.SyncMetrics
	logger       *zap.Logger

	maxActive int
	mu        sync.Mutex
	active    map[uuid.UUID]context.CancelFunc
}

// NewJobExecutor creates a new JobExecutor. maxActive bounds concurrent
// runs; zero or negative selects the default.
func NewJobExecutor(
	jobs domainsync.JobRepository,
	integrations integration.Repository,
	metrics domainsync.MetricsRepository,
	connectors ConnectorSource,
	resolver *ConflictResolver,
	progress domainsync.ProgressStore,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
	maxActive int,
) *JobExecutor {
	if maxActive <= 0 {
		maxActive = defaultMaxActiveJobs
	}
	return &JobExecutor{
		jobs:         jobs,
		integrations: integrations,
		metrics:      metrics,
		connectors:   connectors,
		resolver:     resolver,
		progress:     progress,
		eventBus:     eventBus,
		logger:       logger,
		maxActive:    maxActive,
		active:       make(map[uuid.UUID]context.CancelFunc),
	}
}

// SetSyncMetrics sets the sync metrics collector
func (e *JobExecutor) SetSyncMetrics(sm *telemetry.SyncMetrics) {
	e.syncMetrics = sm
}

// Execute drives one pending job to a terminal state. A nil return means
// the job ran and was finalized, whatever the terminal status turned out
// to be. ErrTooManyActiveJobs asks the caller to retry on a later tick;
// ErrTimedOutBeforeRun reports a job whose context expired before the
// first entity, finalized as failed. Connector acquisition errors leave
// the job pending so the next dispatch attempt can retry with a freshly
// built connector.
func (e *JobExecutor) Execute(ctx context.Context, jobID uuid.UUID) error {
	runCtx, cancel := context.WithCancel(ctx)
	if err := e.register(jobID, cancel); err != nil {
		cancel()
		return err
	}
	defer e.release(jobID)

	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.IsTerminal() {
		return domainsync.ErrJobTerminal
	}

	total := len(job.Config.EntityTypes)
	e.publishProgress(runCtx, job, domainsync.PhaseInitializing, 0, total, "", 0)

	in, err := e.integrations.FindByID(runCtx, job.IntegrationID)
	if err != nil {
		return fmt.Errorf("loading integration %s: %w", job.IntegrationID, err)
	}
	conn, err := e.connectors.Get(runCtx, in.Platform, in.ID)
	if err != nil {
		return fmt.Errorf("acquiring %s connector: %w", in.Platform, err)
	}

	startedAt := time.Now().UTC()
	ok, err := e.jobs.MarkRunning(ctx, job.ID, startedAt)
	if err != nil {
		return fmt.Errorf("marking job %s running: %w", job.ID, err)
	}
	if !ok {
		return domainsync.ErrJobNotPending
	}
	job.Status = domainsync.JobStatusRunning
	job.StartedAt = &startedAt

	if job.Config.Timeout > 0 {
		timer := time.AfterFunc(job.Config.Timeout, cancel)
		defer timer.Stop()
	}

	e.publish(runCtx, domainsync.NewJobStartedEvent(job))
	e.logger.Info("Sync job started",
		zap.String("job_id", job.ID.String()),
		zap.String("integration_id", job.IntegrationID.String()),
		zap.String("platform", in.Platform.String()),
		zap.Int("entity_types", total))

	return e.run(ctx, runCtx, job, in, conn)
}

// run walks the configured entity types in order, folds their results and
// finalizes the job. Cancellation is observed between entities; whatever
// was already processed stays in the result.
func (e *JobExecutor) run(ctx, runCtx context.Context, job *domainsync.SyncJob, in *integration.Integration, conn integration.Connector) error {
	// Finalization must outlive cancellation; the job row always ends
	// terminal even when the run context is gone.
	finalizeCtx := context.WithoutCancel(ctx)

	started := time.Now()
	tracker := perf.Start()
	result := domainsync.NewSyncResult()
	total := len(job.Config.EntityTypes)

	if runCtx.Err() != nil {
		result.Finalize(time.Since(started))
		result.Metrics = tracker.Finish()
		if err := e.finalize(finalizeCtx, job, in.Platform.String(), result, domainsync.JobStatusFailed, "timed out before execution"); err != nil {
			return err
		}
		return domainsync.ErrTimedOutBeforeRun
	}

	opts := integration.SyncOptions{
		Force:     job.Config.Mode == domainsync.ModeFull,
		DryRun:    job.Config.DryRun,
		BatchSize: job.Config.BatchSize,
	}

	finished := 0
	processed := 0
	for _, entityType := range job.Config.EntityTypes {
		if runCtx.Err() != nil {
			break
		}
		e.publishProgress(runCtx, job, domainsync.PhaseFetching, finished, total, entityType, processed)

		var entityResult *integration.EntitySyncResult
		err := tracker.Track(perf.CallAPI, func() error {
			var syncErr error
			entityResult, syncErr = conn.Sync(runCtx, entityType, opts)
			return syncErr
		})
		if err != nil {
			if runCtx.Err() != nil {
				// Cancelled mid-entity; keep what already finished.
				break
			}
			finished++
			result.AddError(entityType, err)
			e.logger.Warn("Entity sync failed",
				zap.String("job_id", job.ID.String()),
				zap.String("entity_type", entityType.String()),
				zap.Error(err))
			continue
		}

		finished++
		processed += entityResult.Processed
		result.FoldEntity(entityResult)

		if e.syncMetrics != nil {
			e.syncMetrics.RecordRecordsProcessed(runCtx, job.OrgID, in.Platform.String(), entityType.String(), int64(entityResult.Processed))
			e.syncMetrics.RecordConflictsDetected(runCtx, job.OrgID, in.Platform.String(), entityType.String(), int64(len(entityResult.Conflicts)))
		}

		if len(entityResult.Conflicts) > 0 {
			storageStart := time.Now()
			conflicts := e.resolver.Resolve(finalizeCtx, job, entityResult.Conflicts)
			tracker.RecordStorageCall(time.Since(storageStart))
			result.AddConflicts(conflicts)
		}
	}

	e.publishProgress(finalizeCtx, job, domainsync.PhaseFinalizing, finished, total, "", processed)

	result.Finalize(time.Since(started))
	result.Metrics = tracker.Finish()

	status := result.DeriveStatus()
	var errMsg string
	if runCtx.Err() != nil {
		status = domainsync.JobStatusCancelled
	} else if status == domainsync.JobStatusFailed {
		errMsg = fmt.Sprintf("all %d entity types failed", len(result.Errors))
	}

	if err := e.finalize(finalizeCtx, job, in.Platform.String(), result, status, errMsg); err != nil {
		return err
	}

	if status == domainsync.JobStatusCompleted || status == domainsync.JobStatusCompletedWithErrors {
		in.MarkSynced(time.Now().UTC())
		if err := e.integrations.Update(finalizeCtx, in); err != nil {
			e.logger.Warn("Failed to record integration sync time",
				zap.String("integration_id", in.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// finalize writes the terminal state and result in one repository call,
// persists the run metrics, drops the progress snapshot and emits the
// matching lifecycle event.
func (e *JobExecutor) finalize(ctx context.Context, job *domainsync.SyncJob, platform string, result *domainsync.SyncResult, status domainsync.JobStatus, errMsg string) error {
	if err := job.Finish(status, result, errMsg); err != nil {
		return fmt.Errorf("finishing job %s: %w", job.ID, err)
	}
	if err := e.jobs.Finalize(ctx, job.ID, status, result, errMsg, *job.CompletedAt); err != nil {
		return fmt.Errorf("finalizing job %s: %w", job.ID, err)
	}

	if result.Metrics != nil {
		if err := e.metrics.Save(ctx, job.ID, job.OrgID, result.Metrics); err != nil {
			e.logger.Warn("Failed to persist job metrics",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
	}
	if err := e.progress.Delete(ctx, job.ID); err != nil {
		e.logger.Warn("Failed to drop progress snapshot",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}

	switch status {
	case domainsync.JobStatusFailed:
		e.publish(ctx, domainsync.NewJobFailedEvent(job, errMsg))
	case domainsync.JobStatusCancelled:
		e.publish(ctx, domainsync.NewJobCancelledEvent(job))
	default:
		e.publish(ctx, domainsync.NewJobCompletedEvent(job, result))
	}

	if e.syncMetrics != nil {
		e.syncMetrics.RecordJobFinished(ctx, job.OrgID, platform, status.String(), result.Duration)
	}

	e.logger.Info("Sync job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", status.String()),
		zap.Int("processed", result.Summary.TotalProcessed),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))
	return nil
}

// Cancel fires the cancel token of an actively executing job. It returns
// false when this instance is not executing the job.
func (e *JobExecutor) Cancel(jobID uuid.UUID) bool {
	e.mu.Lock()
	cancel, ok := e.active[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveCount returns the number of jobs this instance is executing
func (e *JobExecutor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// register claims an active slot and the per-job cancel token. The slot
// check and the single-flight check share one critical section.
func (e *JobExecutor) register(jobID uuid.UUID, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.active) >= e.maxActive {
		return domainsync.ErrTooManyActiveJobs
	}
	if _, exists := e.active[jobID]; exists {
		return domainsync.ErrJobAlreadyActive
	}
	e.active[jobID] = cancel
	return nil
}

// release cancels the run context and frees the job's active slot
func (e *JobExecutor) release(jobID uuid.UUID) {
	e.mu.Lock()
	cancel, ok := e.active[jobID]
	delete(e.active, jobID)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// publishProgress overwrites the job's progress snapshot and mirrors it
// on the event bus. Snapshots are advisory; failures are logged, never
// propagated.
func (e *JobExecutor) publishProgress(ctx context.Context, job *domainsync.SyncJob, phase domainsync.SyncPhase, completed, total int, current integration.EntityType, processed int) {
	p := domainsync.NewSyncProgress(job.ID, phase, completed, total, current)
	p.RecordsProcessed = processed
	if err := e.progress.Set(ctx, p); err != nil {
		e.logger.Warn("Failed to store progress snapshot",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
	e.publish(ctx, domainsync.NewJobProgressEvent(job, p))
}

func (e *JobExecutor) publish(ctx context.Context, event shared.DomainEvent) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish sync event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
}
