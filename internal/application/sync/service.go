package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// JobService
// ---------------------------------------------------------------------------

// JobService handles sync job intake, queries and cancellation. Execution
// itself is the JobExecutor's concern; the service only feeds the queue
// and fires cancel tokens.
type JobService struct {
	jobs         domainsync.JobRepository
	queue        domainsync.QueueRepository
	metrics      domainsync.MetricsRepository
	integrations integration.Repository
	progress     domainsync.ProgressStore
	executor     *JobExecutor
	eventBus     shared.EventPublisher
	syncMetrics  *telemetry.SyncMetrics
	logger       *zap.Logger
}

// NewJobService creates a new JobService
func NewJobService(
	jobs domainsync.JobRepository,
	queue domainsync.QueueRepository,
	metrics domainsync.MetricsRepository,
	integrations integration.Repository,
	progress domainsync.ProgressStore,
	executor *JobExecutor,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		jobs:         jobs,
		queue:        queue,
		metrics:      metrics,
		integrations: integrations,
		progress:     progress,
		executor:     executor,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// SetSyncMetrics sets the sync metrics collector
func (s *JobService) SetSyncMetrics(sm *telemetry.SyncMetrics) {
	s.syncMetrics = sm
}

// CreateSyncJob validates the request against the integration's org,
// persists the job and enqueues it. A queue write failure rolls the job
// row back; a rollback failure logs both errors and surfaces the original
// queueing error.
func (s *JobService) CreateSyncJob(ctx context.Context, orgID, integrationID uuid.UUID, jobType domainsync.JobType, config domainsync.SyncJobConfig) (*domainsync.SyncJob, error) {
	in, err := s.integrations.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !in.BelongsTo(orgID) {
		return nil, integration.ErrIntegrationNotFound
	}
	if !in.Active {
		return nil, integration.ErrIntegrationInactive
	}

	job, err := domainsync.NewSyncJob(orgID, integrationID, jobType, config)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}

	entry := domainsync.NewQueueEntry(job)
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			s.logger.Error("Failed to roll back job after enqueue failure",
				zap.String("job_id", job.ID.String()),
				zap.NamedError("enqueue_error", err),
				zap.NamedError("rollback_error", delErr))
		}
		return nil, fmt.Errorf("enqueueing job: %w", err)
	}

	s.publish(ctx, domainsync.NewJobCreatedEvent(job))
	if s.syncMetrics != nil {
		s.syncMetrics.RecordJobCreated(ctx, orgID, string(jobType))
	}
	s.logger.Info("Sync job created",
		zap.String("job_id", job.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("integration_id", integrationID.String()),
		zap.String("priority", job.Config.Priority.String()),
		zap.Int("entity_types", len(job.Config.EntityTypes)))
	return job, nil
}

// GetJob returns one job scoped to the caller's org
func (s *JobService) GetJob(ctx context.Context, orgID, jobID uuid.UUID) (*domainsync.SyncJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrgID != orgID {
		return nil, domainsync.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns the org's jobs, newest first
func (s *JobService) ListJobs(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (shared.Paginated[*domainsync.SyncJob], error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.jobs.FindByOrg(ctx, orgID, filter)
}

// CancelJob cancels a job. A running job gets its cancel token fired, a
// pending job is cancelled directly and leaves the queue, a terminal job
// is a no-op.
func (s *JobService) CancelJob(ctx context.Context, orgID, jobID uuid.UUID) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OrgID != orgID {
		return domainsync.ErrJobNotFound
	}
	if job.IsTerminal() {
		return nil
	}

	if s.executor != nil && s.executor.Cancel(job.ID) {
		s.logger.Info("Cancel signalled to running job",
			zap.String("job_id", job.ID.String()))
		return nil
	}

	cancelled, err := s.jobs.CancelIfPending(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}
	if !cancelled {
		// The job reached a terminal state or was picked up while this
		// request was in flight; the executor path observes the token.
		return nil
	}

	if err := s.queue.RemoveByJob(ctx, job.ID); err != nil {
		s.logger.Warn("Failed to remove queue entry for cancelled job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}

	job.Status = domainsync.JobStatusCancelled
	s.publish(ctx, domainsync.NewJobCancelledEvent(job))
	s.logger.Info("Pending job cancelled",
		zap.String("job_id", job.ID.String()),
		zap.String("org_id", orgID.String()))
	return nil
}

// GetProgress returns the latest progress snapshot for a running job.
// Terminal jobs have no snapshot and report ErrProgressNotFound.
func (s *JobService) GetProgress(ctx context.Context, orgID, jobID uuid.UUID) (*domainsync.SyncProgress, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrgID != orgID {
		return nil, domainsync.ErrJobNotFound
	}
	return s.progress.Get(ctx, job.ID)
}

// GetJobMetrics returns the performance measurements captured for a job run
func (s *JobService) GetJobMetrics(ctx context.Context, orgID, jobID uuid.UUID) (*domainsync.PerformanceMetrics, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrgID != orgID {
		return nil, domainsync.ErrJobNotFound
	}
	return s.metrics.FindByJob(ctx, job.ID)
}

func (s *JobService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish sync event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
}
