package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Repository Ports
// ---------------------------------------------------------------------------

// JobRepository provides durable storage for sync jobs
type JobRepository interface {
	// FindByID returns the job or ErrJobNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)

	// FindByOrg returns jobs owned by the org, newest first
	FindByOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (shared.Paginated[*SyncJob], error)

	// Save persists a new job row
	Save(ctx context.Context, job *SyncJob) error

	// MarkRunning transitions pending to running, guarding single-flight
	// per job at the storage level. Returns false without error when the
	// job was not pending.
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)

	// Finalize writes the terminal status, result (or error message) and
	// completion time in one statement.
	Finalize(ctx context.Context, id uuid.UUID, status JobStatus, result *SyncResult, errMsg string, completedAt time.Time) error

	// CancelIfPending moves a pending job straight to cancelled. Returns
	// false without error when the job was not pending.
	CancelIfPending(ctx context.Context, id uuid.UUID) (bool, error)

	// Delete removes a job row, used to roll back a failed enqueue
	Delete(ctx context.Context, id uuid.UUID) error
}

// QueueRepository provides the persisted priority queue
type QueueRepository interface {
	// Enqueue persists a new queue entry
	Enqueue(ctx context.Context, entry *QueueEntry) error

	// Due returns up to limit entries ready to dispatch, ordered by
	// priority weight descending then enqueue time ascending
	Due(ctx context.Context, now time.Time, limit int) ([]*QueueEntry, error)

	// Update persists attempt count and next run time after a retry
	Update(ctx context.Context, entry *QueueEntry) error

	// Remove deletes an entry once its job was handed to the executor
	// or its attempts are exhausted
	Remove(ctx context.Context, id uuid.UUID) error

	// RemoveByJob deletes any entry for the job, used on cancellation
	RemoveByJob(ctx context.Context, jobID uuid.UUID) error
}

// ConflictRepository provides durable storage for detected conflicts
type ConflictRepository interface {
	// Save persists one conflict, resolved or pending
	Save(ctx context.Context, conflict *SyncConflict) error

	// Update persists a resolution fed back by an operator
	Update(ctx context.Context, conflict *SyncConflict) error

	// FindByID returns the conflict or ErrConflictNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*SyncConflict, error)

	// FindPendingByOrg returns unresolved conflicts for an org, oldest first
	FindPendingByOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (shared.Paginated[*SyncConflict], error)

	// FindByJob returns every conflict detected by one job
	FindByJob(ctx context.Context, jobID uuid.UUID) ([]*SyncConflict, error)
}

// MetricsRepository stores per-job performance measurements
type MetricsRepository interface {
	// Save persists the metrics captured for one job run
	Save(ctx context.Context, jobID, orgID uuid.UUID, metrics *PerformanceMetrics) error

	// FindByJob returns the metrics for a job or ErrJobNotFound
	FindByJob(ctx context.Context, jobID uuid.UUID) (*PerformanceMetrics, error)
}
