package sync

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Queue Errors
// ---------------------------------------------------------------------------

var (
	ErrQueueEntryNotFound = errors.New("sync: queue entry not found")
	ErrAttemptsExhausted  = errors.New("sync: queue entry attempts exhausted")
)

// ---------------------------------------------------------------------------
// QueueEntry
// ---------------------------------------------------------------------------

// QueueEntry is the persisted priority queue row a pending job waits in.
// The dispatcher drains entries ordered by priority weight descending,
// then enqueue time ascending.
type QueueEntry struct {
	shared.BaseEntity
	// JobID is the job this entry dispatches
	JobID uuid.UUID
	// OrgID is the owning organization
	OrgID uuid.UUID
	// Priority is the numeric queue weight derived from the job config
	Priority int
	// Attempts counts dispatch attempts so far
	Attempts int
	// MaxAttempts caps dispatch attempts, from the job's retry policy
	MaxAttempts int
	// RunAfter delays dispatch, used for retry backoff
	RunAfter time.Time
}

// NewQueueEntry derives a queue entry from a freshly created job
func NewQueueEntry(job *SyncJob) *QueueEntry {
	now := time.Now().UTC()
	return &QueueEntry{
		BaseEntity:  shared.NewBaseEntity(),
		JobID:       job.ID,
		OrgID:       job.OrgID,
		Priority:    job.Config.Priority.Weight(),
		MaxAttempts: job.Config.RetryPolicy.MaxAttempts,
		RunAfter:    now,
	}
}

// Exhausted returns true once no dispatch attempts remain
func (e *QueueEntry) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// ScheduleRetry consumes one attempt and computes the next dispatch time
// with exponential backoff (base * 2^(attempts-1), capped at 30 minutes).
func (e *QueueEntry) ScheduleRetry(base time.Duration) error {
	e.Attempts++
	if e.Exhausted() {
		return ErrAttemptsExhausted
	}
	delay := base
	for i := 1; i < e.Attempts; i++ {
		delay *= 2
		if delay >= 30*time.Minute {
			delay = 30 * time.Minute
			break
		}
	}
	e.RunAfter = time.Now().UTC().Add(delay)
	e.UpdatedAt = time.Now().UTC()
	return nil
}
