package sync

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// SyncJob Errors
// ---------------------------------------------------------------------------

var (
	// Job errors
	ErrJobNotFound       = errors.New("sync: job not found")
	ErrJobNotPending     = errors.New("sync: job is not pending")
	ErrJobAlreadyActive  = errors.New("sync: job already has an active executor")
	ErrJobTerminal       = errors.New("sync: job is already in a terminal state")
	ErrTooManyActiveJobs = errors.New("sync: maximum concurrent jobs reached")
	ErrTimedOutBeforeRun = errors.New("sync: timed out before execution")

	// Config errors
	ErrNoEntityTypes      = errors.New("sync: at least one entity type is required")
	ErrInvalidMode        = errors.New("sync: invalid sync mode")
	ErrInvalidPriority    = errors.New("sync: invalid job priority")
	ErrInvalidJobType     = errors.New("sync: invalid job type")
	ErrInvalidStrategy    = errors.New("sync: invalid conflict strategy")
	ErrNonTerminalStatus  = errors.New("sync: finish requires a terminal status")
	ErrInvalidTransition  = errors.New("sync: invalid job status transition")
	ErrInvalidOrgID       = errors.New("sync: invalid org ID")
	ErrInvalidIntegration = errors.New("sync: invalid integration ID")

	// Progress errors
	ErrProgressNotFound = errors.New("sync: no progress snapshot for job")
)

// ---------------------------------------------------------------------------
// JobStatus represents the lifecycle state of a sync job
// ---------------------------------------------------------------------------

// JobStatus represents the lifecycle state of a sync job
type JobStatus string

const (
	// JobStatusPending indicates the job waits in the queue
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates an executor is driving the job
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every entity type synced cleanly
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCompletedWithErrors indicates a partial success
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	// JobStatusFailed indicates no entity type synced successfully
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled or timed out
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValid returns true if the status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted,
		JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true once a job can no longer change state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// JobPriority represents queue priority
// ---------------------------------------------------------------------------

// JobPriority represents queue priority
type JobPriority string

const (
	// PriorityHigh jumps the queue, weight 80
	PriorityHigh JobPriority = "high"
	// PriorityNormal is the default, weight 50
	PriorityNormal JobPriority = "normal"
	// PriorityLow runs after everything else, weight 20
	PriorityLow JobPriority = "low"
)

// IsValid returns true if the priority is valid
func (p JobPriority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobPriority
func (p JobPriority) String() string {
	return string(p)
}

// Weight returns the numeric queue weight for ordering
func (p JobPriority) Weight() int {
	switch p {
	case PriorityHigh:
		return 80
	case PriorityLow:
		return 20
	default:
		return 50
	}
}

// ---------------------------------------------------------------------------
// SyncMode represents full or incremental reconciliation
// ---------------------------------------------------------------------------

// SyncMode represents full or incremental reconciliation
type SyncMode string

const (
	// ModeFull reconciles every record
	ModeFull SyncMode = "full"
	// ModeIncremental reconciles records changed since the last sync
	ModeIncremental SyncMode = "incremental"
)

// IsValid returns true if the mode is valid
func (m SyncMode) IsValid() bool {
	return m == ModeFull || m == ModeIncremental
}

// String returns the string representation of SyncMode
func (m SyncMode) String() string {
	return string(m)
}

// ---------------------------------------------------------------------------
// JobType represents what triggered a job
// ---------------------------------------------------------------------------

// JobType represents what triggered a job
type JobType string

const (
	// JobTypeManual is an operator-requested run
	JobTypeManual JobType = "manual"
	// JobTypeScheduled is a cron-style recurring run
	JobTypeScheduled JobType = "scheduled"
	// JobTypeWebhook is a run triggered by a platform webhook
	JobTypeWebhook JobType = "webhook"
)

// IsValid returns true if the job type is valid
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeManual, JobTypeScheduled, JobTypeWebhook:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobType
func (t JobType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy bounds queue-level retries of a job that failed to run
type RetryPolicy struct {
	// MaxAttempts caps total dispatch attempts, including the first
	MaxAttempts int `json:"max_attempts"`
	// Backoff is the base delay between attempts; the dispatcher doubles
	// it per attempt
	Backoff time.Duration `json:"backoff"`
}

// Default retry policy applied when the caller leaves it zero
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 30 * time.Second
)

// ---------------------------------------------------------------------------
// SyncJobConfig
// ---------------------------------------------------------------------------

// Config bounds for batch size normalization
const (
	DefaultBatchSize = 100
	MaxBatchSize     = 1000
)

// SyncJobConfig describes what one job should reconcile and how
type SyncJobConfig struct {
	// EntityTypes are processed strictly in slice order
	EntityTypes []integration.EntityType `json:"entity_types"`
	// BatchSize is the per-request page size passed to the connector
	BatchSize int `json:"batch_size"`
	// Mode picks full or incremental reconciliation
	Mode SyncMode `json:"mode"`
	// Priority derives the queue weight
	Priority JobPriority `json:"priority"`
	// RetryPolicy bounds dispatch retries
	RetryPolicy RetryPolicy `json:"retry_policy"`
	// ConflictStrategy picks how detected conflicts are settled
	ConflictStrategy ResolutionStrategy `json:"conflict_strategy"`
	// Timeout cancels the job when exceeded; zero means no timeout
	Timeout time.Duration `json:"timeout"`
	// DryRun diffs without writing to either side
	DryRun bool `json:"dry_run"`
}

// Validate checks the config and normalizes zero values to defaults.
// Invalid enum values are rejected rather than silently coerced.
func (c *SyncJobConfig) Validate() error {
	if len(c.EntityTypes) == 0 {
		return ErrNoEntityTypes
	}
	for _, et := range c.EntityTypes {
		if !et.IsValid() {
			return integration.ErrInvalidEntityType
		}
	}
	if c.Mode == "" {
		c.Mode = ModeFull
	} else if !c.Mode.IsValid() {
		return ErrInvalidMode
	}
	if c.Priority == "" {
		c.Priority = PriorityNormal
	} else if !c.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = StrategySourceWins
	} else if !c.ConflictStrategy.IsValid() {
		return ErrInvalidStrategy
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	} else if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.RetryPolicy.MaxAttempts <= 0 {
		c.RetryPolicy.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryPolicy.Backoff <= 0 {
		c.RetryPolicy.Backoff = DefaultRetryBackoff
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncJob Entity
// ---------------------------------------------------------------------------

// SyncJob is a unit of work reconciling one or more entity types against
// one integration. It is created by the job service, mutated only by the
// executor and by cancellation, and terminal once completed, failed or
// cancelled.
type SyncJob struct {
	shared.BaseEntity
	// OrgID is the owning organization
	OrgID uuid.UUID
	// IntegrationID is the target integration
	IntegrationID uuid.UUID
	// Type records what triggered the job
	Type JobType
	// Config describes what to reconcile and how
	Config SyncJobConfig
	// Status is the lifecycle state
	Status JobStatus
	// StartedAt is set when the executor picks the job up
	StartedAt *time.Time
	// CompletedAt is set on finalization
	CompletedAt *time.Time
	// Result is the immutable outcome, present once terminal
	Result *SyncResult
	// ErrorMessage carries the failure reason for failed jobs
	ErrorMessage string
}

// NewSyncJob creates a pending job after validating and normalizing the config
func NewSyncJob(orgID, integrationID uuid.UUID, jobType JobType, config SyncJobConfig) (*SyncJob, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrgID
	}
	if integrationID == uuid.Nil {
		return nil, ErrInvalidIntegration
	}
	if jobType == "" {
		jobType = JobTypeManual
	} else if !jobType.IsValid() {
		return nil, ErrInvalidJobType
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SyncJob{
		BaseEntity:    shared.NewBaseEntity(),
		OrgID:         orgID,
		IntegrationID: integrationID,
		Type:          jobType,
		Config:        config,
		Status:        JobStatusPending,
	}, nil
}

// IsTerminal returns true once the job can no longer change state
func (j *SyncJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Start transitions the job from pending to running
func (j *SyncJob) Start() error {
	if j.Status != JobStatusPending {
		return ErrJobNotPending
	}
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Finish writes the terminal state and result in one step. It accepts
// transitions from pending (a job that timed out before execution) and
// running; finishing an already-terminal job is an error.
func (j *SyncJob) Finish(status JobStatus, result *SyncResult, errMsg string) error {
	if !status.IsTerminal() {
		return ErrNonTerminalStatus
	}
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	now := time.Now().UTC()
	j.Status = status
	j.Result = result
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}
