package sync

import (
	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeSyncJob = "SyncJob"

// Event type constants
const (
	EventTypeJobCreated       = "SyncJobCreated"
	EventTypeJobStarted       = "SyncJobStarted"
	EventTypeJobProgress      = "SyncJobProgress"
	EventTypeJobCompleted     = "SyncJobCompleted"
	EventTypeJobFailed        = "SyncJobFailed"
	EventTypeJobCancelled     = "SyncJobCancelled"
	EventTypeConflictDetected = "SyncConflictDetected"
)

// JobCreatedEvent is raised when a job is persisted and enqueued
type JobCreatedEvent struct {
	shared.BaseDomainEvent
	JobID         uuid.UUID   `json:"job_id"`
	IntegrationID uuid.UUID   `json:"integration_id"`
	JobType       JobType     `json:"job_type"`
	Priority      JobPriority `json:"priority"`
}

// NewJobCreatedEvent creates a new JobCreatedEvent
func NewJobCreatedEvent(job *SyncJob) *JobCreatedEvent {
	return &JobCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobCreated, AggregateTypeSyncJob, job.ID, job.OrgID),
		JobID:           job.ID,
		IntegrationID:   job.IntegrationID,
		JobType:         job.Type,
		Priority:        job.Config.Priority,
	}
}

// EventType returns the event type name
func (e *JobCreatedEvent) EventType() string {
	return EventTypeJobCreated
}

// JobStartedEvent is raised when the executor picks a job up
type JobStartedEvent struct {
	shared.BaseDomainEvent
	JobID         uuid.UUID                `json:"job_id"`
	IntegrationID uuid.UUID                `json:"integration_id"`
	EntityTypes   []integration.EntityType `json:"entity_types"`
}

// NewJobStartedEvent creates a new JobStartedEvent
func NewJobStartedEvent(job *SyncJob) *JobStartedEvent {
	return &JobStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobStarted, AggregateTypeSyncJob, job.ID, job.OrgID),
		JobID:           job.ID,
		IntegrationID:   job.IntegrationID,
		EntityTypes:     job.Config.EntityTypes,
	}
}

// EventType returns the event type name
func (e *JobStartedEvent) EventType() string {
	return EventTypeJobStarted
}

// JobProgressEvent carries the latest progress snapshot
type JobProgressEvent struct {
	shared.BaseDomainEvent
	Progress *SyncProgress `json:"progress"`
}

// NewJobProgressEvent creates a new JobProgressEvent
func NewJobProgressEvent(job *SyncJob, progress *SyncProgress) *JobProgressEvent {
	return &JobProgressEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobProgress, AggregateTypeSyncJob, job.ID, job.OrgID),
		Progress:        progress,
	}
}

// EventType returns the event type name
func (e *JobProgressEvent) EventType() string {
	return EventTypeJobProgress
}

// JobCompletedEvent is raised when a job finishes, cleanly or partially
type JobCompletedEvent struct {
	shared.BaseDomainEvent
	JobID   uuid.UUID   `json:"job_id"`
	Status  JobStatus   `json:"status"`
	Summary SyncSummary `json:"summary"`
}

// NewJobCompletedEvent creates a new JobCompletedEvent
func NewJobCompletedEvent(job *SyncJob, result *SyncResult) *JobCompletedEvent {
	e := &JobCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobCompleted, AggregateTypeSyncJob, job.ID, job.OrgID),
		JobID:           job.ID,
		Status:          job.Status,
	}
	if result != nil {
		e.Summary = result.Summary
	}
	return e
}

// EventType returns the event type name
func (e *JobCompletedEvent) EventType() string {
	return EventTypeJobCompleted
}

// JobFailedEvent is raised when a job finishes with no successful entity
type JobFailedEvent struct {
	shared.BaseDomainEvent
	JobID uuid.UUID `json:"job_id"`
	Error string    `json:"error"`
}

// NewJobFailedEvent creates a new JobFailedEvent
func NewJobFailedEvent(job *SyncJob, errMsg string) *JobFailedEvent {
	return &JobFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobFailed, AggregateTypeSyncJob, job.ID, job.OrgID),
		JobID:           job.ID,
		Error:           errMsg,
	}
}

// EventType returns the event type name
func (e *JobFailedEvent) EventType() string {
	return EventTypeJobFailed
}

// JobCancelledEvent is raised when a job is cancelled or times out
type JobCancelledEvent struct {
	shared.BaseDomainEvent
	JobID uuid.UUID `json:"job_id"`
}

// NewJobCancelledEvent creates a new JobCancelledEvent
func NewJobCancelledEvent(job *SyncJob) *JobCancelledEvent {
	return &JobCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobCancelled, AggregateTypeSyncJob, job.ID, job.OrgID),
		JobID:           job.ID,
	}
}

// EventType returns the event type name
func (e *JobCancelledEvent) EventType() string {
	return EventTypeJobCancelled
}

// ConflictDetectedEvent is raised for every conflict promoted from a
// connector candidate, resolved or pending
type ConflictDetectedEvent struct {
	shared.BaseDomainEvent
	ConflictID uuid.UUID              `json:"conflict_id"`
	JobID      uuid.UUID              `json:"job_id"`
	EntityType integration.EntityType `json:"entity_type"`
	RecordID   string                 `json:"record_id"`
	Field      string                 `json:"field"`
	Resolved   bool                   `json:"resolved"`
}

// NewConflictDetectedEvent creates a new ConflictDetectedEvent
func NewConflictDetectedEvent(conflict *SyncConflict) *ConflictDetectedEvent {
	return &ConflictDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConflictDetected, AggregateTypeSyncJob, conflict.JobID, conflict.OrgID),
		ConflictID:      conflict.ID,
		JobID:           conflict.JobID,
		EntityType:      conflict.EntityType,
		RecordID:        conflict.RecordID,
		Field:           conflict.Field,
		Resolved:        conflict.IsResolved(),
	}
}

// EventType returns the event type name
func (e *ConflictDetectedEvent) EventType() string {
	return EventTypeConflictDetected
}
