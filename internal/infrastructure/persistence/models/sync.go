package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// SyncJobModel
// ---------------------------------------------------------------------------

// SyncJobModel is the persistence model for the SyncJob domain entity.
// The job config and result are stored as JSON blobs; only the fields the
// dispatcher and the API filter on get their own columns.
type SyncJobModel struct {
	BaseModel
	OrgID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_sync_jobs_org_status,priority:1"`
	IntegrationID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type          string     `gorm:"type:varchar(20);not null"`
	Status        string     `gorm:"type:varchar(30);not null;index:idx_sync_jobs_org_status,priority:2"`
	ConfigJSON    string     `gorm:"type:jsonb;column:config"`
	StartedAt     *time.Time `gorm:""`
	CompletedAt   *time.Time `gorm:""`
	ResultJSON    string     `gorm:"type:jsonb;column:result"`
	ErrorMessage  string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain SyncJob entity.
func (m *SyncJobModel) ToDomain() *sync.SyncJob {
	job := &sync.SyncJob{
		BaseEntity:    m.BaseModel.ToDomain(),
		OrgID:         m.OrgID,
		IntegrationID: m.IntegrationID,
		Type:          sync.JobType(m.Type),
		Status:        sync.JobStatus(m.Status),
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		ErrorMessage:  m.ErrorMessage,
	}

	if m.ConfigJSON != "" {
		var cfg sync.SyncJobConfig
		if err := json.Unmarshal([]byte(m.ConfigJSON), &cfg); err == nil {
			job.Config = cfg
		}
	}

	if m.ResultJSON != "" {
		var result sync.SyncResult
		if err := json.Unmarshal([]byte(m.ResultJSON), &result); err == nil {
			job.Result = &result
		}
	}

	return job
}

// FromDomain populates the persistence model from a domain SyncJob entity.
func (m *SyncJobModel) FromDomain(job *sync.SyncJob) {
	m.FromDomainBaseEntity(job.BaseEntity)
	m.OrgID = job.OrgID
	m.IntegrationID = job.IntegrationID
	m.Type = job.Type.String()
	m.Status = job.Status.String()
	m.StartedAt = job.StartedAt
	m.CompletedAt = job.CompletedAt
	m.ErrorMessage = job.ErrorMessage

	if jsonBytes, err := json.Marshal(job.Config); err == nil {
		m.ConfigJSON = string(jsonBytes)
	}

	if job.Result != nil {
		if jsonBytes, err := json.Marshal(job.Result); err == nil {
			m.ResultJSON = string(jsonBytes)
		}
	} else {
		m.ResultJSON = ""
	}
}

// SyncJobModelFromDomain creates a new persistence model from a domain SyncJob entity.
func SyncJobModelFromDomain(job *sync.SyncJob) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(job)
	return m
}

// MarshalResult serializes a sync result for a finalize statement.
// An empty string is returned for a nil result.
func MarshalResult(result *sync.SyncResult) string {
	if result == nil {
		return ""
	}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(jsonBytes)
}

// ---------------------------------------------------------------------------
// SyncQueueModel
// ---------------------------------------------------------------------------

// SyncQueueModel is the persistence model for the QueueEntry domain entity.
// The dispatch index orders by priority weight descending, then run_after
// ascending, matching the dispatcher's drain order.
type SyncQueueModel struct {
	BaseModel
	JobID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	OrgID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Priority    int       `gorm:"not null;index:idx_sync_queue_dispatch,priority:1"`
	Attempts    int       `gorm:"not null;default:0"`
	MaxAttempts int       `gorm:"not null"`
	RunAfter    time.Time `gorm:"not null;index:idx_sync_queue_dispatch,priority:2"`
}

// TableName returns the table name for GORM
func (SyncQueueModel) TableName() string {
	return "sync_queue"
}

// ToDomain converts the persistence model to a domain QueueEntry.
func (m *SyncQueueModel) ToDomain() *sync.QueueEntry {
	return &sync.QueueEntry{
		BaseEntity:  m.BaseModel.ToDomain(),
		JobID:       m.JobID,
		OrgID:       m.OrgID,
		Priority:    m.Priority,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		RunAfter:    m.RunAfter,
	}
}

// FromDomain populates the persistence model from a domain QueueEntry.
func (m *SyncQueueModel) FromDomain(e *sync.QueueEntry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.JobID = e.JobID
	m.OrgID = e.OrgID
	m.Priority = e.Priority
	m.Attempts = e.Attempts
	m.MaxAttempts = e.MaxAttempts
	m.RunAfter = e.RunAfter
}

// SyncQueueModelFromDomain creates a new persistence model from a domain QueueEntry.
func SyncQueueModelFromDomain(e *sync.QueueEntry) *SyncQueueModel {
	m := &SyncQueueModel{}
	m.FromDomain(e)
	return m
}

// ---------------------------------------------------------------------------
// SyncConflictModel
// ---------------------------------------------------------------------------

// SyncConflictModel is the persistence model for the SyncConflict domain
// entity. A NULL resolved_at marks a pending conflict; the partial state of
// the resolution (strategy, winning value) lives in its own columns so the
// pending queue can be filtered without JSON operators.
type SyncConflictModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key"`
	JobID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	OrgID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_sync_conflicts_pending,priority:1"`
	EntityType      string     `gorm:"type:varchar(20);not null"`
	RecordID        string     `gorm:"type:varchar(100);not null"`
	Field           string     `gorm:"type:varchar(100);not null"`
	SourceValue     string     `gorm:"type:jsonb"`
	TargetValue     string     `gorm:"type:jsonb"`
	SourceUpdatedAt string     `gorm:"type:varchar(64)"`
	TargetUpdatedAt string     `gorm:"type:varchar(64)"`
	DetectedAt      time.Time  `gorm:"not null"`
	Strategy        *string    `gorm:"type:varchar(20)"`
	ResolvedValue   string     `gorm:"type:jsonb"`
	ResolvedAt      *time.Time `gorm:"index:idx_sync_conflicts_pending,priority:2"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncConflictModel) TableName() string {
	return "sync_conflicts"
}

// ToDomain converts the persistence model to a domain SyncConflict.
func (m *SyncConflictModel) ToDomain() *sync.SyncConflict {
	conflict := &sync.SyncConflict{
		ID:              m.ID,
		JobID:           m.JobID,
		OrgID:           m.OrgID,
		EntityType:      integration.EntityType(m.EntityType),
		RecordID:        m.RecordID,
		Field:           m.Field,
		SourceValue:     rawJSON(m.SourceValue),
		TargetValue:     rawJSON(m.TargetValue),
		SourceUpdatedAt: m.SourceUpdatedAt,
		TargetUpdatedAt: m.TargetUpdatedAt,
		DetectedAt:      m.DetectedAt,
	}

	if m.Strategy != nil && m.ResolvedAt != nil {
		conflict.Resolution = &sync.ConflictResolution{
			Strategy:      sync.ResolutionStrategy(*m.Strategy),
			ResolvedValue: rawJSON(m.ResolvedValue),
			ResolvedAt:    *m.ResolvedAt,
		}
	}

	return conflict
}

// FromDomain populates the persistence model from a domain SyncConflict.
func (m *SyncConflictModel) FromDomain(c *sync.SyncConflict) {
	m.ID = c.ID
	m.JobID = c.JobID
	m.OrgID = c.OrgID
	m.EntityType = c.EntityType.String()
	m.RecordID = c.RecordID
	m.Field = c.Field
	m.SourceValue = string(c.SourceValue)
	m.TargetValue = string(c.TargetValue)
	m.SourceUpdatedAt = c.SourceUpdatedAt
	m.TargetUpdatedAt = c.TargetUpdatedAt
	m.DetectedAt = c.DetectedAt

	if c.Resolution != nil {
		strategy := c.Resolution.Strategy.String()
		resolvedAt := c.Resolution.ResolvedAt
		m.Strategy = &strategy
		m.ResolvedValue = string(c.Resolution.ResolvedValue)
		m.ResolvedAt = &resolvedAt
	} else {
		m.Strategy = nil
		m.ResolvedValue = ""
		m.ResolvedAt = nil
	}
}

// SyncConflictModelFromDomain creates a new persistence model from a domain SyncConflict.
func SyncConflictModelFromDomain(c *sync.SyncConflict) *SyncConflictModel {
	m := &SyncConflictModel{}
	m.FromDomain(c)
	return m
}

// ---------------------------------------------------------------------------
// SyncMetricsModel
// ---------------------------------------------------------------------------

// SyncMetricsModel stores the performance measurements captured for one
// job run. One row per job.
type SyncMetricsModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	JobID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	OrgID       uuid.UUID `gorm:"type:uuid;not null;index"`
	MetricsJSON string    `gorm:"type:jsonb;column:metrics"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncMetricsModel) TableName() string {
	return "sync_job_metrics"
}

// ToDomain converts the persistence model to domain PerformanceMetrics.
func (m *SyncMetricsModel) ToDomain() *sync.PerformanceMetrics {
	if m.MetricsJSON == "" {
		return nil
	}
	var metrics sync.PerformanceMetrics
	if err := json.Unmarshal([]byte(m.MetricsJSON), &metrics); err != nil {
		return nil
	}
	return &metrics
}

// SyncMetricsModelFromDomain creates a persistence model for a job's metrics.
func SyncMetricsModelFromDomain(jobID, orgID uuid.UUID, metrics *sync.PerformanceMetrics) *SyncMetricsModel {
	m := &SyncMetricsModel{
		ID:    uuid.New(),
		JobID: jobID,
		OrgID: orgID,
	}
	if metrics != nil {
		if jsonBytes, err := json.Marshal(metrics); err == nil {
			m.MetricsJSON = string(jsonBytes)
		}
	}
	return m
}

// rawJSON converts a stored JSON column to json.RawMessage, mapping the
// empty string to nil so round-trips preserve absent values.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
