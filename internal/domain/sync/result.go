package sync

import (
	"time"

	"github.com/truthsource/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// SyncError
// ---------------------------------------------------------------------------

// SyncError is a per-entity failure collected into the job result.
// One entity type failing does not abort its siblings.
type SyncError struct {
	// EntityType is the record family that failed
	EntityType integration.EntityType `json:"entity_type"`
	// Message is the failure description
	Message string `json:"message"`
	// OccurredAt is when the failure was observed
	OccurredAt time.Time `json:"occurred_at"`
}

// ---------------------------------------------------------------------------
// SyncSummary
// ---------------------------------------------------------------------------

// SyncSummary holds record counts folded across all entity types
type SyncSummary struct {
	TotalProcessed int `json:"total_processed"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Deleted        int `json:"deleted"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
}

// ---------------------------------------------------------------------------
// PerformanceMetrics
// ---------------------------------------------------------------------------

// PerformanceMetrics is the per-job measurement attached to a SyncResult
type PerformanceMetrics struct {
	// WallTime is the elapsed wall-clock duration of the job
	WallTime time.Duration `json:"wall_time"`
	// APICallCount is the number of external platform calls
	APICallCount int `json:"api_call_count"`
	// APICallDuration is the summed duration of external calls
	APICallDuration time.Duration `json:"api_call_duration"`
	// StorageCallCount is the number of persistence calls
	StorageCallCount int `json:"storage_call_count"`
	// StorageCallDuration is the summed duration of persistence calls
	StorageCallDuration time.Duration `json:"storage_call_duration"`
	// MemoryDeltaBytes is heap growth during the job, floored at zero
	MemoryDeltaBytes uint64 `json:"memory_delta_bytes"`
	// CPUPercent is process CPU time over wall time, capped at 100
	CPUPercent float64 `json:"cpu_percent"`
	// BytesSent counts request payload bytes to external platforms
	BytesSent int64 `json:"bytes_sent"`
	// BytesReceived counts response payload bytes from external platforms
	BytesReceived int64 `json:"bytes_received"`
}

// ---------------------------------------------------------------------------
// SyncResult
// ---------------------------------------------------------------------------

// SyncResult is the outcome of one job run. It is built up by the executor
// while the job runs and immutable once the job is finalized.
type SyncResult struct {
	// Success is true only when every entity type synced cleanly
	Success bool `json:"success"`
	// Summary folds record counts across entity types
	Summary SyncSummary `json:"summary"`
	// EntityResults maps each successfully synced entity type to its result
	EntityResults map[integration.EntityType]*integration.EntitySyncResult `json:"entity_results"`
	// Conflicts are divergences detected during the run
	Conflicts []SyncConflict `json:"conflicts,omitempty"`
	// Errors are per-entity failures
	Errors []SyncError `json:"errors,omitempty"`
	// Duration is the elapsed wall time of the run
	Duration time.Duration `json:"duration"`
	// Metrics carries performance measurements when tracking is enabled
	Metrics *PerformanceMetrics `json:"metrics,omitempty"`
}

// NewSyncResult creates an empty result ready to fold entity outcomes into
func NewSyncResult() *SyncResult {
	return &SyncResult{
		EntityResults: make(map[integration.EntityType]*integration.EntitySyncResult),
	}
}

// FoldEntity records a successful per-entity result and updates the summary
func (r *SyncResult) FoldEntity(res *integration.EntitySyncResult) {
	if res == nil {
		return
	}
	r.EntityResults[res.EntityType] = res
	r.Summary.TotalProcessed += res.Processed
	r.Summary.Created += res.Created
	r.Summary.Updated += res.Updated
	r.Summary.Deleted += res.Deleted
	r.Summary.Skipped += res.Skipped
	r.Summary.Failed += res.Failed
}

// AddError records a per-entity failure
func (r *SyncResult) AddError(entityType integration.EntityType, err error) {
	r.Errors = append(r.Errors, SyncError{
		EntityType: entityType,
		Message:    err.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

// AddConflicts appends resolved or pending conflicts to the result
func (r *SyncResult) AddConflicts(conflicts []SyncConflict) {
	r.Conflicts = append(r.Conflicts, conflicts...)
}

// DeriveStatus maps the accumulated outcome to a terminal job status:
// no errors means completed, errors alongside at least one synced entity
// mean completed_with_errors, errors with nothing synced mean failed.
func (r *SyncResult) DeriveStatus() JobStatus {
	if len(r.Errors) == 0 {
		return JobStatusCompleted
	}
	if len(r.EntityResults) > 0 {
		return JobStatusCompletedWithErrors
	}
	return JobStatusFailed
}

// Finalize stamps the duration and success flag. Called once by the
// executor right before the job is finalized.
func (r *SyncResult) Finalize(duration time.Duration) {
	r.Duration = duration
	r.Success = r.DeriveStatus() == JobStatusCompleted
}
