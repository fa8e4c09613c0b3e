package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// SyncPhase
// ---------------------------------------------------------------------------

// SyncPhase names the coarse stage a running job is in
type SyncPhase string

const (
	// PhaseInitializing covers connector lookup and warm-up
	PhaseInitializing SyncPhase = "initializing"
	// PhaseFetching covers per-entity connector sync calls
	PhaseFetching SyncPhase = "fetching"
	// PhaseFinalizing covers result aggregation and persistence
	PhaseFinalizing SyncPhase = "finalizing"
)

// String returns the string representation of SyncPhase
func (p SyncPhase) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// SyncProgress
// ---------------------------------------------------------------------------

// SyncProgress is the latest-only snapshot of a running job. Every step
// overwrites the previous snapshot; no history is kept.
type SyncProgress struct {
	JobID uuid.UUID `json:"job_id"`
	// Phase is the coarse stage of the run
	Phase SyncPhase `json:"phase"`
	// EntitiesTotal is the number of entity types in the job config
	EntitiesTotal int `json:"entities_total"`
	// EntitiesCompleted counts entity types finished so far
	EntitiesCompleted int `json:"entities_completed"`
	// RecordsProcessed counts records handled so far across entities
	RecordsProcessed int `json:"records_processed"`
	// RecordsTotal is a best-effort total, zero when unknown
	RecordsTotal int `json:"records_total"`
	// Percentage is entity completion in percent
	Percentage float64 `json:"percentage"`
	// CurrentEntity is the entity type being synced right now
	CurrentEntity integration.EntityType `json:"current_entity,omitempty"`
	// UpdatedAt is when this snapshot was taken
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSyncProgress builds a snapshot with the percentage derived from
// entity completion.
func NewSyncProgress(jobID uuid.UUID, phase SyncPhase, completed, total int, current integration.EntityType) *SyncProgress {
	p := &SyncProgress{
		JobID:             jobID,
		Phase:             phase,
		EntitiesTotal:     total,
		EntitiesCompleted: completed,
		CurrentEntity:     current,
		UpdatedAt:         time.Now().UTC(),
	}
	if total > 0 {
		p.Percentage = float64(completed) / float64(total) * 100
	}
	return p
}

// ---------------------------------------------------------------------------
// ProgressStore Port
// ---------------------------------------------------------------------------

// ProgressStore keeps the latest progress snapshot per job. Snapshots
// are advisory; losing one is acceptable, so implementations may expire
// entries.
type ProgressStore interface {
	// Set overwrites the snapshot for the job
	Set(ctx context.Context, progress *SyncProgress) error

	// Get returns the latest snapshot or ErrProgressNotFound
	Get(ctx context.Context, jobID uuid.UUID) (*SyncProgress, error)

	// Delete drops the snapshot once a job is terminal
	Delete(ctx context.Context, jobID uuid.UUID) error
}
