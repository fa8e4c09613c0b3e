package sync

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Conflict Errors
// ---------------------------------------------------------------------------

var (
	ErrConflictMissingIdentity = errors.New("sync: conflict is missing record ID or field")
	ErrConflictAlreadyResolved = errors.New("sync: conflict is already resolved")
	ErrConflictNotFound        = errors.New("sync: conflict not found")
	ErrInvalidWinner           = errors.New("sync: winner must be source or target")
)

// ---------------------------------------------------------------------------
// ResolutionStrategy
// ---------------------------------------------------------------------------

// ResolutionStrategy is a deterministic rule choosing a winning value
type ResolutionStrategy string

const (
	// StrategySourceWins always takes the source value
	StrategySourceWins ResolutionStrategy = "source_wins"
	// StrategyTargetWins always takes the target value
	StrategyTargetWins ResolutionStrategy = "target_wins"
	// StrategyNewestWins compares source and target timestamps
	StrategyNewestWins ResolutionStrategy = "newest_wins"
	// StrategyManual leaves the resolution to a human operator
	StrategyManual ResolutionStrategy = "manual"
)

// IsValid returns true if the strategy is valid
func (s ResolutionStrategy) IsValid() bool {
	switch s {
	case StrategySourceWins, StrategyTargetWins, StrategyNewestWins, StrategyManual:
		return true
	default:
		return false
	}
}

// String returns the string representation of ResolutionStrategy
func (s ResolutionStrategy) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// SyncConflict Entity
// ---------------------------------------------------------------------------

// ConflictResolution records the settled outcome of a conflict
type ConflictResolution struct {
	// Strategy is the rule that produced the winning value
	Strategy ResolutionStrategy `json:"strategy"`
	// ResolvedValue is the winning value
	ResolvedValue json.RawMessage `json:"resolved_value"`
	// ResolvedAt is when the conflict was settled
	ResolvedAt time.Time `json:"resolved_at"`
}

// SyncConflict is a detected divergence between the source and target copy
// of one record field. A nil Resolution means the conflict sits in the
// pending-resolution queue waiting for an operator.
type SyncConflict struct {
	ID    uuid.UUID `json:"id"`
	JobID uuid.UUID `json:"job_id"`
	OrgID uuid.UUID `json:"org_id"`
	// EntityType is the record family the conflict belongs to
	EntityType integration.EntityType `json:"entity_type"`
	// RecordID identifies the diverging record
	RecordID string `json:"record_id"`
	// Field is the diverging field name
	Field string `json:"field"`
	// SourceValue is the value on the source side
	SourceValue json.RawMessage `json:"source_value"`
	// TargetValue is the value on the target side
	TargetValue json.RawMessage `json:"target_value"`
	// SourceUpdatedAt is the raw source-side modification timestamp
	SourceUpdatedAt string `json:"source_updated_at,omitempty"`
	// TargetUpdatedAt is the raw target-side modification timestamp
	TargetUpdatedAt string `json:"target_updated_at,omitempty"`
	// DetectedAt is when the connector reported the divergence
	DetectedAt time.Time `json:"detected_at"`
	// Resolution is nil while the conflict is pending
	Resolution *ConflictResolution `json:"resolution,omitempty"`
}

// NewSyncConflict promotes a candidate reported by a connector into a
// persistable conflict. Candidates without record identity are rejected.
func NewSyncConflict(jobID, orgID uuid.UUID, c integration.CandidateConflict) (*SyncConflict, error) {
	if !c.HasIdentity() {
		return nil, ErrConflictMissingIdentity
	}
	return &SyncConflict{
		ID:              uuid.New(),
		JobID:           jobID,
		OrgID:           orgID,
		EntityType:      c.EntityType,
		RecordID:        c.RecordID,
		Field:           c.Field,
		SourceValue:     c.SourceValue,
		TargetValue:     c.TargetValue,
		SourceUpdatedAt: c.SourceUpdatedAt,
		TargetUpdatedAt: c.TargetUpdatedAt,
		DetectedAt:      time.Now().UTC(),
	}, nil
}

// IsResolved returns true once the conflict carries a resolution
func (c *SyncConflict) IsResolved() bool {
	return c.Resolution != nil
}

// Resolve settles the conflict with a strategy and winning value
func (c *SyncConflict) Resolve(strategy ResolutionStrategy, value json.RawMessage) error {
	if c.IsResolved() {
		return ErrConflictAlreadyResolved
	}
	c.Resolution = &ConflictResolution{
		Strategy:      strategy,
		ResolvedValue: value,
		ResolvedAt:    time.Now().UTC(),
	}
	return nil
}

// ResolveManually settles a pending conflict with an operator's pick of
// the source or target side.
func (c *SyncConflict) ResolveManually(winner string) error {
	switch winner {
	case "source":
		return c.Resolve(StrategyManual, c.SourceValue)
	case "target":
		return c.Resolve(StrategyManual, c.TargetValue)
	default:
		return ErrInvalidWinner
	}
}
