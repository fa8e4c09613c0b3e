package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/shared"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/telemetry"
)

// ConflictService serves the pending-resolution queue and feeds operator
// decisions back into stored conflicts.
type ConflictService struct {
	conflicts   domainsync.ConflictRepository
	jobs        domainsync.JobRepository
	syncMetrics *telemetry.SyncMetrics
	logger      *zap.Logger
}

// NewConflictService creates a new ConflictService
func NewConflictService(
	conflicts domainsync.ConflictRepository,
	jobs domainsync.JobRepository,
	logger *zap.Logger,
) *ConflictService {
	return &ConflictService{
		conflicts: conflicts,
		jobs:      jobs,
		logger:    logger,
	}
}

// SetSyncMetrics sets the sync metrics collector
func (s *ConflictService) SetSyncMetrics(sm *telemetry.SyncMetrics) {
	s.syncMetrics = sm
}

// ListPendingConflicts returns the org's unresolved conflicts, oldest first
func (s *ConflictService) ListPendingConflicts(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (shared.Paginated[*domainsync.SyncConflict], error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.conflicts.FindPendingByOrg(ctx, orgID, filter)
}

// GetConflict returns one conflict scoped to the caller's org
func (s *ConflictService) GetConflict(ctx context.Context, orgID, conflictID uuid.UUID) (*domainsync.SyncConflict, error) {
	conflict, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.OrgID != orgID {
		return nil, domainsync.ErrConflictNotFound
	}
	return conflict, nil
}

// ListJobConflicts returns every conflict one job detected
func (s *ConflictService) ListJobConflicts(ctx context.Context, orgID, jobID uuid.UUID) ([]*domainsync.SyncConflict, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrgID != orgID {
		return nil, domainsync.ErrJobNotFound
	}
	return s.conflicts.FindByJob(ctx, job.ID)
}

// ResolveConflictManually settles a pending conflict with the operator's
// pick of the source or target side and persists the resolution.
func (s *ConflictService) ResolveConflictManually(ctx context.Context, orgID, conflictID uuid.UUID, winner string) (*domainsync.SyncConflict, error) {
	conflict, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.OrgID != orgID {
		return nil, domainsync.ErrConflictNotFound
	}

	if err := conflict.ResolveManually(winner); err != nil {
		return nil, err
	}
	if err := s.conflicts.Update(ctx, conflict); err != nil {
		return nil, fmt.Errorf("persisting resolution: %w", err)
	}

	if s.syncMetrics != nil {
		s.syncMetrics.RecordConflictResolved(ctx, orgID, conflict.Resolution.Strategy.String())
	}
	s.logger.Info("Conflict resolved manually",
		zap.String("conflict_id", conflict.ID.String()),
		zap.String("record_id", conflict.RecordID),
		zap.String("field", conflict.Field),
		zap.String("winner", winner))
	return conflict, nil
}
