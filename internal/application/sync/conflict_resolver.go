package sync

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// ConflictResolver
// ---------------------------------------------------------------------------

// ConflictResolver settles candidate conflicts reported by connectors. The
// job's configured strategy decides the winning value; manual conflicts are
// persisted unresolved and wait for an operator.
type ConflictResolver struct {
	conflicts   domainsync.ConflictRepository
	eventBus    shared.EventPublisher
	syncMetrics *telemetry.SyncMetrics
	logger      *zap.Logger
}

// NewConflictResolver creates a new ConflictResolver
func NewConflictResolver(
	conflicts domainsync.ConflictRepository,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
) *ConflictResolver {
	return &ConflictResolver{
		conflicts: conflicts,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// SetSyncMetrics sets the sync metrics collector
func (r *ConflictResolver) SetSyncMetrics(sm *telemetry.SyncMetrics) {
	r.syncMetrics = sm
}

// Resolve promotes candidates into persisted conflicts using the job's
// configured strategy. Candidates without record identity are discarded.
// One failing candidate never aborts its siblings; drops are summarized in
// a single log line at the end. The returned slice holds every conflict
// that was persisted, resolved or pending.
func (r *ConflictResolver) Resolve(ctx context.Context, job *domainsync.SyncJob, candidates []integration.CandidateConflict) []domainsync.SyncConflict {
	if len(candidates) == 0 {
		return nil
	}

	strategy := job.Config.ConflictStrategy
	persisted := make([]domainsync.SyncConflict, 0, len(candidates))
	var discarded, failed int

	for _, candidate := range candidates {
		conflict, err := domainsync.NewSyncConflict(job.ID, job.OrgID, candidate)
		if err != nil {
			discarded++
			r.logger.Warn("Discarding conflict without record identity",
				zap.String("job_id", job.ID.String()),
				zap.String("entity_type", candidate.EntityType.String()),
				zap.String("record_id", candidate.RecordID),
				zap.String("field", candidate.Field))
			continue
		}

		if err := r.applyStrategy(conflict, strategy); err != nil {
			failed++
			r.logger.Warn("Failed to apply resolution strategy",
				zap.String("job_id", job.ID.String()),
				zap.String("record_id", conflict.RecordID),
				zap.String("strategy", strategy.String()),
				zap.Error(err))
			continue
		}

		if err := r.conflicts.Save(ctx, conflict); err != nil {
			failed++
			r.logger.Warn("Failed to persist conflict",
				zap.String("job_id", job.ID.String()),
				zap.String("record_id", conflict.RecordID),
				zap.String("field", conflict.Field),
				zap.Error(err))
			continue
		}

		r.publishDetected(ctx, conflict)
		if r.syncMetrics != nil && conflict.IsResolved() {
			r.syncMetrics.RecordConflictResolved(ctx, job.OrgID, conflict.Resolution.Strategy.String())
		}
		persisted = append(persisted, *conflict)
	}

	if discarded > 0 || failed > 0 {
		r.logger.Warn("Conflict batch finished with drops",
			zap.String("job_id", job.ID.String()),
			zap.Int("persisted", len(persisted)),
			zap.Int("discarded", discarded),
			zap.Int("failed", failed))
	}
	return persisted
}

// applyStrategy settles the conflict in place. Manual conflicts stay
// pending; everything else is resolved deterministically.
func (r *ConflictResolver) applyStrategy(conflict *domainsync.SyncConflict, strategy domainsync.ResolutionStrategy) error {
	switch strategy {
	case domainsync.StrategyManual:
		return nil
	case domainsync.StrategyTargetWins:
		return conflict.Resolve(strategy, conflict.TargetValue)
	case domainsync.StrategyNewestWins:
		return conflict.Resolve(strategy, r.pickNewest(conflict))
	default:
		return conflict.Resolve(domainsync.StrategySourceWins, conflict.SourceValue)
	}
}

// pickNewest compares the raw platform timestamps and returns the younger
// side's value. A missing or unparsable timestamp on either side falls
// back to the source value.
func (r *ConflictResolver) pickNewest(conflict *domainsync.SyncConflict) json.RawMessage {
	source, sourceOK := parsePlatformTime(conflict.SourceUpdatedAt)
	target, targetOK := parsePlatformTime(conflict.TargetUpdatedAt)
	if !sourceOK || !targetOK {
		r.logger.Warn("Conflict timestamps unusable, falling back to source value",
			zap.String("record_id", conflict.RecordID),
			zap.String("field", conflict.Field),
			zap.String("source_updated_at", conflict.SourceUpdatedAt),
			zap.String("target_updated_at", conflict.TargetUpdatedAt))
		return conflict.SourceValue
	}
	if target.After(source) {
		return conflict.TargetValue
	}
	return conflict.SourceValue
}

func (r *ConflictResolver) publishDetected(ctx context.Context, conflict *domainsync.SyncConflict) {
	if r.eventBus == nil {
		return
	}
	if err := r.eventBus.Publish(ctx, domainsync.NewConflictDetectedEvent(conflict)); err != nil {
		r.logger.Warn("Failed to publish conflict event",
			zap.String("conflict_id", conflict.ID.String()),
			zap.Error(err))
	}
}

// parsePlatformTime parses the RFC3339 timestamps platforms attach to
// records. Fractional seconds are accepted.
func parsePlatformTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
