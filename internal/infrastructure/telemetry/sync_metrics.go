// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics provides sync pipeline metrics for the platform.
// It tracks job throughput, conflict activity, and queue health.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	jobsCreatedTotal       *Counter
	jobsFinishedTotal      *Counter
	recordsProcessedTotal  *Counter
	conflictsDetectedTotal *Counter
	conflictsResolvedTotal *Counter

	// Histogram metrics
	jobDuration *Histogram

	// Gauge metrics (point-in-time values)
	queueDepth       *Gauge
	pendingConflicts *Gauge
	activeJobs       *Gauge
	cachedConnectors *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data providers for periodic collection
	activityProvider SyncActivityProvider
	jobCounter       ActiveJobCounter
	connectorCounter ConnectorCounter
}

// SyncActivityProvider provides queue and conflict state for periodic metrics
// collection. This interface allows the telemetry layer to query sync state
// without depending on the sync domain directly.
type SyncActivityProvider interface {
	// GetQueueDepth returns the number of dispatch queue entries for an org
	GetQueueDepth(ctx context.Context, orgID uuid.UUID) (int64, error)

	// GetPendingConflictCount returns the number of unresolved conflicts for an org
	GetPendingConflictCount(ctx context.Context, orgID uuid.UUID) (int64, error)
}

// ActiveJobCounter reports the number of jobs currently executing in this
// process. Satisfied by the job executor.
type ActiveJobCounter interface {
	ActiveCount() int
}

// ConnectorCounter reports the number of live connectors held in this
// process. Satisfied by the connector cache.
type ConnectorCounter interface {
	Size() int
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter            metric.Meter
	Logger           *zap.Logger
	CollectInterval  time.Duration // Default: 1 minute
	ActivityProvider SyncActivityProvider
	JobCounter       ActiveJobCounter
	ConnectorCounter ConnectorCounter
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:            cfg.Meter,
		logger:           logger,
		stopChan:         make(chan struct{}),
		activityProvider: cfg.ActivityProvider,
		jobCounter:       cfg.JobCounter,
		connectorCounter: cfg.ConnectorCounter,
	}

	// Initialize counter metrics
	var err error

	// Job metrics
	sm.jobsCreatedTotal, err = NewCounter(
		cfg.Meter,
		"truthsource_sync_jobs_created_total",
		"Total number of sync jobs accepted",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.jobsFinishedTotal, err = NewCounter(
		cfg.Meter,
		"truthsource_sync_jobs_finished_total",
		"Total number of sync jobs reaching a terminal status",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.recordsProcessedTotal, err = NewCounter(
		cfg.Meter,
		"truthsource_sync_records_processed_total",
		"Total number of records processed by sync runs",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	// Conflict metrics
	sm.conflictsDetectedTotal, err = NewCounter(
		cfg.Meter,
		"truthsource_sync_conflicts_detected_total",
		"Total number of data conflicts detected between platforms",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	sm.conflictsResolvedTotal, err = NewCounter(
		cfg.Meter,
		"truthsource_sync_conflicts_resolved_total",
		"Total number of conflicts resolved",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	sm.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "truthsource_sync_job_duration_seconds",
		Description: "Wall-clock duration of a sync job run",
		Unit:        "s",
		Boundaries:  SyncJobDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	// Queue and conflict backlog gauge metrics
	sm.queueDepth, err = NewGauge(
		cfg.Meter,
		"truthsource_sync_queue_depth",
		"Number of jobs waiting in the dispatch queue",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.pendingConflicts, err = NewGauge(
		cfg.Meter,
		"truthsource_sync_pending_conflicts",
		"Number of unresolved conflicts awaiting review",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	sm.activeJobs, err = NewGauge(
		cfg.Meter,
		"truthsource_sync_active_jobs",
		"Number of sync jobs currently executing in this process",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.cachedConnectors, err = NewGauge(
		cfg.Meter,
		"truthsource_connector_cache_size",
		"Number of live platform connectors held in the cache",
		"{connectors}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Job Metrics
// =============================================================================

// RecordJobCreated records a sync job creation event.
// This should be called from the application layer when a job is accepted.
// jobType is one of "manual", "scheduled" or "webhook".
func (sm *SyncMetrics) RecordJobCreated(ctx context.Context, orgID uuid.UUID, jobType string) {
	sm.jobsCreatedTotal.Inc(ctx,
		AttrOrgID.String(orgID.String()),
		AttrJobType.String(jobType),
	)
}

// RecordJobFinished records a job reaching a terminal status along with its
// run duration. status is the terminal job status string ("completed",
// "completed_with_errors", "failed" or "cancelled").
func (sm *SyncMetrics) RecordJobFinished(ctx context.Context, orgID uuid.UUID, platform, status string, duration time.Duration) {
	sm.jobsFinishedTotal.Inc(ctx,
		AttrOrgID.String(orgID.String()),
		AttrPlatform.String(platform),
		AttrJobStatus.String(status),
	)

	// Duration is labeled by platform and outcome only. Org would multiply
	// the histogram series count per bucket.
	sm.jobDuration.RecordDuration(ctx, duration,
		AttrPlatform.String(platform),
		AttrJobStatus.String(status),
	)
}

// RecordRecordsProcessed records how many records a run touched for one
// entity type.
func (sm *SyncMetrics) RecordRecordsProcessed(ctx context.Context, orgID uuid.UUID, platform, entityType string, count int64) {
	if count <= 0 {
		return
	}
	sm.recordsProcessedTotal.Add(ctx, count,
		AttrOrgID.String(orgID.String()),
		AttrPlatform.String(platform),
		AttrEntityType.String(entityType),
	)
}

// =============================================================================
// Conflict Metrics
// =============================================================================

// RecordConflictsDetected records conflicts found while comparing source and
// target records for one entity type.
func (sm *SyncMetrics) RecordConflictsDetected(ctx context.Context, orgID uuid.UUID, platform, entityType string, count int64) {
	if count <= 0 {
		return
	}
	sm.conflictsDetectedTotal.Add(ctx, count,
		AttrOrgID.String(orgID.String()),
		AttrPlatform.String(platform),
		AttrEntityType.String(entityType),
	)
}

// RecordConflictResolved records a conflict resolution and the strategy that
// settled it. strategy is one of "source_wins", "target_wins", "newest_wins"
// or "manual".
func (sm *SyncMetrics) RecordConflictResolved(ctx context.Context, orgID uuid.UUID, strategy string) {
	sm.conflictsResolvedTotal.Inc(ctx,
		AttrOrgID.String(orgID.String()),
		AttrStrategy.String(strategy),
	)
}

// =============================================================================
// Backlog Metrics
// =============================================================================

// RecordQueueDepth records the current dispatch queue depth for an org.
// This is a gauge metric that should be updated periodically.
func (sm *SyncMetrics) RecordQueueDepth(ctx context.Context, orgID uuid.UUID, depth int64) {
	sm.queueDepth.Record(ctx, depth,
		AttrOrgID.String(orgID.String()),
	)
}

// RecordPendingConflicts records the number of unresolved conflicts for an org.
// This is a gauge metric that should be updated periodically.
func (sm *SyncMetrics) RecordPendingConflicts(ctx context.Context, orgID uuid.UUID, count int64) {
	sm.pendingConflicts.Record(ctx, count,
		AttrOrgID.String(orgID.String()),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// OrgProvider provides org IDs for periodic metrics collection.
type OrgProvider interface {
	GetActiveOrgIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It samples queue depth, conflict backlog and process-local counts every
// interval (default: 1 minute). This is non-blocking - use Stop() to stop
// collection.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, orgProvider OrgProvider, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go sm.runPeriodicCollection(ctx, orgProvider, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, orgProvider OrgProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	sm.collectActivityMetrics(ctx, orgProvider)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic sync metrics collection")
			return
		case <-ticker.C:
			sm.collectActivityMetrics(ctx, orgProvider)
		}
	}
}

// collectActivityMetrics collects backlog gauges for all orgs plus the
// process-local runtime gauges.
func (sm *SyncMetrics) collectActivityMetrics(ctx context.Context, orgProvider OrgProvider) {
	sm.collectRuntimeMetrics(ctx)

	if sm.activityProvider == nil {
		sm.logger.Debug("No activity provider configured, skipping backlog metrics collection")
		return
	}

	orgIDs, err := orgProvider.GetActiveOrgIDs(ctx)
	if err != nil {
		sm.logger.Error("Failed to get org IDs for metrics collection", zap.Error(err))
		return
	}

	for _, orgID := range orgIDs {
		sm.collectOrgActivityMetrics(ctx, orgID)
	}
}

// collectOrgActivityMetrics collects backlog gauges for a single org.
func (sm *SyncMetrics) collectOrgActivityMetrics(ctx context.Context, orgID uuid.UUID) {
	depth, err := sm.activityProvider.GetQueueDepth(ctx, orgID)
	if err != nil {
		sm.logger.Warn("Failed to get queue depth for org",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	} else {
		sm.RecordQueueDepth(ctx, orgID, depth)
	}

	pending, err := sm.activityProvider.GetPendingConflictCount(ctx, orgID)
	if err != nil {
		sm.logger.Warn("Failed to get pending conflict count for org",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	} else {
		sm.RecordPendingConflicts(ctx, orgID, pending)
	}
}

// collectRuntimeMetrics samples the process-local counters.
func (sm *SyncMetrics) collectRuntimeMetrics(ctx context.Context) {
	if sm.jobCounter != nil {
		sm.activeJobs.Record(ctx, int64(sm.jobCounter.ActiveCount()))
	}
	if sm.connectorCounter != nil {
		sm.cachedConnectors.Record(ctx, int64(sm.connectorCounter.Size()))
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
