package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/integration"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
)

// MockConnector is a mock implementation of integration.Connector
type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) Platform() integration.PlatformType {
	args := m.Called()
	return args.Get(0).(integration.PlatformType)
}

func (m *MockConnector) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConnector) Sync(ctx context.Context, entityType integration.EntityType, opts integration.SyncOptions) (*integration.EntitySyncResult, error) {
	args := m.Called(ctx, entityType, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.EntitySyncResult), args.Error(1)
}

func (m *MockConnector) TestConnection(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockConnector) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockConnectorSource is a mock implementation of ConnectorSource
type MockConnectorSource struct {
	mock.Mock
}

func (m *MockConnectorSource) Get(ctx context.Context, platform integration.PlatformType, integrationID uuid.UUID) (integration.Connector, error) {
	args := m.Called(ctx, platform, integrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(integration.Connector), args.Error(1)
}

func (m *MockConnectorSource) EvictIntegration(ctx context.Context, integrationID uuid.UUID) int {
	args := m.Called(ctx, integrationID)
	return args.Int(0)
}

type executorFixture struct {
	jobs         *MockJobRepository
	integrations *MockIntegrationRepository
	metrics      *MockMetricsRepository
	conflicts    *MockConflictRepository
	source       *MockConnectorSource
	progress     *MockProgressStore
	bus          *MockEventPublisher
	executor     *JobExecutor
}

func newExecutorFixture(maxActive int) *executorFixture {
	f := &executorFixture{
		jobs:         new(MockJobRepository),
		integrations: new(MockIntegrationRepository),
		metrics:      new(MockMetricsRepository),
		conflicts:    new(MockConflictRepository),
		source:       new(MockConnectorSource),
		progress:     NewMockProgressStore(),
		bus:          NewMockEventPublisher(),
	}
	logger := zap.NewNop()
	resolver := NewConflictResolver(f.conflicts, f.bus, logger)
	f.executor = NewJobExecutor(f.jobs, f.integrations, f.metrics, f.source, resolver, f.progress, f.bus, logger, maxActive)
	return f
}

// expectPickup wires the happy lookup path up to the running transition
func (f *executorFixture) expectPickup(job *domainsync.SyncJob, in *integration.Integration, conn *MockConnector) {
	f.jobs.On("FindByID", mock.Anything, job.ID).Return(job, nil)
	f.integrations.On("FindByID", mock.Anything, job.IntegrationID).Return(in, nil)
	f.source.On("Get", mock.Anything, in.Platform, in.ID).Return(conn, nil)
	f.jobs.On("MarkRunning", mock.Anything, job.ID, mock.AnythingOfType("time.Time")).Return(true, nil)
}

func TestJobExecutor_Execute_CompletesCleanJob(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID, integration.EntityProducts, integration.EntityInventory)
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	conn.On("Sync", mock.Anything, integration.EntityProducts, mock.MatchedBy(func(opts integration.SyncOptions) bool {
		return opts.BatchSize == 100 && opts.Force && !opts.DryRun
	})).Return(&integration.EntitySyncResult{
		EntityType: integration.EntityProducts, Processed: 10, Created: 2, Updated: 5, Skipped: 3,
	}, nil)
	conn.On("Sync", mock.Anything, integration.EntityInventory, mock.Anything).Return(&integration.EntitySyncResult{
		EntityType: integration.EntityInventory, Processed: 4, Updated: 4,
	}, nil)

	var finalized *domainsync.SyncResult
	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusCompleted, mock.Anything, "", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { finalized = args.Get(3).(*domainsync.SyncResult) }).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)
	f.integrations.On("Update", mock.Anything, in).Return(nil)

	err := f.executor.Execute(context.Background(), job.ID)

	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.True(t, finalized.Success)
	assert.Equal(t, 14, finalized.Summary.TotalProcessed)
	assert.Equal(t, 2, finalized.Summary.Created)
	assert.Equal(t, 9, finalized.Summary.Updated)
	assert.Len(t, finalized.EntityResults, 2)
	assert.Empty(t, finalized.Errors)
	require.NotNil(t, finalized.Metrics)
	assert.Equal(t, 2, finalized.Metrics.APICallCount)

	assert.Equal(t, []domainsync.SyncPhase{
		domainsync.PhaseInitializing,
		domainsync.PhaseFetching,
		domainsync.PhaseFetching,
		domainsync.PhaseFinalizing,
	}, f.progress.Phases())
	assert.Contains(t, f.progress.Deleted(), job.ID)

	assert.Len(t, f.bus.GetEventsByType(domainsync.EventTypeJobStarted), 1)
	assert.Len(t, f.bus.GetEventsByType(domainsync.EventTypeJobCompleted), 1)
	assert.NotNil(t, in.LastSyncedAt)
	assert.Equal(t, 0, f.executor.ActiveCount())

	f.jobs.AssertExpectations(t)
	conn.AssertExpectations(t)
}

func TestJobExecutor_Execute_PartialFailureContinuesSiblings(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID,
		integration.EntityProducts, integration.EntityInventory, integration.EntityOrders)
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	conn.On("Sync", mock.Anything, integration.EntityProducts, mock.Anything).Return(&integration.EntitySyncResult{
		EntityType: integration.EntityProducts, Processed: 5, Updated: 5,
	}, nil)
	conn.On("Sync", mock.Anything, integration.EntityInventory, mock.Anything).
		Return(nil, fmt.Errorf("%w: upstream 500", integration.ErrConnectorRequestFailed))
	conn.On("Sync", mock.Anything, integration.EntityOrders, mock.Anything).Return(&integration.EntitySyncResult{
		EntityType: integration.EntityOrders, Processed: 2, Created: 2,
	}, nil)

	var finalized *domainsync.SyncResult
	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusCompletedWithErrors, mock.Anything, "", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { finalized = args.Get(3).(*domainsync.SyncResult) }).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)
	f.integrations.On("Update", mock.Anything, in).Return(nil)

	err := f.executor.Execute(context.Background(), job.ID)

	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.False(t, finalized.Success)
	assert.Len(t, finalized.EntityResults, 2)
	require.Len(t, finalized.Errors, 1)
	assert.Equal(t, integration.EntityInventory, finalized.Errors[0].EntityType)
	conn.AssertNumberOfCalls(t, "Sync", 3)
}

func TestJobExecutor_Execute_AllEntitiesFail(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID, integration.EntityProducts, integration.EntityInventory)
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	conn.On("Sync", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("platform said no"))

	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusFailed, mock.Anything, "all 2 entity types failed", mock.AnythingOfType("time.Time")).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)

	err := f.executor.Execute(context.Background(), job.ID)

	require.NoError(t, err)
	assert.Len(t, f.bus.GetEventsByType(domainsync.EventTypeJobFailed), 1)
	f.integrations.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.jobs.AssertExpectations(t)
}

func TestJobExecutor_Execute_RefusesAboveActiveCap(t *testing.T) {
	f := newExecutorFixture(1)
	require.NoError(t, f.executor.register(uuid.New(), func() {}))

	err := f.executor.Execute(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domainsync.ErrTooManyActiveJobs)
	assert.Equal(t, 1, f.executor.ActiveCount())
	f.jobs.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestJobExecutor_Execute_SingleFlightPerJob(t *testing.T) {
	f := newExecutorFixture(0)
	jobID := uuid.New()
	require.NoError(t, f.executor.register(jobID, func() {}))

	err := f.executor.Execute(context.Background(), jobID)

	assert.ErrorIs(t, err, domainsync.ErrJobAlreadyActive)
}

func TestJobExecutor_Execute_NotPending(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID)
	conn := new(MockConnector)

	f.jobs.On("FindByID", mock.Anything, job.ID).Return(job, nil)
	f.integrations.On("FindByID", mock.Anything, job.IntegrationID).Return(in, nil)
	f.source.On("Get", mock.Anything, in.Platform, in.ID).Return(conn, nil)
	f.jobs.On("MarkRunning", mock.Anything, job.ID, mock.AnythingOfType("time.Time")).Return(false, nil)

	err := f.executor.Execute(context.Background(), job.ID)

	assert.ErrorIs(t, err, domainsync.ErrJobNotPending)
	conn.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything, mock.Anything)
	f.jobs.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobExecutor_Execute_ConnectorFailureLeavesJobPending(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID)

	f.jobs.On("FindByID", mock.Anything, job.ID).Return(job, nil)
	f.integrations.On("FindByID", mock.Anything, job.IntegrationID).Return(in, nil)
	f.source.On("Get", mock.Anything, in.Platform, in.ID).
		Return(nil, fmt.Errorf("%w: ping refused", integration.ErrConnectorInitFailed))

	err := f.executor.Execute(context.Background(), job.ID)

	assert.ErrorIs(t, err, integration.ErrConnectorInitFailed)
	f.jobs.AssertNotCalled(t, "MarkRunning", mock.Anything, mock.Anything, mock.Anything)
	f.jobs.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobExecutor_Execute_TimedOutBeforeRun(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID, integration.EntityProducts)
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	var finalized *domainsync.SyncResult
	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusFailed, mock.Anything, "timed out before execution", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { finalized = args.Get(3).(*domainsync.SyncResult) }).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.executor.Execute(ctx, job.ID)

	assert.ErrorIs(t, err, domainsync.ErrTimedOutBeforeRun)
	require.NotNil(t, finalized)
	assert.Empty(t, finalized.EntityResults)
	assert.Equal(t, 0, finalized.Summary.TotalProcessed)
	conn.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.bus.GetEventsByType(domainsync.EventTypeJobFailed), 1)
}

func TestJobExecutor_Execute_CancelBetweenEntities(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID, integration.EntityProducts, integration.EntityInventory)
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	// The cancel lands while the first entity is syncing; the loop must
	// observe it before starting the second.
	conn.On("Sync", mock.Anything, integration.EntityProducts, mock.Anything).
		Run(func(args mock.Arguments) { f.executor.Cancel(job.ID) }).
		Return(&integration.EntitySyncResult{EntityType: integration.EntityProducts, Processed: 10, Updated: 10}, nil)

	var finalized *domainsync.SyncResult
	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusCancelled, mock.Anything, "", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { finalized = args.Get(3).(*domainsync.SyncResult) }).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)

	err := f.executor.Execute(context.Background(), job.ID)

	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.Len(t, finalized.EntityResults, 1, "processed entity results are retained")
	assert.Equal(t, 10, finalized.Summary.TotalProcessed)
	conn.AssertNumberOfCalls(t, "Sync", 1)
	assert.Len(t, f.bus.GetEventsByType(domainsync.EventTypeJobCancelled), 1)
}

func TestJobExecutor_Execute_TimeoutMidEntity(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJobWithConfig(t, orgID, in.ID, domainsync.SyncJobConfig{
		EntityTypes: []integration.EntityType{integration.EntityProducts, integration.EntityInventory},
		Timeout:     25 * time.Millisecond,
	})
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	conn.On("Sync", mock.Anything, integration.EntityProducts, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusCancelled, mock.Anything, "", mock.AnythingOfType("time.Time")).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)

	err := f.executor.Execute(context.Background(), job.ID)

	require.NoError(t, err)
	conn.AssertNumberOfCalls(t, "Sync", 1)
	f.jobs.AssertExpectations(t)
}

func TestJobExecutor_Execute_ConflictsForwardedToResolver(t *testing.T) {
	f := newExecutorFixture(0)
	orgID := uuid.New()
	in := createTestIntegration(t, orgID)
	job := createTestJob(t, orgID, in.ID, integration.EntityPricing)
	conn := new(MockConnector)
	f.expectPickup(job, in, conn)

	conn.On("Sync", mock.Anything, integration.EntityPricing, mock.Anything).Return(&integration.EntitySyncResult{
		EntityType: integration.EntityPricing,
		Processed:  5,
		Updated:    4,
		Conflicts: []integration.CandidateConflict{{
			EntityType:  integration.EntityPricing,
			RecordID:    "SKU-2",
			Field:       "price",
			SourceValue: json.RawMessage(`"99.95"`),
			TargetValue: json.RawMessage(`"89.95"`),
		}},
	}, nil)
	f.conflicts.On("Save", mock.Anything, mock.AnythingOfType("*sync.SyncConflict")).Return(nil)

	var finalized *domainsync.SyncResult
	f.jobs.On("Finalize", mock.Anything, job.ID, domainsync.JobStatusCompleted, mock.Anything, "", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { finalized = args.Get(3).(*domainsync.SyncResult) }).
		Return(nil)
	f.metrics.On("Save", mock.Anything, job.ID, orgID, mock.Anything).Return(nil)
	f.integrations.On("Update", mock.Anything, in).Return(nil)

	err := f.executor.Execute(context.Background(), job.ID)

	require.NoError(t, err)
	require.NotNil(t, finalized)
	require.Len(t, finalized.Conflicts, 1)
	conflict := finalized.Conflicts[0]
	assert.Equal(t, "SKU-2", conflict.RecordID)
	assert.Equal(t, job.ID, conflict.JobID)
	require.NotNil(t, conflict.Resolution, "source_wins is the default strategy")
	assert.Equal(t, domainsync.StrategySourceWins, conflict.Resolution.Strategy)
	assert.Equal(t, json.RawMessage(`"99.95"`), conflict.Resolution.ResolvedValue)

	require.NotNil(t, finalized.Metrics)
	assert.Equal(t, 1, finalized.Metrics.StorageCallCount)
	assert.Len(t, f.bus.GetEventsByType(domainsync.EventTypeConflictDetected), 1)
	f.conflicts.AssertExpectations(t)
}

func TestJobExecutor_Cancel_UnknownJob(t *testing.T) {
	f := newExecutorFixture(0)
	assert.False(t, f.executor.Cancel(uuid.New()))
}
