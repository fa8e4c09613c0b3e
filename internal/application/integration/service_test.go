package integration

import (
	"context"
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
)

// MockIntegrationRepository is a mock implementation of integration.Repository
type MockIntegrationRepository struct {
	mock.Mock
}

func (m *MockIntegrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Integration), args.Error(1)
}

func (m *MockIntegrationRepository) FindByOrg(ctx context.Context, orgID uuid.UUID) ([]*integration.Integration, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.Integration), args.Error(1)
}

func (m *MockIntegrationRepository) Save(ctx context.Context, in *integration.Integration) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *MockIntegrationRepository) Update(ctx context.Context, in *integration.Integration) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *MockIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSealer is a mock implementation of secrets.Sealer
type MockSealer struct {
	mock.Mock
}

func (m *MockSealer) Seal(credentials map[string]string) (string, error) {
	args := m.Called(credentials)
	return args.String(0), args.Error(1)
}

func (m *MockSealer) Unseal(blob string) (map[string]string, error) {
	args := m.Called(blob)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
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

type fixture struct {
	integrations *MockIntegrationRepository
	sealer       *MockSealer
	connectors   *MockConnectorSource
	service      *IntegrationService
}

func newFixture() *fixture {
	f := &fixture{
		integrations: new(MockIntegrationRepository),
		sealer:       new(MockSealer),
		connectors:   new(MockConnectorSource),
	}
	f.service = NewIntegrationService(f.integrations, f.sealer, f.connectors, zap.NewNop())
	return f
}

func storedIntegration(t *testing.T, orgID uuid.UUID) *integration.Integration {
	t.Helper()
	in, err := integration.NewIntegration(orgID, integration.PlatformNetSuite, "US ERP production", integration.ConnectorSettings{
		BaseURL:   "https://erp.example.com",
		Timeout:   10 * time.Second,
		BatchSize: 200,
	})
	require.NoError(t, err)
	in.SealedCredentials = "sealed-v1"
	return in
}

func TestIntegrationService_CreateIntegration_SealsCredentials(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	credentials := map[string]string{"account_id": "77001", "token": "ns-token"}

	f.sealer.On("Seal", credentials).Return("sealed-blob", nil)
	var saved *integration.Integration
	f.integrations.On("Save", mock.Anything, mock.AnythingOfType("*integration.Integration")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*integration.Integration) }).
		Return(nil)

	in, err := f.service.CreateIntegration(context.Background(), orgID, integration.PlatformNetSuite,
		"US ERP production", credentials, integration.ConnectorSettings{BaseURL: "https://erp.example.com"})

	require.NoError(t, err)
	assert.Same(t, saved, in)
	assert.Equal(t, "sealed-blob", in.SealedCredentials)
	assert.True(t, in.Active)
	assert.Equal(t, orgID, in.OrgID)
	f.sealer.AssertExpectations(t)
}

func TestIntegrationService_CreateIntegration_InvalidPlatform(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateIntegration(context.Background(), uuid.New(), integration.PlatformType("sap"),
		"legacy", nil, integration.ConnectorSettings{})

	assert.ErrorIs(t, err, integration.ErrInvalidPlatform)
	f.sealer.AssertNotCalled(t, "Seal", mock.Anything)
	f.integrations.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestIntegrationService_CreateIntegration_SealFailure(t *testing.T) {
	f := newFixture()

	f.sealer.On("Seal", mock.Anything).Return("", errors.New("master key not loaded"))

	_, err := f.service.CreateIntegration(context.Background(), uuid.New(), integration.PlatformShopify,
		"EU storefront", map[string]string{"token": "x"}, integration.ConnectorSettings{})

	require.Error(t, err)
	f.integrations.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestIntegrationService_GetIntegration_OrgScope(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)

	found, err := f.service.GetIntegration(context.Background(), orgID, in.ID)
	require.NoError(t, err)
	assert.Same(t, in, found)

	_, err = f.service.GetIntegration(context.Background(), uuid.New(), in.ID)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
}

func TestIntegrationService_RotateCredentials_EvictsCachedConnectors(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)
	credentials := map[string]string{"account_id": "77001", "token": "ns-token-v2"}

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.sealer.On("Seal", credentials).Return("sealed-v2", nil)
	f.integrations.On("Update", mock.Anything, in).Return(nil)
	f.connectors.On("EvictIntegration", mock.Anything, in.ID).Return(1)

	updated, err := f.service.RotateCredentials(context.Background(), orgID, in.ID, credentials)

	require.NoError(t, err)
	assert.Equal(t, "sealed-v2", updated.SealedCredentials)
	f.connectors.AssertCalled(t, "EvictIntegration", mock.Anything, in.ID)
}

func TestIntegrationService_RotateCredentials_OrgScope(t *testing.T) {
	f := newFixture()
	in := storedIntegration(t, uuid.New())

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)

	_, err := f.service.RotateCredentials(context.Background(), uuid.New(), in.ID, map[string]string{"token": "x"})

	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
	f.sealer.AssertNotCalled(t, "Seal", mock.Anything)
	assert.Equal(t, "sealed-v1", in.SealedCredentials)
}

func TestIntegrationService_DeactivateIntegration(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.integrations.On("Update", mock.Anything, in).Return(nil)
	f.connectors.On("EvictIntegration", mock.Anything, in.ID).Return(1)

	updated, err := f.service.DeactivateIntegration(context.Background(), orgID, in.ID)

	require.NoError(t, err)
	assert.False(t, updated.Active)
	f.connectors.AssertCalled(t, "EvictIntegration", mock.Anything, in.ID)
}

func TestIntegrationService_ActivateIntegration(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)
	in.Deactivate()

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.integrations.On("Update", mock.Anything, in).Return(nil)

	updated, err := f.service.ActivateIntegration(context.Background(), orgID, in.ID)

	require.NoError(t, err)
	assert.True(t, updated.Active)
}

func TestIntegrationService_DeleteIntegration(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.connectors.On("EvictIntegration", mock.Anything, in.ID).Return(0)
	f.integrations.On("Delete", mock.Anything, in.ID).Return(nil)

	err := f.service.DeleteIntegration(context.Background(), orgID, in.ID)

	require.NoError(t, err)
	f.integrations.AssertExpectations(t)
}

func TestIntegrationService_TestConnection_Reachable(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)
	conn := new(MockConnector)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.connectors.On("Get", mock.Anything, in.Platform, in.ID).Return(conn, nil)
	conn.On("TestConnection", mock.Anything).Return(true)

	reachable, err := f.service.TestConnection(context.Background(), orgID, in.ID)

	require.NoError(t, err)
	assert.True(t, reachable)
}

func TestIntegrationService_TestConnection_ConnectorFailureIsUnreachable(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.connectors.On("Get", mock.Anything, in.Platform, in.ID).
		Return(nil, fmt.Errorf("%w: dial tcp: connection refused", integration.ErrConnectorInitFailed))

	reachable, err := f.service.TestConnection(context.Background(), orgID, in.ID)

	require.NoError(t, err, "reachability failures are an answer, not an error")
	assert.False(t, reachable)
}

func TestIntegrationService_TestConnection_InactiveIntegration(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)
	in.Deactivate()

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)

	_, err := f.service.TestConnection(context.Background(), orgID, in.ID)

	assert.ErrorIs(t, err, integration.ErrIntegrationInactive)
	f.connectors.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestIntegrationService_TestConnection_StructuralErrorSurfaces(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.connectors.On("Get", mock.Anything, in.Platform, in.ID).
		Return(nil, integration.ErrConnectorNotRegistered)

	_, err := f.service.TestConnection(context.Background(), orgID, in.ID)

	assert.ErrorIs(t, err, integration.ErrConnectorNotRegistered)
}

func TestIntegrationService_EvictConnectors(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	in := storedIntegration(t, orgID)

	f.integrations.On("FindByID", mock.Anything, in.ID).Return(in, nil)
	f.connectors.On("EvictIntegration", mock.Anything, in.ID).Return(3)

	evicted, err := f.service.EvictConnectors(context.Background(), orgID, in.ID)

	require.NoError(t, err)
	assert.Equal(t, 3, evicted)

	_, err = f.service.EvictConnectors(context.Background(), uuid.New(), in.ID)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
}
