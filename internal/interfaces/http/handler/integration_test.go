package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	integrationapp "github.com/truthsource/backend/internal/application/integration"
	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/infrastructure/secrets"
)

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

// MockConnectorSource is a mock implementation of integrationapp.ConnectorSource
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

// Ensure mocks implement the interfaces
var _ secrets.Sealer = (*MockSealer)(nil)
var _ integrationapp.ConnectorSource = (*MockConnectorSource)(nil)
var _ integration.Connector = (*MockConnector)(nil)

// Test helpers

type integrationMocks struct {
	integrations *MockIntegrationRepository
	sealer       *MockSealer
	connectors   *MockConnectorSource
}

func setupIntegrationTestRouter() (*gin.Engine, *integrationMocks, *IntegrationHandler) {
	gin.SetMode(gin.TestMode)

	mocks := &integrationMocks{
		integrations: new(MockIntegrationRepository),
		sealer:       new(MockSealer),
		connectors:   new(MockConnectorSource),
	}
	service := integrationapp.NewIntegrationService(mocks.integrations, mocks.sealer, mocks.connectors, zap.NewNop())
	handler := NewIntegrationHandler(service)

	router := gin.New()
	// Add test authentication middleware that sets JWT context values
	router.Use(func(c *gin.Context) {
		setJWTContext(c, uuid.MustParse("00000000-0000-0000-0000-000000000001"), uuid.New())
		c.Next()
	})

	return router, mocks, handler
}

func TestIntegrationHandler_Create(t *testing.T) {
	t.Run("should create integration with sealed credentials", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		credentials := map[string]string{"api_key": "shpat-secret", "shop": "eu-prod"}

		router.POST("/integrations", handler.Create)

		mocks.sealer.On("Seal", credentials).
			Return("sealed-blob", nil)
		mocks.integrations.On("Save", mock.Anything, mock.MatchedBy(func(in *integration.Integration) bool {
			return in.SealedCredentials == "sealed-blob" && in.OrgID == orgID
		})).Return(nil)

		reqBody := CreateIntegrationRequest{
			Platform:    "shopify",
			Name:        "EU Shopify production",
			Credentials: credentials,
			Settings: ConnectorSettingsInput{
				BaseURL:        "https://eu-prod.myshopify.example.com",
				TimeoutSeconds: 30,
				RateLimit:      4,
				BatchSize:      250,
			},
		}
		body, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/integrations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.True(t, response["success"].(bool))

		data := response["data"].(map[string]interface{})
		assert.Equal(t, "shopify", data["platform"])
		assert.Equal(t, "EU Shopify production", data["name"])
		assert.Equal(t, true, data["active"])

		settings := data["settings"].(map[string]interface{})
		assert.Equal(t, "https://eu-prod.myshopify.example.com", settings["base_url"])
		assert.Equal(t, float64(30), settings["timeout_seconds"])

		// Credentials must never appear in a response, sealed or not
		_, hasCredentials := data["credentials"]
		assert.False(t, hasCredentials)
		_, hasSealed := data["sealed_credentials"]
		assert.False(t, hasSealed)

		mocks.sealer.AssertExpectations(t)
		mocks.integrations.AssertExpectations(t)
	})

	t.Run("should fail with unknown platform", func(t *testing.T) {
		router, _, handler := setupIntegrationTestRouter()

		router.POST("/integrations", handler.Create)

		reqBody := map[string]interface{}{
			"platform":    "salesforce",
			"name":        "CRM",
			"credentials": map[string]string{"token": "x"},
		}
		body, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/integrations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should fail without name", func(t *testing.T) {
		router, _, handler := setupIntegrationTestRouter()

		router.POST("/integrations", handler.Create)

		reqBody := map[string]interface{}{
			"platform":    "netsuite",
			"credentials": map[string]string{"token": "x"},
		}
		body, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/integrations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should fail without credentials", func(t *testing.T) {
		router, _, handler := setupIntegrationTestRouter()

		router.POST("/integrations", handler.Create)

		reqBody := map[string]interface{}{
			"platform": "netsuite",
			"name":     "US NetSuite",
		}
		body, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/integrations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIntegrationHandler_List(t *testing.T) {
	t.Run("should list integrations", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		in1 := createTestIntegration(orgID, integration.PlatformShopify)
		in2 := createTestIntegration(orgID, integration.PlatformNetSuite)

		router.GET("/integrations", handler.List)

		mocks.integrations.On("FindByOrg", mock.Anything, orgID).
			Return([]*integration.Integration{in1, in2}, nil)

		req, _ := http.NewRequest(http.MethodGet, "/integrations", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.True(t, response["success"].(bool))

		data := response["data"].([]interface{})
		assert.Len(t, data, 2)

		mocks.integrations.AssertExpectations(t)
	})

	t.Run("should return empty list when org has none", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")

		router.GET("/integrations", handler.List)

		mocks.integrations.On("FindByOrg", mock.Anything, orgID).
			Return([]*integration.Integration{}, nil)

		req, _ := http.NewRequest(http.MethodGet, "/integrations", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].([]interface{})
		assert.Len(t, data, 0)

		mocks.integrations.AssertExpectations(t)
	})
}

func TestIntegrationHandler_GetByID(t *testing.T) {
	t.Run("should get integration by id", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformQuickBooks)

		router.GET("/integrations/:id", handler.GetByID)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)

		req, _ := http.NewRequest(http.MethodGet, "/integrations/"+testIntegration.ID.String(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.True(t, response["success"].(bool))

		data := response["data"].(map[string]interface{})
		assert.Equal(t, testIntegration.ID.String(), data["id"])
		assert.Equal(t, "quickbooks", data["platform"])

		mocks.integrations.AssertExpectations(t)
	})

	t.Run("should fail with invalid id", func(t *testing.T) {
		router, _, handler := setupIntegrationTestRouter()

		router.GET("/integrations/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/integrations/invalid-uuid", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should return 404 for unknown integration", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		integrationID := uuid.New()

		router.GET("/integrations/:id", handler.GetByID)

		mocks.integrations.On("FindByID", mock.Anything, integrationID).
			Return(nil, integration.ErrIntegrationNotFound)

		req, _ := http.NewRequest(http.MethodGet, "/integrations/"+integrationID.String(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		mocks.integrations.AssertExpectations(t)
	})

	t.Run("should not leak integrations of other orgs", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		otherOrgIntegration := createTestIntegration(uuid.New(), integration.PlatformShopify)

		router.GET("/integrations/:id", handler.GetByID)

		mocks.integrations.On("FindByID", mock.Anything, otherOrgIntegration.ID).
			Return(otherOrgIntegration, nil)

		req, _ := http.NewRequest(http.MethodGet, "/integrations/"+otherOrgIntegration.ID.String(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		mocks.integrations.AssertExpectations(t)
	})
}

func TestIntegrationHandler_Delete(t *testing.T) {
	t.Run("should delete integration and evict connectors", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformShopify)

		router.DELETE("/integrations/:id", handler.Delete)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.connectors.On("EvictIntegration", mock.Anything, testIntegration.ID).
			Return(1)
		mocks.integrations.On("Delete", mock.Anything, testIntegration.ID).
			Return(nil)

		req, _ := http.NewRequest(http.MethodDelete, "/integrations/"+testIntegration.ID.String(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)

		mocks.integrations.AssertExpectations(t)
		mocks.connectors.AssertExpectations(t)
	})

	t.Run("should return 404 for integration of another org", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		otherOrgIntegration := createTestIntegration(uuid.New(), integration.PlatformShopify)

		router.DELETE("/integrations/:id", handler.Delete)

		mocks.integrations.On("FindByID", mock.Anything, otherOrgIntegration.ID).
			Return(otherOrgIntegration, nil)

		req, _ := http.NewRequest(http.MethodDelete, "/integrations/"+otherOrgIntegration.ID.String(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		mocks.integrations.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestIntegrationHandler_RotateCredentials(t *testing.T) {
	t.Run("should rotate credentials and evict connectors", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformNetSuite)
		newCredentials := map[string]string{"consumer_key": "rotated"}

		router.PUT("/integrations/:id/credentials", handler.RotateCredentials)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.sealer.On("Seal", newCredentials).
			Return("rotated-blob", nil)
		mocks.integrations.On("Update", mock.Anything, mock.MatchedBy(func(in *integration.Integration) bool {
			return in.SealedCredentials == "rotated-blob"
		})).Return(nil)
		mocks.connectors.On("EvictIntegration", mock.Anything, testIntegration.ID).
			Return(2)

		reqBody := RotateCredentialsRequest{Credentials: newCredentials}
		body, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPut, "/integrations/"+testIntegration.ID.String()+"/credentials", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		mocks.sealer.AssertExpectations(t)
		mocks.integrations.AssertExpectations(t)
		mocks.connectors.AssertExpectations(t)
	})

	t.Run("should fail without credentials", func(t *testing.T) {
		router, _, handler := setupIntegrationTestRouter()

		router.PUT("/integrations/:id/credentials", handler.RotateCredentials)

		reqBody := map[string]interface{}{}
		body, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPut, "/integrations/"+uuid.New().String()+"/credentials", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIntegrationHandler_Lifecycle(t *testing.T) {
	t.Run("should activate integration", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformShopify)
		testIntegration.Active = false

		router.POST("/integrations/:id/activate", handler.Activate)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.integrations.On("Update", mock.Anything, mock.AnythingOfType("*integration.Integration")).
			Return(nil)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/activate", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, true, data["active"])

		mocks.integrations.AssertExpectations(t)
	})

	t.Run("should deactivate integration and evict connectors", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformShopify)

		router.POST("/integrations/:id/deactivate", handler.Deactivate)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.integrations.On("Update", mock.Anything, mock.AnythingOfType("*integration.Integration")).
			Return(nil)
		mocks.connectors.On("EvictIntegration", mock.Anything, testIntegration.ID).
			Return(1)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/deactivate", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, false, data["active"])

		mocks.integrations.AssertExpectations(t)
		mocks.connectors.AssertExpectations(t)
	})
}

func TestIntegrationHandler_TestConnection(t *testing.T) {
	t.Run("should report reachable platform", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformShopify)

		mockConnector := new(MockConnector)
		mockConnector.On("TestConnection", mock.Anything).Return(true)

		router.POST("/integrations/:id/test", handler.TestConnection)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.connectors.On("Get", mock.Anything, integration.PlatformShopify, testIntegration.ID).
			Return(mockConnector, nil)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/test", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.True(t, response["success"].(bool))

		data := response["data"].(map[string]interface{})
		assert.Equal(t, true, data["reachable"])

		mockConnector.AssertExpectations(t)
		mocks.connectors.AssertExpectations(t)
	})

	t.Run("should report unreachable when connector cannot be built", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformNetSuite)

		router.POST("/integrations/:id/test", handler.TestConnection)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.connectors.On("Get", mock.Anything, integration.PlatformNetSuite, testIntegration.ID).
			Return(nil, integration.ErrConnectorUnavailable)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/test", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		// A connector failure is an answer, not an error
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, false, data["reachable"])

		mocks.connectors.AssertExpectations(t)
	})

	t.Run("should return 422 for inactive integration", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformShopify)
		testIntegration.Active = false

		router.POST("/integrations/:id/test", handler.TestConnection)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/test", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		mocks.connectors.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should surface unregistered platform as error", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformCustomAPI)

		router.POST("/integrations/:id/test", handler.TestConnection)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.connectors.On("Get", mock.Anything, integration.PlatformCustomAPI, testIntegration.ID).
			Return(nil, integration.ErrConnectorNotRegistered)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/test", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		mocks.connectors.AssertExpectations(t)
	})
}

func TestIntegrationHandler_EvictConnectors(t *testing.T) {
	t.Run("should evict pooled connectors", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		orgID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		testIntegration := createTestIntegration(orgID, integration.PlatformShopify)

		router.POST("/integrations/:id/connectors/evict", handler.EvictConnectors)

		mocks.integrations.On("FindByID", mock.Anything, testIntegration.ID).
			Return(testIntegration, nil)
		mocks.connectors.On("EvictIntegration", mock.Anything, testIntegration.ID).
			Return(3)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+testIntegration.ID.String()+"/connectors/evict", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.True(t, response["success"].(bool))

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(3), data["count"])

		mocks.connectors.AssertExpectations(t)
	})

	t.Run("should return 404 for unknown integration", func(t *testing.T) {
		router, mocks, handler := setupIntegrationTestRouter()

		integrationID := uuid.New()

		router.POST("/integrations/:id/connectors/evict", handler.EvictConnectors)

		mocks.integrations.On("FindByID", mock.Anything, integrationID).
			Return(nil, integration.ErrIntegrationNotFound)

		req, _ := http.NewRequest(http.MethodPost, "/integrations/"+integrationID.String()+"/connectors/evict", nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		mocks.integrations.AssertExpectations(t)
	})
}
