package handler

import (
	"time"

	integrationapp "github.com/truthsource/backend/internal/application/integration"
	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IntegrationHandler handles integration-related API endpoints
type IntegrationHandler struct {
	BaseHandler
	integrationService *integrationapp.IntegrationService
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(integrationService *integrationapp.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{
		integrationService: integrationService,
	}
}

// CreateIntegrationRequest represents a request to register a new integration
// @Description Request body for creating a new integration
type CreateIntegrationRequest struct {
	Platform    string                   `json:"platform" binding:"required,oneof=netsuite shopify quickbooks custom_api" example:"shopify"`
	Name        string                   `json:"name" binding:"required,min=1,max=200" example:"EU Shopify production"`
	Credentials map[string]string        `json:"credentials" binding:"required"`
	Settings    ConnectorSettingsInput   `json:"settings"`
}

// ConnectorSettingsInput describes per-integration connector tuning
// @Description Connector settings
type ConnectorSettingsInput struct {
	BaseURL        string `json:"base_url" binding:"omitempty,url" example:"https://eu.shopify.example.com"`
	TimeoutSeconds int    `json:"timeout_seconds" binding:"omitempty,min=1,max=300" example:"30"`
	RateLimit      int    `json:"rate_limit" binding:"omitempty,min=0" example:"4"`
	BatchSize      int    `json:"batch_size" binding:"omitempty,min=1,max=1000" example:"250"`
}

// RotateCredentialsRequest represents a request to replace integration credentials
// @Description Request body for rotating integration credentials
type RotateCredentialsRequest struct {
	Credentials map[string]string `json:"credentials" binding:"required"`
}

// IntegrationResponse represents an integration in API responses.
// Credentials are sealed at rest and never leave the service.
// @Description Integration response
type IntegrationResponse struct {
	ID           string                    `json:"id" example:"550e8400-e29b-41d4-a716-446655440001"`
	OrgID        string                    `json:"org_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Platform     string                    `json:"platform" example:"shopify"`
	Name         string                    `json:"name" example:"EU Shopify production"`
	Settings     ConnectorSettingsResponse `json:"settings"`
	Active       bool                      `json:"active" example:"true"`
	LastSyncedAt *time.Time                `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// ConnectorSettingsResponse represents connector tuning in API responses
// @Description Connector settings response
type ConnectorSettingsResponse struct {
	BaseURL        string `json:"base_url" example:"https://eu.shopify.example.com"`
	TimeoutSeconds int    `json:"timeout_seconds" example:"30"`
	RateLimit      int    `json:"rate_limit" example:"4"`
	BatchSize      int    `json:"batch_size" example:"250"`
}

// Create godoc
// @Summary      Create a new integration
// @Description  Register an external platform connection. Credentials are sealed before they are stored.
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        request body CreateIntegrationRequest true "Integration creation request"
// @Success      201 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations [post]
func (h *IntegrationHandler) Create(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	var req CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	settings := integration.ConnectorSettings{
		BaseURL:   req.Settings.BaseURL,
		Timeout:   time.Duration(req.Settings.TimeoutSeconds) * time.Second,
		RateLimit: req.Settings.RateLimit,
		BatchSize: req.Settings.BatchSize,
	}

	in, err := h.integrationService.CreateIntegration(
		c.Request.Context(),
		orgID,
		integration.PlatformType(req.Platform),
		req.Name,
		req.Credentials,
		settings,
	)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toIntegrationResponse(in))
}

// List godoc
// @Summary      List integrations
// @Description  Retrieve every integration registered by the organization
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Success      200 {object} dto.Response{data=[]IntegrationResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrations, err := h.integrationService.ListIntegrations(c.Request.Context(), orgID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]IntegrationResponse, len(integrations))
	for i, in := range integrations {
		responses[i] = toIntegrationResponse(in)
	}

	h.Success(c, responses)
}

// GetByID godoc
// @Summary      Get integration by ID
// @Description  Retrieve an integration by its ID
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id} [get]
func (h *IntegrationHandler) GetByID(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	in, err := h.integrationService.GetIntegration(c.Request.Context(), orgID, integrationID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// Delete godoc
// @Summary      Delete an integration
// @Description  Remove an integration and evict its pooled connectors
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id} [delete]
func (h *IntegrationHandler) Delete(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	if err := h.integrationService.DeleteIntegration(c.Request.Context(), orgID, integrationID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// RotateCredentials godoc
// @Summary      Rotate integration credentials
// @Description  Replace the sealed credentials of an integration and evict pooled connectors built with the old ones
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Param        request body RotateCredentialsRequest true "Credential rotation request"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/credentials [put]
func (h *IntegrationHandler) RotateCredentials(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	var req RotateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	in, err := h.integrationService.RotateCredentials(c.Request.Context(), orgID, integrationID, req.Credentials)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// Activate godoc
// @Summary      Activate an integration
// @Description  Allow sync jobs to use this integration again
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/activate [post]
func (h *IntegrationHandler) Activate(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	in, err := h.integrationService.ActivateIntegration(c.Request.Context(), orgID, integrationID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// Deactivate godoc
// @Summary      Deactivate an integration
// @Description  Stop new sync jobs from using this integration
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/deactivate [post]
func (h *IntegrationHandler) Deactivate(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	in, err := h.integrationService.DeactivateIntegration(c.Request.Context(), orgID, integrationID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// TestConnection godoc
// @Summary      Test an integration connection
// @Description  Probe the external platform with the stored credentials and report reachability
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Success      200 {object} dto.Response{data=ReachableData}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/test [post]
func (h *IntegrationHandler) TestConnection(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	reachable, err := h.integrationService.TestConnection(c.Request.Context(), orgID, integrationID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ReachableData{Reachable: reachable})
}

// EvictConnectors godoc
// @Summary      Evict pooled connectors
// @Description  Drop every pooled connector for this integration so the next job rebuilds them
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID" format(uuid)
// @Success      200 {object} dto.Response{data=CountData}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/connectors/evict [post]
func (h *IntegrationHandler) EvictConnectors(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	count, err := h.integrationService.EvictConnectors(c.Request.Context(), orgID, integrationID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, CountData{Count: count})
}

// toIntegrationResponse converts a domain integration to a handler response.
// SealedCredentials is deliberately left out.
func toIntegrationResponse(in *integration.Integration) IntegrationResponse {
	return IntegrationResponse{
		ID:       in.ID.String(),
		OrgID:    in.OrgID.String(),
		Platform: string(in.Platform),
		Name:     in.Name,
		Settings: ConnectorSettingsResponse{
			BaseURL:        in.Settings.BaseURL,
			TimeoutSeconds: int(in.Settings.Timeout / time.Second),
			RateLimit:      in.Settings.RateLimit,
			BatchSize:      in.Settings.BatchSize,
		},
		Active:       in.Active,
		LastSyncedAt: in.LastSyncedAt,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.UpdatedAt,
	}
}
