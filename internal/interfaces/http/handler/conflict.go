package handler

import (
	"encoding/json"
	"time"

	syncapp "github.com/truthsource/backend/internal/application/sync"
	"github.com/truthsource/backend/internal/domain/shared"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConflictHandler handles sync conflict-related API endpoints
type ConflictHandler struct {
	BaseHandler
	conflictService *syncapp.ConflictService
}

// NewConflictHandler creates a new ConflictHandler
func NewConflictHandler(conflictService *syncapp.ConflictService) *ConflictHandler {
	return &ConflictHandler{
		conflictService: conflictService,
	}
}

// ResolveConflictRequest represents a request to resolve a conflict manually
// @Description Request body for resolving a conflict
type ResolveConflictRequest struct {
	Winner string `json:"winner" binding:"required,oneof=source target" example:"source"`
}

// ListConflictsRequest represents query parameters for listing pending conflicts
type ListConflictsRequest struct {
	dto.ListRequest
	EntityType string `form:"entity_type" binding:"omitempty,oneof=products inventory orders customers pricing"`
}

// ConflictResponse represents a sync conflict in API responses
// @Description Sync conflict response
type ConflictResponse struct {
	ID              string                      `json:"id" example:"550e8400-e29b-41d4-a716-446655440030"`
	JobID           string                      `json:"job_id" example:"550e8400-e29b-41d4-a716-446655440010"`
	OrgID           string                      `json:"org_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EntityType      string                      `json:"entity_type" example:"products"`
	RecordID        string                      `json:"record_id" example:"SKU-1042"`
	Field           string                      `json:"field" example:"price"`
	SourceValue     json.RawMessage             `json:"source_value"`
	TargetValue     json.RawMessage             `json:"target_value"`
	SourceUpdatedAt string                      `json:"source_updated_at,omitempty" example:"2026-02-10T08:12:00Z"`
	TargetUpdatedAt string                      `json:"target_updated_at,omitempty" example:"2026-02-09T17:40:00Z"`
	DetectedAt      time.Time                   `json:"detected_at"`
	Resolution      *ConflictResolutionResponse `json:"resolution,omitempty"`
}

// ConflictResolutionResponse represents a settled conflict outcome
// @Description Conflict resolution response
type ConflictResolutionResponse struct {
	Strategy      string          `json:"strategy" example:"manual"`
	ResolvedValue json.RawMessage `json:"resolved_value"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// List godoc
// @Summary      List pending conflicts
// @Description  Retrieve a paginated list of conflicts awaiting manual resolution
// @Tags         conflicts
// @Accept       json
// @Produce      json
// @Param        entity_type query string false "Entity type" Enums(products, inventory, orders, customers, pricing)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(detected_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} dto.Response{data=[]ConflictResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	var req ListConflictsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	}
	if req.EntityType != "" {
		filter.Filters = map[string]interface{}{"entity_type": req.EntityType}
	}

	page, err := h.conflictService.ListPendingConflicts(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]ConflictResponse, len(page.Items))
	for i, conflict := range page.Items {
		responses[i] = toConflictResponse(conflict)
	}

	h.SuccessWithMeta(c, responses, page.Total, page.Page, page.PageSize)
}

// GetByID godoc
// @Summary      Get conflict by ID
// @Description  Retrieve a sync conflict by its ID
// @Tags         conflicts
// @Accept       json
// @Produce      json
// @Param        id path string true "Conflict ID" format(uuid)
// @Success      200 {object} dto.Response{data=ConflictResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/conflicts/{id} [get]
func (h *ConflictHandler) GetByID(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID format")
		return
	}

	conflict, err := h.conflictService.GetConflict(c.Request.Context(), orgID, conflictID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toConflictResponse(conflict))
}

// ListByJob godoc
// @Summary      List conflicts for a sync job
// @Description  Retrieve every conflict detected during one sync job run
// @Tags         conflicts
// @Accept       json
// @Produce      json
// @Param        id path string true "Sync Job ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]ConflictResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs/{id}/conflicts [get]
func (h *ConflictHandler) ListByJob(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	conflicts, err := h.conflictService.ListJobConflicts(c.Request.Context(), orgID, jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]ConflictResponse, len(conflicts))
	for i, conflict := range conflicts {
		responses[i] = toConflictResponse(conflict)
	}

	h.Success(c, responses)
}

// Resolve godoc
// @Summary      Resolve a conflict manually
// @Description  Settle a pending conflict with the operator's pick of the source or target value
// @Tags         conflicts
// @Accept       json
// @Produce      json
// @Param        id path string true "Conflict ID" format(uuid)
// @Param        request body ResolveConflictRequest true "Conflict resolution request"
// @Success      200 {object} dto.Response{data=ConflictResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/conflicts/{id}/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID format")
		return
	}

	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	conflict, err := h.conflictService.ResolveConflictManually(c.Request.Context(), orgID, conflictID, req.Winner)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toConflictResponse(conflict))
}

// toConflictResponse converts a domain conflict to a handler response
func toConflictResponse(conflict *domainsync.SyncConflict) ConflictResponse {
	resp := ConflictResponse{
		ID:              conflict.ID.String(),
		JobID:           conflict.JobID.String(),
		OrgID:           conflict.OrgID.String(),
		EntityType:      string(conflict.EntityType),
		RecordID:        conflict.RecordID,
		Field:           conflict.Field,
		SourceValue:     conflict.SourceValue,
		TargetValue:     conflict.TargetValue,
		SourceUpdatedAt: conflict.SourceUpdatedAt,
		TargetUpdatedAt: conflict.TargetUpdatedAt,
		DetectedAt:      conflict.DetectedAt,
	}

	if conflict.Resolution != nil {
		resp.Resolution = &ConflictResolutionResponse{
			Strategy:      conflict.Resolution.Strategy.String(),
			ResolvedValue: conflict.Resolution.ResolvedValue,
			ResolvedAt:    conflict.Resolution.ResolvedAt,
		}
	}

	return resp
}
