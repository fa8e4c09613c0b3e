package handler

import (
	"time"

	syncapp "github.com/truthsource/backend/internal/application/sync"
	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/domain/shared"
	domainsync "github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SyncJobHandler handles sync job-related API endpoints
type SyncJobHandler struct {
	BaseHandler
	jobService *syncapp.JobService
}

// NewSyncJobHandler creates a new SyncJobHandler
func NewSyncJobHandler(jobService *syncapp.JobService) *SyncJobHandler {
	return &SyncJobHandler{
		jobService: jobService,
	}
}

// CreateSyncJobRequest represents a request to create a new sync job
// @Description Request body for creating a new sync job
type CreateSyncJobRequest struct {
	IntegrationID string             `json:"integration_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Type          string             `json:"type" binding:"omitempty,oneof=manual scheduled webhook" example:"manual"`
	Config        SyncJobConfigInput `json:"config" binding:"required"`
}

// SyncJobConfigInput describes what a sync job should reconcile and how
// @Description Sync job configuration
type SyncJobConfigInput struct {
	EntityTypes      []string `json:"entity_types" binding:"required,min=1,dive,oneof=products inventory orders customers pricing" example:"products,inventory"`
	BatchSize        int      `json:"batch_size" binding:"omitempty,min=1,max=1000" example:"100"`
	Mode             string   `json:"mode" binding:"omitempty,oneof=full incremental" example:"incremental"`
	Priority         string   `json:"priority" binding:"omitempty,oneof=high normal low" example:"normal"`
	ConflictStrategy string   `json:"conflict_strategy" binding:"omitempty,oneof=source_wins target_wins newest_wins manual" example:"newest_wins"`
	MaxAttempts      int      `json:"max_attempts" binding:"omitempty,min=1,max=10" example:"3"`
	BackoffSeconds   int      `json:"backoff_seconds" binding:"omitempty,min=1" example:"30"`
	TimeoutSeconds   int      `json:"timeout_seconds" binding:"omitempty,min=1" example:"1800"`
	DryRun           bool     `json:"dry_run" example:"false"`
}

// ListSyncJobsRequest represents query parameters for listing sync jobs
type ListSyncJobsRequest struct {
	dto.ListRequest
	Status        string `form:"status" binding:"omitempty,oneof=pending running completed completed_with_errors failed cancelled"`
	IntegrationID string `form:"integration_id" binding:"omitempty,uuid"`
}

// SyncJobResponse represents a sync job in API responses
// @Description Sync job response
type SyncJobResponse struct {
	ID            string                 `json:"id" example:"550e8400-e29b-41d4-a716-446655440010"`
	OrgID         string                 `json:"org_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	IntegrationID string                 `json:"integration_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	Type          string                 `json:"type" example:"manual"`
	Status        string                 `json:"status" example:"pending"`
	Config        SyncJobConfigResponse  `json:"config"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Result        *SyncResultResponse    `json:"result,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty" example:""`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// SyncJobConfigResponse represents a normalized job configuration
// @Description Sync job configuration response
type SyncJobConfigResponse struct {
	EntityTypes      []string `json:"entity_types" example:"products,inventory"`
	BatchSize        int      `json:"batch_size" example:"100"`
	Mode             string   `json:"mode" example:"full"`
	Priority         string   `json:"priority" example:"normal"`
	ConflictStrategy string   `json:"conflict_strategy" example:"source_wins"`
	MaxAttempts      int      `json:"max_attempts" example:"3"`
	BackoffSeconds   int      `json:"backoff_seconds" example:"30"`
	TimeoutSeconds   int      `json:"timeout_seconds,omitempty" example:"1800"`
	DryRun           bool     `json:"dry_run" example:"false"`
}

// SyncResultResponse represents the outcome of a finished sync job
// @Description Sync result response
type SyncResultResponse struct {
	Success    bool                        `json:"success" example:"true"`
	Summary    SyncSummaryResponse         `json:"summary"`
	Conflicts  int                         `json:"conflicts" example:"2"`
	Errors     []SyncErrorResponse         `json:"errors,omitempty"`
	DurationMS int64                       `json:"duration_ms" example:"45210"`
	Metrics    *PerformanceMetricsResponse `json:"metrics,omitempty"`
}

// SyncSummaryResponse represents record counts folded across entity types
// @Description Sync summary response
type SyncSummaryResponse struct {
	TotalProcessed int `json:"total_processed" example:"1200"`
	Created        int `json:"created" example:"40"`
	Updated        int `json:"updated" example:"1100"`
	Deleted        int `json:"deleted" example:"10"`
	Skipped        int `json:"skipped" example:"45"`
	Failed         int `json:"failed" example:"5"`
}

// SyncErrorResponse represents a per-entity failure within a job run
// @Description Sync error response
type SyncErrorResponse struct {
	EntityType string    `json:"entity_type" example:"orders"`
	Message    string    `json:"message" example:"platform request failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncProgressResponse represents a live progress snapshot of a running job
// @Description Sync progress response
type SyncProgressResponse struct {
	JobID             string    `json:"job_id" example:"550e8400-e29b-41d4-a716-446655440010"`
	Phase             string    `json:"phase" example:"syncing"`
	EntitiesTotal     int       `json:"entities_total" example:"3"`
	EntitiesCompleted int       `json:"entities_completed" example:"1"`
	RecordsProcessed  int       `json:"records_processed" example:"450"`
	RecordsTotal      int       `json:"records_total" example:"1200"`
	Percentage        float64   `json:"percentage" example:"33.3"`
	CurrentEntity     string    `json:"current_entity,omitempty" example:"inventory"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PerformanceMetricsResponse represents per-job performance measurements
// @Description Performance metrics response
type PerformanceMetricsResponse struct {
	WallTimeMS            int64   `json:"wall_time_ms" example:"45210"`
	APICallCount          int     `json:"api_call_count" example:"38"`
	APICallDurationMS     int64   `json:"api_call_duration_ms" example:"32100"`
	StorageCallCount      int     `json:"storage_call_count" example:"120"`
	StorageCallDurationMS int64   `json:"storage_call_duration_ms" example:"8400"`
	MemoryDeltaBytes      uint64  `json:"memory_delta_bytes" example:"5242880"`
	CPUPercent            float64 `json:"cpu_percent" example:"12.5"`
	BytesSent             int64   `json:"bytes_sent" example:"524288"`
	BytesReceived         int64   `json:"bytes_received" example:"2097152"`
}

// Create godoc
// @Summary      Create a new sync job
// @Description  Create a sync job for an integration and enqueue it for dispatch
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body CreateSyncJobRequest true "Sync job creation request"
// @Success      201 {object} dto.Response{data=SyncJobResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs [post]
func (h *SyncJobHandler) Create(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	var req CreateSyncJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	integrationID, err := uuid.Parse(req.IntegrationID)
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	config := domainsync.SyncJobConfig{
		BatchSize: req.Config.BatchSize,
		Mode:      domainsync.SyncMode(req.Config.Mode),
		Priority:  domainsync.JobPriority(req.Config.Priority),
		RetryPolicy: domainsync.RetryPolicy{
			MaxAttempts: req.Config.MaxAttempts,
			Backoff:     time.Duration(req.Config.BackoffSeconds) * time.Second,
		},
		ConflictStrategy: domainsync.ResolutionStrategy(req.Config.ConflictStrategy),
		Timeout:          time.Duration(req.Config.TimeoutSeconds) * time.Second,
		DryRun:           req.Config.DryRun,
	}
	for _, et := range req.Config.EntityTypes {
		config.EntityTypes = append(config.EntityTypes, integration.EntityType(et))
	}

	job, err := h.jobService.CreateSyncJob(c.Request.Context(), orgID, integrationID, domainsync.JobType(req.Type), config)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toSyncJobResponse(job))
}

// List godoc
// @Summary      List sync jobs
// @Description  Retrieve a paginated list of sync jobs with optional filtering
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        status query string false "Job status" Enums(pending, running, completed, completed_with_errors, failed, cancelled)
// @Param        integration_id query string false "Integration ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(created_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} dto.Response{data=[]SyncJobResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs [get]
func (h *SyncJobHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	var req ListSyncJobsRequest
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
	if req.Status != "" || req.IntegrationID != "" {
		filter.Filters = make(map[string]interface{})
		if req.Status != "" {
			filter.Filters["status"] = req.Status
		}
		if req.IntegrationID != "" {
			filter.Filters["integration_id"] = req.IntegrationID
		}
	}

	page, err := h.jobService.ListJobs(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]SyncJobResponse, len(page.Items))
	for i, job := range page.Items {
		responses[i] = toSyncJobResponse(job)
	}

	h.SuccessWithMeta(c, responses, page.Total, page.Page, page.PageSize)
}

// GetByID godoc
// @Summary      Get sync job by ID
// @Description  Retrieve a sync job by its ID
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        id path string true "Sync Job ID" format(uuid)
// @Success      200 {object} dto.Response{data=SyncJobResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs/{id} [get]
func (h *SyncJobHandler) GetByID(c *gin.Context) {
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

	job, err := h.jobService.GetJob(c.Request.Context(), orgID, jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toSyncJobResponse(job))
}

// Cancel godoc
// @Summary      Cancel a sync job
// @Description  Cancel a pending or running sync job. Cancelling a job that already finished is a no-op.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        id path string true "Sync Job ID" format(uuid)
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs/{id}/cancel [post]
func (h *SyncJobHandler) Cancel(c *gin.Context) {
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

	if err := h.jobService.CancelJob(c.Request.Context(), orgID, jobID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// GetProgress godoc
// @Summary      Get sync job progress
// @Description  Retrieve the live progress snapshot of a sync job
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        id path string true "Sync Job ID" format(uuid)
// @Success      200 {object} dto.Response{data=SyncProgressResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs/{id}/progress [get]
func (h *SyncJobHandler) GetProgress(c *gin.Context) {
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

	progress, err := h.jobService.GetProgress(c.Request.Context(), orgID, jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toSyncProgressResponse(progress))
}

// GetMetrics godoc
// @Summary      Get sync job performance metrics
// @Description  Retrieve the performance measurements captured for a finished sync job
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        id path string true "Sync Job ID" format(uuid)
// @Success      200 {object} dto.Response{data=PerformanceMetricsResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/jobs/{id}/metrics [get]
func (h *SyncJobHandler) GetMetrics(c *gin.Context) {
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

	metrics, err := h.jobService.GetJobMetrics(c.Request.Context(), orgID, jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPerformanceMetricsResponse(metrics))
}

// toSyncJobResponse converts a domain sync job to a handler response
func toSyncJobResponse(job *domainsync.SyncJob) SyncJobResponse {
	entityTypes := make([]string, len(job.Config.EntityTypes))
	for i, et := range job.Config.EntityTypes {
		entityTypes[i] = string(et)
	}

	resp := SyncJobResponse{
		ID:            job.ID.String(),
		OrgID:         job.OrgID.String(),
		IntegrationID: job.IntegrationID.String(),
		Type:          string(job.Type),
		Status:        string(job.Status),
		Config: SyncJobConfigResponse{
			EntityTypes:      entityTypes,
			BatchSize:        job.Config.BatchSize,
			Mode:             string(job.Config.Mode),
			Priority:         string(job.Config.Priority),
			ConflictStrategy: string(job.Config.ConflictStrategy),
			MaxAttempts:      job.Config.RetryPolicy.MaxAttempts,
			BackoffSeconds:   int(job.Config.RetryPolicy.Backoff / time.Second),
			TimeoutSeconds:   int(job.Config.Timeout / time.Second),
			DryRun:           job.Config.DryRun,
		},
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}

	if job.Result != nil {
		resp.Result = toSyncResultResponse(job.Result)
	}

	return resp
}

// toSyncResultResponse converts a domain sync result to a handler response
func toSyncResultResponse(result *domainsync.SyncResult) *SyncResultResponse {
	resp := &SyncResultResponse{
		Success: result.Success,
		Summary: SyncSummaryResponse{
			TotalProcessed: result.Summary.TotalProcessed,
			Created:        result.Summary.Created,
			Updated:        result.Summary.Updated,
			Deleted:        result.Summary.Deleted,
			Skipped:        result.Summary.Skipped,
			Failed:         result.Summary.Failed,
		},
		Conflicts:  len(result.Conflicts),
		DurationMS: result.Duration.Milliseconds(),
	}

	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, SyncErrorResponse{
			EntityType: string(e.EntityType),
			Message:    e.Message,
			OccurredAt: e.OccurredAt,
		})
	}

	if result.Metrics != nil {
		resp.Metrics = toPerformanceMetricsResponse(result.Metrics)
	}

	return resp
}

// toSyncProgressResponse converts a domain progress snapshot to a handler response
func toSyncProgressResponse(progress *domainsync.SyncProgress) SyncProgressResponse {
	return SyncProgressResponse{
		JobID:             progress.JobID.String(),
		Phase:             string(progress.Phase),
		EntitiesTotal:     progress.EntitiesTotal,
		EntitiesCompleted: progress.EntitiesCompleted,
		RecordsProcessed:  progress.RecordsProcessed,
		RecordsTotal:      progress.RecordsTotal,
		Percentage:        progress.Percentage,
		CurrentEntity:     string(progress.CurrentEntity),
		UpdatedAt:         progress.UpdatedAt,
	}
}

// toPerformanceMetricsResponse converts domain metrics to a handler response
func toPerformanceMetricsResponse(metrics *domainsync.PerformanceMetrics) *PerformanceMetricsResponse {
	return &PerformanceMetricsResponse{
		WallTimeMS:            metrics.WallTime.Milliseconds(),
		APICallCount:          metrics.APICallCount,
		APICallDurationMS:     metrics.APICallDuration.Milliseconds(),
		StorageCallCount:      metrics.StorageCallCount,
		StorageCallDurationMS: metrics.StorageCallDuration.Milliseconds(),
		MemoryDeltaBytes:      metrics.MemoryDeltaBytes,
		CPUPercent:            metrics.CPUPercent,
		BytesSent:             metrics.BytesSent,
		BytesReceived:         metrics.BytesReceived,
	}
}
