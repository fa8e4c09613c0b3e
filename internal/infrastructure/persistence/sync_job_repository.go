package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/truthsource/backend/internal/domain/shared"
	"github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/persistence/models"
)

// GormSyncJobRepository implements sync.JobRepository using GORM.
// State transitions (MarkRunning, Finalize, CancelIfPending) are expressed
// as conditional UPDATEs so concurrent executors cannot double-claim or
// double-finalize a job.
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// FindByID finds a sync job by its ID
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrg finds sync jobs owned by an org, newest first by default
func (r *GormSyncJobRepository) FindByOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (shared.Paginated[*sync.SyncJob], error) {
	base := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).Where("org_id = ?", orgID)
	base = r.applyFilters(base, filter)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return shared.Paginated[*sync.SyncJob]{}, err
	}

	query := r.applyOrdering(base, filter)
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var jobModels []models.SyncJobModel
	if err := query.Find(&jobModels).Error; err != nil {
		return shared.Paginated[*sync.SyncJob]{}, err
	}

	jobs := make([]*sync.SyncJob, len(jobModels))
	for i := range jobModels {
		jobs[i] = jobModels[i].ToDomain()
	}
	return shared.NewPaginated(jobs, total, filter.Page, filter.PageSize), nil
}

// Save persists a new sync job row
func (r *GormSyncJobRepository) Save(ctx context.Context, job *sync.SyncJob) error {
	model := models.SyncJobModelFromDomain(job)
	return r.db.WithContext(ctx).Create(model).Error
}

// MarkRunning transitions a pending job to running. The WHERE clause on
// status makes the claim atomic: of N concurrent executors exactly one
// sees RowsAffected == 1.
func (r *GormSyncJobRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("id = ? AND status = ?", id, sync.JobStatusPending.String()).
		Updates(map[string]interface{}{
			"status":     sync.JobStatusRunning.String(),
			"started_at": startedAt,
			"updated_at": startedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Finalize writes the terminal status, result and completion time in one
// statement. Jobs already in a terminal state are left untouched.
func (r *GormSyncJobRepository) Finalize(ctx context.Context, id uuid.UUID, status sync.JobStatus, result *sync.SyncResult, errMsg string, completedAt time.Time) error {
	if !status.IsTerminal() {
		return sync.ErrNonTerminalStatus
	}

	res := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("id = ? AND status IN ?", id, []string{
			sync.JobStatusPending.String(),
			sync.JobStatusRunning.String(),
		}).
		Updates(map[string]interface{}{
			"status":        status.String(),
			"result":        models.MarshalResult(result),
			"error_message": errMsg,
			"completed_at":  completedAt,
			"updated_at":    completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the job does not exist or it is already terminal.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return sync.ErrJobNotFound
		}
		return sync.ErrJobTerminal
	}
	return nil
}

// CancelIfPending moves a pending job straight to cancelled. Running jobs
// are cancelled through the executor's cancel token instead.
func (r *GormSyncJobRepository) CancelIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("id = ? AND status = ?", id, sync.JobStatusPending.String()).
		Updates(map[string]interface{}{
			"status":       sync.JobStatusCancelled.String(),
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete removes a job row. Used to roll back job creation when the queue
// rejects the entry.
func (r *GormSyncJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.SyncJobModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrJobNotFound
	}
	return nil
}

// applyFilters applies the supported filter keys to the query
func (r *GormSyncJobRepository) applyFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "integration_id":
			query = query.Where("integration_id = ?", value)
		case "type":
			query = query.Where("type = ?", value)
		}
	}
	return query
}

// applyOrdering applies the filter's ordering, defaulting to newest first
func (r *GormSyncJobRepository) applyOrdering(query *gorm.DB, filter shared.Filter) *gorm.DB {
	orderBy := filter.OrderBy
	switch orderBy {
	case "created_at", "completed_at", "status":
	default:
		orderBy = "created_at"
	}
	orderDir := "DESC"
	if strings.ToLower(filter.OrderDir) == "asc" {
		orderDir = "ASC"
	}
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormSyncJobRepository implements JobRepository
var _ sync.JobRepository = (*GormSyncJobRepository)(nil)
