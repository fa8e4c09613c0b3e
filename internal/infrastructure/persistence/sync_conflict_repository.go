package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/truthsource/backend/internal/domain/shared"
	"github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/persistence/models"
)

// GormSyncConflictRepository implements sync.ConflictRepository using GORM
type GormSyncConflictRepository struct {
	db *gorm.DB
}

// NewGormSyncConflictRepository creates a new GormSyncConflictRepository
func NewGormSyncConflictRepository(db *gorm.DB) *GormSyncConflictRepository {
	return &GormSyncConflictRepository{db: db}
}

// Save persists one conflict, resolved or pending
func (r *GormSyncConflictRepository) Save(ctx context.Context, conflict *sync.SyncConflict) error {
	model := models.SyncConflictModelFromDomain(conflict)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists a resolution fed back by an operator
func (r *GormSyncConflictRepository) Update(ctx context.Context, conflict *sync.SyncConflict) error {
	model := models.SyncConflictModelFromDomain(conflict)
	result := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("id = ?", conflict.ID).
		Updates(map[string]interface{}{
			"strategy":       model.Strategy,
			"resolved_value": model.ResolvedValue,
			"resolved_at":    model.ResolvedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrConflictNotFound
	}
	return nil
}

// FindByID finds a conflict by its ID
func (r *GormSyncConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncConflict, error) {
	var model models.SyncConflictModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrConflictNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPendingByOrg returns unresolved conflicts for an org, oldest first,
// so the operator queue surfaces the longest-waiting divergences.
func (r *GormSyncConflictRepository) FindPendingByOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) (shared.Paginated[*sync.SyncConflict], error) {
	base := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("org_id = ? AND resolved_at IS NULL", orgID)

	for key, value := range filter.Filters {
		switch key {
		case "entity_type":
			base = base.Where("entity_type = ?", value)
		case "job_id":
			base = base.Where("job_id = ?", value)
		}
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return shared.Paginated[*sync.SyncConflict]{}, err
	}

	query := base.Order("detected_at ASC")
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var conflictModels []models.SyncConflictModel
	if err := query.Find(&conflictModels).Error; err != nil {
		return shared.Paginated[*sync.SyncConflict]{}, err
	}

	conflicts := make([]*sync.SyncConflict, len(conflictModels))
	for i := range conflictModels {
		conflicts[i] = conflictModels[i].ToDomain()
	}
	return shared.NewPaginated(conflicts, total, filter.Page, filter.PageSize), nil
}

// FindByJob returns every conflict detected by one job
func (r *GormSyncConflictRepository) FindByJob(ctx context.Context, jobID uuid.UUID) ([]*sync.SyncConflict, error) {
	var conflictModels []models.SyncConflictModel
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("detected_at ASC").
		Find(&conflictModels).Error; err != nil {
		return nil, err
	}

	conflicts := make([]*sync.SyncConflict, len(conflictModels))
	for i := range conflictModels {
		conflicts[i] = conflictModels[i].ToDomain()
	}
	return conflicts, nil
}

// Ensure GormSyncConflictRepository implements ConflictRepository
var _ sync.ConflictRepository = (*GormSyncConflictRepository)(nil)
