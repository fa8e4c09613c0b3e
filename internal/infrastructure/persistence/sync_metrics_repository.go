package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/persistence/models"
)

// GormSyncMetricsRepository implements sync.MetricsRepository using GORM
type GormSyncMetricsRepository struct {
	db *gorm.DB
}

// NewGormSyncMetricsRepository creates a new GormSyncMetricsRepository
func NewGormSyncMetricsRepository(db *gorm.DB) *GormSyncMetricsRepository {
	return &GormSyncMetricsRepository{db: db}
}

// Save persists the metrics captured for one job run
func (r *GormSyncMetricsRepository) Save(ctx context.Context, jobID, orgID uuid.UUID, metrics *sync.PerformanceMetrics) error {
	model := models.SyncMetricsModelFromDomain(jobID, orgID, metrics)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByJob returns the metrics for a job
func (r *GormSyncMetricsRepository) FindByJob(ctx context.Context, jobID uuid.UUID) (*sync.PerformanceMetrics, error) {
	var model models.SyncMetricsModel
	if err := r.db.WithContext(ctx).First(&model, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrJobNotFound
		}
		return nil, err
	}
	metrics := model.ToDomain()
	if metrics == nil {
		return nil, sync.ErrJobNotFound
	}
	return metrics, nil
}

// Ensure GormSyncMetricsRepository implements MetricsRepository
var _ sync.MetricsRepository = (*GormSyncMetricsRepository)(nil)
