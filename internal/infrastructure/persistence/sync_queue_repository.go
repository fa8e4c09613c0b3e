package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/truthsource/backend/internal/domain/sync"
	"github.com/truthsource/backend/internal/infrastructure/persistence/models"
)

// GormSyncQueueRepository implements sync.QueueRepository using GORM.
// The queue is a plain table: entries survive restarts and every instance
// of the dispatcher drains the same backlog.
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GormSyncQueueRepository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// Enqueue persists a new queue entry
func (r *GormSyncQueueRepository) Enqueue(ctx context.Context, entry *sync.QueueEntry) error {
	model := models.SyncQueueModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// Due returns up to limit entries ready to dispatch, ordered by priority
// weight descending then enqueue time ascending.
func (r *GormSyncQueueRepository) Due(ctx context.Context, now time.Time, limit int) ([]*sync.QueueEntry, error) {
	var queueModels []models.SyncQueueModel
	query := r.db.WithContext(ctx).
		Where("run_after <= ?", now).
		Order("priority DESC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&queueModels).Error; err != nil {
		return nil, err
	}

	entries := make([]*sync.QueueEntry, len(queueModels))
	for i := range queueModels {
		entries[i] = queueModels[i].ToDomain()
	}
	return entries, nil
}

// Update persists attempt count and next run time after a retry
func (r *GormSyncQueueRepository) Update(ctx context.Context, entry *sync.QueueEntry) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"attempts":   entry.Attempts,
			"run_after":  entry.RunAfter,
			"updated_at": entry.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrQueueEntryNotFound
	}
	return nil
}

// Remove deletes an entry by its ID
func (r *GormSyncQueueRepository) Remove(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.SyncQueueModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrQueueEntryNotFound
	}
	return nil
}

// RemoveByJob deletes any entry for the job. Removing an already-removed
// entry is not an error: cancellation races dispatch.
func (r *GormSyncQueueRepository) RemoveByJob(ctx context.Context, jobID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.SyncQueueModel{}, "job_id = ?", jobID).Error
}

// Ensure GormSyncQueueRepository implements QueueRepository
var _ sync.QueueRepository = (*GormSyncQueueRepository)(nil)
