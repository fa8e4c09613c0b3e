// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncActivityProvider implements SyncActivityProvider using GORM.
// It queries the sync_queue and sync_conflicts tables directly for
// aggregated backlog counts.
type GormSyncActivityProvider struct {
	db *gorm.DB
}

// NewGormSyncActivityProvider creates a new GormSyncActivityProvider.
func NewGormSyncActivityProvider(db *gorm.DB) *GormSyncActivityProvider {
	return &GormSyncActivityProvider{db: db}
}

// GetQueueDepth returns the number of dispatch queue entries for an org.
func (p *GormSyncActivityProvider) GetQueueDepth(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("sync_queue").
		Where("org_id = ?", orgID).
		Count(&count).Error

	return count, err
}

// GetPendingConflictCount returns the number of unresolved conflicts for an org.
func (p *GormSyncActivityProvider) GetPendingConflictCount(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("sync_conflicts").
		Where("org_id = ? AND resolved_at IS NULL", orgID).
		Count(&count).Error

	return count, err
}

// GormOrgProvider implements OrgProvider using GORM. Orgs are not stored as
// rows of their own; an org is active when it holds at least one active
// integration.
type GormOrgProvider struct {
	db *gorm.DB
}

// NewGormOrgProvider creates a new GormOrgProvider.
func NewGormOrgProvider(db *gorm.DB) *GormOrgProvider {
	return &GormOrgProvider{db: db}
}

// GetActiveOrgIDs returns all org IDs with at least one active integration.
func (p *GormOrgProvider) GetActiveOrgIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("integrations").
		Distinct("org_id").
		Where("active = ?", true).
		Find(&ids).Error

	return ids, err
}
