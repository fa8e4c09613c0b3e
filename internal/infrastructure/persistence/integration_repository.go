package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/infrastructure/persistence/models"
)

// GormIntegrationRepository implements integration.Repository using GORM
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

// FindByID finds an integration by its ID
func (r *GormIntegrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	var model models.IntegrationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrg returns all integrations owned by the org
func (r *GormIntegrationRepository) FindByOrg(ctx context.Context, orgID uuid.UUID) ([]*integration.Integration, error) {
	var integrationModels []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("name ASC").
		Find(&integrationModels).Error; err != nil {
		return nil, err
	}

	integrations := make([]*integration.Integration, len(integrationModels))
	for i := range integrationModels {
		integrations[i] = integrationModels[i].ToDomain()
	}
	return integrations, nil
}

// Save persists a new integration
func (r *GormIntegrationRepository) Save(ctx context.Context, in *integration.Integration) error {
	model := models.IntegrationModelFromDomain(in)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists changes to an existing integration
func (r *GormIntegrationRepository) Update(ctx context.Context, in *integration.Integration) error {
	model := models.IntegrationModelFromDomain(in)
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationModel{}).
		Where("id = ?", in.ID).
		Updates(map[string]interface{}{
			"name":               model.Name,
			"sealed_credentials": model.SealedCredentials,
			"settings":           model.SettingsJSON,
			"active":             model.Active,
			"last_synced_at":     model.LastSyncedAt,
			"updated_at":         model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrIntegrationNotFound
	}
	return nil
}

// Delete removes an integration
func (r *GormIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.IntegrationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrIntegrationNotFound
	}
	return nil
}

// Ensure GormIntegrationRepository implements Repository
var _ integration.Repository = (*GormIntegrationRepository)(nil)
