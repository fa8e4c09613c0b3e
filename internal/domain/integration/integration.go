package integration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Integration Entity
// ---------------------------------------------------------------------------

// Integration is one configured connection between an org and an external
// platform. Credentials are held sealed; only the connector cache unseals
// them when building a live connector.
type Integration struct {
	shared.BaseEntity
	// OrgID is the owning organization
	OrgID uuid.UUID
	// Platform identifies the external system kind
	Platform PlatformType
	// Name is the org-facing label, e.g. "EU NetSuite production"
	Name string
	// SealedCredentials is the encrypted credentials blob
	SealedCredentials string
	// Settings holds connector tuning (endpoint, timeout, rate limit)
	Settings ConnectorSettings
	// Active indicates whether sync jobs may use this integration
	Active bool
	// LastSyncedAt is when a job last completed against this integration
	LastSyncedAt *time.Time
}

// NewIntegration creates an active integration for an org
func NewIntegration(orgID uuid.UUID, platform PlatformType, name string, settings ConnectorSettings) (*Integration, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrgID
	}
	if !platform.IsValid() {
		return nil, ErrInvalidPlatform
	}
	if name == "" {
		return nil, ErrInvalidName
	}
	return &Integration{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		Platform:   platform,
		Name:       name,
		Settings:   settings,
		Active:     true,
	}, nil
}

// BelongsTo returns true if the integration is owned by the given org
func (i *Integration) BelongsTo(orgID uuid.UUID) bool {
	return i.OrgID == orgID
}

// Activate re-enables the integration for sync jobs
func (i *Integration) Activate() {
	i.Active = true
	i.UpdatedAt = time.Now().UTC()
}

// Deactivate disables the integration for future sync jobs
func (i *Integration) Deactivate() {
	i.Active = false
	i.UpdatedAt = time.Now().UTC()
}

// RotateCredentials replaces the sealed credentials blob. Cached connectors
// built from the old blob must be evicted by the caller.
func (i *Integration) RotateCredentials(sealed string) {
	i.SealedCredentials = sealed
	i.UpdatedAt = time.Now().UTC()
}

// MarkSynced records the completion time of the latest sync run
func (i *Integration) MarkSynced(at time.Time) {
	t := at.UTC()
	i.LastSyncedAt = &t
	i.UpdatedAt = time.Now().UTC()
}

// ---------------------------------------------------------------------------
// Repository Port
// ---------------------------------------------------------------------------

// Repository provides access to stored integrations
type Repository interface {
	// FindByID returns the integration or ErrIntegrationNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Integration, error)

	// FindByOrg returns all integrations owned by the org
	FindByOrg(ctx context.Context, orgID uuid.UUID) ([]*Integration, error)

	// Save persists a new integration
	Save(ctx context.Context, in *Integration) error

	// Update persists changes to an existing integration
	Update(ctx context.Context, in *Integration) error

	// Delete removes an integration
	Delete(ctx context.Context, id uuid.UUID) error
}
