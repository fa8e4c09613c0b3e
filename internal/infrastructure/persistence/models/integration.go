package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/truthsource/backend/internal/domain/integration"
)

// IntegrationModel is the persistence model for the Integration domain
// entity. Credentials are stored sealed; the plaintext never touches the
// database.
type IntegrationModel struct {
	BaseModel
	OrgID             uuid.UUID  `gorm:"type:uuid;not null;index"`
	Platform          string     `gorm:"type:varchar(20);not null"`
	Name              string     `gorm:"type:varchar(255);not null"`
	SealedCredentials string     `gorm:"type:text"`
	SettingsJSON      string     `gorm:"type:jsonb;column:settings"`
	Active            bool       `gorm:"not null;default:true"`
	LastSyncedAt      *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "integrations"
}

// ToDomain converts the persistence model to a domain Integration entity.
func (m *IntegrationModel) ToDomain() *integration.Integration {
	in := &integration.Integration{
		BaseEntity:        m.BaseModel.ToDomain(),
		OrgID:             m.OrgID,
		Platform:          integration.PlatformType(m.Platform),
		Name:              m.Name,
		SealedCredentials: m.SealedCredentials,
		Active:            m.Active,
		LastSyncedAt:      m.LastSyncedAt,
	}

	if m.SettingsJSON != "" {
		var settings integration.ConnectorSettings
		if err := json.Unmarshal([]byte(m.SettingsJSON), &settings); err == nil {
			in.Settings = settings
		}
	}

	return in
}

// FromDomain populates the persistence model from a domain Integration entity.
func (m *IntegrationModel) FromDomain(in *integration.Integration) {
	m.FromDomainBaseEntity(in.BaseEntity)
	m.OrgID = in.OrgID
	m.Platform = in.Platform.String()
	m.Name = in.Name
	m.SealedCredentials = in.SealedCredentials
	m.Active = in.Active
	m.LastSyncedAt = in.LastSyncedAt

	if jsonBytes, err := json.Marshal(in.Settings); err == nil {
		m.SettingsJSON = string(jsonBytes)
	}
}

// IntegrationModelFromDomain creates a new persistence model from a domain Integration entity.
func IntegrationModelFromDomain(in *integration.Integration) *IntegrationModel {
	m := &IntegrationModel{}
	m.FromDomain(in)
	return m
}
