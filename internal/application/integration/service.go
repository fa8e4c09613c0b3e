// Package integration manages the lifecycle of platform integrations:
// registration with sealed credentials, credential rotation, activation,
// and connection testing through the connector cache.
package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/domain/integration"
	"github.com/truthsource/backend/internal/infrastructure/secrets"
)

// ConnectorSource hands out live connectors and evicts cached ones.
// Implemented by the connector cache in the infrastructure layer.
type ConnectorSource interface {
	Get(ctx context.Context, platform integration.PlatformType, integrationID uuid.UUID) (integration.Connector, error)
	EvictIntegration(ctx context.Context, integrationID uuid.UUID) int
}

// IntegrationService manages platform integrations for an org
type IntegrationService struct {
	integrations integration.Repository
	sealer       secrets.Sealer
	connectors   ConnectorSource
	logger       *zap.Logger
}

// NewIntegrationService creates a new IntegrationService
func NewIntegrationService(
	integrations integration.Repository,
	sealer secrets.Sealer,
	connectors ConnectorSource,
	logger *zap.Logger,
) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		sealer:       sealer,
		connectors:   connectors,
		logger:       logger,
	}
}

// ---------------------------------------------------------------------------
// CRUD Operations
// ---------------------------------------------------------------------------

// CreateIntegration registers a platform integration. Credentials are
// sealed before the entity is persisted and never stored in the clear.
func (s *IntegrationService) CreateIntegration(
	ctx context.Context,
	orgID uuid.UUID,
	platform integration.PlatformType,
	name string,
	credentials map[string]string,
	settings integration.ConnectorSettings,
) (*integration.Integration, error) {
	in, err := integration.NewIntegration(orgID, platform, name, settings)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(credentials)
	if err != nil {
		return nil, fmt.Errorf("sealing credentials: %w", err)
	}
	in.SealedCredentials = sealed

	if err := s.integrations.Save(ctx, in); err != nil {
		return nil, fmt.Errorf("saving integration: %w", err)
	}

	s.logger.Info("Integration created",
		zap.String("integration_id", in.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("platform", string(platform)),
		zap.String("name", name),
	)
	return in, nil
}

// GetIntegration retrieves an integration scoped to the org
func (s *IntegrationService) GetIntegration(ctx context.Context, orgID, id uuid.UUID) (*integration.Integration, error) {
	in, err := s.integrations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !in.BelongsTo(orgID) {
		return nil, integration.ErrIntegrationNotFound
	}
	return in, nil
}

// ListIntegrations returns all integrations owned by the org
func (s *IntegrationService) ListIntegrations(ctx context.Context, orgID uuid.UUID) ([]*integration.Integration, error) {
	return s.integrations.FindByOrg(ctx, orgID)
}

// DeleteIntegration removes an integration and evicts its cached
// connectors. Jobs referencing the integration keep their history.
func (s *IntegrationService) DeleteIntegration(ctx context.Context, orgID, id uuid.UUID) error {
	in, err := s.GetIntegration(ctx, orgID, id)
	if err != nil {
		return err
	}

	s.connectors.EvictIntegration(ctx, in.ID)
	if err := s.integrations.Delete(ctx, in.ID); err != nil {
		return fmt.Errorf("deleting integration: %w", err)
	}

	s.logger.Info("Integration deleted",
		zap.String("integration_id", in.ID.String()),
		zap.String("org_id", orgID.String()),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Credential and Lifecycle Operations
// ---------------------------------------------------------------------------

// RotateCredentials re-seals new credentials and evicts every cached
// connector built from the old ones, so the next job picks up the rotation.
func (s *IntegrationService) RotateCredentials(
	ctx context.Context,
	orgID, id uuid.UUID,
	credentials map[string]string,
) (*integration.Integration, error) {
	in, err := s.GetIntegration(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(credentials)
	if err != nil {
		return nil, fmt.Errorf("sealing credentials: %w", err)
	}
	in.RotateCredentials(sealed)

	if err := s.integrations.Update(ctx, in); err != nil {
		return nil, fmt.Errorf("updating integration: %w", err)
	}

	evicted := s.connectors.EvictIntegration(ctx, in.ID)
	s.logger.Info("Integration credentials rotated",
		zap.String("integration_id", in.ID.String()),
		zap.Int("connectors_evicted", evicted),
	)
	return in, nil
}

// ActivateIntegration re-enables a deactivated integration
func (s *IntegrationService) ActivateIntegration(ctx context.Context, orgID, id uuid.UUID) (*integration.Integration, error) {
	in, err := s.GetIntegration(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	in.Activate()
	if err := s.integrations.Update(ctx, in); err != nil {
		return nil, fmt.Errorf("updating integration: %w", err)
	}

	s.logger.Info("Integration activated", zap.String("integration_id", in.ID.String()))
	return in, nil
}

// DeactivateIntegration disables an integration for new sync jobs and
// drops its cached connectors. Running jobs finish on their own.
func (s *IntegrationService) DeactivateIntegration(ctx context.Context, orgID, id uuid.UUID) (*integration.Integration, error) {
	in, err := s.GetIntegration(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	in.Deactivate()
	if err := s.integrations.Update(ctx, in); err != nil {
		return nil, fmt.Errorf("updating integration: %w", err)
	}

	evicted := s.connectors.EvictIntegration(ctx, in.ID)
	s.logger.Info("Integration deactivated",
		zap.String("integration_id", in.ID.String()),
		zap.Int("connectors_evicted", evicted),
	)
	return in, nil
}

// ---------------------------------------------------------------------------
// Connector Operations
// ---------------------------------------------------------------------------

// TestConnection checks whether the platform behind an integration is
// reachable. Connector failures report an unreachable platform rather
// than an error; only structural problems (unknown integration, wrong
// org, inactive integration, unregistered platform) surface as errors.
func (s *IntegrationService) TestConnection(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	in, err := s.GetIntegration(ctx, orgID, id)
	if err != nil {
		return false, err
	}
	if !in.Active {
		return false, integration.ErrIntegrationInactive
	}

	conn, err := s.connectors.Get(ctx, in.Platform, in.ID)
	if err != nil {
		if isConnectorFailure(err) {
			s.logger.Warn("Connection test could not reach platform",
				zap.String("integration_id", in.ID.String()),
				zap.String("platform", string(in.Platform)),
				zap.Error(err),
			)
			return false, nil
		}
		return false, err
	}

	return conn.TestConnection(ctx), nil
}

// EvictConnectors drops every cached connector for the integration and
// returns how many were evicted.
func (s *IntegrationService) EvictConnectors(ctx context.Context, orgID, id uuid.UUID) (int, error) {
	in, err := s.GetIntegration(ctx, orgID, id)
	if err != nil {
		return 0, err
	}
	return s.connectors.EvictIntegration(ctx, in.ID), nil
}

// isConnectorFailure reports whether the error is a reachability problem
// with the platform rather than a structural one with the integration.
func isConnectorFailure(err error) bool {
	return errors.Is(err, integration.ErrConnectorInitFailed) ||
		errors.Is(err, integration.ErrConnectorUnavailable) ||
		errors.Is(err, integration.ErrConnectorAuthFailed) ||
		errors.Is(err, integration.ErrConnectorRateLimited) ||
		errors.Is(err, integration.ErrConnectorRequestFailed)
}
