package integration

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Connector Errors
// ---------------------------------------------------------------------------

var (
	// Connector errors
	ErrConnectorNotRegistered = errors.New("integration: no connector registered for platform")
	ErrConnectorInitFailed    = errors.New("integration: connector initialization failed")
	ErrConnectorUnavailable   = errors.New("integration: connector temporarily unavailable")
	ErrConnectorRequestFailed = errors.New("integration: connector request failed")
	ErrConnectorAuthFailed    = errors.New("integration: connector authentication failed")
	ErrConnectorRateLimited   = errors.New("integration: connector rate limited")
	ErrInvalidResponse        = errors.New("integration: invalid connector response")

	// Integration errors
	ErrIntegrationNotFound = errors.New("integration: integration not found")
	ErrIntegrationInactive = errors.New("integration: integration is not active")
	ErrInvalidOrgID        = errors.New("integration: invalid org ID")
	ErrInvalidPlatform     = errors.New("integration: invalid platform type")
	ErrInvalidEntityType   = errors.New("integration: invalid entity type")
	ErrInvalidName         = errors.New("integration: integration name is required")
)

// ---------------------------------------------------------------------------
// PlatformType represents the kind of external platform
// ---------------------------------------------------------------------------

// PlatformType represents the kind of external platform
type PlatformType string

const (
	// PlatformNetSuite represents NetSuite ERP
	PlatformNetSuite PlatformType = "netsuite"
	// PlatformShopify represents Shopify storefronts
	PlatformShopify PlatformType = "shopify"
	// PlatformQuickBooks represents QuickBooks accounting
	PlatformQuickBooks PlatformType = "quickbooks"
	// PlatformCustomAPI represents self-hosted systems speaking the
	// TruthSource connector REST contract
	PlatformCustomAPI PlatformType = "custom_api"
)

// IsValid returns true if the platform type is valid
func (p PlatformType) IsValid() bool {
	switch p {
	case PlatformNetSuite, PlatformShopify, PlatformQuickBooks, PlatformCustomAPI:
		return true
	default:
		return false
	}
}

// String returns the string representation of PlatformType
func (p PlatformType) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// EntityType represents a syncable record family
// ---------------------------------------------------------------------------

// EntityType represents a syncable record family
type EntityType string

const (
	// EntityProducts covers product catalog records
	EntityProducts EntityType = "products"
	// EntityInventory covers stock level records
	EntityInventory EntityType = "inventory"
	// EntityOrders covers sales order records
	EntityOrders EntityType = "orders"
	// EntityCustomers covers customer account records
	EntityCustomers EntityType = "customers"
	// EntityPricing covers price list records
	EntityPricing EntityType = "pricing"
)

// IsValid returns true if the entity type is valid
func (e EntityType) IsValid() bool {
	switch e {
	case EntityProducts, EntityInventory, EntityOrders, EntityCustomers, EntityPricing:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityType
func (e EntityType) String() string {
	return string(e)
}

// ---------------------------------------------------------------------------
// Connector configuration
// ---------------------------------------------------------------------------

// ConnectorSettings holds per-integration tuning for a connector
type ConnectorSettings struct {
	// BaseURL is the API endpoint of the external system
	BaseURL string `json:"base_url"`
	// Timeout bounds a single connector request
	Timeout time.Duration `json:"timeout"`
	// RateLimit is the allowed requests per second (0 means unlimited)
	RateLimit int `json:"rate_limit"`
	// BatchSize is the preferred page size when pulling records
	BatchSize int `json:"batch_size"`
}

// ConnectorConfig is everything a builder needs to construct a connector
// for one integration. Credentials arrive decrypted; they are stored
// sealed on the Integration entity.
type ConnectorConfig struct {
	Platform      PlatformType
	IntegrationID uuid.UUID
	OrgID         uuid.UUID
	Credentials   map[string]string
	Settings      ConnectorSettings
}

// ---------------------------------------------------------------------------
// Sync value objects
// ---------------------------------------------------------------------------

// SyncOptions tunes a single connector sync call
type SyncOptions struct {
	// Limit caps the number of records pulled (0 means connector default)
	Limit int
	// Force pulls every record even when the job is incremental
	Force bool
	// DryRun validates and diffs without writing anything
	DryRun bool
	// BatchSize overrides the integration's preferred page size when > 0
	BatchSize int
}

// RecordFailure describes one record that failed to sync
type RecordFailure struct {
	// RecordID is the identifier of the failed record
	RecordID string `json:"record_id"`
	// Code is the connector or platform error code
	Code string `json:"code"`
	// Message is the error description
	Message string `json:"message"`
}

// CandidateConflict is a divergence detected by a connector between the
// source and target copy of one record field. Values are raw JSON since
// record shapes differ per platform. Timestamps are kept as the raw
// strings the platform returned; the resolver parses them.
type CandidateConflict struct {
	EntityType      EntityType      `json:"entity_type"`
	RecordID        string          `json:"record_id"`
	Field           string          `json:"field"`
	SourceValue     json.RawMessage `json:"source_value"`
	TargetValue     json.RawMessage `json:"target_value"`
	SourceUpdatedAt string          `json:"source_updated_at,omitempty"`
	TargetUpdatedAt string          `json:"target_updated_at,omitempty"`
}

// HasIdentity returns true if the conflict names both a record and a field.
// Conflicts without identity cannot be resolved and are discarded upstream.
func (c CandidateConflict) HasIdentity() bool {
	return c.RecordID != "" && c.Field != ""
}

// EntitySyncResult reports the outcome of syncing one entity type
type EntitySyncResult struct {
	// EntityType is the record family this result covers
	EntityType EntityType `json:"entity_type"`
	// Processed is the number of records examined
	Processed int `json:"processed"`
	// Created is the number of records created on the target
	Created int `json:"created"`
	// Updated is the number of records updated on the target
	Updated int `json:"updated"`
	// Deleted is the number of records deleted on the target
	Deleted int `json:"deleted"`
	// Skipped is the number of records left untouched
	Skipped int `json:"skipped"`
	// Failed is the number of records that errored
	Failed int `json:"failed"`
	// FailedRecords carries per-record failure details
	FailedRecords []RecordFailure `json:"failed_records,omitempty"`
	// Conflicts carries divergences for the resolver to settle
	Conflicts []CandidateConflict `json:"conflicts,omitempty"`
	// Duration is how long the entity sync took
	Duration time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Connector Port Interface
// ---------------------------------------------------------------------------

// Connector defines the port interface every platform adapter implements.
// Concrete adapters (NetSuite, Shopify, custom REST) live in the
// infrastructure layer. Cancellation is signalled through the context.
type Connector interface {
	// Platform returns the platform type this connector handles
	Platform() PlatformType

	// Initialize authenticates and prepares the connector for use.
	// It must be called once before Sync or TestConnection.
	Initialize(ctx context.Context) error

	// Sync pulls and reconciles one entity type with the external platform
	Sync(ctx context.Context, entityType EntityType, opts SyncOptions) (*EntitySyncResult, error)

	// TestConnection reports whether the external platform is reachable
	// with the configured credentials
	TestConnection(ctx context.Context) bool

	// Disconnect releases any held resources or sessions
	Disconnect(ctx context.Context) error
}

// ConnectorBuilder constructs an uninitialized connector from config
type ConnectorBuilder func(cfg ConnectorConfig) (Connector, error)

// ConnectorRegistry maps platform types to adapter builders. Adapters
// register themselves at wiring time; nothing in the core switches on
// concrete platform names.
type ConnectorRegistry interface {
	// Register adds a builder for a platform, replacing any existing one
	Register(platform PlatformType, builder ConnectorBuilder) error

	// Build constructs an uninitialized connector for the platform
	Build(platform PlatformType, cfg ConnectorConfig) (Connector, error)

	// Platforms returns the platform types with a registered builder
	Platforms() []PlatformType
}
