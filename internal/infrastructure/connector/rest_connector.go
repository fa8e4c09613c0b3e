package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/truthsource/backend/internal/domain/integration"
)

const (
	// maxRESTResponseSize limits response bodies to prevent memory exhaustion
	maxRESTResponseSize = 10 * 1024 * 1024 // 10MB
	// defaultRESTTimeout bounds a request when the integration sets none
	defaultRESTTimeout = 30 * time.Second
	// credentialAPIToken is the credential key carrying the bearer token
	credentialAPIToken = "api_token"
)

var (
	// ErrMissingBaseURL indicates the integration settings lack an endpoint
	ErrMissingBaseURL = errors.New("connector: settings.base_url is required")
	// ErrMissingAPIToken indicates the credentials lack an api_token entry
	ErrMissingAPIToken = errors.New("connector: api_token credential is required")
	// ErrNotInitialized indicates Sync was called before Initialize
	ErrNotInitialized = errors.New("connector: connector not initialized")
)

// RESTConnector adapts self-hosted systems speaking the custom_api sync
// protocol: GET /v1/ping for reachability and POST /v1/sync/{entity} for
// per-entity reconciliation. The remote does the heavy lifting and reports
// counters, per-record failures and candidate conflicts.
type RESTConnector struct {
	cfg         integration.ConnectorConfig
	baseURL     string
	token       string
	httpClient  *http.Client
	initialized atomic.Bool
}

// NewRESTConnector creates an uninitialized connector from config
func NewRESTConnector(cfg integration.ConnectorConfig) (*RESTConnector, error) {
	baseURL := strings.TrimRight(cfg.Settings.BaseURL, "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	token := cfg.Credentials[credentialAPIToken]
	if token == "" {
		return nil, ErrMissingAPIToken
	}

	timeout := cfg.Settings.Timeout
	if timeout <= 0 {
		timeout = defaultRESTTimeout
	}

	return &RESTConnector{
		cfg:     cfg,
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Platform returns the platform type this connector handles
func (c *RESTConnector) Platform() integration.PlatformType {
	return integration.PlatformCustomAPI
}

// Initialize verifies the endpoint is reachable and the token is accepted
func (c *RESTConnector) Initialize(ctx context.Context) error {
	if err := c.ping(ctx); err != nil {
		return err
	}
	c.initialized.Store(true)
	return nil
}

// Sync asks the remote to reconcile one entity type and folds its report
// into an EntitySyncResult
func (c *RESTConnector) Sync(ctx context.Context, entityType integration.EntityType, opts integration.SyncOptions) (*integration.EntitySyncResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: %q", integration.ErrInvalidEntityType, entityType)
	}

	batchSize := c.cfg.Settings.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	start := time.Now()
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/sync/"+entityType.String(), restSyncRequest{
		Limit:     opts.Limit,
		Force:     opts.Force,
		DryRun:    opts.DryRun,
		BatchSize: batchSize,
	})
	if err != nil {
		return nil, err
	}

	var resp restSyncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
	}
	if resp.Entity != "" && resp.Entity != entityType.String() {
		return nil, fmt.Errorf("%w: remote answered for entity %q", integration.ErrInvalidResponse, resp.Entity)
	}

	return &integration.EntitySyncResult{
		EntityType:    entityType,
		Processed:     resp.Summary.Processed,
		Created:       resp.Summary.Created,
		Updated:       resp.Summary.Updated,
		Deleted:       resp.Summary.Deleted,
		Skipped:       resp.Summary.Skipped,
		Failed:        resp.Summary.Failed,
		FailedRecords: toFailedRecords(resp.FailedRecords),
		Conflicts:     toCandidateConflicts(entityType, resp.Conflicts),
		Duration:      time.Since(start),
	}, nil
}

// TestConnection reports whether the remote answers the ping with the
// configured token
func (c *RESTConnector) TestConnection(ctx context.Context) bool {
	return c.ping(ctx) == nil
}

// Disconnect drops idle connections; the protocol holds no session state
func (c *RESTConnector) Disconnect(_ context.Context) error {
	c.initialized.Store(false)
	c.httpClient.CloseIdleConnections()
	return nil
}

// ping issues GET /v1/ping and checks for an ok status
func (c *RESTConnector) ping(ctx context.Context) error {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/ping", nil)
	if err != nil {
		return err
	}

	var resp restPingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%w: ping status %q", integration.ErrInvalidResponse, resp.Status)
	}
	return nil
}

// doRequest issues one JSON request and maps HTTP failures onto the domain
// connector error taxonomy
func (c *RESTConnector) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("connector: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("connector: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrConnectorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTResponseSize))
	if err != nil {
		return nil, fmt.Errorf("connector: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrConnectorAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrConnectorRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrConnectorRequestFailed, resp.StatusCode)
	}

	return body, nil
}

// Ensure RESTConnector implements Connector
var _ integration.Connector = (*RESTConnector)(nil)
