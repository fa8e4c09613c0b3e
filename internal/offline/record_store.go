package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultRecordTimeout bounds a replay request when no timeout is set
	defaultRecordTimeout = 15 * time.Second
	// maxRecordResponseSize limits drained response bodies
	maxRecordResponseSize = 1 * 1024 * 1024 // 1MB
)

var (
	// ErrMissingBackendURL indicates the record store has no base URL
	ErrMissingBackendURL = errors.New("offline: backend base URL is required")
	// ErrMissingRecordID indicates the payload carries no record identity
	ErrMissingRecordID = errors.New("offline: record payload has no id")
	// ErrBackendUnreachable indicates the backend did not answer at all
	ErrBackendUnreachable = errors.New("offline: backend unreachable")
	// ErrVersionMismatch indicates the record changed server-side since the
	// client wrote it; replaying can never succeed
	ErrVersionMismatch = errors.New("offline: record version conflict")
	// ErrRecordRequestFailed indicates the backend rejected the request
	ErrRecordRequestFailed = errors.New("offline: record request failed")
)

// ---------------------------------------------------------------------------
// RecordStore Port
// ---------------------------------------------------------------------------

// RecordStore is the replay target for queued operations. Update and
// Delete pull the record identity out of the payload's "id" field.
type RecordStore interface {
	// Insert creates a record in the table
	Insert(ctx context.Context, table string, record json.RawMessage) error

	// Update overwrites the record named by the payload's id
	Update(ctx context.Context, table string, record json.RawMessage) error

	// Delete removes the record named by the payload's id
	Delete(ctx context.Context, table string, record json.RawMessage) error

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// HTTPRecordStore
// ---------------------------------------------------------------------------

// HTTPRecordStoreConfig holds configuration for the HTTP record store
type HTTPRecordStoreConfig struct {
	// BaseURL is the backend base URL, e.g. "https://api.truthsource.io"
	BaseURL string
	// Token is the bearer token replay requests authenticate with
	Token string
	// Timeout bounds each request. Default: 15 seconds
	Timeout time.Duration
}

// HTTPRecordStore replays queued operations against the backend record
// API and probes its health endpoint for the connection monitor.
type HTTPRecordStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPRecordStore creates a record store from config
func NewHTTPRecordStore(cfg HTTPRecordStoreConfig) (*HTTPRecordStore, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, ErrMissingBackendURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRecordTimeout
	}

	return &HTTPRecordStore{
		baseURL: baseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Insert creates a record in the table
func (s *HTTPRecordStore) Insert(ctx context.Context, table string, record json.RawMessage) error {
	return s.do(ctx, http.MethodPost, "/api/v1/records/"+table, record)
}

// Update overwrites the record named by the payload's id
func (s *HTTPRecordStore) Update(ctx context.Context, table string, record json.RawMessage) error {
	id, err := recordID(record)
	if err != nil {
		return err
	}
	return s.do(ctx, http.MethodPut, "/api/v1/records/"+table+"/"+id, record)
}

// Delete removes the record named by the payload's id
func (s *HTTPRecordStore) Delete(ctx context.Context, table string, record json.RawMessage) error {
	id, err := recordID(record)
	if err != nil {
		return err
	}
	return s.do(ctx, http.MethodDelete, "/api/v1/records/"+table+"/"+id, nil)
}

// Ping probes the backend health endpoint
func (s *HTTPRecordStore) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/health", nil)
}

// do issues one JSON request and maps status codes onto the replay error
// classes. 409 and 412 mean the server-side record moved on; everything
// else 4xx/5xx is an ordinary failure worth retrying.
func (s *HTTPRecordStore) do(ctx context.Context, method, path string, body json.RawMessage) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("offline: failed to create request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	// Drain so the connection is reusable.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRecordResponseSize))

	switch {
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: HTTP %d", ErrVersionMismatch, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", ErrRecordRequestFailed, resp.StatusCode)
	}
	return nil
}

// recordID pulls the record identity out of the payload
func recordID(record json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingRecordID, err)
	}
	if probe.ID == "" {
		return "", ErrMissingRecordID
	}
	return probe.ID, nil
}

// Ensure HTTPRecordStore implements RecordStore
var _ RecordStore = (*HTTPRecordStore)(nil)
