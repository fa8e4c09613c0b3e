package offline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecordStore(t *testing.T, baseURL string) *HTTPRecordStore {
	t.Helper()
	store, err := NewHTTPRecordStore(HTTPRecordStoreConfig{
		BaseURL: baseURL,
		Token:   "tok_agent",
	})
	require.NoError(t, err)
	return store
}

func TestNewHTTPRecordStore(t *testing.T) {
	t.Run("missing base URL", func(t *testing.T) {
		_, err := NewHTTPRecordStore(HTTPRecordStoreConfig{})
		assert.ErrorIs(t, err, ErrMissingBackendURL)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		store, err := NewHTTPRecordStore(HTTPRecordStoreConfig{BaseURL: "https://api.example.com/"})
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", store.baseURL)
	})
}

func TestHTTPRecordStore_Insert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/records/products", r.URL.Path)
		assert.Equal(t, "Bearer tok_agent", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"rec-1","sku":"WIDGET-9"}`, string(body))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := newTestRecordStore(t, server.URL)
	err := store.Insert(context.Background(), "products", json.RawMessage(`{"id":"rec-1","sku":"WIDGET-9"}`))
	assert.NoError(t, err)
}

func TestHTTPRecordStore_Update(t *testing.T) {
	t.Run("routes by payload id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/api/v1/records/inventory/rec-42", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		store := newTestRecordStore(t, server.URL)
		err := store.Update(context.Background(), "inventory", json.RawMessage(`{"id":"rec-42","quantity":7}`))
		assert.NoError(t, err)
	})

	t.Run("payload without id never leaves the client", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			requests++
		}))
		defer server.Close()

		store := newTestRecordStore(t, server.URL)
		err := store.Update(context.Background(), "inventory", json.RawMessage(`{"quantity":7}`))
		assert.ErrorIs(t, err, ErrMissingRecordID)
		assert.Zero(t, requests)
	})
}

func TestHTTPRecordStore_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/records/orders/rec-7", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := newTestRecordStore(t, server.URL)
	err := store.Delete(context.Background(), "orders", json.RawMessage(`{"id":"rec-7"}`))
	assert.NoError(t, err)
}

func TestHTTPRecordStore_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"conflict is a version mismatch", http.StatusConflict, ErrVersionMismatch},
		{"precondition failed is a version mismatch", http.StatusPreconditionFailed, ErrVersionMismatch},
		{"validation failure is an ordinary failure", http.StatusUnprocessableEntity, ErrRecordRequestFailed},
		{"server error is an ordinary failure", http.StatusInternalServerError, ErrRecordRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			store := newTestRecordStore(t, server.URL)
			err := store.Insert(context.Background(), "products", json.RawMessage(`{"id":"rec-1"}`))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPRecordStore_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close()

	store := newTestRecordStore(t, server.URL)
	err := store.Insert(context.Background(), "products", json.RawMessage(`{"id":"rec-1"}`))
	assert.ErrorIs(t, err, ErrBackendUnreachable)
}

func TestHTTPRecordStore_Ping(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		store := newTestRecordStore(t, server.URL)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		store := newTestRecordStore(t, server.URL)
		assert.ErrorIs(t, store.Ping(context.Background()), ErrRecordRequestFailed)
	})
}
