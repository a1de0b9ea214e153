// Package unit contains unit tests for individual components of the relay.
//
// These tests exercise exported constructors and HTTP handlers in isolation,
// using httptest servers instead of the full relay supervisor.
package unit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jazzystic/robust-comm-system/internal/server"
	"github.com/Jazzystic/robust-comm-system/internal/transfer"
	"github.com/Jazzystic/robust-comm-system/test/testhelpers"
)

func newHub(t *testing.T) (*server.Hub, server.Config) {
	t.Helper()
	cfg := testhelpers.TestConfig(t)
	store, err := transfer.NewDirStore(cfg.ReceivedFilesDir)
	require.NoError(t, err)
	hub := server.NewHub(cfg, store, testhelpers.QuietLogger())
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return hub, cfg
}

// TestHealthHandler verifies the health check returns JSON with zeroed
// counts for an idle hub.
func TestHealthHandler(t *testing.T) {
	t.Parallel()
	hub, _ := newHub(t)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rr := httptest.NewRecorder()
	server.HealthHandler(hub).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{
		"status":            "ok",
		"connections":       float64(0),
		"sessions":          float64(0),
		"groups":            float64(0),
		"pending_transfers": float64(0),
	}, body)
}

// TestSetupRoutes verifies that the gateway mux serves both endpoints.
func TestSetupRoutes(t *testing.T) {
	t.Parallel()
	hub, cfg := newHub(t)

	ts := httptest.NewServer(server.SetupRoutes(hub, cfg, testhelpers.QuietLogger()))
	defer ts.Close()

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "health", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "websocket without upgrade", method: http.MethodGet, path: "/ws", status: http.StatusBadRequest},
		{name: "websocket wrong method", method: http.MethodPut, path: "/ws", status: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, tt.method, ts.URL+tt.path)
			defer resp.Body.Close()
			testhelpers.AssertStatusCode(t, resp, tt.status)
		})
	}
}

// TestCreateServerTimeouts verifies the HTTP server is built with bounded
// timeouts.
func TestCreateServerTimeouts(t *testing.T) {
	t.Parallel()

	srv := server.CreateServer("127.0.0.1:0", http.NewServeMux())
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Positive(t, srv.ReadHeaderTimeout)
	assert.Positive(t, srv.ReadTimeout)
	assert.Positive(t, srv.WriteTimeout)
	assert.Positive(t, srv.IdleTimeout)
}

// TestNewServerCreatesReceivedFilesDir verifies that the storage directory is
// prepared at startup.
func TestNewServerCreatesReceivedFilesDir(t *testing.T) {
	t.Parallel()

	cfg := testhelpers.TestConfig(t)
	cfg.ReceivedFilesDir = filepath.Join(cfg.ReceivedFilesDir, "nested", "inbox")

	_, err := server.New(cfg, testhelpers.QuietLogger())
	require.NoError(t, err)

	info, err := os.Stat(cfg.ReceivedFilesDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
