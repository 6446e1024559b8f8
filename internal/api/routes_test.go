package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"progress-sync-service/internal/config"
	"progress-sync-service/internal/sync"
)

const testToken = "secret"

func newTestServer(t *testing.T) (*httptest.Server, *sync.Manager) {
	t.Helper()
	cfg := &config.Config{
		Primary:      config.PrimaryConfig{Type: config.StoreMemory},
		Secondary:    config.SecondaryConfig{Type: config.StoreMemory},
		Queue:        config.QueueConfig{Path: filepath.Join(t.TempDir(), "queue.db"), Slot: "offline_queue", MaxAttempts: 3},
		Connectivity: config.ConnectivityConfig{AssumeOnline: true},
		Server:       config.ServerConfig{AuthToken: testToken},
	}
	manager, err := sync.NewManager(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(manager.Close)

	srv := httptest.NewServer(NewHandler(manager, cfg.Server).Routes())
	t.Cleanup(srv.Close)
	return srv, manager
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/sync/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, status := call(t, srv, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, sync.StatusRunning, status["state"])
}

func TestSaveAndLoadRecord(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, saved := call(t, srv, http.MethodPut, "/api/v1/records/P1", `{"xp": 10, "coins": 3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, saved["success"])
	require.Equal(t, 1.0, saved["version"])

	resp, loaded := call(t, srv, http.MethodGet, "/api/v1/records/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "primary", loaded["source"])
	require.Equal(t, 1.0, loaded["version"])
	record := loaded["record"].(map[string]any)
	require.Equal(t, 10.0, record["xp"])
	require.Equal(t, saved["lastSaved"], record["lastSaved"])
}

func TestSaveConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		resp, _ := call(t, srv, http.MethodPut, "/api/v1/records/p1", `{"xp": 1}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := call(t, srv, http.MethodPut, "/api/v1/records/p1?version=1", `{"xp": 2}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "conflict", body["errorKind"])
	require.Equal(t, 3.0, body["version"])
}

func TestSaveRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := call(t, srv, http.MethodPut, "/api/v1/records/%20", `{"xp": 1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid", body["errorKind"])

	resp, _ = call(t, srv, http.MethodPut, "/api/v1/records/p1?version=abc", `{"xp": 1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPut, "/api/v1/records/p1", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPut, "/api/v1/records/p1", `{"lastSaved": "yesterday"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoadMissingRecord(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := call(t, srv, http.MethodGet, "/api/v1/records/ghost", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, body["error"], "not found")
}

func TestConnectivityAndDrain(t *testing.T) {
	srv, manager := newTestServer(t)

	resp, body := call(t, srv, http.MethodPost, "/api/v1/connectivity", `{"online": false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["online"])
	require.False(t, manager.Monitor().IsOnline())

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/queue/drain", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/connectivity", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = call(t, srv, http.MethodPost, "/api/v1/connectivity", `{"online": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["online"])
	manager.Engine().Wait()

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/connectivity/foreground", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	manager.Engine().Wait()

	resp, report := call(t, srv, http.MethodPost, "/api/v1/queue/drain", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, report, "succeeded")

	resp, queued := call(t, srv, http.MethodGet, "/api/v1/queue", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, queued["entries"])
}

func TestStopAndRestartSync(t *testing.T) {
	srv, manager := newTestServer(t)

	resp, _ := call(t, srv, http.MethodPost, "/api/v1/sync/trigger", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/sync/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, sync.StatusIdle, manager.GetStatus())

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/sync/trigger", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, sync.StatusRunning, manager.GetStatus())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	call(t, srv, http.MethodPut, "/api/v1/records/p1", `{"xp": 1}`)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), `progress_sync_saves_total{outcome="ok"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/records/p1", nil)
	req.Header.Set("Origin", "http://game.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
