package server

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
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/app"
	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/models"
)

func newTestServer(t *testing.T, dashboardDir string) (*Server, *app.App) {
	t.Helper()
	dir := t.TempDir()
	cfg := common.NewDefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Storage.SessionsDir = filepath.Join(dir, "sessions")
	cfg.Storage.Badger.Path = filepath.Join(dir, "history")
	cfg.Accounts.Count = 2
	cfg.Dashboard.Dir = dashboardDir

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application), application
}

func get(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes_UsageBeforeFirstRun(t *testing.T) {
	s, _ := newTestServer(t, "")

	for _, path := range []string{"/api/usage", "/usage"} {
		rec := get(t, s, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Nil(t, body["lastUpdated"], path)
		assert.Equal(t, []interface{}{}, body["accounts"], path)
		assert.Equal(t, false, body["isScraping"], path)
	}
}

// TestRoutes_RefreshRunsAllAccounts drives a full run with no stored sessions,
// so no browser is ever launched.
func TestRoutes_RefreshRunsAllAccounts(t *testing.T) {
	s, application := newTestServer(t, "")

	rec := get(t, s, http.MethodGet, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Refresh started"}`, rec.Body.String())

	require.Eventually(t, func() bool {
		return !application.SchedulerService.Status().IsScraping
	}, 10*time.Second, 20*time.Millisecond)

	rec = get(t, s, http.MethodGet, "/api/usage")
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.LastUpdated)
	require.Len(t, body.Accounts, 2)
	for i, snap := range body.Accounts {
		assert.Equal(t, i+1, snap.AccountIndex)
		assert.Equal(t, models.StatusNoSession, snap.Status)
		require.NotNil(t, snap.Error)
		assert.Contains(t, *snap.Error, "No session found")
	}

	rec = get(t, s, http.MethodGet, "/api/history?account=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)
}

func TestRoutes_Status(t *testing.T) {
	s, _ := newTestServer(t, "")

	for _, path := range []string{"/api/status", "/status"} {
		rec := get(t, s, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body, "isScraping")
		assert.Contains(t, body, "nextRefresh")
		assert.Contains(t, body, "uptime")
	}
}

func TestRoutes_SystemEndpoints(t *testing.T) {
	s, _ := newTestServer(t, "")

	assert.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/health").Code)
	assert.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/api/version").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/api/unknown").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/nothing-here").Code)

	rec := get(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/usage")
}

func TestRoutes_StaticDashboard(t *testing.T) {
	dashboard := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dashboard, "index.html"), []byte("<h1>Usage</h1>"), 0644))
	s, _ := newTestServer(t, dashboard)

	rec := get(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Usage</h1>")
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := get(t, s, http.MethodOptions, "/api/usage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_Recovery(t *testing.T) {
	s, _ := newTestServer(t, "")

	handler := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler bug")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Addr(t *testing.T) {
	s, application := newTestServer(t, "")
	application.Config.Server.Host = "127.0.0.1"
	application.Config.Server.Port = 4455
	assert.Equal(t, "127.0.0.1:4455", s.Addr())
}
