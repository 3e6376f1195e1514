package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name   string
	result CheckResult
}

func (c stubChecker) Name() string                      { return c.name }
func (c stubChecker) Check(context.Context) CheckResult { return c.result }

func TestHealthAlwaysAlive(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(stubChecker{"broken", CheckResult{Status: StatusUnhealthy, Error: "down"}})

	// Liveness without verbose ignores checkers.
	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1", resp.Version)
	assert.Empty(t, resp.Checks)

	// Verbose surfaces the degraded state.
	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "broken")
}

func TestReadyAggregation(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantReady  bool
		wantStatus Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Checker{stubChecker{"a", CheckResult{Status: StatusHealthy}}}, true, StatusHealthy},
		{"degraded stays ready", []Checker{stubChecker{"a", CheckResult{Status: StatusDegraded}}}, true, StatusDegraded},
		{"unhealthy not ready", []Checker{
			stubChecker{"a", CheckResult{Status: StatusHealthy}},
			stubChecker{"b", CheckResult{Status: StatusUnhealthy, Error: "down"}},
		}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background(), true)
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestServeHealth(t *testing.T) {
	m := NewManager("v1")
	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
}

func TestServeReadyUnhealthy(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(stubChecker{"store", CheckResult{Status: StatusUnhealthy, Error: "down"}})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o600))

	assert.Equal(t, StatusHealthy, NewFileChecker("f", existing).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewFileChecker("f", "").Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewFileChecker("f", filepath.Join(dir, "gone.csv")).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewFileChecker("f", dir).Check(context.Background()).Status)
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("db", func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	bad := NewPingChecker("db", func(context.Context) error { return errors.New("no connection") })
	res := bad.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "no connection", res.Error)
}
