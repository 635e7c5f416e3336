package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/middleware"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDependencies() Dependencies {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return Dependencies{
		Config: &config.Config{
			Data: config.DataConfig{TargetColumnIdx: []int{0, 1}},
			Train: config.TrainConfig{
				InputLength: 10, OutputLength: 7, Horizon: 4, Stride: 1,
				TrainTestRatio: 0.7, Seed: 42, Model: "last_value", Metric: "mae",
			},
			Fit:       models.DefaultFitConfig(),
			CrossVal:  config.CrossValConfig{FoldLength: 200, FoldStride: 100},
			Backtest:  config.BacktestSettings{Stride: 1, StartRatio: 0.9, Retrain: true, RetrainEvery: 1},
			Server:    config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}, MaxSeriesLength: 1000},
			Telemetry: config.TelemetryConfig{ServiceName: "tscv-test"},
			Security:  config.SecurityConfig{JWTSecret: "router-secret"},
		},
		Logger:   logger,
		Recorder: metrics.NewRecorder(),
	}
}

func newTestRouter(t *testing.T, deps Dependencies) *gin.Engine {
	t.Helper()
	router, err := NewRouter(deps)
	require.NoError(t, err)
	return router
}

func do(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func trainRequest(t *testing.T) *http.Request {
	t.Helper()
	body, err := json.Marshal(gin.H{"data": testutil.MonotonicRows(testutil.DefaultShape())})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/train", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestNewRouter_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, testDependencies())

	w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"disabled"`)

	w = do(router, trainRequest(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tscv_runs_total")
}

func TestNewRouter_RunsWithoutStore(t *testing.T) {
	router := newTestRouter(t, testDependencies())
	w := do(router, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewRouter_Auth(t *testing.T) {
	deps := testDependencies()
	deps.Config.Security.AuthEnabled = true
	router := newTestRouter(t, deps)

	w := do(router, trainRequest(t))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.NewAuthMiddleware("router-secret", true).GenerateToken("ci", "", time.Minute)
	require.NoError(t, err)
	req := trainRequest(t)
	req.Header.Set("Authorization", "Bearer "+token)
	w = do(router, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Health stays public.
	w = do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_Admin(t *testing.T) {
	router := newTestRouter(t, testDependencies())
	w := do(router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "admin_disabled")

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)
	deps := testDependencies()
	deps.Config.Security.AdminKeyHash = string(hash)
	router = newTestRouter(t, deps)

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats", nil)
	req.Header.Set(middleware.AdminKeyHeader, "admin-key")
	w = do(router, req)
	// Authorised, but no cache is configured.
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "result cache is disabled")

	// Breakers always exist, created lazily per backend.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/breakers", nil)
	req.Header.Set(middleware.AdminKeyHeader, "admin-key")
	w = do(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, testDependencies())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/train", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := do(router, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_InvalidFeatures(t *testing.T) {
	deps := testDependencies()
	deps.Config.Features = config.FeaturesConfig{SMAPeriods: []int{0}}
	_, err := NewRouter(deps)
	assert.Error(t, err)
}
