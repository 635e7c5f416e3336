package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tscv-go/internal/cache"
	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/database"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/services"
	"github.com/irfndi/tscv-go/internal/testutil"
	"github.com/irfndi/tscv-go/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockRunStore struct {
	mock.Mock
}

func (m *mockRunStore) Save(ctx context.Context, run *models.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockRunStore) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	args := m.Called(ctx, id)
	if run := args.Get(0); run != nil {
		return run.(*models.RunRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunStore) List(ctx context.Context, kind string, limit int) ([]models.RunRecord, error) {
	args := m.Called(ctx, kind, limit)
	if runs := args.Get(0); runs != nil {
		return runs.([]models.RunRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Data:        config.DataConfig{TargetColumnIdx: []int{0, 1}},
		Train: config.TrainConfig{
			InputLength:    10,
			OutputLength:   7,
			Horizon:        4,
			Stride:         1,
			TrainTestRatio: 0.7,
			Shuffle:        true,
			Seed:           42,
			Model:          "last_value",
			Metric:         "mae",
		},
		Fit:      models.DefaultFitConfig(),
		CrossVal: config.CrossValConfig{FoldLength: 200, FoldStride: 100},
		Backtest: config.BacktestSettings{Stride: 1, StartRatio: 0.9, Retrain: true, RetrainEvery: 1},
		Features: config.FeaturesConfig{SourceChannel: 0, SMAPeriods: []int{5}},
		Server:   config.ServerConfig{MaxSeriesLength: 1000},
	}
}

func setupTestCache(t *testing.T, recorder *metrics.Recorder) (*miniredis.Miniredis, *cache.ResultCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.NewResultCache(client, time.Hour, quietLogger(), recorder)
}

// evaluationRouter registers the evaluation routes. results and runs are
// passed through as interfaces only when non-nil.
func evaluationRouter(t *testing.T, cfg *config.Config, recorder *metrics.Recorder, results ResultStore, runs RunStore) *gin.Engine {
	t.Helper()
	handler, err := NewEvaluationHandler(cfg, quietLogger(), recorder, results, runs)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/api/v1/train", handler.Train)
	router.POST("/api/v1/cross-validate", handler.CrossValidate)
	router.POST("/api/v1/backtest", handler.Backtest)
	router.POST("/api/v1/samples", handler.Samples)
	return router
}

func monotonicData(length int) [][]interface{} {
	shape := testutil.DefaultShape()
	shape.Length = length
	rows := testutil.MonotonicRows(shape)
	data := make([][]interface{}, len(rows))
	for i, row := range rows {
		data[i] = make([]interface{}, len(row))
		for j, v := range row {
			data[i][j] = v
		}
	}
	return data
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEvaluation(t *testing.T, w *httptest.ResponseRecorder) EvaluationResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp EvaluationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestEvaluationHandler_Train(t *testing.T) {
	recorder := metrics.NewRecorder()
	router := evaluationRouter(t, testConfig(), recorder, nil, nil)

	w := postJSON(t, router, "/api/v1/train", gin.H{"data": monotonicData(500)})
	resp := decodeEvaluation(t, w)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, models.RunKindTrain, resp.Kind)
	assert.Equal(t, "mae", resp.Metric)
	assert.True(t, decimal.NewFromInt(7).Equal(resp.Score), "score %s", resp.Score)
	assert.False(t, resp.Cached)
	assert.Nil(t, resp.Cleaning)

	var result models.TrainResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, 331, result.TrainSamples)
	assert.Equal(t, 141, result.TestSamples)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(recorder.RunsTotal.WithLabelValues(models.RunKindTrain, metrics.StatusSuccess)))
}

func TestEvaluationHandler_CrossValidate(t *testing.T) {
	router := evaluationRouter(t, testConfig(), nil, nil, nil)

	w := postJSON(t, router, "/api/v1/cross-validate", gin.H{"data": monotonicData(500)})
	resp := decodeEvaluation(t, w)
	assert.Equal(t, models.RunKindCrossValidate, resp.Kind)
	assert.True(t, decimal.NewFromInt(7).Equal(resp.Score))

	var result models.CrossValidationResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Len(t, result.FoldScores, 4)

	w = postJSON(t, router, "/api/v1/cross-validate", gin.H{
		"data":        monotonicData(500),
		"fold_length": 250,
		"fold_stride": 250,
	})
	resp = decodeEvaluation(t, w)
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Len(t, result.FoldScores, 2)
}

func TestEvaluationHandler_Backtest(t *testing.T) {
	router := evaluationRouter(t, testConfig(), nil, nil, nil)

	w := postJSON(t, router, "/api/v1/backtest", gin.H{
		"data":          monotonicData(500),
		"retrain_every": 5,
	})
	resp := decodeEvaluation(t, w)

	var result models.BacktestResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, result.ID, resp.ID)
	assert.Equal(t, 31, result.Steps)
	assert.Equal(t, 6, result.Retrains)
	assert.Equal(t, [3]int{31, 7, 2}, result.Predictions.Shape)
	assert.True(t, decimal.NewFromInt(7).Equal(resp.Score))
}

func TestEvaluationHandler_Samples(t *testing.T) {
	router := evaluationRouter(t, testConfig(), nil, nil, nil)

	w := postJSON(t, router, "/api/v1/samples", gin.H{"data": monotonicData(500)})
	require.Equal(t, http.StatusOK, w.Code)
	var resp SamplesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 481, resp.Samples)
	assert.Equal(t, 481, resp.Expected)
	assert.Equal(t, []int{481, 10, 5}, resp.XShape)
	assert.Equal(t, []int{481, 7, 2}, resp.YShape)
	assert.Equal(t, 3, resp.YRank)
	assert.Equal(t, 0, resp.InputStarts[0])
	assert.Equal(t, 13, resp.TargetStarts[0])

	w = postJSON(t, router, "/api/v1/samples", gin.H{
		"data":              monotonicData(50),
		"target_column_idx": []int{2},
		"output_length":     1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int{resp.Samples}, resp.YShape)
	assert.Equal(t, 1, resp.YRank)
}

func TestEvaluationHandler_Features(t *testing.T) {
	router := evaluationRouter(t, testConfig(), nil, nil, nil)

	w := postJSON(t, router, "/api/v1/samples", gin.H{
		"data":     monotonicData(100),
		"features": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SamplesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 6, resp.Channels)
	assert.GreaterOrEqual(t, resp.Offset, 4)
	assert.Equal(t, resp.Offset, resp.InputStarts[0])
	assert.Equal(t, []int{resp.Samples, 10, 6}, resp.XShape)
	assert.Equal(t, resp.Expected, resp.Samples)
}

func TestEvaluationHandler_Clean(t *testing.T) {
	router := evaluationRouter(t, testConfig(), nil, nil, nil)

	data := monotonicData(500)
	data[0][2] = nil
	data[200][1] = nil

	w := postJSON(t, router, "/api/v1/train", gin.H{"data": data})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodePrecondition, decodeError(t, w).Code)

	w = postJSON(t, router, "/api/v1/train", gin.H{"data": data, "clean": true})
	resp := decodeEvaluation(t, w)
	require.NotNil(t, resp.Cleaning)
	assert.Equal(t, 1, resp.Cleaning.DroppedRows)
	assert.GreaterOrEqual(t, resp.Cleaning.FilledCells, 1)
}

func TestEvaluationHandler_Errors(t *testing.T) {
	cfg := testConfig()
	router := evaluationRouter(t, cfg, nil, nil, nil)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"missing data", "/api/v1/train", gin.H{}, http.StatusBadRequest, CodeValidation},
		{"bad ratio", "/api/v1/train", gin.H{"data": monotonicData(100), "train_test_ratio": 1.5}, http.StatusBadRequest, CodeValidation},
		{"zero horizon", "/api/v1/train", gin.H{"data": monotonicData(100), "horizon": 0}, http.StatusBadRequest, CodeValidation},
		{"unknown metric", "/api/v1/train", gin.H{"data": monotonicData(100), "metric": "r2"}, http.StatusBadRequest, CodeValidation},
		{"unknown model", "/api/v1/train", gin.H{"data": monotonicData(100), "model": "lstm"}, http.StatusBadRequest, CodeValidation},
		{"target out of range", "/api/v1/train", gin.H{"data": monotonicData(100), "target_column_idx": []int{9}}, http.StatusBadRequest, CodeValidation},
		{"too long", "/api/v1/train", gin.H{"data": monotonicData(1001)}, http.StatusBadRequest, CodeValidation},
		{"too short", "/api/v1/train", gin.H{"data": monotonicData(25)}, http.StatusUnprocessableEntity, CodePrecondition},
		{"fold too short", "/api/v1/cross-validate", gin.H{"data": monotonicData(100), "fold_length": 25, "fold_stride": 25}, http.StatusUnprocessableEntity, CodePrecondition},
		{"bad start ratio", "/api/v1/backtest", gin.H{"data": monotonicData(100), "start_ratio": 1.0}, http.StatusBadRequest, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/train", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluationHandler_CacheAndPersist(t *testing.T) {
	recorder := metrics.NewRecorder()
	_, results := setupTestCache(t, recorder)
	runs := &mockRunStore{}
	runs.On("Save", mock.Anything, mock.MatchedBy(func(run *models.RunRecord) bool {
		return run.Kind == models.RunKindTrain && run.Metric == "mae" && run.Score.Equal(decimal.NewFromInt(7))
	})).Return(nil).Once()

	router := evaluationRouter(t, testConfig(), recorder, results, runs)
	body := gin.H{"data": monotonicData(500)}

	first := decodeEvaluation(t, postJSON(t, router, "/api/v1/train", body))
	assert.False(t, first.Cached)

	second := decodeEvaluation(t, postJSON(t, router, "/api/v1/train", body))
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.Score.Equal(second.Score))

	third := decodeEvaluation(t, postJSON(t, router, "/api/v1/train", gin.H{"data": monotonicData(500), "seed": 7}))
	assert.False(t, third.Cached)

	runs.AssertNumberOfCalls(t, "Save", 1)
	stats := results.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, 2.0, promtestutil.ToFloat64(recorder.RunsTotal.WithLabelValues(models.RunKindTrain, metrics.StatusSuccess)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(recorder.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(recorder.CacheLookups.WithLabelValues("miss")))
}

func TestEvaluationHandler_PersistFailureIsNotFatal(t *testing.T) {
	runs := &mockRunStore{}
	runs.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	router := evaluationRouter(t, testConfig(), nil, nil, runs)
	resp := decodeEvaluation(t, postJSON(t, router, "/api/v1/backtest", gin.H{"data": monotonicData(500)}))
	assert.Equal(t, models.RunKindBacktest, resp.Kind)
	runs.AssertExpectations(t)
}

func TestEvaluationHandler_RunStoreBreaker(t *testing.T) {
	runs := &mockRunStore{}
	runs.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	breakers := services.NewCircuitBreakerManager(services.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, quietLogger())

	handler, err := NewEvaluationHandler(testConfig(), quietLogger(), nil, nil, runs)
	require.NoError(t, err)
	handler.WithBreakers(breakers)
	router := gin.New()
	router.POST("/api/v1/train", handler.Train)

	for i := 0; i < 4; i++ {
		resp := decodeEvaluation(t, postJSON(t, router, "/api/v1/train", gin.H{"data": monotonicData(200)}))
		assert.Equal(t, models.RunKindTrain, resp.Kind)
	}

	runs.AssertNumberOfCalls(t, "Save", 2)
	stats := breakers.GetAllStats()[BreakerRunStore]
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(2), stats.RejectedRequests)
}

func TestEvaluationHandler_CrossValidateParallel(t *testing.T) {
	cfg := testConfig()
	cfg.CrossVal.Workers = 0
	router := evaluationRouter(t, cfg, nil, nil, nil)

	resp := decodeEvaluation(t, postJSON(t, router, "/api/v1/cross-validate", gin.H{"data": monotonicData(500), "fold_stride": 50}))
	var result models.CrossValidationResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Len(t, result.FoldScores, 7)
	assert.True(t, resp.Score.Equal(decimal.NewFromInt(7)))
}

func TestEvaluationHandler_RunTimeout(t *testing.T) {
	timeouts := services.NewTimeoutManager(&services.TimeoutConfig{Backtest: time.Nanosecond}, quietLogger())
	handler, err := NewEvaluationHandler(testConfig(), quietLogger(), nil, nil, nil)
	require.NoError(t, err)
	handler.WithTimeouts(timeouts)
	router := gin.New()
	router.POST("/api/v1/train", handler.Train)
	router.POST("/api/v1/backtest", handler.Backtest)

	w := postJSON(t, router, "/api/v1/backtest", gin.H{"data": monotonicData(500)})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, CodeUnavailable, decodeError(t, w).Code)

	// Train keeps its own budget.
	resp := decodeEvaluation(t, postJSON(t, router, "/api/v1/train", gin.H{"data": monotonicData(500)}))
	assert.Equal(t, models.RunKindTrain, resp.Kind)
	assert.Zero(t, timeouts.GetActiveOperationCount())
}

func runsRouter(runs RunStore) *gin.Engine {
	handler := NewRunsHandler(runs, quietLogger())
	router := gin.New()
	router.GET("/api/v1/runs", handler.ListRuns)
	router.GET("/api/v1/runs/:id", handler.GetRun)
	return router
}

func TestRunsHandler(t *testing.T) {
	record := &models.RunRecord{ID: "run-1", Kind: models.RunKindBacktest, Metric: "mae", Score: decimal.NewFromInt(7)}
	runs := &mockRunStore{}
	runs.On("Get", mock.Anything, "run-1").Return(record, nil)
	runs.On("Get", mock.Anything, "missing").Return(nil, database.ErrRunNotFound)
	runs.On("List", mock.Anything, models.RunKindBacktest, 5).Return([]models.RunRecord{*record}, nil)
	runs.On("List", mock.Anything, "", database.DefaultListLimit).Return([]models.RunRecord{}, nil)
	router := runsRouter(runs)

	w := get(router, http.MethodGet, "/api/v1/runs/run-1")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)

	w = get(router, http.MethodGet, "/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).Code)

	w = get(router, http.MethodGet, "/api/v1/runs?kind=backtest&limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = get(router, http.MethodGet, "/api/v1/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	for _, query := range []string{"?limit=0", "?limit=abc", "?kind=forecast"} {
		w = get(router, http.MethodGet, "/api/v1/runs"+query)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
	runs.AssertExpectations(t)
}

func TestRunsHandler_Disabled(t *testing.T) {
	router := runsRouter(nil)
	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/run-1"} {
		w := get(router, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, CodeUnavailable, decodeError(t, w).Code)
	}
}

func TestAdminHandler(t *testing.T) {
	mr, results := setupTestCache(t, nil)
	require.NoError(t, results.Set(context.Background(), "train:abc", gin.H{"score": 1}))
	require.NoError(t, results.Set(context.Background(), "train:def", gin.H{"score": 2}))

	runs := &mockRunStore{}
	runs.On("Delete", mock.Anything, "run-1").Return(nil)
	runs.On("Delete", mock.Anything, "missing").Return(database.ErrRunNotFound)

	handler := NewAdminHandler(results, runs, quietLogger())
	router := gin.New()
	router.DELETE("/cache", handler.ClearCache)
	router.GET("/cache/stats", handler.CacheStats)
	router.DELETE("/runs/:id", handler.DeleteRun)

	w := get(router, http.MethodGet, "/cache/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sets":2`)

	w = get(router, http.MethodDelete, "/cache")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":2`)
	assert.Empty(t, mr.Keys())

	assert.Equal(t, http.StatusNoContent, get(router, http.MethodDelete, "/runs/run-1").Code)
	assert.Equal(t, http.StatusNotFound, get(router, http.MethodDelete, "/runs/missing").Code)
	runs.AssertExpectations(t)
}

func TestAdminHandler_Breakers(t *testing.T) {
	breakers := services.NewCircuitBreakerManager(services.CircuitBreakerConfig{FailureThreshold: 1}, quietLogger())
	_ = breakers.Get(BreakerRunStore).Execute(context.Background(), func(context.Context) error {
		return errors.New("connection refused")
	})

	handler := NewAdminHandler(nil, nil, quietLogger()).WithBreakers(breakers)
	router := gin.New()
	router.GET("/breakers", handler.BreakerStats)
	router.DELETE("/breakers", handler.ResetBreakers)

	w := get(router, http.MethodGet, "/breakers")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]services.CircuitBreakerStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "open", stats[BreakerRunStore].State)

	assert.Equal(t, http.StatusNoContent, get(router, http.MethodDelete, "/breakers").Code)
	assert.Equal(t, services.Closed, breakers.Get(BreakerRunStore).GetState())
}

func TestAdminHandler_ActiveRuns(t *testing.T) {
	timeouts := services.NewTimeoutManager(nil, quietLogger())
	op := timeouts.Start(context.Background(), models.RunKindBacktest, "op-1")

	handler := NewAdminHandler(nil, nil, quietLogger()).WithTimeouts(timeouts)
	router := gin.New()
	router.GET("/active", handler.ActiveRuns)
	router.DELETE("/active/:id", handler.CancelRun)

	w := get(router, http.MethodGet, "/active")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), `"id":"op-1"`)

	assert.Equal(t, http.StatusNoContent, get(router, http.MethodDelete, "/active/op-1").Code)
	assert.ErrorIs(t, op.Ctx.Err(), context.Canceled)

	w = get(router, http.MethodDelete, "/active/op-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).Code)
}

func TestAdminHandler_Disabled(t *testing.T) {
	handler := NewAdminHandler(nil, nil, quietLogger())
	router := gin.New()
	router.DELETE("/cache", handler.ClearCache)
	router.GET("/cache/stats", handler.CacheStats)
	router.DELETE("/runs/:id", handler.DeleteRun)
	router.GET("/breakers", handler.BreakerStats)
	router.DELETE("/breakers", handler.ResetBreakers)
	router.GET("/active", handler.ActiveRuns)
	router.DELETE("/active/:id", handler.CancelRun)

	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodGet, "/active").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodDelete, "/active/op-1").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodGet, "/breakers").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodDelete, "/breakers").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodDelete, "/cache").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodGet, "/cache/stats").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodDelete, "/runs/run-1").Code)
}

func TestHealthHandler(t *testing.T) {
	healthy := checkerFunc(func(context.Context) error { return nil })
	failing := checkerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		db       HealthChecker
		redis    HealthChecker
		status   int
		overall  string
		database string
	}{
		{"backends disabled", nil, nil, http.StatusOK, StatusHealthy, StatusDisabled},
		{"all healthy", healthy, healthy, http.StatusOK, StatusHealthy, StatusHealthy},
		{"database down", failing, healthy, http.StatusServiceUnavailable, StatusDegraded, "unhealthy: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.db, tt.redis, "1.2.3")
			router := gin.New()
			router.GET("/health", handler.HealthCheck)

			w := get(router, http.MethodGet, "/health")
			assert.Equal(t, tt.status, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.overall, resp.Status)
			assert.Equal(t, tt.database, resp.Services["database"])
			assert.Equal(t, "1.2.3", resp.Version)
			assert.Positive(t, resp.System.Goroutines)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{utils.NewValidationError("bad"), http.StatusBadRequest, CodeValidation},
		{utils.NewPreconditionErrorf("short"), http.StatusUnprocessableEntity, CodePrecondition},
		{utils.NewConsistencyError("shape", []int{1}, []int{2}), http.StatusInternalServerError, CodeConsistency},
		{fmt.Errorf("lookup: %w", database.ErrRunNotFound), http.StatusNotFound, CodeNotFound},
		{context.Canceled, http.StatusServiceUnavailable, CodeUnavailable},
		{fmt.Errorf("fold 2: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
