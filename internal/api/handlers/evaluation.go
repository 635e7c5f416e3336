package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/cache"
	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/dataprep"
	"github.com/irfndi/tscv-go/internal/forecast"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/services"
	"github.com/irfndi/tscv-go/internal/utils"
)

// ResultStore caches evaluation responses by request fingerprint.
type ResultStore interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Clear(ctx context.Context) (int, error)
	GetStats() cache.ResultCacheStats
}

// RunStore persists run summaries.
type RunStore interface {
	Save(ctx context.Context, run *models.RunRecord) error
	Get(ctx context.Context, id string) (*models.RunRecord, error)
	List(ctx context.Context, kind string, limit int) ([]models.RunRecord, error)
	Delete(ctx context.Context, id string) error
}

// EvaluationResponse is returned by the train, cross-validation and
// backtest routes.
type EvaluationResponse struct {
	ID       string                `json:"id"`
	Kind     string                `json:"kind"`
	Metric   string                `json:"metric"`
	Score    decimal.Decimal       `json:"score"`
	Cached   bool                  `json:"cached"`
	Cleaning *dataprep.CleanReport `json:"cleaning,omitempty"`
	Result   json.RawMessage       `json:"result"`
}

// SamplesResponse describes the sample set a request would produce.
type SamplesResponse struct {
	Samples      int                 `json:"samples"`
	Expected     int                 `json:"expected"`
	XShape       []int               `json:"x_shape"`
	YShape       []int               `json:"y_shape"`
	YRank        int                 `json:"y_rank"`
	Layout       models.TargetLayout `json:"layout"`
	InputStarts  []int               `json:"input_starts"`
	TargetStarts []int               `json:"target_starts"`
	Channels     int                 `json:"channels"`
	Offset       int                 `json:"offset"`
}

// EvaluationHandler serves the evaluation routes. cache and runs may be nil.
type EvaluationHandler struct {
	config   *config.Config
	logger   *logrus.Logger
	recorder *metrics.Recorder
	cache    ResultStore
	runs     RunStore
	features *services.FeatureAugmenter
	pool     *services.ResourceOptimizer
	breakers *services.CircuitBreakerManager
	timeouts *services.TimeoutManager
}

// Breaker names for the optional backends.
const (
	BreakerResultCache = "result_cache"
	BreakerRunStore    = "run_store"
)

// NewEvaluationHandler creates a new evaluation handler.
func NewEvaluationHandler(cfg *config.Config, logger *logrus.Logger, recorder *metrics.Recorder, results ResultStore, runs RunStore) (*EvaluationHandler, error) {
	features, err := services.NewFeatureAugmenter(cfg.Features, logger)
	if err != nil {
		return nil, err
	}
	return &EvaluationHandler{
		config:   cfg,
		logger:   logger,
		recorder: recorder,
		cache:    results,
		runs:     runs,
		features: features,
		pool:     services.NewResourceOptimizer(services.ResourceOptimizerConfig{}, logger),
	}, nil
}

// WithBreakers routes cache and run store calls through breakers so a
// failing backend is skipped instead of slowing every request.
func (h *EvaluationHandler) WithBreakers(breakers *services.CircuitBreakerManager) *EvaluationHandler {
	h.breakers = breakers
	return h
}

// WithTimeouts bounds each run by its kind's budget and registers it with
// timeouts so it can be cancelled.
func (h *EvaluationHandler) WithTimeouts(timeouts *services.TimeoutManager) *EvaluationHandler {
	h.timeouts = timeouts
	return h
}

// guard runs fn through the named breaker when breakers are configured.
func (h *EvaluationHandler) guard(ctx context.Context, name string, fn func(context.Context) error) error {
	if h.breakers == nil {
		return fn(ctx)
	}
	return h.breakers.Get(name).Execute(ctx, fn)
}

// evaluation is one run route: it returns the result body and its score.
type evaluation func(ctx context.Context, req resolvedRequest, factory *forecast.Factory) (interface{}, string, float64, error)

// Train handles POST /api/v1/train.
func (h *EvaluationHandler) Train(c *gin.Context) {
	h.handle(c, models.RunKindTrain, func(ctx context.Context, req resolvedRequest, factory *forecast.Factory) (interface{}, string, float64, error) {
		trainer, err := services.NewTrainer(req.Settings, factory, h.logger, h.recorder)
		if err != nil {
			return nil, "", 0, err
		}
		result, err := trainer.Train(ctx, req.Series)
		if err != nil {
			return nil, "", 0, err
		}
		return result, result.Metric, result.Score, nil
	})
}

// CrossValidate handles POST /api/v1/cross-validate.
func (h *EvaluationHandler) CrossValidate(c *gin.Context) {
	h.handle(c, models.RunKindCrossValidate, func(ctx context.Context, req resolvedRequest, factory *forecast.Factory) (interface{}, string, float64, error) {
		trainer, err := services.NewTrainer(req.Settings, factory, h.logger, h.recorder)
		if err != nil {
			return nil, "", 0, err
		}
		trainer.WithFoldWorkers(h.config.CrossVal.Workers, h.pool)
		result, err := trainer.CrossValidate(ctx, req.Series, req.Folds)
		if err != nil {
			return nil, "", 0, err
		}
		return result, result.Metric, result.Mean, nil
	})
}

// Backtest handles POST /api/v1/backtest.
func (h *EvaluationHandler) Backtest(c *gin.Context) {
	h.handle(c, models.RunKindBacktest, func(ctx context.Context, req resolvedRequest, factory *forecast.Factory) (interface{}, string, float64, error) {
		backtester, err := services.NewBacktester(req.Settings, factory, h.logger, h.recorder)
		if err != nil {
			return nil, "", 0, err
		}
		result, err := backtester.Run(ctx, req.Series, req.Backtest)
		if err != nil {
			return nil, "", 0, err
		}
		return result, result.Metric, result.Score, nil
	})
}

// Samples handles POST /api/v1/samples. It builds the unshuffled sample
// set and reports its shapes and window positions.
func (h *EvaluationHandler) Samples(c *gin.Context) {
	req, _, ok := h.bind(c)
	if !ok {
		return
	}

	set, err := services.BuildSampleSet(req.Series, req.Settings.Window, services.SampleOptions{})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.recorder.AddSamples(set.Len())

	c.JSON(http.StatusOK, SamplesResponse{
		Samples:      set.Len(),
		Expected:     req.Settings.Window.ExpectedSampleCount(req.Series.Len()),
		XShape:       set.X.Dims(),
		YShape:       set.YShape(),
		YRank:        set.YRank(),
		Layout:       set.Layout,
		InputStarts:  set.Starts,
		TargetStarts: set.TargetStarts(req.Settings.Window),
		Channels:     req.Series.Channels(),
		Offset:       req.Series.Offset(),
	})
}

// bind decodes the request, resolves it and prepares the series.
func (h *EvaluationHandler) bind(c *gin.Context) (resolvedRequest, *dataprep.CleanReport, bool) {
	var body EvaluationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, h.logger, utils.NewValidationErrorf("invalid request body: %v", err))
		return resolvedRequest{}, nil, false
	}
	req, err := body.resolve(h.config)
	if err != nil {
		respondError(c, h.logger, err)
		return resolvedRequest{}, nil, false
	}

	var report *dataprep.CleanReport
	if req.Clean {
		cleaned, r, err := dataprep.Clean(req.Series)
		if err != nil {
			respondError(c, h.logger, err)
			return resolvedRequest{}, nil, false
		}
		req.Series = cleaned
		report = &r
	}
	if req.Features {
		augmented, err := h.features.Augment(req.Series)
		if err != nil {
			respondError(c, h.logger, err)
			return resolvedRequest{}, nil, false
		}
		req.Series = augmented
	}
	return req, report, true
}

func (h *EvaluationHandler) handle(c *gin.Context, kind string, run evaluation) {
	req, report, ok := h.bind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if h.timeouts != nil {
		op := h.timeouts.Start(ctx, kind, uuid.New().String())
		defer h.timeouts.Complete(op.OperationID)
		ctx = op.Ctx
	}

	factory, err := forecast.NewFactory(req.Model, req.Series.TargetIdx(), req.Ridge)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	key := ""
	if h.cache != nil {
		key, err = cache.Fingerprint(kind, req.Series, req.cacheParams(kind))
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		var (
			cached EvaluationResponse
			hit    bool
		)
		err = h.guard(ctx, BreakerResultCache, func(ctx context.Context) error {
			var getErr error
			hit, getErr = h.cache.Get(ctx, key, &cached)
			return getErr
		})
		if err != nil {
			h.logger.WithError(err).WithField("kind", kind).Debug("Result cache lookup failed")
		}
		if hit {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	result, metric, score, err := run(ctx, req, factory)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := EvaluationResponse{
		ID:       runID(result),
		Kind:     kind,
		Metric:   metric,
		Score:    models.ScoreDecimal(score),
		Cleaning: report,
		Result:   raw,
	}
	h.persist(ctx, req, response)

	if h.cache != nil {
		err = h.guard(ctx, BreakerResultCache, func(ctx context.Context) error {
			return h.cache.Set(ctx, key, response)
		})
		if err != nil {
			h.logger.WithError(err).WithField("kind", kind).Warn("Failed to cache evaluation result")
		}
	}
	c.JSON(http.StatusOK, response)
}

// persist saves the run summary. Store failures are logged and do not fail
// the request.
func (h *EvaluationHandler) persist(ctx context.Context, req resolvedRequest, response EvaluationResponse) {
	if h.runs == nil {
		return
	}
	params, err := json.Marshal(req.cacheParams(response.Kind))
	if err != nil {
		h.logger.WithError(err).Warn("Failed to encode run parameters")
		return
	}
	record := &models.RunRecord{
		ID:      response.ID,
		Kind:    response.Kind,
		Metric:  response.Metric,
		Score:   response.Score,
		Params:  params,
		Summary: response.Result,
	}

	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = h.guard(saveCtx, BreakerRunStore, func(ctx context.Context) error {
		return h.runs.Save(ctx, record)
	})
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"run_id": record.ID,
			"kind":   record.Kind,
		}).Warn("Failed to persist run")
	}
}

// runID reuses the backtest's own ID so the stored record and the result
// agree.
func runID(result interface{}) string {
	if bt, ok := result.(*models.BacktestResult); ok && bt.ID != "" {
		return bt.ID
	}
	return uuid.New().String()
}
