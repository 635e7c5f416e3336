package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/tscv-go/internal/evaluation"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/telemetry"
	"github.com/irfndi/tscv-go/internal/utils"
	"github.com/irfndi/tscv-go/pkg/interfaces"
)

// Backtester replays history with a walk-forward loop: train up to a
// cutoff, forecast the window right after it, move the cutoff forward and
// optionally refit.
type Backtester struct {
	settings RunSettings
	factory  interfaces.ModelFactory
	metric   interfaces.Metric
	logger   *logrus.Logger
	recorder *metrics.Recorder
}

// backtestState is owned by a single Run call.
type backtestState struct {
	model       interfaces.Model
	cutoff0     int
	lastRetrain int
	retrains    int
	predictions []*models.Tensor
	truths      []*models.Tensor
	cutoffs     []int
}

// NewBacktester creates a new Backtester. recorder may be nil.
func NewBacktester(settings RunSettings, factory interfaces.ModelFactory, logger *logrus.Logger, recorder *metrics.Recorder) (*Backtester, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, utils.NewValidationError("backtester needs a model factory")
	}
	metric, err := evaluation.Lookup(settings.Metric)
	if err != nil {
		return nil, err
	}
	return &Backtester{
		settings: settings,
		factory:  factory,
		metric:   metric,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Run executes the walk-forward backtest.
//
// The first cutoff is round(start_ratio * L), ties to even; cutoff k is
// cutoff0 + k*stride. At every cutoff the model forecasts the first sample
// of series[cutoff:], and the loop ends at the first cutoff without room
// for a full output window. With retraining enabled the model is refit on
// series[:cutoff] once retrain_every iterations have passed since the last
// fit; the initial fit counts as iteration 0.
//
// Parameters:
//   - ctx: Context for cancellation, checked between iterations.
//   - series: The full history.
//   - cfg: Walk-forward parameters.
//
// Returns:
//   - The stacked forecasts, ground truth and score.
//   - A PreconditionError when the initial region yields no training sample.
//   - A ConsistencyError when forecasts and ground truth disagree in shape.
func (b *Backtester) Run(ctx context.Context, series models.Series, cfg models.BacktestConfig) (*models.BacktestResult, error) {
	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.Tracer(), "Backtester.Run",
		attribute.Int("series.length", series.Len()),
		attribute.Int("backtest.stride", cfg.Stride),
		attribute.Float64("backtest.start_ratio", cfg.StartRatio),
		attribute.Bool("backtest.retrain", cfg.Retrain),
		attribute.Int("backtest.retrain_every", cfg.RetrainEvery),
	)
	defer span.End()

	result, err := b.run(ctx, series, cfg, started)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		span.SetAttributes(
			attribute.Int("backtest.steps", result.Steps),
			attribute.Int("backtest.retrains", result.Retrains),
			attribute.Float64("score", result.Score),
		)
		b.recorder.ObserveBacktest(result.Steps, result.Retrains)
	}
	b.recorder.ObserveRun(models.RunKindBacktest, time.Since(started), err)
	return result, err
}

func (b *Backtester) run(ctx context.Context, series models.Series, cfg models.BacktestConfig, started time.Time) (*models.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := series.CheckComplete(); err != nil {
		return nil, err
	}

	state, err := b.init(ctx, series, cfg)
	if err != nil {
		return nil, err
	}
	if err := b.walkForward(ctx, series, cfg, state); err != nil {
		return nil, err
	}
	return b.done(series, state, started)
}

// init fits the first model on series[:cutoff0].
func (b *Backtester) init(ctx context.Context, series models.Series, cfg models.BacktestConfig) (*backtestState, error) {
	w := b.settings.Window
	cutoff0 := splitIndex(cfg.StartRatio, series.Len())

	trainSet, err := BuildSampleSet(series.Slice(0, cutoff0), w, b.settings.sampleOptions())
	if err != nil {
		return nil, fmt.Errorf("initial samples: %w", err)
	}
	if trainSet.Len() == 0 {
		return nil, utils.NewPreconditionErrorf(
			"initial training region of %d rows yields no samples (needs at least %d)", cutoff0, w.Span())
	}
	b.recorder.AddSamples(trainSet.Len())

	model, err := b.factory.GetModel(trainSet.X, trainSet.Y)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	if _, err := model.Fit(ctx, trainSet.X, trainSet.Y, b.settings.Fit); err != nil {
		return nil, fmt.Errorf("initial fit: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"cutoff":        cutoff0,
		"train_samples": trainSet.Len(),
		"series_length": series.Len(),
	}).Debug("Backtest initial model fitted")

	return &backtestState{model: model, cutoff0: cutoff0}, nil
}

func (b *Backtester) walkForward(ctx context.Context, series models.Series, cfg models.BacktestConfig, state *backtestState) error {
	w := b.settings.Window
	n := series.Len()
	expected := [3]int{1, w.OutputLength, series.NTargets()}

	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cutoff := state.cutoff0 + k*cfg.Stride
		if cutoff > n {
			return nil
		}
		sample, ok, err := ExtractWindow(series.Slice(cutoff, n), 0, w)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if cfg.Retrain && k-state.lastRetrain >= cfg.RetrainEvery {
			if err := b.refit(ctx, series.Slice(0, cutoff), state, k); err != nil {
				return fmt.Errorf("refit at cutoff %d: %w", cutoff, err)
			}
		}

		X := &models.Tensor{
			Data:  sample.X.RawMatrix().Data,
			Shape: [3]int{1, w.InputLength, series.Channels()},
		}
		pred, err := state.model.Predict(ctx, X)
		if err != nil {
			return fmt.Errorf("predict at cutoff %d: %w", cutoff, err)
		}
		if pred == nil || pred.Shape != expected {
			var got []int
			if pred != nil {
				got = pred.Dims()
			}
			return utils.NewConsistencyError(fmt.Sprintf("forecast at cutoff %d has the wrong shape", cutoff), expected[:], got)
		}

		state.predictions = append(state.predictions, pred)
		state.truths = append(state.truths, &models.Tensor{
			Data:  sample.Y.RawMatrix().Data,
			Shape: [3]int{1, w.OutputLength, series.NTargets()},
		})
		state.cutoffs = append(state.cutoffs, cutoff)
	}
}

// refit continues training the current model on the region before cutoff.
func (b *Backtester) refit(ctx context.Context, region models.Series, state *backtestState, k int) error {
	trainSet, err := BuildSampleSet(region, b.settings.Window, b.settings.sampleOptions())
	if err != nil {
		return err
	}
	if trainSet.Len() == 0 {
		return nil
	}
	b.recorder.AddSamples(trainSet.Len())
	if _, err := state.model.Fit(ctx, trainSet.X, trainSet.Y, b.settings.Fit); err != nil {
		return err
	}
	state.retrains++
	state.lastRetrain = k
	return nil
}

func (b *Backtester) done(series models.Series, state *backtestState, started time.Time) (*models.BacktestResult, error) {
	w := b.settings.Window
	nt := series.NTargets()

	predictions, err := models.Concat(w.OutputLength, nt, state.predictions)
	if err != nil {
		return nil, err
	}
	truth, err := models.Concat(w.OutputLength, nt, state.truths)
	if err != nil {
		return nil, err
	}
	if !predictions.SameShape(truth) {
		return nil, utils.NewConsistencyError("backtest forecasts and ground truth differ in shape", truth.Dims(), predictions.Dims())
	}

	result := &models.BacktestResult{
		ID:          uuid.NewString(),
		Metric:      b.settings.Metric,
		Steps:       len(state.cutoffs),
		Retrains:    state.retrains,
		Cutoffs:     state.cutoffs,
		Predictions: predictions,
		Truth:       truth,
		Layout:      models.TargetLayout{OutputLength: w.OutputLength, NTargets: nt},
		StartedAt:   started,
	}

	fields := logrus.Fields{
		"id":       result.ID,
		"cutoff0":  state.cutoff0,
		"steps":    result.Steps,
		"retrains": result.Retrains,
		"metric":   result.Metric,
	}
	if result.Steps == 0 {
		b.logger.WithFields(fields).Warn("Backtest produced no forecasts: no evaluation window fits after the first cutoff")
	} else {
		score, err := b.metric(truth, predictions)
		if err != nil {
			return nil, err
		}
		result.Score = score
		fields["score"] = score
		b.logger.WithFields(fields).Info("Backtest completed")
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(started)
	return result, nil
}
