package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/tscv-go/internal/evaluation"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/telemetry"
	"github.com/irfndi/tscv-go/internal/utils"
	"github.com/irfndi/tscv-go/pkg/interfaces"
)

// Trainer runs the train and cross-validation routes.
type Trainer struct {
	settings RunSettings
	factory  interfaces.ModelFactory
	metric   interfaces.Metric
	logger   *logrus.Logger
	recorder *metrics.Recorder

	foldWorkers int
	optimizer   *ResourceOptimizer
}

// NewTrainer creates a new Trainer. recorder may be nil.
func NewTrainer(settings RunSettings, factory interfaces.ModelFactory, logger *logrus.Logger, recorder *metrics.Recorder) (*Trainer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, utils.NewValidationError("trainer needs a model factory")
	}
	metric, err := evaluation.Lookup(settings.Metric)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		settings: settings,
		factory:  factory,
		metric:   metric,
		logger:   logger,
		recorder: recorder,

		foldWorkers: 1,
	}, nil
}

// WithFoldWorkers sets how many folds CrossValidate trains at once. With
// n == 0 the pool is sized by optimizer, or kept sequential when optimizer
// is nil.
func (t *Trainer) WithFoldWorkers(n int, optimizer *ResourceOptimizer) *Trainer {
	if n < 0 {
		n = 1
	}
	t.foldWorkers = n
	t.optimizer = optimizer
	return t
}

// Settings returns the trainer's run settings.
func (t *Trainer) Settings() RunSettings {
	return t.settings
}

// Train splits the series, fits a fresh model on the train region and
// scores it on the test region.
//
// Parameters:
//   - ctx: Context for cancellation and tracing.
//   - series: One complete fold or dataset.
//
// Returns:
//   - The test score and sample counts.
//   - A PreconditionError when either region yields no samples.
func (t *Trainer) Train(ctx context.Context, series models.Series) (*models.TrainResult, error) {
	start := time.Now()
	result, err := t.trainTraced(ctx, series, -1)
	t.recorder.ObserveRun(models.RunKindTrain, time.Since(start), err)
	return result, err
}

func (t *Trainer) trainTraced(ctx context.Context, series models.Series, fold int) (*models.TrainResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.Tracer(), "Trainer.Train",
		attribute.Int("series.length", series.Len()),
		attribute.Int("series.offset", series.Offset()),
		attribute.Int("fold", fold),
	)
	defer span.End()

	result, err := t.train(ctx, series)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Float64("score", result.Score),
		attribute.Int("samples.train", result.TrainSamples),
		attribute.Int("samples.test", result.TestSamples),
	)
	return result, nil
}

func (t *Trainer) train(ctx context.Context, series models.Series) (*models.TrainResult, error) {
	w := t.settings.Window
	pair, err := TrainTestSplit(series, t.settings.TrainTestRatio, w.InputLength)
	if err != nil {
		return nil, err
	}
	trainSet, err := BuildSampleSet(pair.Train, w, t.settings.sampleOptions())
	if err != nil {
		return nil, fmt.Errorf("train samples: %w", err)
	}
	testSet, err := BuildSampleSet(pair.Test, w, SampleOptions{})
	if err != nil {
		return nil, fmt.Errorf("test samples: %w", err)
	}
	if trainSet.Len() == 0 {
		return nil, utils.NewPreconditionErrorf("train region of %d rows yields no samples (needs at least %d)", pair.Train.Len(), w.Span())
	}
	if testSet.Len() == 0 {
		return nil, utils.NewPreconditionErrorf("test region of %d rows yields no samples (needs at least %d)", pair.Test.Len(), w.Span())
	}
	t.recorder.AddSamples(trainSet.Len() + testSet.Len())

	model, err := t.factory.GetModel(trainSet.X, trainSet.Y)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	summary, err := model.Fit(ctx, trainSet.X, trainSet.Y, t.settings.Fit)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	pred, err := model.Predict(ctx, testSet.X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if pred == nil {
		return nil, utils.NewConsistencyError("model returned no prediction", testSet.Y.Dims(), nil)
	}
	if !pred.SameShape(testSet.Y) {
		return nil, utils.NewConsistencyError("prediction shape differs from test targets", testSet.Y.Dims(), pred.Dims())
	}
	score, err := t.metric(testSet.Y, pred)
	if err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"offset":        series.Offset(),
		"length":        series.Len(),
		"train_samples": trainSet.Len(),
		"test_samples":  testSet.Len(),
		"metric":        t.settings.Metric,
		"score":         score,
	}).Debug("Trained model on series")

	return &models.TrainResult{
		Metric:       t.settings.Metric,
		Score:        score,
		TrainSamples: trainSet.Len(),
		TestSamples:  testSet.Len(),
		Layout:       trainSet.Layout,
		Summary:      summary,
	}, nil
}

// CrossValidate trains one model per fold and reports every fold score and
// their mean.
func (t *Trainer) CrossValidate(ctx context.Context, series models.Series, folds models.FoldConfig) (*models.CrossValidationResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.Tracer(), "Trainer.CrossValidate",
		attribute.Int("series.length", series.Len()),
		attribute.Int("fold.length", folds.FoldLength),
		attribute.Int("fold.stride", folds.FoldStride),
	)
	defer span.End()

	result, err := t.crossValidate(ctx, series, folds)
	telemetry.RecordError(span, err)
	t.recorder.ObserveRun(models.RunKindCrossValidate, time.Since(start), err)
	return result, err
}

func (t *Trainer) crossValidate(ctx context.Context, series models.Series, cfg models.FoldConfig) (*models.CrossValidationResult, error) {
	folds, err := SplitFolds(series, cfg)
	if err != nil {
		return nil, err
	}
	if len(folds) == 0 {
		return nil, utils.NewPreconditionErrorf("series of %d rows is shorter than fold_length %d", series.Len(), cfg.FoldLength)
	}

	results, err := t.trainFolds(ctx, folds)
	if err != nil {
		return nil, err
	}
	result := &models.CrossValidationResult{
		Metric:     t.settings.Metric,
		FoldScores: make([]float64, len(results)),
		Folds:      results,
	}
	for i := range results {
		result.FoldScores[i] = results[i].Score
	}
	result.Mean = stat.Mean(result.FoldScores, nil)

	t.logger.WithFields(logrus.Fields{
		"folds":  len(folds),
		"metric": t.settings.Metric,
		"scores": result.FoldScores,
		"mean":   result.Mean,
	}).Info("Cross-validation completed")
	return result, nil
}

// workers resolves the fold pool size for n folds.
func (t *Trainer) workers(ctx context.Context, n int) int {
	workers := t.foldWorkers
	if workers == 0 {
		if t.optimizer == nil {
			return 1
		}
		workers = t.optimizer.FoldWorkers(ctx, n)
	}
	if workers > n {
		workers = n
	}
	return workers
}

// trainFolds trains every fold and returns the results in fold order. The
// first failing fold cancels the others.
func (t *Trainer) trainFolds(ctx context.Context, folds []models.Series) ([]models.TrainResult, error) {
	results := make([]models.TrainResult, len(folds))
	workers := t.workers(ctx, len(folds))
	if workers <= 1 {
		for i, fold := range folds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := t.trainTraced(ctx, fold, i)
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", i, err)
			}
			results[i] = *res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fold := range folds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := t.trainTraced(gctx, fold, i)
			if err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
