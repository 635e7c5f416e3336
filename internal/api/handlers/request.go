package handlers

import (
	"math"

	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/services"
	"github.com/irfndi/tscv-go/internal/utils"
)

// EvaluationRequest is the body accepted by every evaluation route. Data is
// row-major (timesteps, channels); null cells are missing values. Omitted
// parameters fall back to the server configuration.
type EvaluationRequest struct {
	Data            [][]*float64 `json:"data" binding:"required"`
	TargetColumnIdx []int        `json:"target_column_idx,omitempty"`

	InputLength    *int     `json:"input_length,omitempty"`
	OutputLength   *int     `json:"output_length,omitempty"`
	Horizon        *int     `json:"horizon,omitempty"`
	Stride         *int     `json:"stride,omitempty"`
	TrainTestRatio *float64 `json:"train_test_ratio,omitempty"`
	Shuffle        *bool    `json:"shuffle,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Metric         string   `json:"metric,omitempty"`
	Model          string   `json:"model,omitempty"`
	Ridge          *float64 `json:"ridge,omitempty"`

	// Clean forward-fills missing values before windowing.
	Clean    bool  `json:"clean,omitempty"`
	Features *bool `json:"features,omitempty"`

	FoldLength *int `json:"fold_length,omitempty"`
	FoldStride *int `json:"fold_stride,omitempty"`

	BacktestStride *int     `json:"backtest_stride,omitempty"`
	StartRatio     *float64 `json:"start_ratio,omitempty"`
	Retrain        *bool    `json:"retrain,omitempty"`
	RetrainEvery   *int     `json:"retrain_every,omitempty"`
}

// resolvedRequest is an EvaluationRequest merged with the configuration.
type resolvedRequest struct {
	Series   models.Series
	Settings services.RunSettings
	Model    string
	Ridge    float64
	Clean    bool
	Features bool
	Folds    models.FoldConfig
	Backtest models.BacktestConfig
}

// cacheParams is the part of a resolved request that, together with the
// prepared series, determines a result.
type cacheParams struct {
	Settings services.RunSettings  `json:"settings"`
	Model    string                `json:"model"`
	Ridge    float64               `json:"ridge"`
	Folds    models.FoldConfig     `json:"folds"`
	Backtest models.BacktestConfig `json:"backtest"`
}

func (r resolvedRequest) cacheParams(kind string) cacheParams {
	params := cacheParams{Settings: r.Settings, Model: r.Model, Ridge: r.Ridge}
	switch kind {
	case models.RunKindCrossValidate:
		params.Folds = r.Folds
	case models.RunKindBacktest:
		params.Backtest = r.Backtest
	}
	return params
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// resolve validates the request against cfg and fills in defaults.
func (req *EvaluationRequest) resolve(cfg *config.Config) (resolvedRequest, error) {
	if len(req.Data) == 0 {
		return resolvedRequest{}, utils.NewValidationError("data must contain at least one row")
	}
	if cfg.Server.MaxSeriesLength > 0 && len(req.Data) > cfg.Server.MaxSeriesLength {
		return resolvedRequest{}, utils.NewValidationErrorf("data has %d rows, the limit is %d",
			len(req.Data), cfg.Server.MaxSeriesLength)
	}

	targets := req.TargetColumnIdx
	if len(targets) == 0 {
		targets = cfg.Data.TargetColumnIdx
	}
	series, err := models.NewSeries(denseRows(req.Data), targets)
	if err != nil {
		return resolvedRequest{}, err
	}

	window, err := models.NewWindowSpec(
		intOr(req.InputLength, cfg.Train.InputLength),
		intOr(req.OutputLength, cfg.Train.OutputLength),
		intOr(req.Horizon, cfg.Train.Horizon),
		intOr(req.Stride, cfg.Train.Stride),
	)
	if err != nil {
		return resolvedRequest{}, err
	}

	metric := req.Metric
	if metric == "" {
		metric = cfg.Train.Metric
	}
	settings := services.RunSettings{
		Window:         window,
		TrainTestRatio: floatOr(req.TrainTestRatio, cfg.Train.TrainTestRatio),
		Shuffle:        boolOr(req.Shuffle, cfg.Train.Shuffle),
		Seed:           cfg.Train.Seed,
		Metric:         metric,
		Fit:            cfg.Fit,
	}
	if req.Seed != nil {
		settings.Seed = *req.Seed
	}
	if err := settings.Validate(); err != nil {
		return resolvedRequest{}, err
	}

	folds, err := models.NewFoldConfig(
		intOr(req.FoldLength, cfg.CrossVal.FoldLength),
		intOr(req.FoldStride, cfg.CrossVal.FoldStride),
	)
	if err != nil {
		return resolvedRequest{}, err
	}
	backtest, err := models.NewBacktestConfig(
		intOr(req.BacktestStride, cfg.Backtest.Stride),
		floatOr(req.StartRatio, cfg.Backtest.StartRatio),
		boolOr(req.Retrain, cfg.Backtest.Retrain),
		intOr(req.RetrainEvery, cfg.Backtest.RetrainEvery),
	)
	if err != nil {
		return resolvedRequest{}, err
	}

	model := req.Model
	if model == "" {
		model = cfg.Train.Model
	}
	return resolvedRequest{
		Series:   series,
		Settings: settings,
		Model:    model,
		Ridge:    floatOr(req.Ridge, cfg.Train.Ridge),
		Clean:    req.Clean,
		Features: boolOr(req.Features, cfg.Features.Enabled),
		Folds:    folds,
		Backtest: backtest,
	}, nil
}

// denseRows turns null cells into NaN.
func denseRows(data [][]*float64) [][]float64 {
	rows := make([][]float64, len(data))
	for i, row := range data {
		rows[i] = make([]float64, len(row))
		for j, cell := range row {
			if cell == nil {
				rows[i][j] = math.NaN()
				continue
			}
			rows[i][j] = *cell
		}
	}
	return rows
}
