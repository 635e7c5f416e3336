package models

import (
	"github.com/irfndi/tscv-go/internal/utils"
)

// WindowSpec describes how supervised samples are cut from a series.
//
// Horizon is the gap between the end of the input window and the start of
// the output window: with Horizon 1 the output starts right after the input.
type WindowSpec struct {
	InputLength  int `json:"input_length"`
	OutputLength int `json:"output_length"`
	Horizon      int `json:"horizon"`
	Stride       int `json:"stride"`
}

// NewWindowSpec validates and returns a WindowSpec.
func NewWindowSpec(inputLength, outputLength, horizon, stride int) (WindowSpec, error) {
	spec := WindowSpec{
		InputLength:  inputLength,
		OutputLength: outputLength,
		Horizon:      horizon,
		Stride:       stride,
	}
	if err := spec.Validate(); err != nil {
		return WindowSpec{}, err
	}
	return spec, nil
}

// Validate checks that every field is positive.
func (w WindowSpec) Validate() error {
	switch {
	case w.InputLength <= 0:
		return utils.NewValidationErrorf("input_length must be positive, got %d", w.InputLength)
	case w.OutputLength <= 0:
		return utils.NewValidationErrorf("output_length must be positive, got %d", w.OutputLength)
	case w.Horizon <= 0:
		return utils.NewValidationErrorf("horizon must be positive, got %d", w.Horizon)
	case w.Stride <= 0:
		return utils.NewValidationErrorf("stride must be positive, got %d", w.Stride)
	}
	return nil
}

// OutputStart is the row offset of the first output row relative to the
// first input row.
func (w WindowSpec) OutputStart() int {
	return w.InputLength + w.Horizon - 1
}

// Span is the number of rows one sample covers, input through output.
func (w WindowSpec) Span() int {
	return w.OutputStart() + w.OutputLength
}

// ExpectedSampleCount returns the number of samples a sliding walk over a
// series of length seriesLen produces:
//
//	ceil((L - (in-1) - (out-1) - horizon) / stride), or 0 when not positive.
func (w WindowSpec) ExpectedSampleCount(seriesLen int) int {
	room := seriesLen - (w.InputLength - 1) - (w.OutputLength - 1) - w.Horizon
	if room <= 0 || w.Stride <= 0 {
		return 0
	}
	return (room + w.Stride - 1) / w.Stride
}

// FoldConfig controls how a series is cut into cross-validation folds.
type FoldConfig struct {
	FoldLength int `json:"fold_length"`
	FoldStride int `json:"fold_stride"`
}

// NewFoldConfig validates and returns a FoldConfig.
func NewFoldConfig(foldLength, foldStride int) (FoldConfig, error) {
	cfg := FoldConfig{FoldLength: foldLength, FoldStride: foldStride}
	if err := cfg.Validate(); err != nil {
		return FoldConfig{}, err
	}
	return cfg, nil
}

// Validate checks that fold length and stride are positive.
func (f FoldConfig) Validate() error {
	if f.FoldLength <= 0 {
		return utils.NewValidationErrorf("fold_length must be positive, got %d", f.FoldLength)
	}
	if f.FoldStride <= 0 {
		return utils.NewValidationErrorf("fold_stride must be positive, got %d", f.FoldStride)
	}
	return nil
}

// BacktestConfig controls the walk-forward loop.
//
// RetrainEvery is counted in walk-forward iterations, not timesteps: with
// Stride 5 and RetrainEvery 2 the model is refit every 10 timesteps.
type BacktestConfig struct {
	Stride       int     `json:"stride"`
	StartRatio   float64 `json:"start_ratio"`
	Retrain      bool    `json:"retrain"`
	RetrainEvery int     `json:"retrain_every"`
}

// NewBacktestConfig validates and returns a BacktestConfig.
func NewBacktestConfig(stride int, startRatio float64, retrain bool, retrainEvery int) (BacktestConfig, error) {
	cfg := BacktestConfig{
		Stride:       stride,
		StartRatio:   startRatio,
		Retrain:      retrain,
		RetrainEvery: retrainEvery,
	}
	if err := cfg.Validate(); err != nil {
		return BacktestConfig{}, err
	}
	return cfg, nil
}

// Validate checks the backtest parameters.
func (b BacktestConfig) Validate() error {
	if b.Stride <= 0 {
		return utils.NewValidationErrorf("backtest stride must be positive, got %d", b.Stride)
	}
	if b.StartRatio <= 0 || b.StartRatio >= 1 {
		return utils.NewValidationErrorf("start_ratio must be in (0, 1), got %g", b.StartRatio)
	}
	if b.Retrain && b.RetrainEvery <= 0 {
		return utils.NewValidationErrorf("retrain_every must be positive when retrain is enabled, got %d", b.RetrainEvery)
	}
	return nil
}
