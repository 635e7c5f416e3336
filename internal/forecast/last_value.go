// Package forecast provides the reference models driven by the training,
// cross-validation and backtest routes.
package forecast

import (
	"context"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
	"github.com/irfndi/tscv-go/pkg/interfaces"
)

// LastValueModel repeats the last observed value of every target channel
// across the whole output window. It has no trainable weights.
type LastValueModel struct {
	targetIdx    []int
	outputLength int
}

// NewLastValueModel returns a baseline for the given target channels and
// output length.
func NewLastValueModel(targetIdx []int, outputLength int) (*LastValueModel, error) {
	if len(targetIdx) == 0 {
		return nil, utils.NewValidationError("last value model needs at least one target channel")
	}
	if outputLength <= 0 {
		return nil, utils.NewValidationErrorf("output_length must be positive, got %d", outputLength)
	}
	return &LastValueModel{
		targetIdx:    append([]int(nil), targetIdx...),
		outputLength: outputLength,
	}, nil
}

// Fit checks the shapes and returns; there is nothing to learn.
func (m *LastValueModel) Fit(ctx context.Context, X, y *models.Tensor, cfg interfaces.FitConfig) (*interfaces.TrainingSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.checkInput(X); err != nil {
		return nil, err
	}
	if y != nil && (y.Shape[1] != m.outputLength || y.Shape[2] != len(m.targetIdx)) {
		return nil, utils.NewConsistencyError("training targets do not match the model output",
			[]int{X.Len(), m.outputLength, len(m.targetIdx)}, y.Dims())
	}
	return &interfaces.TrainingSummary{Samples: X.Len()}, nil
}

// Predict emits (samples, output_length, targets).
func (m *LastValueModel) Predict(ctx context.Context, X *models.Tensor) (*models.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.checkInput(X); err != nil {
		return nil, err
	}
	nt := len(m.targetIdx)
	last := X.Shape[1] - 1
	out := models.NewTensor(X.Len(), m.outputLength, nt)
	for i := 0; i < X.Len(); i++ {
		for step := 0; step < m.outputLength; step++ {
			for k, ch := range m.targetIdx {
				out.Set(i, step, k, X.At(i, last, ch))
			}
		}
	}
	return out, nil
}

func (m *LastValueModel) checkInput(X *models.Tensor) error {
	if X == nil {
		return utils.NewPreconditionErrorf("input tensor is nil")
	}
	if X.Shape[1] == 0 {
		return utils.NewPreconditionErrorf("input windows are empty")
	}
	for _, ch := range m.targetIdx {
		if ch >= X.Shape[2] {
			return utils.NewValidationErrorf("target channel %d not present in input with %d channels", ch, X.Shape[2])
		}
	}
	return nil
}
