package forecast

import (
	"strings"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
	"github.com/irfndi/tscv-go/pkg/interfaces"
)

// Model kinds accepted by Factory.
const (
	KindLastValue = "last_value"
	KindLinear    = "linear"
)

// Factory builds fresh models sized from the training tensors.
type Factory struct {
	Kind      string
	TargetIdx []int
	Ridge     float64
}

// NewFactory validates the kind and returns a Factory.
func NewFactory(kind string, targetIdx []int, ridge float64) (*Factory, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case KindLastValue, KindLinear:
	default:
		return nil, utils.NewValidationErrorf("unknown model %q, expected %s or %s", kind, KindLastValue, KindLinear)
	}
	if len(targetIdx) == 0 {
		return nil, utils.NewValidationError("model factory needs at least one target channel")
	}
	return &Factory{Kind: kind, TargetIdx: append([]int(nil), targetIdx...), Ridge: ridge}, nil
}

// GetModel returns an untrained model for X (samples, input_length,
// channels) and y (samples, output_length, targets).
func (f *Factory) GetModel(X, y *models.Tensor) (interfaces.Model, error) {
	if X == nil || y == nil {
		return nil, utils.NewPreconditionErrorf("model factory needs both X and y")
	}
	if y.Shape[2] != len(f.TargetIdx) {
		return nil, utils.NewConsistencyError("target count does not match the configured target channels",
			[]int{y.Shape[0], y.Shape[1], len(f.TargetIdx)}, y.Dims())
	}
	if f.Kind == KindLinear {
		model, err := NewLinearModel(X.Shape[1], X.Shape[2], y.Shape[1], y.Shape[2], f.Ridge)
		if err != nil {
			return nil, err
		}
		return model, nil
	}
	model, err := NewLastValueModel(f.TargetIdx, y.Shape[1])
	if err != nil {
		return nil, err
	}
	return model, nil
}
