// Package evaluation implements the scoring functions used to compare
// forecasts with ground truth.
package evaluation

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
	"github.com/irfndi/tscv-go/pkg/interfaces"
)

// mapeEpsilon bounds the denominator of MAPE away from zero.
const mapeEpsilon = 1e-7

var registry = map[string]interfaces.Metric{
	"mae":  MAE,
	"mape": MAPE,
	"mse":  MSE,
	"rmse": RMSE,
}

// Lookup resolves a metric by its configured name.
func Lookup(name string) (interfaces.Metric, error) {
	metric, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, utils.NewValidationErrorf("unknown metric %q, expected one of %s", name, strings.Join(Names(), ", "))
	}
	return metric, nil
}

// Names returns the registered metric names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// residuals returns yPred - yTrue over the flat storage of both tensors.
func residuals(yTrue, yPred *models.Tensor) ([]float64, error) {
	if yTrue == nil || yPred == nil {
		return nil, utils.NewPreconditionErrorf("metric requires both truth and prediction")
	}
	if yTrue.Shape != yPred.Shape {
		return nil, utils.NewConsistencyError("truth and prediction shapes differ", yTrue.Dims(), yPred.Dims())
	}
	if len(yTrue.Data) == 0 {
		return nil, utils.NewPreconditionErrorf("metric requires at least one value")
	}
	diff := make([]float64, len(yTrue.Data))
	floats.SubTo(diff, yPred.Data, yTrue.Data)
	return diff, nil
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred *models.Tensor) (float64, error) {
	diff, err := residuals(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	for i, d := range diff {
		diff[i] = math.Abs(d)
	}
	return stat.Mean(diff, nil), nil
}

// MAPE is the mean absolute percentage error, in percent.
func MAPE(yTrue, yPred *models.Tensor) (float64, error) {
	diff, err := residuals(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	for i, d := range diff {
		diff[i] = math.Abs(d) / math.Max(math.Abs(yTrue.Data[i]), mapeEpsilon)
	}
	return 100 * stat.Mean(diff, nil), nil
}

// MSE is the mean squared error.
func MSE(yTrue, yPred *models.Tensor) (float64, error) {
	diff, err := residuals(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred *models.Tensor) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}
