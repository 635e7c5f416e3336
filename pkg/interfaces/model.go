package interfaces

import (
	"context"

	"github.com/irfndi/tscv-go/internal/models"
)

// FitConfig carries the training knobs handed to Model.Fit.
type FitConfig = models.FitConfig

// TrainingSummary reports what a Model.Fit call did.
type TrainingSummary = models.TrainingSummary

// Model is the forecasting capability the windowing core drives. X is
// (samples, input_length, channels); y and predictions are canonical
// (samples, output_length, targets) tensors.
type Model interface {
	// Fit trains the model on (X, y). Calling Fit again on the same model
	// continues from its current state.
	//
	// Parameters:
	//   ctx: Context for cancellation.
	//   X: Input windows.
	//   y: Target windows aligned with X.
	//   cfg: Training knobs.
	//
	// Returns:
	//   *TrainingSummary: What the fit did.
	//   error: Error if training fails.
	Fit(ctx context.Context, X, y *models.Tensor, cfg FitConfig) (*TrainingSummary, error)

	// Predict forecasts one output window per input window.
	//
	// Parameters:
	//   ctx: Context for cancellation.
	//   X: Input windows.
	//
	// Returns:
	//   *models.Tensor: Forecasts shaped (samples, output_length, targets).
	//   error: Error if prediction fails.
	Predict(ctx context.Context, X *models.Tensor) (*models.Tensor, error)
}

// ModelFactory builds a fresh, untrained model sized for the given data.
type ModelFactory interface {
	GetModel(X, y *models.Tensor) (Model, error)
}

// ModelFactoryFunc adapts a plain function to ModelFactory.
type ModelFactoryFunc func(X, y *models.Tensor) (Model, error)

// GetModel calls f(X, y).
func (f ModelFactoryFunc) GetModel(X, y *models.Tensor) (Model, error) {
	return f(X, y)
}

// Metric scores predictions against ground truth. Lower is better.
type Metric func(yTrue, yPred *models.Tensor) (float64, error)
