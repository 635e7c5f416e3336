package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Run kinds recorded in RunRecord.Kind and the metrics labels.
const (
	RunKindTrain         = "train"
	RunKindCrossValidate = "cross_validate"
	RunKindBacktest      = "backtest"
)

// TrainTestPair is a chronological train/test split of one series. Test
// starts input_length rows before the end of Train so the first test sample
// has a full input window.
type TrainTestPair struct {
	Train Series
	Test  Series
}

// FitConfig carries the training knobs handed to a model.
type FitConfig struct {
	Epochs          int     `json:"epochs" mapstructure:"epochs"`
	BatchSize       int     `json:"batch_size" mapstructure:"batch_size"`
	ValidationSplit float64 `json:"validation_split" mapstructure:"validation_split"`
	Patience        int     `json:"patience" mapstructure:"patience"`
	Verbose         bool    `json:"verbose" mapstructure:"verbose"`
}

// DefaultFitConfig mirrors the settings the reference models were tuned with.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:          50,
		BatchSize:       16,
		ValidationSplit: 0.3,
		Patience:        2,
	}
}

// TrainingSummary reports what a Fit call did.
type TrainingSummary struct {
	Samples          int     `json:"samples"`
	Epochs           int     `json:"epochs"`
	Loss             float64 `json:"loss"`
	TrainableWeights int     `json:"trainable_weights"`
}

// TrainResult is the outcome of one train route.
type TrainResult struct {
	Metric       string           `json:"metric"`
	Score        float64          `json:"score"`
	TrainSamples int              `json:"train_samples"`
	TestSamples  int              `json:"test_samples"`
	Layout       TargetLayout     `json:"layout"`
	Summary      *TrainingSummary `json:"summary,omitempty"`
}

// CrossValidationResult holds one score per fold.
type CrossValidationResult struct {
	Metric     string        `json:"metric"`
	FoldScores []float64     `json:"fold_scores"`
	Mean       float64       `json:"mean"`
	Folds      []TrainResult `json:"folds"`
}

// BacktestResult holds the historical forecasts of a walk-forward run.
// Predictions and Truth are canonical (steps, output_length, targets)
// tensors; Cutoffs[k] is the timestep at which step k was forecast.
type BacktestResult struct {
	ID          string        `json:"id"`
	Metric      string        `json:"metric"`
	Score       float64       `json:"score"`
	Steps       int           `json:"steps"`
	Retrains    int           `json:"retrains"`
	Cutoffs     []int         `json:"cutoffs"`
	Predictions *Tensor       `json:"predictions,omitempty"`
	Truth       *Tensor       `json:"truth,omitempty"`
	Layout      TargetLayout  `json:"layout"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// RunRecord is the persisted summary of a train, cross-validation or
// backtest run.
type RunRecord struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Metric    string          `json:"metric" db:"metric"`
	Score     decimal.Decimal `json:"score" db:"score"`
	Params    json.RawMessage `json:"params" db:"params"`
	Summary   json.RawMessage `json:"summary" db:"summary"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ScoreDecimal rounds a metric value for storage and API responses.
func ScoreDecimal(score float64) decimal.Decimal {
	return decimal.NewFromFloat(score).Round(6)
}
