package services

import (
	"math/rand"

	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/evaluation"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// RunSettings are the parameters shared by the train, cross-validation and
// backtest routes.
type RunSettings struct {
	Window         models.WindowSpec `json:"window"`
	TrainTestRatio float64           `json:"train_test_ratio"`
	Shuffle        bool              `json:"shuffle"`
	Seed           int64             `json:"seed"`
	Metric         string            `json:"metric"`
	Fit            models.FitConfig  `json:"fit"`
}

// RunSettingsFromConfig builds RunSettings from the loaded configuration.
func RunSettingsFromConfig(cfg *config.Config) (RunSettings, error) {
	window, err := cfg.WindowSpec()
	if err != nil {
		return RunSettings{}, err
	}
	settings := RunSettings{
		Window:         window,
		TrainTestRatio: cfg.Train.TrainTestRatio,
		Shuffle:        cfg.Train.Shuffle,
		Seed:           cfg.Train.Seed,
		Metric:         cfg.Train.Metric,
		Fit:            cfg.Fit,
	}
	return settings, settings.Validate()
}

// Validate checks the window, the split ratio and the metric name.
func (s RunSettings) Validate() error {
	if err := s.Window.Validate(); err != nil {
		return err
	}
	if s.TrainTestRatio <= 0 || s.TrainTestRatio >= 1 {
		return utils.NewValidationErrorf("train_test_ratio must be in (0, 1), got %g", s.TrainTestRatio)
	}
	_, err := evaluation.Lookup(s.Metric)
	return err
}

// sampleOptions returns fresh options for a training set. Each call reseeds
// so repeated runs over the same data are reproducible.
func (s RunSettings) sampleOptions() SampleOptions {
	return SampleOptions{
		Shuffle: s.Shuffle,
		Rand:    rand.New(rand.NewSource(s.Seed)),
	}
}
