package services

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// FeatureAugmenter appends trailing technical indicators of one source
// channel as extra covariate channels. Every indicator value at row t only
// depends on rows <= t, so augmenting before windowing leaks nothing.
type FeatureAugmenter struct {
	config config.FeaturesConfig
	logger *logrus.Logger
}

// NewFeatureAugmenter validates the indicator periods.
func NewFeatureAugmenter(cfg config.FeaturesConfig, logger *logrus.Logger) (*FeatureAugmenter, error) {
	for _, p := range cfg.SMAPeriods {
		if p <= 0 {
			return nil, utils.NewValidationErrorf("sma period must be positive, got %d", p)
		}
	}
	for _, p := range cfg.EMAPeriods {
		if p <= 0 {
			return nil, utils.NewValidationErrorf("ema period must be positive, got %d", p)
		}
	}
	if cfg.RSIPeriod < 0 {
		return nil, utils.NewValidationErrorf("rsi period must not be negative, got %d", cfg.RSIPeriod)
	}
	if cfg.SourceChannel < 0 {
		return nil, utils.NewValidationErrorf("source channel must not be negative, got %d", cfg.SourceChannel)
	}
	return &FeatureAugmenter{config: cfg, logger: logger}, nil
}

// ChannelNames lists the appended channels in order.
func (fa *FeatureAugmenter) ChannelNames() []string {
	names := make([]string, 0, len(fa.config.SMAPeriods)+len(fa.config.EMAPeriods)+1)
	for _, p := range fa.config.SMAPeriods {
		names = append(names, fmt.Sprintf("sma_%d", p))
	}
	for _, p := range fa.config.EMAPeriods {
		names = append(names, fmt.Sprintf("ema_%d", p))
	}
	if fa.config.RSIPeriod > 0 {
		names = append(names, fmt.Sprintf("rsi_%d", fa.config.RSIPeriod))
	}
	return names
}

// Augment returns a new series with the indicator channels appended after
// the input channels. Leading rows where any indicator is still warming up
// are dropped and the offset advances accordingly. Target indexes are
// unchanged.
func (fa *FeatureAugmenter) Augment(series models.Series) (models.Series, error) {
	if len(fa.ChannelNames()) == 0 {
		return series, nil
	}
	if fa.config.SourceChannel >= series.Channels() {
		return models.Series{}, utils.NewValidationErrorf("source channel %d not present in series with %d channels",
			fa.config.SourceChannel, series.Channels())
	}
	if err := series.CheckComplete(); err != nil {
		return models.Series{}, err
	}

	source := series.Column(fa.config.SourceChannel)
	var extra [][]float64
	for _, p := range fa.config.SMAPeriods {
		extra = append(extra, computeIndicator(trend.NewSmaWithPeriod[float64](p).Compute, source))
	}
	for _, p := range fa.config.EMAPeriods {
		extra = append(extra, computeIndicator(trend.NewEmaWithPeriod[float64](p).Compute, source))
	}
	if fa.config.RSIPeriod > 0 {
		extra = append(extra, computeIndicator(momentum.NewRsiWithPeriod[float64](fa.config.RSIPeriod).Compute, source))
	}

	// Indicator outputs are aligned to the end of the input; the shortest
	// one decides how many leading rows are dropped.
	kept := series.Len()
	for _, values := range extra {
		if len(values) < kept {
			kept = len(values)
		}
	}
	if kept == 0 {
		return models.Series{}, utils.NewPreconditionErrorf(
			"series of %d rows is too short to compute the configured indicators", series.Len())
	}
	warmup := series.Len() - kept

	channels := series.Channels() + len(extra)
	data := mat.NewDense(kept, channels, nil)
	for r := 0; r < kept; r++ {
		row := data.RawRowView(r)
		copy(row, series.RawRow(warmup+r))
		for i, values := range extra {
			row[series.Channels()+i] = values[len(values)-kept+r]
		}
	}

	out, err := models.NewSeriesFromDense(data, series.TargetIdx())
	if err != nil {
		return models.Series{}, err
	}
	out = out.WithOffset(series.Offset() + warmup)

	fa.logger.WithFields(logrus.Fields{
		"source_channel": fa.config.SourceChannel,
		"indicators":     fa.ChannelNames(),
		"warmup_rows":    warmup,
		"rows":           kept,
	}).Debug("Augmented series with indicator channels")
	return out, nil
}

func computeIndicator(compute func(<-chan float64) <-chan float64, values []float64) []float64 {
	return helper.ChanToSlice(compute(helper.SliceToChan(values)))
}
