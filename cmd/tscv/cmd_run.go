package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/dataprep"
	"github.com/irfndi/tscv-go/internal/forecast"
	"github.com/irfndi/tscv-go/internal/logging"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/services"
)

// runOptions are the flags shared by the evaluation commands. Unset flags
// keep the value from config.yaml or the environment.
type runOptions struct {
	dataPath     string
	header       bool
	targets      []int
	inputLength  int
	outputLength int
	horizon      int
	stride       int
	ratio        float64
	seed         int64
	shuffle      bool
	model        string
	metric       string
	ridge        float64
	clean        bool
	features     bool
	format       string
}

// evalEnv is everything an evaluation command needs once flags are applied.
type evalEnv struct {
	cfg      *config.Config
	logger   *logrus.Logger
	series   models.Series
	settings services.RunSettings
	factory  *forecast.Factory
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	flags := cmd.Flags()
	flags.StringVar(&o.dataPath, "data", "", "CSV file with one row per timestep (default data.csv_path)")
	flags.BoolVar(&o.header, "header", true, "First CSV row holds channel names")
	flags.IntSliceVar(&o.targets, "targets", nil, "Target column indexes (default data.target_column_idx)")
	flags.IntVar(&o.inputLength, "input-length", 0, "Input window length")
	flags.IntVar(&o.outputLength, "output-length", 0, "Output window length")
	flags.IntVar(&o.horizon, "horizon", 0, "Steps from the last input row to the first output row")
	flags.IntVar(&o.stride, "stride", 0, "Step between consecutive windows")
	flags.Float64Var(&o.ratio, "ratio", 0, "Train share of the series, in (0, 1)")
	flags.Int64Var(&o.seed, "seed", 0, "Seed for the training-set shuffle")
	flags.BoolVar(&o.shuffle, "shuffle", true, "Shuffle training samples")
	flags.StringVar(&o.model, "model", "", "Model: last_value or linear")
	flags.StringVar(&o.metric, "metric", "", "Metric: mae, mape, mse or rmse")
	flags.Float64Var(&o.ridge, "ridge", 0, "Ridge penalty of the linear model")
	flags.BoolVar(&o.clean, "clean", false, "Forward-fill missing values before windowing")
	flags.BoolVar(&o.features, "features", false, "Append the configured indicator channels")
	flags.StringVar(&o.format, "format", formatTable, "Output format: table or json")
}

// apply copies every flag the user set onto cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("data") {
		cfg.Data.CSVPath = o.dataPath
	}
	if changed("header") {
		cfg.Data.HasHeader = o.header
	}
	if changed("targets") {
		cfg.Data.TargetColumnIdx = o.targets
	}
	if changed("input-length") {
		cfg.Train.InputLength = o.inputLength
	}
	if changed("output-length") {
		cfg.Train.OutputLength = o.outputLength
	}
	if changed("horizon") {
		cfg.Train.Horizon = o.horizon
	}
	if changed("stride") {
		cfg.Train.Stride = o.stride
	}
	if changed("ratio") {
		cfg.Train.TrainTestRatio = o.ratio
	}
	if changed("seed") {
		cfg.Train.Seed = o.seed
	}
	if changed("shuffle") {
		cfg.Train.Shuffle = o.shuffle
	}
	if changed("model") {
		cfg.Train.Model = o.model
	}
	if changed("metric") {
		cfg.Train.Metric = o.metric
	}
	if changed("ridge") {
		cfg.Train.Ridge = o.ridge
	}
	if changed("features") {
		cfg.Features.Enabled = o.features
	}
}

// prepare loads the configuration and the dataset and builds the model
// factory. extra applies command-specific flags before validation.
func (o *runOptions) prepare(cmd *cobra.Command, extra func(*config.Config)) (*evalEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	o.apply(cmd, cfg)
	if extra != nil {
		extra(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	logger.SetOutput(cmd.ErrOrStderr())

	series, err := dataprep.LoadCSVFile(cfg.Data.CSVPath, dataprep.LoadOptions{
		HasHeader: cfg.Data.HasHeader,
		TargetIdx: cfg.Data.TargetColumnIdx,
	})
	if err != nil {
		return nil, err
	}
	if o.clean {
		cleaned, report, err := dataprep.Clean(series)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"dropped_rows": report.DroppedRows,
			"filled_cells": report.FilledCells,
		}).Info("Cleaned series")
		series = cleaned
	}
	if cfg.Features.Enabled {
		augmenter, err := services.NewFeatureAugmenter(cfg.Features, logger)
		if err != nil {
			return nil, err
		}
		if series, err = augmenter.Augment(series); err != nil {
			return nil, err
		}
	}

	settings, err := services.RunSettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := forecast.NewFactory(cfg.Train.Model, series.TargetIdx(), cfg.Train.Ridge)
	if err != nil {
		return nil, err
	}
	return &evalEnv{cfg: cfg, logger: logger, series: series, settings: settings, factory: factory}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so long backtests stop
// between iterations.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newTrainCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train on the leading share of a series and score the rest",
		Long: `Split the series chronologically, fit a fresh model on the train
region and score its forecasts on the test region.

Examples:
  tscv train --data data/raw/data.csv
  tscv train --data prices.csv --targets 0 --model linear --ratio 0.8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := o.prepare(cmd, nil)
			if err != nil {
				return err
			}
			trainer, err := services.NewTrainer(env.settings, env.factory, env.logger, nil)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			result, err := trainer.Train(ctx, env.series)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), o.format, models.RunKindTrain, result)
		},
	}
	addRunFlags(cmd, o)
	return cmd
}

func newCrossValidateCmd() *cobra.Command {
	o := &runOptions{}
	var foldLength, foldStride, workers int
	cmd := &cobra.Command{
		Use:   "cross-validate",
		Short: "Train and score every fold of a series",
		Long: `Cut the series into overlapping folds and run train on each one.

Examples:
  tscv cross-validate --data data/raw/data.csv
  tscv cross-validate --data prices.csv --fold-length 300 --fold-stride 150
  tscv cross-validate --data prices.csv --workers 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := o.prepare(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("fold-length") {
					cfg.CrossVal.FoldLength = foldLength
				}
				if cmd.Flags().Changed("fold-stride") {
					cfg.CrossVal.FoldStride = foldStride
				}
				if cmd.Flags().Changed("workers") {
					cfg.CrossVal.Workers = workers
				}
			})
			if err != nil {
				return err
			}
			folds, err := env.cfg.FoldConfig()
			if err != nil {
				return err
			}
			trainer, err := services.NewTrainer(env.settings, env.factory, env.logger, nil)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			optimizer := services.NewResourceOptimizer(services.ResourceOptimizerConfig{}, env.logger)
			trainer.WithFoldWorkers(env.cfg.CrossVal.Workers, optimizer)
			result, err := trainer.CrossValidate(ctx, env.series, folds)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), o.format, models.RunKindCrossValidate, result)
		},
	}
	addRunFlags(cmd, o)
	cmd.Flags().IntVar(&foldLength, "fold-length", 0, "Timesteps per fold")
	cmd.Flags().IntVar(&foldStride, "fold-stride", 0, "Step between fold starts")
	cmd.Flags().IntVar(&workers, "workers", 1, "Folds trained at once, 0 sizes the pool from host load")
	return cmd
}

func newBacktestCmd() *cobra.Command {
	o := &runOptions{}
	var (
		stride       int
		startRatio   float64
		retrain      bool
		retrainEvery int
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Walk forward through a series producing historical forecasts",
		Long: `Fit on the first start-ratio share of the series, then forecast at
every cutoff, optionally refitting on all data before the cutoff.

Examples:
  tscv backtest --data data/raw/data.csv
  tscv backtest --data prices.csv --start-ratio 0.8 --retrain-every 5
  tscv backtest --data prices.csv --retrain=false --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := o.prepare(cmd, func(cfg *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("backtest-stride") {
					cfg.Backtest.Stride = stride
				}
				if flags.Changed("start-ratio") {
					cfg.Backtest.StartRatio = startRatio
				}
				if flags.Changed("retrain") {
					cfg.Backtest.Retrain = retrain
				}
				if flags.Changed("retrain-every") {
					cfg.Backtest.RetrainEvery = retrainEvery
				}
			})
			if err != nil {
				return err
			}
			btConfig, err := env.cfg.BacktestConfig()
			if err != nil {
				return err
			}
			backtester, err := services.NewBacktester(env.settings, env.factory, env.logger, nil)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			result, err := backtester.Run(ctx, env.series, btConfig)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), o.format, models.RunKindBacktest, result)
		},
	}
	addRunFlags(cmd, o)
	cmd.Flags().IntVar(&stride, "backtest-stride", 0, "Timesteps between cutoffs")
	cmd.Flags().Float64Var(&startRatio, "start-ratio", 0, "Share of the series used for the initial fit")
	cmd.Flags().BoolVar(&retrain, "retrain", true, "Refit the model while walking forward")
	cmd.Flags().IntVar(&retrainEvery, "retrain-every", 0, "Iterations between refits")
	return cmd
}
