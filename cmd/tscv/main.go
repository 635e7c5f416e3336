package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the tscv command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tscv",
		Short: "Time-series cross-validation and backtesting",
		Long: `tscv turns a multivariate time series into supervised windows and
evaluates forecasting models on it without look-ahead.

Available commands:
  train           - Fit on the leading share of the series and score the rest
  cross-validate  - Repeat train over overlapping folds
  backtest        - Walk forward through the series, refitting as it goes
  generate        - Write a dummy dataset as CSV`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newTrainCmd())
	root.AddCommand(newCrossValidateCmd())
	root.AddCommand(newBacktestCmd())
	root.AddCommand(newGenerateCmd())
	return root
}
