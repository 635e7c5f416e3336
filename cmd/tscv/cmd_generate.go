package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/irfndi/tscv-go/internal/dataprep"
)

func newGenerateCmd() *cobra.Command {
	var (
		kind       string
		length     int
		covariates int
		targets    []int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a dummy dataset as CSV",
		Long: `Generate one of the dummy datasets used to sanity-check models.

  monotonic       - every channel of row t equals t
  zeros_and_ones  - target channels are 1, covariates are 0

Examples:
  tscv generate --kind monotonic --output data/raw/data.csv
  tscv generate --kind zeros_and_ones --length 200 --targets 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			shape := dataprep.DummyShape{Length: length, NCovariates: covariates, TargetIdx: targets}
			series, err := dataprep.Generate(kind, shape)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return dataprep.WriteCSV(w, series, channelNames(series.Channels(), targets))
		},
	}
	cmd.Flags().StringVar(&kind, "kind", dataprep.DummyMonotonic, "Dataset kind: monotonic or zeros_and_ones")
	cmd.Flags().IntVar(&length, "length", 500, "Number of timesteps")
	cmd.Flags().IntVar(&covariates, "covariates", 3, "Number of non-target channels")
	cmd.Flags().IntSliceVar(&targets, "targets", []int{0, 1}, "Target column indexes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

// channelNames labels target channels "target_i" and the rest "cov_i".
func channelNames(channels int, targets []int) []string {
	isTarget := make(map[int]bool, len(targets))
	for _, t := range targets {
		isTarget[t] = true
	}
	names := make([]string, channels)
	for c := range names {
		if isTarget[c] {
			names[c] = fmt.Sprintf("target_%d", c)
		} else {
			names[c] = fmt.Sprintf("cov_%d", c)
		}
	}
	return names
}
