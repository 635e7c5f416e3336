package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/irfndi/tscv-go/internal/models"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// printReport writes result as an aligned table or as indented JSON.
func printReport(w io.Writer, format, kind string, result interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatTable, "":
	default:
		return fmt.Errorf("unknown output format %q, expected %s or %s", format, formatTable, formatJSON)
	}

	p := message.NewPrinter(language.English)
	title := cases.Title(language.English).String(strings.ReplaceAll(kind, "_", " "))
	p.Fprintf(w, "%s\n%s\n", title, strings.Repeat("=", len(title)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch r := result.(type) {
	case *models.TrainResult:
		p.Fprintf(tw, "Metric\t%s\n", r.Metric)
		p.Fprintf(tw, "Score\t%.4f\n", r.Score)
		p.Fprintf(tw, "Train samples\t%d\n", r.TrainSamples)
		p.Fprintf(tw, "Test samples\t%d\n", r.TestSamples)
		p.Fprintf(tw, "Target rank\t%d\n", r.Layout.Rank())
	case *models.CrossValidationResult:
		p.Fprintf(tw, "Metric\t%s\n", r.Metric)
		p.Fprintf(tw, "Folds\t%d\n", len(r.FoldScores))
		p.Fprintf(tw, "Mean score\t%.4f\n", r.Mean)
		for i, score := range r.FoldScores {
			p.Fprintf(tw, "  Fold %d\t%.4f\n", i, score)
		}
	case *models.BacktestResult:
		p.Fprintf(tw, "Run\t%s\n", r.ID)
		p.Fprintf(tw, "Metric\t%s\n", r.Metric)
		p.Fprintf(tw, "Score\t%.4f\n", r.Score)
		p.Fprintf(tw, "Steps\t%d\n", r.Steps)
		p.Fprintf(tw, "Retrains\t%d\n", r.Retrains)
		if len(r.Cutoffs) > 0 {
			p.Fprintf(tw, "Cutoffs\t%d .. %d\n", r.Cutoffs[0], r.Cutoffs[len(r.Cutoffs)-1])
		}
		p.Fprintf(tw, "Duration\t%s\n", r.Duration)
	default:
		return fmt.Errorf("no table layout for %T", result)
	}
	return tw.Flush()
}
