package dataprep

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// CleanReport describes what Clean changed.
type CleanReport struct {
	DroppedRows int `json:"dropped_rows"`
	FilledCells int `json:"filled_cells"`
}

// Clean forward-fills missing values per channel and drops the leading rows
// that have nothing to fill from. Values are only ever carried forward, so a
// cleaned row never depends on a later timestep. The returned series' offset
// advances by the dropped row count.
func Clean(series models.Series) (models.Series, CleanReport, error) {
	var report CleanReport
	if series.Len() == 0 {
		return series, report, nil
	}

	// First row where every channel has been observed at least once.
	start := 0
	for c := 0; c < series.Channels(); c++ {
		first := -1
		for t := 0; t < series.Len(); t++ {
			if !math.IsNaN(series.At(t, c)) {
				first = t
				break
			}
		}
		if first < 0 {
			return models.Series{}, report, utils.NewPreconditionErrorf("channel %d has no observed values", c)
		}
		if first > start {
			start = first
		}
	}

	n := series.Len() - start
	data := mat.NewDense(n, series.Channels(), nil)
	for c := 0; c < series.Channels(); c++ {
		last := math.NaN()
		// Seed from the dropped prefix so the first kept row can be filled.
		for t := 0; t <= start; t++ {
			if v := series.At(t, c); !math.IsNaN(v) {
				last = v
			}
		}
		for r := 0; r < n; r++ {
			v := series.At(start+r, c)
			if math.IsNaN(v) {
				v = last
				report.FilledCells++
			}
			data.Set(r, c, v)
			last = v
		}
	}
	report.DroppedRows = start

	out, err := models.NewSeriesFromDense(data, series.TargetIdx())
	if err != nil {
		return models.Series{}, report, err
	}
	return out.WithOffset(series.Offset() + start), report, nil
}
