package services

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// ExtractWindow cuts the sample whose input window starts at row first.
//
// Input rows are [first, first+in) over every channel; output rows are
// [first+in+horizon-1, first+in+horizon-1+out) over the target channels.
// ok is false when the output window runs past the end of the series, which
// is how callers detect the end of a sliding walk.
//
// Parameters:
//   - series: The series to read from.
//   - first: Row of the first input timestep, relative to series.
//   - spec: Window geometry.
//
// Returns:
//   - The sample, with Start as an absolute timestep.
//   - false when the series is too short for a full output window.
//   - A PreconditionError for a negative start or missing values.
func ExtractWindow(series models.Series, first int, spec models.WindowSpec) (models.Sample, bool, error) {
	if err := spec.Validate(); err != nil {
		return models.Sample{}, false, err
	}
	if first < 0 {
		return models.Sample{}, false, utils.NewPreconditionErrorf("window start %d is negative", first)
	}
	if first+spec.Span() > series.Len() {
		return models.Sample{}, false, nil
	}

	x := make([]float64, spec.InputLength*series.Channels())
	y := make([]float64, spec.OutputLength*series.NTargets())
	copyWindow(series, first, spec, x, y)

	if floats.HasNaN(x) || floats.HasNaN(y) {
		return models.Sample{}, false, utils.NewPreconditionErrorf(
			"window starting at timestep %d contains missing values", series.Offset()+first)
	}

	return models.Sample{
		X:     mat.NewDense(spec.InputLength, series.Channels(), x),
		Y:     mat.NewDense(spec.OutputLength, series.NTargets(), y),
		Start: series.Offset() + first,
	}, true, nil
}

// copyWindow writes the input and output windows starting at first into the
// row-major buffers x and y. The caller has checked the bounds.
func copyWindow(series models.Series, first int, spec models.WindowSpec, x, y []float64) {
	ch := series.Channels()
	for r := 0; r < spec.InputLength; r++ {
		copy(x[r*ch:(r+1)*ch], series.RawRow(first+r))
	}

	targets := series.TargetIdx()
	nt := len(targets)
	outStart := first + spec.OutputStart()
	for r := 0; r < spec.OutputLength; r++ {
		row := series.RawRow(outStart + r)
		for k, c := range targets {
			y[r*nt+k] = row[c]
		}
	}
}
