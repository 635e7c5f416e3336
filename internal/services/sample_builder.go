package services

import (
	"math/rand"
	"time"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// SampleOptions controls BuildSampleSet.
type SampleOptions struct {
	// Shuffle permutes the samples after they are built, keeping every X
	// paired with its y and start.
	Shuffle bool
	// Rand drives the shuffle. A nil Rand is seeded from the clock.
	Rand *rand.Rand
}

// BuildSampleSet slides a window over the whole series using the window
// stride and stacks every complete sample.
//
// The sample count always equals spec.ExpectedSampleCount(series.Len()). A
// series too short for one sample yields an empty set, not an error.
func BuildSampleSet(series models.Series, spec models.WindowSpec, opts SampleOptions) (*models.SampleSet, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := series.CheckComplete(); err != nil {
		return nil, err
	}

	n := spec.ExpectedSampleCount(series.Len())
	set := &models.SampleSet{
		X:      models.NewTensor(n, spec.InputLength, series.Channels()),
		Y:      models.NewTensor(n, spec.OutputLength, series.NTargets()),
		Layout: models.TargetLayout{OutputLength: spec.OutputLength, NTargets: series.NTargets()},
		Starts: make([]int, 0, n),
	}

	k := 0
	for first := 0; first+spec.Span() <= series.Len(); first += spec.Stride {
		if k == n {
			return nil, utils.NewConsistencyError("window walk produced more samples than expected", []int{n}, []int{k + 1})
		}
		copyWindow(series, first, spec, set.X.SampleData(k), set.Y.SampleData(k))
		set.Starts = append(set.Starts, series.Offset()+first)
		k++
	}
	if k != n {
		return nil, utils.NewConsistencyError("window walk produced fewer samples than expected", []int{n}, []int{k})
	}

	if opts.Shuffle && n > 1 {
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		shuffleSamples(set, rng)
	}
	return set, nil
}

// shuffleSamples applies one Fisher-Yates permutation to X, y and Starts.
func shuffleSamples(set *models.SampleSet, rng *rand.Rand) {
	idx := make([]int, set.Len())
	for i := range idx {
		idx[i] = i
	}
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	starts := make([]int, len(idx))
	for dst, src := range idx {
		starts[dst] = set.Starts[src]
	}
	set.X = set.X.Select(idx)
	set.Y = set.Y.Select(idx)
	set.Starts = starts
}
