package models

import (
	"gonum.org/v1/gonum/mat"
)

// Sample is one supervised pair cut from a series. X covers the input window
// over every channel, Y the output window over the target channels.
type Sample struct {
	X     *mat.Dense
	Y     *mat.Dense
	Start int // absolute timestep of the first input row
}

// TargetLayout records which y axes are conceptually singleton. The
// canonical y tensor is always (samples, output_length, targets); the
// collapsed view drops the axes of size one.
type TargetLayout struct {
	OutputLength int `json:"output_length"`
	NTargets     int `json:"n_targets"`
}

// Rank is the rank of the collapsed y array: 3 when both output_length and
// the target count exceed one, 1 when both equal one, 2 otherwise.
func (l TargetLayout) Rank() int {
	switch {
	case l.OutputLength > 1 && l.NTargets > 1:
		return 3
	case l.OutputLength == 1 && l.NTargets == 1:
		return 1
	default:
		return 2
	}
}

// CollapsedShape returns the shape of the collapsed y array for n samples.
// The sample axis is never collapsed.
func (l TargetLayout) CollapsedShape(n int) []int {
	switch l.Rank() {
	case 3:
		return []int{n, l.OutputLength, l.NTargets}
	case 1:
		return []int{n}
	}
	if l.NTargets == 1 {
		return []int{n, l.OutputLength}
	}
	return []int{n, l.NTargets}
}

// CollapsedView is y with its singleton axes removed. Data aliases the
// canonical tensor storage; row-major order is unchanged by the collapse.
type CollapsedView struct {
	Shape []int
	Data  []float64
}

// SampleSet is the materialised (X, y) dataset built from one series.
type SampleSet struct {
	X      *Tensor
	Y      *Tensor
	Layout TargetLayout
	// Starts[k] is the absolute timestep of the first input row of sample k.
	Starts []int
}

// Len returns the number of samples.
func (s *SampleSet) Len() int {
	return s.X.Len()
}

// YRank returns the rank of the collapsed y array.
func (s *SampleSet) YRank() int {
	return s.Layout.Rank()
}

// YShape returns the collapsed y shape.
func (s *SampleSet) YShape() []int {
	return s.Layout.CollapsedShape(s.Len())
}

// YCollapsed returns y with singleton axes removed.
func (s *SampleSet) YCollapsed() CollapsedView {
	return CollapsedView{Shape: s.YShape(), Data: s.Y.Data}
}

// TargetStarts returns the absolute timestep of the first output row of
// every sample.
func (s *SampleSet) TargetStarts(spec WindowSpec) []int {
	out := make([]int, len(s.Starts))
	for i, start := range s.Starts {
		out[i] = start + spec.OutputStart()
	}
	return out
}
