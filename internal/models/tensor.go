package models

import (
	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/utils"
)

// Tensor is a dense rank-3 array stored row-major: sample, row, column.
// X tensors are (samples, input_length, channels); canonical y tensors are
// (samples, output_length, targets).
type Tensor struct {
	Data  []float64 `json:"data"`
	Shape [3]int    `json:"shape"`
}

// NewTensor allocates a zero-filled tensor.
func NewTensor(n, rows, cols int) *Tensor {
	return &Tensor{
		Data:  make([]float64, n*rows*cols),
		Shape: [3]int{n, rows, cols},
	}
}

// Len returns the number of samples.
func (t *Tensor) Len() int {
	return t.Shape[0]
}

// Dims returns the shape as a slice.
func (t *Tensor) Dims() []int {
	return []int{t.Shape[0], t.Shape[1], t.Shape[2]}
}

func (t *Tensor) sampleSize() int {
	return t.Shape[1] * t.Shape[2]
}

// At returns element (i, j, k).
func (t *Tensor) At(i, j, k int) float64 {
	return t.Data[i*t.sampleSize()+j*t.Shape[2]+k]
}

// Set assigns element (i, j, k).
func (t *Tensor) Set(i, j, k int, v float64) {
	t.Data[i*t.sampleSize()+j*t.Shape[2]+k] = v
}

// SampleData returns the flat storage of sample i without copying.
func (t *Tensor) SampleData(i int) []float64 {
	size := t.sampleSize()
	return t.Data[i*size : (i+1)*size]
}

// SampleMatrix returns sample i as a matrix view sharing storage.
func (t *Tensor) SampleMatrix(i int) *mat.Dense {
	return mat.NewDense(t.Shape[1], t.Shape[2], t.SampleData(i))
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(other *Tensor) bool {
	return other != nil && t.Shape == other.Shape
}

// Select gathers the given samples, in order, into a new tensor.
func (t *Tensor) Select(idx []int) *Tensor {
	out := NewTensor(len(idx), t.Shape[1], t.Shape[2])
	for dst, src := range idx {
		copy(out.SampleData(dst), t.SampleData(src))
	}
	return out
}

// Stack stacks equally shaped matrices into a tensor. rows and cols
// give the expected per-sample shape so that an empty stack still has one.
func Stack(rows, cols int, ms []*mat.Dense) (*Tensor, error) {
	out := NewTensor(len(ms), rows, cols)
	for i, m := range ms {
		r, c := m.Dims()
		if r != rows || c != cols {
			return nil, utils.NewConsistencyError("cannot stack matrix with a different shape", []int{rows, cols}, []int{r, c})
		}
		dst := out.SampleData(i)
		for row := 0; row < r; row++ {
			for col := 0; col < c; col++ {
				dst[row*c+col] = m.At(row, col)
			}
		}
	}
	return out, nil
}

// Concat joins tensors along the sample axis. All parts must share the
// per-sample shape (rows, cols).
func Concat(rows, cols int, parts []*Tensor) (*Tensor, error) {
	total := 0
	for _, p := range parts {
		if p.Shape[1] != rows || p.Shape[2] != cols {
			return nil, utils.NewConsistencyError("cannot concatenate tensor with a different sample shape", []int{rows, cols}, []int{p.Shape[1], p.Shape[2]})
		}
		total += p.Shape[0]
	}
	out := &Tensor{Data: make([]float64, 0, total*rows*cols), Shape: [3]int{total, rows, cols}}
	for _, p := range parts {
		out.Data = append(out.Data, p.Data...)
	}
	return out, nil
}
