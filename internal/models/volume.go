package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNotVolume is returned when data cannot be viewed as a 3D volume.
var ErrNotVolume = errors.New("models: not a 3D volume")

// Volume is a strided 3D view over a flat sample buffer.
//
// Sample (i, j, k) lives at Data[Offset + i*Strides[0] + j*Strides[1] + k*Strides[2]].
// Permute and Flip return new views sharing Data, so reorienting a volume
// never copies samples.
type Volume struct {
	// Data holds the samples; views may share it
	Data []float64

	// Shape is the extent of each axis
	Shape [3]int

	// Strides is the step in Data for each axis, may be negative
	Strides [3]int

	// Offset is the position of sample (0, 0, 0)
	Offset int

	// Spacing is the physical size of a voxel along each axis in mm.
	// Zero when the source file does not record it.
	Spacing [3]float64
}

// NewVolume allocates a zeroed C-ordered volume (last axis fastest).
func NewVolume(shape [3]int) *Volume {
	n := shape[0] * shape[1] * shape[2]
	return &Volume{
		Data:    make([]float64, n),
		Shape:   shape,
		Strides: [3]int{shape[1] * shape[2], shape[2], 1},
	}
}

// FromFortran wraps samples stored with axis 0 fastest, the order used by
// both NIfTI and NRRD on disk.
func FromFortran(data []float64, shape [3]int) (*Volume, error) {
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, fmt.Errorf("%w: shape %v", ErrNotVolume, shape)
	}
	if len(data) != shape[0]*shape[1]*shape[2] {
		return nil, fmt.Errorf("%w: %d samples for shape %v", ErrNotVolume, len(data), shape)
	}
	return &Volume{
		Data:    data,
		Shape:   shape,
		Strides: [3]int{1, shape[0], shape[0] * shape[1]},
	}, nil
}

// Len returns the number of samples in the view.
func (v *Volume) Len() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

func (v *Volume) index(i, j, k int) int {
	return v.Offset + i*v.Strides[0] + j*v.Strides[1] + k*v.Strides[2]
}

// At returns the sample at (i, j, k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.index(i, j, k)]
}

// Set stores a sample at (i, j, k).
func (v *Volume) Set(i, j, k int, value float64) {
	v.Data[v.index(i, j, k)] = value
}

// Permute returns a view whose axis n is axis p[n] of v.
func (v *Volume) Permute(p [3]int) (*Volume, error) {
	var seen [3]bool
	for _, a := range p {
		if a < 0 || a > 2 || seen[a] {
			return nil, fmt.Errorf("invalid axis permutation %v", p)
		}
		seen[a] = true
	}

	out := &Volume{Data: v.Data, Offset: v.Offset}
	for n, a := range p {
		out.Shape[n] = v.Shape[a]
		out.Strides[n] = v.Strides[a]
		out.Spacing[n] = v.Spacing[a]
	}
	return out, nil
}

// Flip returns a view with the given axis reversed.
func (v *Volume) Flip(axis int) (*Volume, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid axis %d", axis)
	}
	out := *v
	out.Offset = v.Offset + (v.Shape[axis]-1)*v.Strides[axis]
	out.Strides[axis] = -v.Strides[axis]
	return &out, nil
}

// Transpose reverses the axis order, like a numpy transpose without arguments.
func (v *Volume) Transpose() *Volume {
	out, _ := v.Permute([3]int{2, 1, 0})
	return out
}

// Each calls fn for every sample in C order.
func (v *Volume) Each(fn func(i, j, k int, value float64)) {
	for i := 0; i < v.Shape[0]; i++ {
		for j := 0; j < v.Shape[1]; j++ {
			for k := 0; k < v.Shape[2]; k++ {
				fn(i, j, k, v.At(i, j, k))
			}
		}
	}
}

// Contiguous copies the view into a fresh C-ordered volume.
func (v *Volume) Contiguous() *Volume {
	out := NewVolume(v.Shape)
	out.Spacing = v.Spacing
	n := 0
	v.Each(func(_, _, _ int, value float64) {
		out.Data[n] = value
		n++
	})
	return out
}

// Values returns the samples in C order.
func (v *Volume) Values() []float64 {
	return v.Contiguous().Data
}

// Fortran returns the samples in file order (axis 0 fastest).
func (v *Volume) Fortran() []float64 {
	out := make([]float64, 0, v.Len())
	for k := 0; k < v.Shape[2]; k++ {
		for j := 0; j < v.Shape[1]; j++ {
			for i := 0; i < v.Shape[0]; i++ {
				out = append(out, v.At(i, j, k))
			}
		}
	}
	return out
}

// Map returns a new C-ordered volume with fn applied to every sample.
func (v *Volume) Map(fn func(float64) float64) *Volume {
	out := v.Contiguous()
	for n, value := range out.Data {
		out.Data[n] = fn(value)
	}
	return out
}

// Max returns the largest sample.
func (v *Volume) Max() float64 {
	if v.Len() == 0 {
		return 0
	}
	return floats.Max(v.Values())
}

// Slice returns the 2D plane at index i along axis 0.
func (v *Volume) Slice(i int) (*mat.Dense, error) {
	if i < 0 || i >= v.Shape[0] {
		return nil, fmt.Errorf("slice %d out of range [0, %d)", i, v.Shape[0])
	}
	rows, cols := v.Shape[1], v.Shape[2]
	plane := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			plane.Set(r, c, v.At(i, r, c))
		}
	}
	return plane, nil
}

// SameShape reports whether both views have identical extents.
func (v *Volume) SameShape(other *Volume) bool {
	return v.Shape == other.Shape
}

// Equal reports whether both views have the same shape and samples.
func (v *Volume) Equal(other *Volume) bool {
	if other == nil || !v.SameShape(other) {
		return false
	}
	return floats.Equal(v.Values(), other.Values())
}

// Stats summarises the sample distribution of a volume.
type Stats struct {
	Min, Max     float64
	Mean, StdDev float64
}

// Describe computes summary statistics over every sample.
func (v *Volume) Describe() Stats {
	values := v.Values()
	if len(values) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Stats{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}
