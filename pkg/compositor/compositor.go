// Package compositor reorients volumes, builds mask overlays and extracts
// central-line profiles for display.
//
// Every function here is pure: session state lives in Session, which the
// host application owns and drives.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/gonum/mat"

	"niftinrrd/internal/models"
)

// Errors reported to the host.
var (
	ErrMissingInput       = errors.New("compositor: missing input")
	ErrShapeMismatch      = errors.New("compositor: shape mismatch")
	ErrInvalidOrientation = errors.New("compositor: invalid orientation")
)

// Overlay pixel values.
const (
	OverlayRed   = 255
	OverlayAlpha = 100
)

// MaskThresholdDivisor sets the working mask cutoff at max/MaskThresholdDivisor.
const MaskThresholdDivisor = 100

// Orientation selects one of three fixed axis permutations.
type Orientation int

// permutations[o] lists, for each output axis, the input axis it comes from.
var permutations = [3][3]int{
	{0, 1, 2},
	{1, 2, 0},
	{2, 0, 1},
}

// Valid reports whether o is 0, 1 or 2.
func (o Orientation) Valid() bool {
	return o >= 0 && o < 3
}

// Next returns the orientation after one transpose trigger.
func (o Orientation) Next() Orientation {
	return (o + 1) % 3
}

func (o Orientation) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
	p := permutations[o]
	return fmt.Sprintf("(%d, %d, %d)", p[0], p[1], p[2])
}

// ApplyOrientation returns a view of v with its axes permuted for o.
// State 0 returns v itself.
func ApplyOrientation(v *models.Volume, o Orientation) (*models.Volume, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: no volume", ErrMissingInput)
	}
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrientation, int(o))
	}
	if o == 0 {
		return v, nil
	}
	return v.Permute(permutations[o])
}

// OverlayThreshold is the value a mask sample must exceed to be highlighted:
// half of the mask maximum.
func OverlayThreshold(mask *models.Volume) float64 {
	return mask.Max() / 2
}

// BuildOverlay renders slice sliceIndex (along axis 0) of mask as an RGBA
// image sized to the slice: red everywhere, alpha OverlayAlpha where the
// mask exceeds OverlayThreshold. An out-of-range index yields a fully
// transparent image of the same size.
func BuildOverlay(mask *models.Volume, sliceIndex int) *image.NRGBA {
	rows, cols := mask.Shape[1], mask.Shape[2]
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))

	inRange := sliceIndex >= 0 && sliceIndex < mask.Shape[0]
	threshold := 0.0
	if inRange {
		threshold = OverlayThreshold(mask)
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var alpha uint8
			if inRange && mask.At(sliceIndex, r, c) > threshold {
				alpha = OverlayAlpha
			}
			img.SetNRGBA(c, r, color.NRGBA{R: OverlayRed, A: alpha})
		}
	}
	return img
}

// CheckOverlay reports ErrShapeMismatch when an overlay does not cover a
// display slice pixel for pixel.
func CheckOverlay(slice mat.Matrix, overlay image.Image) error {
	rows, cols := slice.Dims()
	b := overlay.Bounds()
	if b.Dy() != rows || b.Dx() != cols {
		return fmt.Errorf("%w: overlay %dx%d, slice %dx%d", ErrShapeMismatch, b.Dy(), b.Dx(), rows, cols)
	}
	return nil
}

// CentralProfile returns row rows/2 of a 2D slice.
func CentralProfile(slice mat.Matrix) []float64 {
	rows, cols := slice.Dims()
	if rows == 0 || cols == 0 {
		return nil
	}
	return mat.Row(nil, rows/2, slice)
}

// ThresholdToMask derives a binary working mask: 1 where v exceeds
// max(v)/MaskThresholdDivisor, else 0.
func ThresholdToMask(v *models.Volume) *models.Volume {
	return ThresholdWith(v, MaskThresholdDivisor)
}

// ThresholdWith is ThresholdToMask with a configurable divisor.
func ThresholdWith(v *models.Volume, divisor float64) *models.Volume {
	if divisor <= 0 {
		divisor = MaskThresholdDivisor
	}
	cut := v.Max() / divisor
	return v.Map(func(x float64) float64 {
		if x > cut {
			return 1
		}
		return 0
	})
}

// Multiply returns the elementwise product of two equally shaped volumes.
func Multiply(a, b *models.Volume) (*models.Volume, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil volume", ErrMissingInput)
	}
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: %v and %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	out := models.NewVolume(a.Shape)
	out.Spacing = b.Spacing
	n := 0
	a.Each(func(i, j, k int, x float64) {
		out.Data[n] = x * b.At(i, j, k)
		n++
	})
	return out, nil
}
