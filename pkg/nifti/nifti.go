// Package nifti loads NIfTI-1 volumes (.nii and .nii.gz) through
// github.com/henghuang/nifti.
package nifti

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/henghuang/nifti"

	"niftinrrd/internal/models"
)

// Errors returned by the loader.
var (
	ErrInvalidHeader = errors.New("nifti: invalid header")
	ErrUnsupported   = errors.New("nifti: unsupported file")
)

// datatype codes from nifti1.h that hold one real value per voxel
var scalarTypes = map[int16]string{
	2:    "uint8",
	4:    "int16",
	8:    "int32",
	16:   "float32",
	64:   "float64",
	256:  "int8",
	512:  "uint16",
	768:  "uint32",
	1024: "int64",
	1280: "uint64",
}

// safelyParseHeader turns panics raised by the nifti library into errors.
func safelyParseHeader(filename string) (header nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidHeader, panicErr)
		}
	}()

	header.LoadHeader(filename)

	return
}

// safelyParseImage turns panics raised by the nifti library into errors.
func safelyParseImage(filename string) (img nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidHeader, panicErr)
		}
	}()

	img.LoadImage(filename, true)

	return
}

// Shape returns the three spatial extents of a header. Trailing singleton
// dimensions are accepted.
func Shape(h *nifti.Nifti1Header) ([3]int, error) {
	rank := int(h.Dim[0])
	if rank < 1 || rank > 7 {
		return [3]int{}, fmt.Errorf("%w: dim[0] = %d", ErrInvalidHeader, rank)
	}
	if rank < 3 {
		return [3]int{}, fmt.Errorf("%w: rank %d", models.ErrNotVolume, rank)
	}
	for d := 4; d <= rank; d++ {
		if h.Dim[d] > 1 {
			return [3]int{}, fmt.Errorf("%w: rank %d with dim[%d] = %d", models.ErrNotVolume, rank, d, h.Dim[d])
		}
	}
	shape := [3]int{int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])}
	for _, n := range shape {
		if n <= 0 {
			return [3]int{}, fmt.Errorf("%w: dims %v", ErrInvalidHeader, shape)
		}
	}
	return shape, nil
}

// Load reads a NIfTI-1 file and returns the volume in its stored axis order
// together with its header.
func Load(path string) (*models.Volume, *nifti.Nifti1Header, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	header, err := safelyParseHeader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, ok := scalarTypes[header.Datatype]; !ok {
		return nil, nil, fmt.Errorf("%w: datatype %d", ErrUnsupported, header.Datatype)
	}
	shape, err := Shape(&header)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	img, err := safelyParseImage(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	vol, err := copyVoxels(&img, shape)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	for i := 0; i < 3; i++ {
		vol.Spacing[i] = math.Abs(float64(header.Pixdim[i+1]))
	}
	return vol, &header, nil
}

// copyVoxels reads every voxel of the first time point. GetAt panics on
// truncated data, which is reported as an error.
func copyVoxels(img *nifti.Nifti1Image, shape [3]int) (vol *models.Volume, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidHeader, panicErr)
		}
	}()

	vol = models.NewVolume(shape)
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				vol.Set(i, j, k, float64(img.GetAt(uint32(i), uint32(j), uint32(k), 0)))
			}
		}
	}
	return vol, nil
}

// Reorient applies the loader's fixed axis reorder: move axis 2 first,
// reverse the new last axis, then reverse the axis order.
func Reorient(v *models.Volume) (*models.Volume, error) {
	p, err := v.Permute([3]int{2, 0, 1})
	if err != nil {
		return nil, err
	}
	f, err := p.Flip(2)
	if err != nil {
		return nil, err
	}
	return f.Transpose(), nil
}

// LoadOriented reads a NIfTI-1 file and applies Reorient.
func LoadOriented(path string) (*models.Volume, error) {
	vol, _, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Reorient(vol)
}
