package nifti

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"niftinrrd/internal/models"
	"niftinrrd/internal/sample"
)

const headerSize = 348

// Write stores v as a single-file float64 NIfTI-1 image in its current axis
// order. Paths ending in .gz are compressed. Extents must fit the header's
// int16 dim fields.
func Write(path string, v *models.Volume) error {
	const voxOffset = 352

	for _, n := range v.Shape {
		if n <= 0 || n > math.MaxInt16 {
			return fmt.Errorf("%w: extent %d in shape %v", ErrUnsupported, n, v.Shape)
		}
	}

	buf := make([]byte, voxOffset)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], headerSize)

	dims := [8]int16{3, int16(v.Shape[0]), int16(v.Shape[1]), int16(v.Shape[2]), 1, 1, 1, 1}
	pixdim := [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
	for i := 0; i < 3; i++ {
		if v.Spacing[i] > 0 {
			pixdim[i+1] = float32(v.Spacing[i])
		}
	}
	for i := 0; i < 8; i++ {
		le.PutUint16(buf[40+2*i:], uint16(dims[i]))
		le.PutUint32(buf[76+4*i:], math.Float32bits(pixdim[i]))
	}
	le.PutUint16(buf[70:], 64)
	le.PutUint16(buf[72:], 64)
	le.PutUint32(buf[108:], math.Float32bits(voxOffset))
	le.PutUint32(buf[112:], math.Float32bits(1))
	copy(buf[344:], "n+1\x00")

	data, err := sample.Encode(v.Fortran(), sample.Float64, le)
	if err != nil {
		return err
	}
	out := append(buf, data...)

	if strings.HasSuffix(path, ".gz") {
		if out, err = sample.Gzip(out); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
