package nifti

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftinrrd/internal/models"
)

func rampVolume(shape [3]int) *models.Volume {
	v := models.NewVolume(shape)
	for n := range v.Data {
		v.Data[n] = float64(n)
	}
	return v
}

// rawHeader builds a minimal little-endian single-file header.
func rawHeader(dims [8]int16, datatype, bitpix int16) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 352)
	le.PutUint32(buf[0:], headerSize)
	for i := 0; i < 8; i++ {
		le.PutUint16(buf[40+2*i:], uint16(dims[i]))
		le.PutUint32(buf[76+4*i:], math.Float32bits(1))
	}
	le.PutUint16(buf[70:], uint16(datatype))
	le.PutUint16(buf[72:], uint16(bitpix))
	le.PutUint32(buf[108:], math.Float32bits(352))
	le.PutUint32(buf[112:], math.Float32bits(1))
	copy(buf[344:], "n+1\x00")
	return buf
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := rampVolume([3]int{3, 4, 5})
	src.Spacing = [3]float64{0.5, 0.5, 2}

	for _, name := range []string{"vol.nii", "vol.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Write(path, src))

			got, h, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, [3]int{3, 4, 5}, got.Shape)
			assert.Equal(t, int16(64), h.Datatype)
			assert.Equal(t, [3]float64{0.5, 0.5, 2}, got.Spacing)
			assert.True(t, got.Equal(src), "samples differ after round trip")
		})
	}
}

func TestLoadUint8(t *testing.T) {
	buf := rawHeader([8]int16{3, 2, 2, 1, 1, 1, 1, 1}, 2, 8)
	buf = append(buf, 1, 2, 3, 4)

	path := filepath.Join(t.TempDir(), "mask.nii")
	require.NoError(t, os.WriteFile(path, buf, 0644))

	vol, _, err := Load(path)
	require.NoError(t, err)
	// file order is axis 0 fastest
	assert.Equal(t, 2.0, vol.At(1, 0, 0))
	assert.Equal(t, 3.0, vol.At(0, 1, 0))
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()

	fourD := rawHeader([8]int16{4, 2, 2, 2, 3, 1, 1, 1}, 2, 8)
	fourD = append(fourD, make([]byte, 24)...)
	path := filepath.Join(dir, "4d.nii")
	require.NoError(t, os.WriteFile(path, fourD, 0644))
	_, _, err := Load(path)
	assert.True(t, errors.Is(err, models.ErrNotVolume), "got %v", err)

	rgb := rawHeader([8]int16{3, 1, 1, 1, 1, 1, 1, 1}, 128, 24)
	path = filepath.Join(dir, "rgb.nii")
	require.NoError(t, os.WriteFile(path, append(rgb, 0, 0, 0), 0644))
	_, _, err = Load(path)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)

	path = filepath.Join(dir, "junk.nii")
	require.NoError(t, os.WriteFile(path, []byte("not a nifti file"), 0644))
	_, _, err = Load(path)
	assert.Error(t, err)

	_, _, err = Load(filepath.Join(dir, "missing.nii"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestWriteRejectsLargeExtent(t *testing.T) {
	v := &models.Volume{Shape: [3]int{math.MaxInt16 + 1, 1, 1}}
	err := Write(filepath.Join(t.TempDir(), "big.nii"), v)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
}

func TestReorient(t *testing.T) {
	src := rampVolume([3]int{2, 3, 4})
	got, err := Reorient(src)
	require.NoError(t, err)
	require.Equal(t, [3]int{3, 2, 4}, got.Shape)

	// out[y, x, z] = in[x, b-1-y, z]
	for x := 0; x < 2; x++ {
		for y := 0; y < 3; y++ {
			for z := 0; z < 4; z++ {
				assert.Equal(t, src.At(x, 2-y, z), got.At(y, x, z))
			}
		}
	}
}
