package nrrd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftinrrd/internal/models"
	"niftinrrd/internal/sample"
)

func writeFile(t *testing.T, path string, header string, body []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, append([]byte(header), body...), 0644))
}

func keyValue(h *Header, key string) (string, bool) {
	for _, kv := range h.KeyValues {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func rampVolume(shape [3]int) *models.Volume {
	v := models.NewVolume(shape)
	for n := range v.Data {
		v.Data[n] = float64(n)
	}
	return v
}

func TestReadRawUchar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.nrrd")
	header := "NRRD0004\n" +
		"# Complete NRRD file format specification at:\n" +
		"type: unsigned char\n" +
		"dimension: 3\n" +
		"space: left-posterior-superior\n" +
		"sizes: 2 2 1\n" +
		"space directions: (0.5,0,0) (0,0.5,0) (0,0,2)\n" +
		"encoding: raw\n" +
		"Segment0_Name:=tumor\n" +
		"\n"
	writeFile(t, path, header, []byte{0, 1, 2, 3})

	vol, h, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 1}, vol.Shape)
	assert.Equal(t, 1.0, vol.At(1, 0, 0))
	assert.Equal(t, 2.0, vol.At(0, 1, 0))
	assert.Equal(t, [3]float64{0.5, 0.5, 2}, vol.Spacing)

	space, ok := h.Get("space")
	assert.True(t, ok)
	assert.Equal(t, "left-posterior-superior", space)
	name, ok := keyValue(h, "Segment0_Name")
	assert.True(t, ok)
	assert.Equal(t, "tumor", name)
	assert.Len(t, h.Comments, 1)
}

func TestReadGzipBigEndian(t *testing.T) {
	raw, err := sample.Encode([]float64{1, -2, 3, -4, 5, -6, 7, -8}, sample.Int16, binary.BigEndian)
	require.NoError(t, err)
	packed, err := sample.Gzip(raw)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "be.nrrd")
	writeFile(t, path, "NRRD0005\ntype: short\ndimension: 3\nsizes: 2 2 2\nendian: big\nencoding: gzip\n\n", packed)

	vol, _, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2, 3, -4, 5, -6, 7, -8}, vol.Fortran())
}

func TestReadASCII(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.nrrd")
	writeFile(t, path, "NRRD0004\ntype: float\ndimension: 3\nsizes: 1 1 3\nencoding: ascii\n\n", []byte("0.5 1.5\n2.5\n"))

	vol, _, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, vol.Fortran())
}

func TestReadDetached(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vol.raw"), []byte{9, 9, 1, 2}, 0644))
	path := filepath.Join(dir, "vol.nhdr")
	writeFile(t, path, "NRRD0004\ntype: uint8\ndimension: 3\nsizes: 1 1 2\nencoding: raw\nbyte skip: -1\ndata file: vol.raw\n", nil)

	vol, _, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vol.Fortran())
}

func TestReadRejects(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name   string
		header string
		body   []byte
		want   error
	}{
		{"bad magic", "PNG\n\n", nil, ErrInvalidHeader},
		{"2d", "NRRD0004\ntype: uint8\ndimension: 2\nsizes: 2 2\nencoding: raw\n\n", []byte{1, 2, 3, 4}, models.ErrNotVolume},
		{"bzip2", "NRRD0004\ntype: uint8\ndimension: 3\nsizes: 1 1 1\nencoding: bzip2\n\n", []byte{1}, ErrUnsupported},
		{"short data", "NRRD0004\ntype: float\ndimension: 3\nsizes: 2 2 2\nencoding: raw\n\n", []byte{1, 2}, nil},
		{"bad type", "NRRD0004\ntype: block\ndimension: 3\nsizes: 1 1 1\nencoding: raw\n\n", []byte{1}, ErrUnsupported},
		{"sizes overflow", "NRRD0004\ntype: uchar\ndimension: 3\nsizes: 4611686018427387904 2 1\nencoding: raw\n\n", []byte{1, 2}, ErrInvalidHeader},
		{"sizes exceed body", "NRRD0004\ntype: uchar\ndimension: 3\nsizes: 1048576 1048576 1048576\nencoding: raw\n\n", []byte{1, 2}, ErrInvalidHeader},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".nrrd")
			writeFile(t, path, tc.header, tc.body)
			_, _, err := Read(path)
			require.Error(t, err)
			if tc.want != nil {
				assert.True(t, errors.Is(err, tc.want), "got %v", err)
			}
		})
	}
}

func TestWritePreservesHeader(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.nrrd")
	header := "NRRD0004\n" +
		"type: uint8\n" +
		"dimension: 3\n" +
		"space: right-anterior-superior\n" +
		"sizes: 2 3 4\n" +
		"space directions: (1,0,0) (0,1,0) (0,0,1)\n" +
		"kinds: domain domain domain\n" +
		"encoding: raw\n" +
		"space origin: (10,20,30)\n" +
		"modality:=MR\n" +
		"\n"
	writeFile(t, src, header, bytes.Repeat([]byte{1}, 24))

	_, h, err := Read(src)
	require.NoError(t, err)

	out := filepath.Join(dir, "out.nrrd")
	data := rampVolume([3]int{2, 3, 4})
	require.NoError(t, Write(out, data, h))

	got, gotHeader, err := Read(out)
	require.NoError(t, err)
	assert.True(t, got.Equal(data), "written samples differ")

	var keys []string
	for _, f := range gotHeader.Fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"type", "dimension", "space", "sizes", "space directions", "kinds", "encoding", "space origin", "endian"}, keys)

	typ, _ := gotHeader.Get("type")
	assert.Equal(t, "double", typ)
	origin, _ := gotHeader.Get("space origin")
	assert.Equal(t, "(10,20,30)", origin)
	modality, _ := keyValue(gotHeader, "modality")
	assert.Equal(t, "MR", modality)

	// the template itself is not mutated
	typ, _ = h.Get("type")
	assert.Equal(t, "uint8", typ)
}

func TestWriteEncodings(t *testing.T) {
	dir := t.TempDir()
	data := rampVolume([3]int{3, 2, 2})

	for _, enc := range []string{"raw", "gzip", "ascii"} {
		t.Run(enc, func(t *testing.T) {
			h := &Header{Magic: "NRRD0004", Fields: []Field{{Key: "encoding", Value: enc}, {Key: "endian", Value: "big"}}}
			path := filepath.Join(dir, enc+".nrrd")
			require.NoError(t, Write(path, data, h))

			got, _, err := Read(path)
			require.NoError(t, err)
			assert.True(t, got.Equal(data))
		})
	}

	path := filepath.Join(dir, "nil.nrrd")
	require.NoError(t, Write(path, data, nil))
	_, h, err := Read(path)
	require.NoError(t, err)
	enc, _ := h.Get("encoding")
	assert.Equal(t, "gzip", enc)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	data := rampVolume([3]int{2, 2, 2})

	path := filepath.Join(dir, "out.nrrd")
	require.NoError(t, Write(path, data, nil))
	require.NoError(t, Write(path, data, nil))

	// a directory in the way makes the final rename fail
	blocked := filepath.Join(dir, "blocked.nrrd")
	require.NoError(t, os.Mkdir(blocked, 0755))
	assert.Error(t, Write(blocked, data, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"out.nrrd", "blocked.nrrd"}, names)

	got, _, err := Read(path)
	require.NoError(t, err)
	assert.True(t, got.Equal(data))
}

func TestReadMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roi.nrrd")
	raw, err := sample.Encode([]float64{0, 1, 255, 256, 300.7, -1}, sample.Float64, binary.LittleEndian)
	require.NoError(t, err)
	writeFile(t, path, "NRRD0004\ntype: double\ndimension: 3\nsizes: 6 1 1\nendian: little\nencoding: raw\n\n", raw)

	mask, err := ReadMask(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 255, 0, 44, 255}, mask.Fortran())
}
