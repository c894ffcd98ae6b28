package nrrd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"niftinrrd/internal/models"
	"niftinrrd/internal/sample"
)

// ParseHeader reads header lines up to the blank separator line (or EOF for
// detached .nhdr files).
func ParseHeader(r *bufio.Reader) (*Header, error) {
	magic, err := r.ReadString('\n')
	if err != nil && magic == "" {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidHeader)
	}
	magic = strings.TrimRight(magic, "\r\n")
	if !strings.HasPrefix(magic, "NRRD000") {
		return nil, fmt.Errorf("%w: magic %q", ErrInvalidHeader, magic)
	}

	h := &Header{Magic: magic}
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}

		switch {
		case strings.HasPrefix(trimmed, "#"):
			h.Comments = append(h.Comments, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
		case strings.Contains(trimmed, ":="):
			kv := strings.SplitN(trimmed, ":=", 2)
			h.KeyValues = append(h.KeyValues, Field{Key: kv[0], Value: kv[1]})
		case strings.Contains(trimmed, ": "):
			kv := strings.SplitN(trimmed, ": ", 2)
			h.Fields = append(h.Fields, Field{Key: strings.TrimSpace(kv[0]), Value: strings.TrimSpace(kv[1])})
		default:
			return nil, fmt.Errorf("%w: malformed line %q", ErrInvalidHeader, trimmed)
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}
	return h, nil
}

// Read loads a 3D NRRD file. The returned volume indexes axes in header
// order with axis 0 fastest on disk.
func Read(path string) (*models.Volume, *Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	h, err := ParseHeader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	dim, err := h.Dimension()
	if err != nil {
		return nil, nil, err
	}
	if dim != 3 {
		return nil, nil, fmt.Errorf("%w: dimension %d", models.ErrNotVolume, dim)
	}
	sizes, err := h.Sizes()
	if err != nil {
		return nil, nil, err
	}
	if len(sizes) != dim {
		return nil, nil, fmt.Errorf("%w: %d sizes for dimension %d", ErrInvalidHeader, len(sizes), dim)
	}
	shape := [3]int{sizes[0], sizes[1], sizes[2]}
	typ, err := h.Type()
	if err != nil {
		return nil, nil, err
	}
	n, err := VoxelCount(sizes, typ.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var body []byte
	if name, ok := h.DataFile(); ok {
		body, err = readDetached(filepath.Dir(path), name)
	} else {
		body, err = io.ReadAll(r)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read data of %s: %w", path, err)
	}

	values, err := decodeBody(h, body, n)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	vol, err := models.FromFortran(values, shape)
	if err != nil {
		return nil, nil, err
	}
	copy(vol.Spacing[:], h.Spacing(3))
	return vol, h, nil
}

func readDetached(dir, name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "LIST") || strings.Contains(name, "%") {
		return nil, fmt.Errorf("%w: multi-file data %q", ErrUnsupported, name)
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	return os.ReadFile(name)
}

func decodeBody(h *Header, body []byte, n int) ([]float64, error) {
	typ, err := h.Type()
	if err != nil {
		return nil, err
	}
	encoding, err := h.Encoding()
	if err != nil {
		return nil, err
	}
	order, err := h.ByteOrder()
	if err != nil {
		return nil, err
	}

	lineSkip, err := h.skip("line skip", "lineskip")
	if err != nil {
		return nil, err
	}
	for ; lineSkip > 0; lineSkip-- {
		i := bytes.IndexByte(body, '\n')
		if i < 0 {
			return nil, fmt.Errorf("%w: line skip past end of data", ErrInvalidHeader)
		}
		body = body[i+1:]
	}

	if encoding == "gzip" {
		if body, err = sample.Gunzip(bytes.NewReader(body)); err != nil {
			return nil, err
		}
	}

	byteSkip, err := h.skip("byte skip", "byteskip")
	if err != nil {
		return nil, err
	}
	switch {
	case byteSkip == -1:
		want := n * typ.Size()
		if len(body) < want {
			return nil, fmt.Errorf("%w: %d bytes for %d samples", ErrInvalidHeader, len(body), n)
		}
		body = body[len(body)-want:]
	case byteSkip > len(body):
		return nil, fmt.Errorf("%w: byte skip past end of data", ErrInvalidHeader)
	default:
		body = body[byteSkip:]
	}

	if encoding == "ascii" {
		return decodeASCII(body, n)
	}
	if len(body)/typ.Size() < n {
		return nil, fmt.Errorf("%w: %d bytes for %d samples of %v", ErrInvalidHeader, len(body), n, typ)
	}
	return sample.Decode(body, n, typ, order)
}

func decodeASCII(body []byte, n int) ([]float64, error) {
	toks := strings.Fields(string(body))
	if len(toks) < n {
		return nil, fmt.Errorf("%w: %d ascii samples, want %d", ErrInvalidHeader, len(toks), n)
	}
	out := make([]float64, n)
	for i := range out {
		f, err := strconv.ParseFloat(toks[i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %q", ErrInvalidHeader, toks[i])
		}
		out[i] = f
	}
	return out, nil
}

// ReadMask loads a NRRD volume and coerces it to unsigned 8-bit values,
// truncating toward zero and wrapping like a C cast.
func ReadMask(path string) (*models.Volume, error) {
	vol, _, err := Read(path)
	if err != nil {
		return nil, err
	}
	return vol.Map(func(v float64) float64 {
		return float64(uint8(int64(v)))
	}), nil
}
