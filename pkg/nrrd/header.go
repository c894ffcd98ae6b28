// Package nrrd reads and writes NRRD volumes while keeping the header as an
// ordered, verbatim template.
package nrrd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"niftinrrd/internal/sample"
)

// Errors returned by the reader and writer.
var (
	ErrInvalidHeader = errors.New("nrrd: invalid header")
	ErrUnsupported   = errors.New("nrrd: unsupported feature")
)

// DefaultMagic is written when a header carries no magic line.
const DefaultMagic = "NRRD0004"

// Field is one "key: value" or "key:=value" header line.
type Field struct {
	Key   string
	Value string
}

// Header is the text header of a NRRD file. Field order is preserved so a
// header read from disk can be written back unchanged.
type Header struct {
	Magic     string
	Fields    []Field
	KeyValues []Field
	Comments  []string
}

// Get returns the value of a field and whether it exists.
func (h *Header) Get(key string) (string, bool) {
	for _, f := range h.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces a field in place or appends it.
func (h *Header) Set(key, value string) {
	for i, f := range h.Fields {
		if f.Key == key {
			h.Fields[i].Value = value
			return
		}
	}
	h.Fields = append(h.Fields, Field{Key: key, Value: value})
}

// Delete removes a field if present.
func (h *Header) Delete(key string) {
	out := h.Fields[:0]
	for _, f := range h.Fields {
		if f.Key != key {
			out = append(out, f)
		}
	}
	h.Fields = out
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	return &Header{
		Magic:     h.Magic,
		Fields:    append([]Field(nil), h.Fields...),
		KeyValues: append([]Field(nil), h.KeyValues...),
		Comments:  append([]string(nil), h.Comments...),
	}
}

// lookup accepts the field name spellings teem allows.
func (h *Header) lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := h.Get(k); ok {
			return v, true
		}
	}
	return "", false
}

// Dimension returns the "dimension" field.
func (h *Header) Dimension() (int, error) {
	v, ok := h.Get("dimension")
	if !ok {
		return 0, fmt.Errorf("%w: missing dimension", ErrInvalidHeader)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: dimension %q", ErrInvalidHeader, v)
	}
	return n, nil
}

// Sizes returns the per-axis "sizes" field.
func (h *Header) Sizes() ([]int, error) {
	v, ok := h.Get("sizes")
	if !ok {
		return nil, fmt.Errorf("%w: missing sizes", ErrInvalidHeader)
	}
	var sizes []int
	for _, tok := range strings.Fields(v) {
		n, err := strconv.Atoi(tok)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: sizes %q", ErrInvalidHeader, v)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// VoxelCount returns the product of sizes, rejecting products that do not
// fit in an int once multiplied by elemSize.
func VoxelCount(sizes []int, elemSize int) (int, error) {
	if elemSize < 1 {
		elemSize = 1
	}
	limit := math.MaxInt / elemSize
	n := 1
	for _, s := range sizes {
		if s <= 0 || n > limit/s {
			return 0, fmt.Errorf("%w: sizes %v overflow", ErrInvalidHeader, sizes)
		}
		n *= s
	}
	return n, nil
}

// Type returns the element type named by the "type" field.
func (h *Header) Type() (sample.Type, error) {
	v, ok := h.Get("type")
	if !ok {
		return sample.Invalid, fmt.Errorf("%w: missing type", ErrInvalidHeader)
	}
	t, ok := typeNames[strings.TrimSpace(v)]
	if !ok {
		return sample.Invalid, fmt.Errorf("%w: type %q", ErrUnsupported, v)
	}
	return t, nil
}

// Encoding returns the normalised "encoding" field.
func (h *Header) Encoding() (string, error) {
	v, ok := h.Get("encoding")
	if !ok {
		return "", fmt.Errorf("%w: missing encoding", ErrInvalidHeader)
	}
	switch strings.TrimSpace(v) {
	case "raw":
		return "raw", nil
	case "gzip", "gz":
		return "gzip", nil
	case "ascii", "text", "txt":
		return "ascii", nil
	default:
		return "", fmt.Errorf("%w: encoding %q", ErrUnsupported, v)
	}
}

// ByteOrder returns the order named by "endian", little endian when absent.
func (h *Header) ByteOrder() (binary.ByteOrder, error) {
	v, ok := h.Get("endian")
	if !ok {
		return binary.LittleEndian, nil
	}
	switch strings.TrimSpace(v) {
	case "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("%w: endian %q", ErrInvalidHeader, v)
	}
}

// DataFile returns the detached data file name, if any.
func (h *Header) DataFile() (string, bool) {
	return h.lookup("data file", "datafile")
}

func (h *Header) skip(keys ...string) (int, error) {
	v, ok := h.lookup(keys...)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < -1 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidHeader, keys[0], v)
	}
	return n, nil
}

// Spacing returns the voxel size along each axis from "spacings" or
// "space directions". Missing or "none" entries are zero.
func (h *Header) Spacing(dim int) []float64 {
	out := make([]float64, dim)
	if v, ok := h.Get("spacings"); ok {
		for i, tok := range strings.Fields(v) {
			if i >= dim {
				break
			}
			if f, err := strconv.ParseFloat(tok, 64); err == nil && !math.IsNaN(f) {
				out[i] = math.Abs(f)
			}
		}
		return out
	}
	if v, ok := h.Get("space directions"); ok {
		for i, tok := range strings.Fields(v) {
			if i >= dim {
				break
			}
			out[i] = vectorNorm(tok)
		}
	}
	return out
}

func vectorNorm(tok string) float64 {
	tok = strings.Trim(tok, "()")
	var sum float64
	for _, part := range strings.Split(tok, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0
		}
		sum += f * f
	}
	return math.Sqrt(sum)
}

var typeNames = map[string]sample.Type{
	"signed char": sample.Int8, "int8": sample.Int8, "int8_t": sample.Int8,
	"uchar": sample.Uint8, "unsigned char": sample.Uint8, "uint8": sample.Uint8, "uint8_t": sample.Uint8,
	"short": sample.Int16, "short int": sample.Int16, "signed short": sample.Int16,
	"signed short int": sample.Int16, "int16": sample.Int16, "int16_t": sample.Int16,
	"ushort": sample.Uint16, "unsigned short": sample.Uint16, "unsigned short int": sample.Uint16,
	"uint16": sample.Uint16, "uint16_t": sample.Uint16,
	"int": sample.Int32, "signed int": sample.Int32, "int32": sample.Int32, "int32_t": sample.Int32,
	"uint": sample.Uint32, "unsigned int": sample.Uint32, "uint32": sample.Uint32, "uint32_t": sample.Uint32,
	"longlong": sample.Int64, "long long": sample.Int64, "long long int": sample.Int64,
	"signed long long": sample.Int64, "signed long long int": sample.Int64,
	"int64": sample.Int64, "int64_t": sample.Int64,
	"ulonglong": sample.Uint64, "unsigned long long": sample.Uint64,
	"unsigned long long int": sample.Uint64, "uint64": sample.Uint64, "uint64_t": sample.Uint64,
	"float": sample.Float32,
	"double": sample.Float64,
}
