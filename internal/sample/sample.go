// Package sample decodes and encodes the scalar element types shared by the
// NIfTI and NRRD file formats.
package sample

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
)

// Type is a scalar element type.
type Type int

const (
	Invalid Type = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

// Size returns the number of bytes one element occupies.
func (t Type) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// Decode converts n raw elements of type t to float64.
func Decode(buf []byte, n int, t Type, order binary.ByteOrder) ([]float64, error) {
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("unsupported element type %v", t)
	}
	if n < 0 || n > math.MaxInt/size {
		return nil, fmt.Errorf("invalid element count %d", n)
	}
	if len(buf) < n*size {
		return nil, fmt.Errorf("truncated data: need %d bytes, have %d", n*size, len(buf))
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := buf[i*size : (i+1)*size]
		switch t {
		case Int8:
			out[i] = float64(int8(b[0]))
		case Uint8:
			out[i] = float64(b[0])
		case Int16:
			out[i] = float64(int16(order.Uint16(b)))
		case Uint16:
			out[i] = float64(order.Uint16(b))
		case Int32:
			out[i] = float64(int32(order.Uint32(b)))
		case Uint32:
			out[i] = float64(order.Uint32(b))
		case Int64:
			out[i] = float64(int64(order.Uint64(b)))
		case Uint64:
			out[i] = float64(order.Uint64(b))
		case Float32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case Float64:
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out, nil
}

// Encode converts float64 values to raw elements of type t.
// Integer types truncate toward zero.
func Encode(values []float64, t Type, order binary.ByteOrder) ([]byte, error) {
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("unsupported element type %v", t)
	}

	out := make([]byte, len(values)*size)
	for i, v := range values {
		b := out[i*size : (i+1)*size]
		switch t {
		case Int8:
			b[0] = byte(int8(v))
		case Uint8:
			b[0] = uint8(v)
		case Int16:
			order.PutUint16(b, uint16(int16(v)))
		case Uint16:
			order.PutUint16(b, uint16(v))
		case Int32:
			order.PutUint32(b, uint32(int32(v)))
		case Uint32:
			order.PutUint32(b, uint32(v))
		case Int64:
			order.PutUint64(b, uint64(int64(v)))
		case Uint64:
			order.PutUint64(b, uint64(v))
		case Float32:
			order.PutUint32(b, math.Float32bits(float32(v)))
		case Float64:
			order.PutUint64(b, math.Float64bits(v))
		}
	}
	return out, nil
}

// IsGzip reports whether buf starts with the gzip magic bytes.
func IsGzip(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == 0x1f && buf[1] == 0x8b
}

// Gunzip decompresses a whole gzip stream.
func Gunzip(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return data, nil
}

// Gzip compresses buf at the default level.
func Gzip(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	return out.Bytes(), nil
}
