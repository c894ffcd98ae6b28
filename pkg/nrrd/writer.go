package nrrd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"niftinrrd/internal/models"
	"niftinrrd/internal/sample"
)

// fields that describe where data lives; output is always attached
var detachedFields = []string{"data file", "datafile", "byte skip", "byteskip", "line skip", "lineskip"}

// Template returns the header that Write produces for a volume of the given
// shape: template's fields in their original order with type, dimension and
// sizes taken from the array. A nil template yields a minimal header.
func Template(template *Header, shape [3]int) *Header {
	var h *Header
	if template == nil {
		h = &Header{Magic: DefaultMagic}
	} else {
		h = template.Clone()
	}
	if h.Magic == "" {
		h.Magic = DefaultMagic
	}

	h.Set("type", "double")
	h.Set("dimension", "3")
	h.Set("sizes", fmt.Sprintf("%d %d %d", shape[0], shape[1], shape[2]))
	for _, key := range detachedFields {
		h.Delete(key)
	}

	if _, err := h.Encoding(); err != nil {
		h.Set("encoding", "gzip")
	}
	if e, ok := h.Get("endian"); !ok || (e != "little" && e != "big") {
		h.Set("endian", "little")
	}
	return h
}

// Write stores v as an attached NRRD file using header as the template.
// The file is written under a temporary name and renamed into place, so a
// failed write leaves any existing file at path untouched.
func Write(path string, v *models.Volume, header *Header) (err error) {
	h := Template(header, v.Shape)

	encoding, _ := h.Encoding()
	order, _ := h.ByteOrder()

	body, err := encodeBody(v.Fortran(), encoding, order)
	if err != nil {
		return err
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(file.Name())
		}
	}()

	w := bufio.NewWriter(file)
	if err := writeHeader(w, h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Chmod(0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(file.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeHeader(w *bufio.Writer, h *Header) error {
	fmt.Fprintln(w, h.Magic)
	for _, c := range h.Comments {
		fmt.Fprintf(w, "# %s\n", c)
	}
	for _, f := range h.Fields {
		fmt.Fprintf(w, "%s: %s\n", f.Key, f.Value)
	}
	for _, kv := range h.KeyValues {
		fmt.Fprintf(w, "%s:=%s\n", kv.Key, kv.Value)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func encodeBody(values []float64, encoding string, order binary.ByteOrder) ([]byte, error) {
	if encoding == "ascii" {
		var sb strings.Builder
		for i, v := range values {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		sb.WriteByte('\n')
		return []byte(sb.String()), nil
	}

	raw, err := sample.Encode(values, sample.Float64, order)
	if err != nil {
		return nil, err
	}
	if encoding == "gzip" {
		return sample.Gzip(raw)
	}
	return raw, nil
}
