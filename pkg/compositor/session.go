package compositor

import (
	"fmt"
	"image"
	"io"
	"log"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"niftinrrd/internal/models"
	"niftinrrd/pkg/nifti"
	"niftinrrd/pkg/nrrd"
)

// DefaultOutputName is the file Convert writes next to the NRRD header file.
const DefaultOutputName = "newfile.nrrd"

// Options configures a Session.
type Options struct {
	// OutputName is the result file name, DefaultOutputName when empty
	OutputName string

	// ThresholdDivisor sets the working mask cutoff, MaskThresholdDivisor when zero
	ThresholdDivisor float64

	// Logger receives progress messages; nil discards them
	Logger *log.Logger
}

// Session is the host-owned state: loaded volumes, mask and orientation.
// Load failures leave the previous state untouched.
type Session struct {
	NRRDPath    string
	NRRD        *models.Volume
	Header      *nrrd.Header
	WorkingMask *models.Volume

	NIfTIPath string
	NIfTI     *models.Volume

	ROIPath string
	ROI     *models.Volume

	Orientation Orientation

	opts   Options
	logger *log.Logger
}

// NewSession creates an empty session in orientation 0.
func NewSession(opts Options) *Session {
	if opts.OutputName == "" {
		opts.OutputName = DefaultOutputName
	}
	if opts.ThresholdDivisor <= 0 {
		opts.ThresholdDivisor = MaskThresholdDivisor
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{opts: opts, logger: logger}
}

// LoadNRRD reads the header volume and derives the working mask from it.
func (s *Session) LoadNRRD(path string) error {
	vol, header, err := nrrd.Read(path)
	if err != nil {
		return fmt.Errorf("failed to load NRRD: %w", err)
	}
	s.NRRDPath = path
	s.NRRD = vol
	s.Header = header
	s.WorkingMask = ThresholdWith(vol, s.opts.ThresholdDivisor)
	s.logger.Printf("Loaded NRRD %s shape %v", filepath.Base(path), vol.Shape)
	return nil
}

// LoadNIfTI reads the data volume through the loader's fixed reorientation.
func (s *Session) LoadNIfTI(path string) error {
	vol, err := nifti.LoadOriented(path)
	if err != nil {
		return fmt.Errorf("failed to load NIfTI: %w", err)
	}
	s.NIfTIPath = path
	s.NIfTI = vol
	s.logger.Printf("Loaded NIfTI %s shape %v", filepath.Base(path), vol.Shape)
	return nil
}

// LoadROI reads a mask file as unsigned 8-bit values.
func (s *Session) LoadROI(path string) error {
	mask, err := nrrd.ReadMask(path)
	if err != nil {
		return fmt.Errorf("failed to load ROI: %w", err)
	}
	s.ROIPath = path
	s.ROI = mask
	s.logger.Printf("Loaded ROI %s shape %v", filepath.Base(path), mask.Shape)
	return nil
}

// ClearROI drops the overlay mask.
func (s *Session) ClearROI() {
	s.ROIPath = ""
	s.ROI = nil
}

// Transpose advances the orientation and returns the new state.
func (s *Session) Transpose() Orientation {
	s.Orientation = s.Orientation.Next()
	s.logger.Printf("Orientation %d %v", int(s.Orientation), s.Orientation)
	return s.Orientation
}

// View is a volume ready for display: reoriented, then axis-reversed for the
// display sink, with the ROI prepared the same way.
type View struct {
	Tag    string
	Volume *models.Volume
	Mask   *models.Volume
}

// Views returns one View per loaded volume, NRRD first.
func (s *Session) Views() ([]View, error) {
	var mask *models.Volume
	if s.ROI != nil {
		m, err := ApplyOrientation(s.ROI, s.Orientation)
		if err != nil {
			return nil, err
		}
		mask = m.Transpose()
	}

	var views []View
	for _, src := range []struct {
		tag string
		vol *models.Volume
	}{{"nrrd", s.NRRD}, {"nifti", s.NIfTI}} {
		if src.vol == nil {
			continue
		}
		v, err := ApplyOrientation(src.vol, s.Orientation)
		if err != nil {
			return nil, err
		}
		views = append(views, View{Tag: src.tag, Volume: v.Transpose(), Mask: mask})
	}
	return views, nil
}

// DefaultSlice is the slice a view opens on.
func (v View) DefaultSlice() int {
	return v.Volume.Shape[0] / 2
}

// Frame is everything the display sink draws for one slice.
type Frame struct {
	Index   int
	Slice   *mat.Dense
	Profile []float64

	// Overlay is nil when no ROI is loaded or it could not be composited
	Overlay *image.NRGBA

	// OverlayErr explains a dropped overlay
	OverlayErr error
}

// Frame builds the slice, central profile and overlay for slice index i.
func (v View) Frame(i int) (*Frame, error) {
	slice, err := v.Volume.Slice(i)
	if err != nil {
		return nil, err
	}
	f := &Frame{Index: i, Slice: slice, Profile: CentralProfile(slice)}
	if v.Mask == nil {
		return f, nil
	}

	overlay := BuildOverlay(v.Mask, i)
	if err := CheckOverlay(slice, overlay); err != nil {
		f.OverlayErr = err
		return f, nil
	}
	f.Overlay = overlay
	return f, nil
}

// OutputPath is where Convert writes: next to the NRRD file.
func (s *Session) OutputPath() string {
	return filepath.Join(filepath.Dir(s.NRRDPath), s.opts.OutputName)
}

// Result computes working mask times NIfTI volume.
func (s *Session) Result() (*models.Volume, error) {
	if s.Header == nil || s.NIfTI == nil {
		return nil, fmt.Errorf("%w: load both NRRD and NIfTI files first", ErrMissingInput)
	}
	return Multiply(s.WorkingMask, s.NIfTI)
}

// Convert writes the result with the original NRRD header and returns the
// output path. Nothing is written on error.
func (s *Session) Convert() (string, error) {
	result, err := s.Result()
	if err != nil {
		return "", err
	}
	path := s.OutputPath()
	if err := nrrd.Write(path, result, s.Header); err != nil {
		return "", fmt.Errorf("failed to save NRRD: %w", err)
	}
	s.logger.Printf("Saved NRRD to %s", path)
	return path, nil
}
