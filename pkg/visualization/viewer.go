package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"niftinrrd/pkg/compositor"
)

// Pen colours for the central-line plots of each view.
var ProfileColors = map[string]color.Color{
	"nrrd":  color.RGBA{B: 255, A: 255},
	"nifti": color.RGBA{R: 255, A: 255},
}

// Viewer is the display sink: it draws slices with their ROI overlay and
// plots central-line profiles to image files.
type Viewer struct {
	// scale is the integer zoom applied to slice images
	scale int

	// plot size in inches
	plotWidth  float64
	plotHeight float64

	logger *log.Logger
}

// NewViewer creates a viewer. A nil logger discards warnings.
func NewViewer(scale int, plotWidth, plotHeight float64, logger *log.Logger) *Viewer {
	if scale < 1 {
		scale = 1
	}
	if plotWidth <= 0 {
		plotWidth = 8
	}
	if plotHeight <= 0 {
		plotHeight = 4
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Viewer{
		scale:      scale,
		plotWidth:  plotWidth,
		plotHeight: plotHeight,
		logger:     logger,
	}
}

// Grayscale maps a slice to 8-bit gray using its own min/max as the window.
// Column c, row r of the slice becomes pixel (c, r).
func Grayscale(slice mat.Matrix) *image.Gray {
	rows, cols := slice.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	lo, hi := mat.Min(slice), mat.Max(slice)
	span := hi - lo

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var y uint8
			if span > 0 {
				y = uint8((slice.At(r, c) - lo) / span * 255)
			}
			img.SetGray(c, r, color.Gray{Y: y})
		}
	}
	return img
}

// RenderFrame draws a frame's slice with its overlay composited on top,
// zoomed by the viewer scale.
func (v *Viewer) RenderFrame(frame *compositor.Frame) *image.NRGBA {
	base := Grayscale(frame.Slice)
	b := base.Bounds()

	canvas := image.NewNRGBA(b)
	draw.Draw(canvas, b, base, b.Min, draw.Src)
	if frame.Overlay != nil {
		draw.Draw(canvas, b, frame.Overlay, frame.Overlay.Bounds().Min, draw.Over)
	}

	if v.scale == 1 {
		return canvas
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx()*v.scale, b.Dy()*v.scale))
	draw.NearestNeighbor.Scale(out, out.Bounds(), canvas, b, draw.Src, nil)
	return out
}

// SaveImage writes an image as PNG.
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}

// PlotProfile draws a central-line profile as a line plot.
func (v *Viewer) PlotProfile(profile []float64, title string, pen color.Color, filename string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Intensity"

	pts := make(plotter.XYs, len(profile))
	for i, value := range profile {
		pts[i] = plotter.XY{X: float64(i), Y: value}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create profile line: %w", err)
	}
	line.Color = pen
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(vg.Length(v.plotWidth)*vg.Inch, vg.Length(v.plotHeight)*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", filename, err)
	}
	return nil
}

// SaveView renders slice index of a view and its central-line plot into
// outputDir and returns the written paths. A dropped overlay is logged and
// the slice is drawn without it.
func (v *Viewer) SaveView(view compositor.View, index int, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	frame, err := view.Frame(index)
	if err != nil {
		return nil, err
	}
	if frame.OverlayErr != nil {
		v.logger.Printf("Warning: ROI overlay skipped for %s slice %d: %v", view.Tag, index, frame.OverlayErr)
	}

	slicePath := filepath.Join(outputDir, fmt.Sprintf("%s_slice_%03d.png", view.Tag, index))
	if err := v.SaveImage(v.RenderFrame(frame), slicePath); err != nil {
		return nil, err
	}

	pen, ok := ProfileColors[view.Tag]
	if !ok {
		pen = color.Black
	}
	plotPath := filepath.Join(outputDir, fmt.Sprintf("%s_profile_%03d.png", view.Tag, index))
	title := fmt.Sprintf("%s Central Line", view.Tag)
	if err := v.PlotProfile(frame.Profile, title, pen, plotPath); err != nil {
		return nil, err
	}
	return []string{slicePath, plotPath}, nil
}

// SaveSliceSequence renders every slice of a view into outputDir.
func (v *Viewer) SaveSliceSequence(view compositor.View, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < view.Volume.Shape[0]; pos++ {
		frame, err := view.Frame(pos)
		if err != nil {
			return err
		}
		if frame.OverlayErr != nil && pos == 0 {
			v.logger.Printf("Warning: ROI overlay skipped for %s: %v", view.Tag, frame.OverlayErr)
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_slice_%03d.png", view.Tag, pos))
		if err := v.SaveImage(v.RenderFrame(frame), filename); err != nil {
			return err
		}
	}
	return nil
}
