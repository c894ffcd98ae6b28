package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"niftinrrd/pkg/compositor"
	"niftinrrd/pkg/config"
	"niftinrrd/pkg/nifti"
	"niftinrrd/pkg/nrrd"
	"niftinrrd/pkg/visualization"
)

const usage = `usage: niftinrrd <command> [flags]

commands:
  convert      write threshold(NRRD) * NIfTI to newfile.nrrd next to the NRRD file
  view         render slices, ROI overlay and central-line plots to PNG
  info         print shape, spacing and statistics of volume files
  init-config  write a default configuration file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "view":
		err = runView(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "init-config":
		err = runInitConfig(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

// inputs holds the flags shared by convert and view.
type inputs struct {
	configPath string
	nrrdPath   string
	niftiPath  string
	roiPath    string
}

func (in *inputs) register(fs *flag.FlagSet, withROI bool) {
	fs.StringVar(&in.configPath, "config", "niftinrrd.yaml", "Configuration file (YAML)")
	fs.StringVar(&in.nrrdPath, "nrrd", "", "NRRD header volume (default: last used)")
	fs.StringVar(&in.niftiPath, "nifti", "", "NIfTI volume (.nii, .nii.gz) (default: last used)")
	if withROI {
		fs.StringVar(&in.roiPath, "roi", "", "ROI mask NRRD (default: none)")
	}
}

// session loads the config and every given input into a new session.
func (in *inputs) session() (*compositor.Session, *config.Config, *log.Logger, error) {
	cfg, err := config.LoadConfig(in.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if in.nrrdPath == "" {
		in.nrrdPath = cfg.Recent.NRRD
	}
	if in.niftiPath == "" {
		in.niftiPath = cfg.Recent.NIfTI
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Output.Verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	s := compositor.NewSession(compositor.Options{
		OutputName:       cfg.Output.FileName,
		ThresholdDivisor: cfg.Mask.ThresholdDivisor,
		Logger:           logger,
	})
	if in.nrrdPath != "" {
		if err := s.LoadNRRD(in.nrrdPath); err != nil {
			return nil, nil, nil, err
		}
	}
	if in.niftiPath != "" {
		if err := s.LoadNIfTI(in.niftiPath); err != nil {
			return nil, nil, nil, err
		}
	}
	if in.roiPath != "" {
		if err := s.LoadROI(in.roiPath); err != nil {
			return nil, nil, nil, err
		}
	}
	return s, cfg, logger, nil
}

// remember stores the inputs of a successful run as the new defaults.
func (in *inputs) remember(cfg *config.Config, logger *log.Logger) {
	cfg.Remember(in.nrrdPath, in.niftiPath, in.roiPath)
	if err := config.SaveConfig(cfg, in.configPath); err != nil {
		logger.Printf("Warning: failed to save recent paths: %v", err)
	}
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	var in inputs
	in.register(fs, false)
	fs.Parse(args)

	s, cfg, logger, err := in.session()
	if err != nil {
		return err
	}

	path, err := s.Convert()
	if err != nil {
		return err
	}
	in.remember(cfg, logger)
	fmt.Printf("Saved NRRD to: %s\n", path)
	return nil
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	var in inputs
	in.register(fs, true)
	transposes := fs.Int("transpose", 0, "Number of transpose triggers to apply (orientation cycles 0, 1, 2)")
	slice := fs.Int("slice", -1, "Slice index to render (default: middle slice)")
	all := fs.Bool("all", false, "Render every slice instead of a single one")
	outputDir := fs.String("out", "views", "Directory for rendered images")
	scale := fs.Int("scale", 0, "Zoom factor for slice images (default: from config)")
	fs.Parse(args)

	s, cfg, logger, err := in.session()
	if err != nil {
		return err
	}
	if s.NRRD == nil && s.NIfTI == nil {
		return fmt.Errorf("%w: nothing to view", compositor.ErrMissingInput)
	}
	for i := 0; i < *transposes; i++ {
		s.Transpose()
	}
	if *scale > 0 {
		cfg.Display.Scale = *scale
	}

	views, err := s.Views()
	if err != nil {
		return err
	}
	viewer := visualization.NewViewer(cfg.Display.Scale, cfg.Display.PlotWidth, cfg.Display.PlotHeight, logger)

	fmt.Printf("Orientation %d %v\n", int(s.Orientation), s.Orientation)
	for _, view := range views {
		if *all {
			dir := filepath.Join(*outputDir, view.Tag)
			if err := viewer.SaveSliceSequence(view, dir); err != nil {
				return err
			}
			fmt.Printf("Saved %d %s slices to: %s\n", view.Volume.Shape[0], view.Tag, dir)
			continue
		}

		idx := *slice
		if idx < 0 {
			idx = view.DefaultSlice()
		}
		paths, err := viewer.SaveView(view, idx, *outputDir)
		if err != nil {
			return fmt.Errorf("%s view: %w", view.Tag, err)
		}
		fmt.Printf("%s %v slice %d: %s\n", view.Tag, view.Volume.Shape, idx, strings.Join(paths, ", "))
	}

	in.remember(cfg, logger)
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	headers := fs.Bool("header", false, "Also print NRRD header fields")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: no files given", compositor.ErrMissingInput)
	}

	for _, path := range fs.Args() {
		fmt.Printf("%s\n", path)
		switch {
		case strings.HasSuffix(path, ".nrrd") || strings.HasSuffix(path, ".nhdr"):
			vol, h, err := nrrd.Read(path)
			if err != nil {
				return err
			}
			st := vol.Describe()
			fmt.Printf("  shape %v spacing %v\n", vol.Shape, vol.Spacing)
			fmt.Printf("  min %.4g max %.4g mean %.4g std %.4g\n", st.Min, st.Max, st.Mean, st.StdDev)
			if *headers {
				for _, f := range h.Fields {
					fmt.Printf("  %s: %s\n", f.Key, f.Value)
				}
				for _, kv := range h.KeyValues {
					fmt.Printf("  %s:=%s\n", kv.Key, kv.Value)
				}
			}
		default:
			vol, h, err := nifti.Load(path)
			if err != nil {
				return err
			}
			st := vol.Describe()
			fmt.Printf("  shape %v spacing %v datatype %d\n", vol.Shape, vol.Spacing, h.Datatype)
			fmt.Printf("  min %.4g max %.4g mean %.4g std %.4g\n", st.Min, st.Max, st.Mean, st.StdDev)
		}
	}
	return nil
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	path := fs.String("config", "niftinrrd.yaml", "Configuration file to create")
	fs.Parse(args)

	if err := config.CreateDefaultConfigFile(*path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to: %s\n", *path)
	return nil
}
