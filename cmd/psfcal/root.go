package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/psfcal/internal/config"
	"github.com/cjeanneret/psfcal/internal/debug"
	"github.com/cjeanneret/psfcal/internal/hw/camera"
	"github.com/cjeanneret/psfcal/internal/hw/gpio"
	"github.com/cjeanneret/psfcal/internal/hw/mux"
	"github.com/cjeanneret/psfcal/internal/logic/session"
)

var defaultConfigPath = filepath.Join("configs", "default.yaml")

// options holds the command-line overrides.
type options struct {
	configPath string
	camera     string
	baseDir    string
	mock       bool
	resume     bool
	debugLevel int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "psfcal",
		Short: "Capture PSF calibration frames from one sensor of a multiplexed camera rig",
		Long: `psfcal routes one sensor of a four-camera multiplexer, fixes its exposure,
opens a preview and saves a PNG frame each time Enter is pressed.

Frames are written to <base_dir>/stitchImgs_Cam<X>/img1.png, img2.png, ...
Type x and Enter to end the session.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a := &app{
				cfg:       cfg,
				resume:    opts.resume,
				in:        cmd.InOrStdin(),
				out:       cmd.OutOrStdout(),
				newDriver: gpio.NewDriver,
				newCamera: newCameraFromConfig,
				sleep:     time.Sleep,
			}
			_, err = a.run(cmd.Context())
			return err
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", defaultConfigPath, "path to config file")
	pf.StringVar(&opts.camera, "camera", "", "camera to select (A, B, C or D)")
	pf.BoolVar(&opts.mock, "mock", false, "use mock GPIO and camera (no hardware)")
	pf.IntVar(&opts.debugLevel, "debug", 0, "debug level 0-4")

	cmd.Flags().StringVar(&opts.baseDir, "base-dir", "", "folder receiving stitchImgs_Cam<X>/")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "continue numbering after existing frames instead of starting at img1.png")

	cmd.AddCommand(newPinsCmd(opts))

	return cmd
}

func newPinsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pins",
		Short: "Print the camera select table without touching the hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			pins, err := resolvePins(cfg)
			if err != nil {
				return err
			}
			return printPinTable(cmd.OutOrStdout(), cfg, pins)
		},
	}
}

// loadConfig reads the config file, then applies environment and flag
// overrides. A missing default config file falls back to built-in values.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	var cfg *config.Config
	explicit := cmd.Flags().Changed("config")
	if _, err := os.Stat(opts.configPath); !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config failed: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if err := applyFlags(cfg, cmd, opts); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags mutates cfg with the flags the user actually set.
func applyFlags(cfg *config.Config, cmd *cobra.Command, opts *options) error {
	flags := cmd.Flags()
	if flags.Changed("camera") {
		cfg.Camera.Select = opts.camera
	}
	if flags.Changed("base-dir") {
		cfg.Output.BaseDir = opts.baseDir
	}
	if flags.Changed("mock") && opts.mock {
		cfg.Defaults.MockGPIO = true
		cfg.Camera.Backend = "mock"
	}
	if flags.Changed("debug") {
		if opts.debugLevel < 0 || opts.debugLevel > 4 {
			return fmt.Errorf("debug level must be between 0 and 4, got %d", opts.debugLevel)
		}
		cfg.Defaults.DebugLevel = opts.debugLevel
	}
	return nil
}

// app wires the hardware for one capture session.
type app struct {
	cfg       *config.Config
	resume    bool
	in        io.Reader
	out       io.Writer
	newDriver func(mock bool) (gpio.Driver, error)
	newCamera func(cfg *config.Config) (camera.Camera, error)
	sleep     func(time.Duration)
}

// run performs the whole session: select the sensor, configure it once,
// warm up, preview, capture on demand and release everything on return.
func (a *app) run(ctx context.Context) (session.Summary, error) {
	cfg := a.cfg

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Camera", cfg.Camera.Select)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing GPIO driver")
	pins, err := resolvePins(cfg)
	if err != nil {
		return session.Summary{}, err
	}
	gpioDriver, err := a.newDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return session.Summary{}, fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
		}
	}()

	debug.Step(2, "Selecting camera")
	selector := mux.NewSelector(gpioDriver, pins)
	if err := selector.Init(); err != nil {
		return session.Summary{}, fmt.Errorf("init selector failed: %w", err)
	}
	if _, err := selector.Select(cfg.Camera.Select); err != nil {
		return session.Summary{}, err
	}

	debug.Step(3, "Opening camera")
	cam, err := a.newCamera(cfg)
	if err != nil {
		return session.Summary{}, fmt.Errorf("init camera failed: %w", err)
	}
	defer func() {
		if err := cam.Close(); err != nil {
			debug.Error(fmt.Errorf("closing camera failed: %w", err))
		}
	}()

	sess, err := session.New(cam, session.Params{
		Dir:         cfg.SaveFolder(),
		SettleDelay: cfg.SettleDelay(),
		Resume:      a.resume,
		Out:         a.out,
	})
	if err != nil {
		return session.Summary{}, err
	}

	debug.Step(4, "Configuring camera")
	if err := cam.Configure(settingsFromConfig(cfg)); err != nil {
		return session.Summary{}, err
	}

	fmt.Fprintf(a.out, "Exposure adjustments in progress. Camera will sleep for %v...\n", cfg.WarmupDelay())
	a.sleep(cfg.WarmupDelay())

	debug.Step(5, "Starting preview")
	p := cfg.Camera.Preview
	if err := cam.StartPreview(camera.Window{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}); err != nil {
		return session.Summary{}, err
	}

	debug.Section("Capture Session")
	summary, runErr := sess.Run(ctx, session.NewConsoleOperator(a.in, a.out))

	if err := cam.StopPreview(); err != nil {
		debug.Error(err)
	}
	if runErr != nil {
		return summary, runErr
	}

	debug.Summary("Session Complete")
	debug.Value("Session", summary.ID)
	debug.Value("Frames captured", summary.Captured)
	fmt.Fprintf(a.out, "%d image(s) saved to %s\n", summary.Captured, summary.Dir)
	return summary, nil
}

// settingsFromConfig builds the fixed camera settings for the session.
func settingsFromConfig(cfg *config.Config) camera.Settings {
	return camera.Settings{
		Width:        cfg.Camera.Width,
		Height:       cfg.Camera.Height,
		FrameRate:    cfg.Camera.FrameRate,
		ISO:          *cfg.Camera.ISO,
		Saturation:   *cfg.Camera.Saturation,
		ExposureMode: cfg.Camera.ExposureMode,
		ShutterSpeed: cfg.ShutterSpeed(),
	}
}

// resolvePins converts the configured pins to BCM numbers.
func resolvePins(cfg *config.Config) (mux.Pins, error) {
	n := gpio.Numbering(cfg.GPIO.Numbering)
	var pins mux.Pins
	if len(cfg.GPIO.SelectPins) != len(pins.Select) {
		return pins, fmt.Errorf("expected %d select pins, got %d", len(pins.Select), len(cfg.GPIO.SelectPins))
	}
	for i, pin := range cfg.GPIO.SelectPins {
		bcm, err := gpio.ResolvePin(n, pin)
		if err != nil {
			return pins, fmt.Errorf("select pin: %w", err)
		}
		pins.Select[i] = bcm
	}
	for _, pin := range cfg.GPIO.HoldHighPins {
		bcm, err := gpio.ResolvePin(n, pin)
		if err != nil {
			return pins, fmt.Errorf("hold-high pin: %w", err)
		}
		pins.HoldHigh = append(pins.HoldHigh, bcm)
	}
	return pins, nil
}

func printPinTable(w io.Writer, cfg *config.Config, pins mux.Pins) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "CAMERA")
	for i, pin := range cfg.GPIO.SelectPins {
		fmt.Fprintf(tw, "\t%s %d (BCM %d)", cfg.GPIO.Numbering, pin, pins.Select[i])
	}
	fmt.Fprintln(tw)
	for _, e := range mux.Table() {
		fmt.Fprint(tw, e.Camera)
		for _, lvl := range e.Pattern {
			fmt.Fprintf(tw, "\t%s", lvl)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Held HIGH: %v (BCM %v)\n", cfg.GPIO.HoldHighPins, pins.HoldHigh)
	if _, known := mux.ParseCamera(cfg.Camera.Select); !known {
		fmt.Fprintf(w, "Configured camera %q is not A-D and will use the D pattern\n", cfg.Camera.Select)
	}
	return nil
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Backend {
	case "rpicam":
		return camera.NewRpicam(cfg.Camera.StillCmd, cfg.Camera.PreviewCmd), nil
	case "mock":
		return camera.NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported camera backend: %s", cfg.Camera.Backend)
	}
}
