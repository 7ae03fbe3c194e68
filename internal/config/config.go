package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Environment variables that override the file (after .env loading).
const (
	EnvCamera     = "PSFCAL_CAMERA"
	EnvBaseDir    = "PSFCAL_BASE_DIR"
	EnvMockGPIO   = "PSFCAL_MOCK_GPIO"
	EnvDebugLevel = "PSFCAL_DEBUG_LEVEL"
)

// GPIOConfig describes the multiplexer wiring.
type GPIOConfig struct {
	Numbering    string `yaml:"numbering"`      // "board" (default) or "bcm"
	SelectPins   []int  `yaml:"select_pins"`    // exactly three select lines
	HoldHighPins []int  `yaml:"hold_high_pins"` // driven high for the whole session
}

// PreviewConfig is the preview overlay window.
type PreviewConfig struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CameraConfig holds the sensor choice and its fixed session settings.
type CameraConfig struct {
	Select       string        `yaml:"select"`        // A, B, C or D
	Backend      string        `yaml:"backend"`       // "rpicam" or "mock"
	StillCmd     string        `yaml:"still_cmd"`     // e.g., "rpicam-still"
	PreviewCmd   string        `yaml:"preview_cmd"`   // e.g., "rpicam-hello"
	Width        int           `yaml:"width"`         // pixels
	Height       int           `yaml:"height"`        // pixels
	FrameRate    float64       `yaml:"framerate"`     // frames per second
	ISO          *int          `yaml:"iso"`           // sensor sensitivity, 0 leaves gain automatic
	Saturation   *int          `yaml:"saturation"`    // -100..100, default -100
	ExposureMode string        `yaml:"exposure_mode"` // "off" fixes shutter and gain
	ShutterUs    int           `yaml:"shutter_us"`    // shutter speed (µs)
	WarmupMs     int           `yaml:"warmup_ms"`     // exposure settle time after configuration
	SettleMs     int           `yaml:"settle_ms"`     // delay between keypress and capture
	Preview      PreviewConfig `yaml:"preview"`
}

// OutputConfig describes where frames are written.
type OutputConfig struct {
	BaseDir string `yaml:"base_dir"` // stitchImgs_Cam<X>/ is created below it
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Camera   CameraConfig   `yaml:"camera"`
	Output   OutputConfig   `yaml:"output"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path is a .yaml file directly inside a
// configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain ..", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension, got %q", filepath.Ext(clean))
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory, got %q", path)
	}
	return nil
}

// Default returns the configuration used when no file sets a field.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GPIO.Numbering == "" {
		c.GPIO.Numbering = "board"
	}
	if len(c.GPIO.SelectPins) == 0 {
		c.GPIO.SelectPins = []int{7, 11, 12}
	}
	if c.GPIO.HoldHighPins == nil {
		c.GPIO.HoldHighPins = []int{15, 16, 21, 22}
	}

	if c.Camera.Select == "" {
		c.Camera.Select = "D"
	}
	if c.Camera.Backend == "" {
		c.Camera.Backend = "rpicam"
	}
	if c.Camera.Width <= 0 {
		c.Camera.Width = 1000
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = 1000
	}
	if c.Camera.FrameRate <= 0 {
		c.Camera.FrameRate = 10
	}
	if c.Camera.ISO == nil {
		iso := 200
		c.Camera.ISO = &iso
	}
	if c.Camera.Saturation == nil {
		sat := -100 // fully desaturated
		c.Camera.Saturation = &sat
	}
	if c.Camera.ExposureMode == "" {
		c.Camera.ExposureMode = "off"
	}
	if c.Camera.ShutterUs <= 0 {
		c.Camera.ShutterUs = 2000
	}
	if c.Camera.WarmupMs <= 0 {
		c.Camera.WarmupMs = 5000
	}
	if c.Camera.SettleMs <= 0 {
		c.Camera.SettleMs = 1000
	}
	if c.Camera.Preview.Width <= 0 {
		c.Camera.Preview.Width = 500
	}
	if c.Camera.Preview.Height <= 0 {
		c.Camera.Preview.Height = 500
	}

	if c.Output.BaseDir == "" {
		c.Output.BaseDir = "/home/pi/Documents/Multi-Sensor DiffuserCam"
	}
}

// Validate checks ranges that have no sensible default.
// An unknown camera.select is accepted; the selector falls back to D.
func (c *Config) Validate() error {
	switch c.GPIO.Numbering {
	case "board", "bcm":
	default:
		return fmt.Errorf("gpio.numbering must be board or bcm, got %q", c.GPIO.Numbering)
	}
	if len(c.GPIO.SelectPins) != 3 {
		return fmt.Errorf("gpio.select_pins must list 3 pins, got %d", len(c.GPIO.SelectPins))
	}
	switch c.Camera.Backend {
	case "rpicam", "mock":
	default:
		return fmt.Errorf("unsupported camera backend: %s", c.Camera.Backend)
	}
	if iso := *c.Camera.ISO; iso < 0 || iso > 1600 {
		return fmt.Errorf("camera.iso must be between 0 and 1600, got %d", iso)
	}
	if sat := *c.Camera.Saturation; sat < -100 || sat > 100 {
		return fmt.Errorf("camera.saturation must be between -100 and 100, got %d", sat)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ApplyEnv overrides fields from PSFCAL_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCamera); ok && v != "" {
		c.Camera.Select = v
	}
	if v, ok := lookup(EnvBaseDir); ok && v != "" {
		c.Output.BaseDir = v
	}
	if v, ok := lookup(EnvMockGPIO); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMockGPIO, err)
		}
		c.Defaults.MockGPIO = b
	}
	if v, ok := lookup(EnvDebugLevel); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebugLevel, err)
		}
		if n < 0 || n > 4 {
			return fmt.Errorf("%s must be between 0 and 4, got %d", EnvDebugLevel, n)
		}
		c.Defaults.DebugLevel = n
	}
	return nil
}

// SaveFolder returns <base_dir>/stitchImgs_Cam<select>.
func (c *Config) SaveFolder() string {
	return filepath.Join(c.Output.BaseDir, "stitchImgs_Cam"+c.Camera.Select)
}

// ShutterSpeed returns the fixed shutter speed.
func (c *Config) ShutterSpeed() time.Duration {
	return time.Duration(c.Camera.ShutterUs) * time.Microsecond
}

// WarmupDelay returns the exposure settle time after configuration.
func (c *Config) WarmupDelay() time.Duration {
	return time.Duration(c.Camera.WarmupMs) * time.Millisecond
}

// SettleDelay returns the delay between a keypress and the capture.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Camera.SettleMs) * time.Millisecond
}
