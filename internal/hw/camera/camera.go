package camera

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCaptureFailed wraps any failure to produce a still image.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrNotConfigured is returned when a capture or preview is requested
	// before Configure.
	ErrNotConfigured = errors.New("camera not configured")
	// ErrAlreadyConfigured is returned by a second Configure call; settings
	// are fixed for the whole session.
	ErrAlreadyConfigured = errors.New("camera already configured")
	// ErrClosed is returned by any call after Close.
	ErrClosed = errors.New("camera closed")
	// ErrPreviewLost is returned by Capture when the frame was written but
	// the preview could not be restarted afterwards.
	ErrPreviewLost = errors.New("preview not restarted")
)

// Exposure modes understood by the backends. "off" fixes shutter and gain.
const (
	ExposureOff    = "off"
	ExposureNormal = "normal"
	ExposureSport  = "sport"
	ExposureLong   = "long"
)

// Settings is the fixed parameter bundle applied once per session.
type Settings struct {
	Width        int
	Height       int
	FrameRate    float64
	ISO          int           // 0 leaves gain automatic
	Saturation   int           // -100 (greyscale) to 100
	ExposureMode string        // see Exposure* constants
	ShutterSpeed time.Duration // 0 leaves shutter automatic
}

// Validate checks ranges before anything reaches the sensor.
func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", s.Width, s.Height)
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("framerate must be > 0, got %g", s.FrameRate)
	}
	if s.ISO < 0 || s.ISO > 1600 {
		return fmt.Errorf("iso must be between 0 and 1600, got %d", s.ISO)
	}
	if s.Saturation < -100 || s.Saturation > 100 {
		return fmt.Errorf("saturation must be between -100 and 100, got %d", s.Saturation)
	}
	if s.ShutterSpeed < 0 {
		return fmt.Errorf("shutter speed must be >= 0, got %v", s.ShutterSpeed)
	}
	switch s.ExposureMode {
	case ExposureOff, ExposureNormal, ExposureSport, ExposureLong:
	default:
		return fmt.Errorf("unknown exposure mode %q", s.ExposureMode)
	}
	if s.ExposureMode == ExposureOff && s.ShutterSpeed == 0 {
		return fmt.Errorf("exposure mode off needs a fixed shutter speed")
	}
	return nil
}

// Window is the preview overlay rectangle in screen pixels.
type Window struct {
	X, Y          int
	Width, Height int
}

// Camera is a single exclusively-held imaging sensor.
//
// Configure must be called exactly once before StartPreview or Capture.
// Close releases the sensor, stopping the preview if needed, and is safe
// to call more than once.
type Camera interface {
	Configure(s Settings) error
	StartPreview(w Window) error
	StopPreview() error
	// Capture writes one still PNG image to path.
	Capture(path string) error
	Close() error
}
