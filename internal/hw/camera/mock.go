package camera

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/cjeanneret/psfcal/internal/debug"
)

// Mock is a Camera that writes flat grey frames of the configured size.
// It records lifecycle calls so tests and dry runs can inspect them.
type Mock struct {
	Settings   Settings
	Configures int
	Previewing bool
	Captures   []string
	Closed     bool
}

// NewMock creates an unconfigured mock camera.
func NewMock() *Mock {
	debug.Info("Using MOCK camera (development mode)")
	return &Mock{}
}

func (m *Mock) Configure(s Settings) error {
	if m.Closed {
		return ErrClosed
	}
	if m.Configures > 0 {
		return ErrAlreadyConfigured
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("configure camera: %w", err)
	}
	m.Settings = s
	m.Configures++
	debug.PrintStruct("Mock camera settings", s)
	return nil
}

func (m *Mock) StartPreview(w Window) error {
	if m.Closed {
		return ErrClosed
	}
	if m.Configures == 0 {
		return ErrNotConfigured
	}
	m.Previewing = true
	debug.Live("Mock preview started at %+v", w)
	return nil
}

func (m *Mock) StopPreview() error {
	m.Previewing = false
	return nil
}

func (m *Mock) Capture(path string) error {
	if m.Closed {
		return ErrClosed
	}
	if m.Configures == 0 {
		return ErrNotConfigured
	}

	img := image.NewGray(image.Rect(0, 0, m.Settings.Width, m.Settings.Height))
	grey := color.Gray{Y: 128}
	for y := 0; y < m.Settings.Height; y++ {
		for x := 0; x < m.Settings.Width; x++ {
			img.SetGray(x, y, grey)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode %s: %v", ErrCaptureFailed, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	m.Captures = append(m.Captures, path)
	return nil
}

func (m *Mock) Close() error {
	m.Previewing = false
	m.Closed = true
	return nil
}
