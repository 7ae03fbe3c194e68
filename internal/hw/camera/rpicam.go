package camera

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/psfcal/internal/debug"
)

// Default libcamera application names (Raspberry Pi OS Bookworm).
const (
	DefaultStillCmd   = "rpicam-still"
	DefaultPreviewCmd = "rpicam-hello"
)

// previewStopTimeout bounds how long a preview process may take to exit
// after an interrupt before it is killed.
const previewStopTimeout = 3 * time.Second

// process is a running background command.
type process interface {
	Stop() error
}

// runner launches external commands.
type runner interface {
	LookPath(name string) error
	Run(name string, args ...string) error
	Start(name string, args ...string) (process, error)
}

// Rpicam drives a CSI sensor through the libcamera apps.
//
// The sensor can only be opened by one process at a time, so a capture
// pauses the preview process, runs the still command and resumes the
// preview with the same window.
type Rpicam struct {
	stillCmd   string
	previewCmd string
	run        runner

	settings   Settings
	configured bool
	window     Window
	preview    process
	closed     bool
}

// NewRpicam creates a camera using the given libcamera app names.
// Empty names select the defaults.
func NewRpicam(stillCmd, previewCmd string) *Rpicam {
	if stillCmd == "" {
		stillCmd = DefaultStillCmd
	}
	if previewCmd == "" {
		previewCmd = DefaultPreviewCmd
	}
	return &Rpicam{
		stillCmd:   stillCmd,
		previewCmd: previewCmd,
		run:        execRunner{},
	}
}

// Configure fixes the session settings. It fails if the still command is
// not installed.
func (r *Rpicam) Configure(s Settings) error {
	if r.closed {
		return ErrClosed
	}
	if r.configured {
		return ErrAlreadyConfigured
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("configure camera: %w", err)
	}
	if err := r.run.LookPath(r.stillCmd); err != nil {
		return fmt.Errorf("configure camera: %w", err)
	}

	r.settings = s
	r.configured = true
	debug.PrintStruct("Camera settings", s)
	debug.Verbose("Camera args: %s", strings.Join(r.settingsArgs(), " "))
	return nil
}

// StartPreview launches the preview overlay in the given window.
func (r *Rpicam) StartPreview(w Window) error {
	if r.closed {
		return ErrClosed
	}
	if !r.configured {
		return ErrNotConfigured
	}
	if r.preview != nil {
		return nil
	}
	r.window = w
	return r.startPreview()
}

func (r *Rpicam) startPreview() error {
	args := append([]string{
		"-t", "0",
		"-p", fmt.Sprintf("%d,%d,%d,%d", r.window.X, r.window.Y, r.window.Width, r.window.Height),
	}, r.settingsArgs()...)

	debug.Verbose("Starting preview: %s %s", r.previewCmd, strings.Join(args, " "))
	p, err := r.run.Start(r.previewCmd, args...)
	if err != nil {
		return fmt.Errorf("start preview: %w", err)
	}
	r.preview = p
	debug.Live("Preview started")
	return nil
}

// StopPreview stops the preview overlay if it is running.
func (r *Rpicam) StopPreview() error {
	if r.preview == nil {
		return nil
	}
	err := r.preview.Stop()
	r.preview = nil
	if err != nil {
		return fmt.Errorf("stop preview: %w", err)
	}
	debug.Live("Preview stopped")
	return nil
}

// Capture writes one PNG still to path, pausing the preview around it.
// If only the preview restart fails, the frame is kept and ErrPreviewLost
// is returned.
func (r *Rpicam) Capture(path string) error {
	if r.closed {
		return ErrClosed
	}
	if !r.configured {
		return ErrNotConfigured
	}

	resume := r.preview != nil
	if resume {
		if err := r.StopPreview(); err != nil {
			return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
	}

	args := append([]string{"-n", "--immediate", "-e", "png", "-o", path}, r.settingsArgs()...)
	debug.Verbose("Capturing: %s %s", r.stillCmd, strings.Join(args, " "))
	runErr := r.run.Run(r.stillCmd, args...)

	var previewErr error
	if resume {
		previewErr = r.startPreview()
		if previewErr != nil {
			debug.Error(previewErr)
		}
	}

	if runErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrCaptureFailed, path, runErr)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s not written: %v", ErrCaptureFailed, path, err)
	}
	if previewErr != nil {
		return fmt.Errorf("%w: %v", ErrPreviewLost, previewErr)
	}
	return nil
}

// Close stops the preview and releases the sensor.
func (r *Rpicam) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.StopPreview()
}

// settingsArgs translates Settings into libcamera app options.
func (r *Rpicam) settingsArgs() []string {
	s := r.settings
	args := []string{
		"--width", strconv.Itoa(s.Width),
		"--height", strconv.Itoa(s.Height),
		"--framerate", strconv.FormatFloat(s.FrameRate, 'f', -1, 64),
		"--saturation", strconv.FormatFloat(saturationScale(s.Saturation), 'f', -1, 64),
	}
	if s.ExposureMode != ExposureOff {
		args = append(args, "--exposure", s.ExposureMode)
	}
	if s.ShutterSpeed > 0 {
		args = append(args, "--shutter", strconv.FormatInt(s.ShutterSpeed.Microseconds(), 10))
	}
	if s.ISO > 0 {
		args = append(args, "--gain", strconv.FormatFloat(isoGain(s.ISO), 'f', -1, 64))
	}
	return args
}

// saturationScale maps -100..100 onto libcamera's 0..2 (1 = unchanged).
func saturationScale(sat int) float64 {
	return float64(sat+100) / 100
}

// isoGain maps ISO onto analogue gain, ISO 100 being unity.
func isoGain(iso int) float64 {
	return float64(iso) / 100
}

// execRunner runs commands on the host.
type execRunner struct{}

func (execRunner) LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found: %w", name, err)
	}
	return nil
}

func (execRunner) Run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, lastLine(msg))
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (execRunner) Start(name string, args ...string) (process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

// Stop interrupts the process and waits for it, killing it after
// previewStopTimeout.
func (p *execProcess) Stop() error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	case <-time.After(previewStopTimeout):
		debug.Verbose("Preview did not exit in %v, killing", previewStopTimeout)
		if err := p.cmd.Process.Kill(); err != nil {
			return err
		}
		<-done
		return nil
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
