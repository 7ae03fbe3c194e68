// Package session runs the interactive capture loop for one sensor.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/psfcal/internal/debug"
	"github.com/cjeanneret/psfcal/internal/hw/camera"
)

// ErrDirectoryCreateFailed wraps failures creating the output folder.
var ErrDirectoryCreateFailed = errors.New("output directory create failed")

// TerminateToken ends the session.
const TerminateToken = "x"

// Action is the transition chosen for one operator line.
type Action int

const (
	// Ignore leaves the session unchanged.
	Ignore Action = iota
	// Capture saves the next frame.
	Capture
	// Terminate ends the session without capturing.
	Terminate
)

func (a Action) String() string {
	switch a {
	case Capture:
		return "capture"
	case Terminate:
		return "terminate"
	default:
		return "ignore"
	}
}

// Classify maps an operator line to its transition. Only the empty line
// and the exact termination token are recognised.
func Classify(line string) Action {
	switch line {
	case "":
		return Capture
	case TerminateToken:
		return Terminate
	default:
		return Ignore
	}
}

// FrameName returns the file name of frame i.
func FrameName(i int) string {
	return "img" + strconv.Itoa(i) + ".png"
}

var frameRe = regexp.MustCompile(`^img([0-9]+)\.png$`)

// NextIndex returns one past the highest imgN.png in dir, or 1 if none.
func NextIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	next := 1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := frameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// Params configures a Session.
type Params struct {
	Dir         string        // output folder, created if absent
	SettleDelay time.Duration // wait between keypress and capture
	Resume      bool          // continue numbering after existing frames
	Out         io.Writer     // capture confirmations; nil discards
}

// Session owns the capture counter and output folder for one sensor.
type Session struct {
	id     string
	cam    camera.Camera
	dir    string
	settle time.Duration
	out    io.Writer
	index  int
	sleep  func(time.Duration)
}

// Summary reports what a finished session did.
type Summary struct {
	ID        string
	Dir       string
	Captured  int
	NextIndex int
}

// New creates the output folder if needed and returns a session whose
// first frame is img1.png, or the next free index when p.Resume is set.
// Existing files are never removed.
func New(cam camera.Camera, p Params) (*Session, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryCreateFailed, p.Dir, err)
	}

	index := 1
	if p.Resume {
		n, err := NextIndex(p.Dir)
		if err != nil {
			return nil, err
		}
		index = n
	}

	out := p.Out
	if out == nil {
		out = io.Discard
	}

	s := &Session{
		id:     uuid.NewString(),
		cam:    cam,
		dir:    p.Dir,
		settle: p.SettleDelay,
		out:    out,
		index:  index,
		sleep:  time.Sleep,
	}
	debug.Value("Session", s.id)
	debug.Value("Output folder", s.dir)
	debug.Value("First frame", FrameName(index))
	return s, nil
}

// ID returns the session identifier used in log lines.
func (s *Session) ID() string { return s.id }

// Index returns the number of the next frame.
func (s *Session) Index() int { return s.index }

// Step applies one operator line and reports the transition taken.
func (s *Session) Step(line string) (Action, error) {
	a := Classify(line)
	switch a {
	case Capture:
		if err := s.capture(); err != nil {
			return a, err
		}
	case Terminate:
		debug.Live("[%s] Termination requested", s.id)
	case Ignore:
		debug.Verbose("[%s] Ignoring input %q", s.id, line)
	}
	return a, nil
}

func (s *Session) capture() error {
	s.sleep(s.settle)

	path := filepath.Join(s.dir, FrameName(s.index))
	err := s.cam.Capture(path)
	if err != nil && !errors.Is(err, camera.ErrPreviewLost) {
		return err
	}
	fmt.Fprintf(s.out, "Image%d captured\n", s.index)
	if err != nil {
		fmt.Fprintf(s.out, "Warning: %v\n", err)
		debug.Warn("[%s] %v", s.id, err)
	}
	debug.Capture(s.index, path)
	s.index++
	return nil
}

// Run reads operator lines until termination. End of input and context
// cancellation also end the session; neither is reported as an error.
// A capture failure stops the loop and is returned with the summary so far.
func (s *Session) Run(ctx context.Context, op Operator) (Summary, error) {
	start := s.index
	summary := func() Summary {
		return Summary{ID: s.id, Dir: s.dir, Captured: s.index - start, NextIndex: s.index}
	}

	for {
		line, err := op.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				debug.Live("[%s] Operator input closed", s.id)
				return summary(), nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				debug.Live("[%s] Session interrupted", s.id)
				return summary(), nil
			}
			return summary(), fmt.Errorf("read operator input: %w", err)
		}

		a, err := s.Step(line)
		if err != nil {
			return summary(), err
		}
		if a == Terminate {
			return summary(), nil
		}
	}
}
