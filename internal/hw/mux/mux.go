// Package mux drives the camera multiplexer select lines.
//
// The rig routes one of four sensors to the camera connector depending on
// the levels of three GPIO outputs. The first line picks the sensor within
// a pair; the other two are complementary enables that pick the pair.
package mux

import (
	"fmt"

	"github.com/cjeanneret/psfcal/internal/debug"
	"github.com/cjeanneret/psfcal/internal/hw/gpio"
)

// Camera identifies one sensor on the multiplexer.
type Camera string

const (
	A Camera = "A"
	B Camera = "B"
	C Camera = "C"
	D Camera = "D"
)

// Pattern holds the levels written to the three select pins, in pin order.
type Pattern [3]gpio.Level

var patterns = map[Camera]Pattern{
	A: {gpio.Low, gpio.Low, gpio.High},
	B: {gpio.High, gpio.Low, gpio.High},
	C: {gpio.High, gpio.High, gpio.Low},
	D: {gpio.Low, gpio.High, gpio.Low},
}

// fallback is used for any identifier outside the table.
const fallback = D

// ParseCamera reports whether id names a sensor on the multiplexer.
// Unrecognised identifiers resolve to D.
func ParseCamera(id string) (Camera, bool) {
	c := Camera(id)
	if _, ok := patterns[c]; ok {
		return c, true
	}
	return fallback, false
}

// PatternFor returns the select pattern for id, falling back to D.
func PatternFor(id string) Pattern {
	c, _ := ParseCamera(id)
	return patterns[c]
}

// Entry is one row of the selector table.
type Entry struct {
	Camera  Camera
	Pattern Pattern
}

// Table returns the selector mapping ordered A to D.
func Table() []Entry {
	out := make([]Entry, 0, len(patterns))
	for _, c := range []Camera{A, B, C, D} {
		out = append(out, Entry{Camera: c, Pattern: patterns[c]})
	}
	return out
}

// Pins lists the BCM numbers the selector drives.
type Pins struct {
	Select   [3]int // select lines, in Pattern order
	HoldHigh []int  // lines held high for the whole session
}

// Selector owns the select lines for the lifetime of a session.
type Selector struct {
	gpio   gpio.Driver
	pins   Pins
	active Camera
	ready  bool
}

// NewSelector creates a selector over g. Call Init before Select.
func NewSelector(g gpio.Driver, pins Pins) *Selector {
	return &Selector{gpio: g, pins: pins}
}

// Init configures every pin as output and drives the hold-high lines and
// both enable lines high, leaving no sensor routed until Select.
func (s *Selector) Init() error {
	for _, pin := range s.pins.Select {
		if err := s.gpio.SetupPin(pin, gpio.Output); err != nil {
			return fmt.Errorf("setup select pin %d: %w", pin, err)
		}
	}
	for _, pin := range s.pins.HoldHigh {
		if err := s.gpio.SetupPin(pin, gpio.Output); err != nil {
			return fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}

	for _, pin := range []int{s.pins.Select[1], s.pins.Select[2]} {
		if err := s.gpio.WritePin(pin, gpio.High); err != nil {
			return fmt.Errorf("write pin %d: %w", pin, err)
		}
	}
	for _, pin := range s.pins.HoldHigh {
		if err := s.gpio.WritePin(pin, gpio.High); err != nil {
			return fmt.Errorf("write pin %d: %w", pin, err)
		}
	}

	s.ready = true
	debug.Verbose("Selector initialized: select=%v hold_high=%v", s.pins.Select, s.pins.HoldHigh)
	return nil
}

// Select routes the sensor named by id. Identifiers outside A-D get the
// D pattern. The resolved camera is returned.
func (s *Selector) Select(id string) (Camera, error) {
	if !s.ready {
		return "", fmt.Errorf("selector not initialized")
	}

	c, known := ParseCamera(id)
	if !known {
		debug.Warn("Unknown camera %q, using the %s select pattern", id, c)
	}

	p := patterns[c]
	for i, pin := range s.pins.Select {
		if err := s.gpio.WritePin(pin, p[i]); err != nil {
			return "", fmt.Errorf("select camera %s: write pin %d: %w", c, pin, err)
		}
	}

	s.active = c
	debug.Live("Camera %s selected (%s %s %s)", c, p[0], p[1], p[2])
	return c, nil
}

// Active returns the camera currently routed, or "" before the first Select.
func (s *Selector) Active() Camera {
	return s.active
}
