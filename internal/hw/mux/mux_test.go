package mux

import (
	"errors"
	"testing"

	"github.com/cjeanneret/psfcal/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls   []gpioCall
	failPin int
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.failPin != 0 && pin == d.failPin {
		return errors.New("write failed")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

// BCM numbers for board pins 7, 11, 12 and 15, 16, 21, 22.
var testPins = Pins{
	Select:   [3]int{4, 17, 18},
	HoldHigh: []int{22, 23, 9, 25},
}

func newTestSelector(t *testing.T) (*Selector, *recordingDriver) {
	t.Helper()
	drv := &recordingDriver{}
	s := NewSelector(drv, testPins)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	drv.calls = nil
	return s, drv
}

func TestPatterns_FixedTable(t *testing.T) {
	L, H := gpio.Low, gpio.High
	cases := []struct {
		cam  Camera
		want Pattern
	}{
		{A, Pattern{L, L, H}},
		{B, Pattern{H, L, H}},
		{C, Pattern{H, H, L}},
		{D, Pattern{L, H, L}},
	}
	for _, tc := range cases {
		if got := PatternFor(string(tc.cam)); got != tc.want {
			t.Errorf("PatternFor(%s) = %v, want %v", tc.cam, got, tc.want)
		}
	}
}

func TestPatternFor_UnknownFallsBackToD(t *testing.T) {
	for _, id := range []string{"", "E", "a", "d", "AB", " A", "x", "Cam D"} {
		if got := PatternFor(id); got != patterns[D] {
			t.Errorf("PatternFor(%q) = %v, want D pattern %v", id, got, patterns[D])
		}
	}
}

func TestParseCamera(t *testing.T) {
	for _, id := range []string{"A", "B", "C", "D"} {
		c, ok := ParseCamera(id)
		if !ok || string(c) != id {
			t.Errorf("ParseCamera(%q) = %q, %v", id, c, ok)
		}
	}
	if c, ok := ParseCamera("Q"); ok || c != D {
		t.Errorf("ParseCamera(Q) = %q, %v; want D, false", c, ok)
	}
}

func TestPatterns_Distinct(t *testing.T) {
	seen := map[Pattern]Camera{}
	for _, e := range Table() {
		if prev, dup := seen[e.Pattern]; dup {
			t.Errorf("cameras %s and %s share pattern %v", prev, e.Camera, e.Pattern)
		}
		seen[e.Pattern] = e.Camera
	}
}

func TestTable_Order(t *testing.T) {
	want := []Camera{A, B, C, D}
	got := Table()
	if len(got) != len(want) {
		t.Fatalf("Table() has %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Camera != want[i] {
			t.Errorf("row %d = %s, want %s", i, got[i].Camera, want[i])
		}
	}
}

func TestInit_DrivesEnablesAndHoldPinsHigh(t *testing.T) {
	drv := &recordingDriver{}
	s := NewSelector(drv, testPins)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	setups := 0
	high := map[int]bool{}
	for _, c := range drv.calls {
		switch c.op {
		case "setup":
			setups++
		case "write":
			if c.level != gpio.High {
				t.Errorf("Init wrote LOW to pin %d", c.pin)
			}
			high[c.pin] = true
		}
	}
	if setups != 7 {
		t.Errorf("expected 7 pins configured, got %d", setups)
	}
	for _, pin := range []int{17, 18, 22, 23, 9, 25} {
		if !high[pin] {
			t.Errorf("pin %d should be driven HIGH by Init", pin)
		}
	}
	if high[4] {
		t.Error("pin 4 should not be written by Init")
	}
	if s.Active() != "" {
		t.Errorf("no camera should be active after Init, got %q", s.Active())
	}
}

func TestSelect_WritesPattern(t *testing.T) {
	for _, e := range Table() {
		t.Run(string(e.Camera), func(t *testing.T) {
			s, drv := newTestSelector(t)
			got, err := s.Select(string(e.Camera))
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got != e.Camera {
				t.Errorf("Select returned %s, want %s", got, e.Camera)
			}
			writes := drv.writeCalls()
			if len(writes) != 3 {
				t.Fatalf("expected 3 writes, got %d: %v", len(writes), writes)
			}
			for i, w := range writes {
				if w.pin != testPins.Select[i] || w.level != e.Pattern[i] {
					t.Errorf("write %d: pin=%d level=%v, want pin=%d level=%v",
						i, w.pin, w.level, testPins.Select[i], e.Pattern[i])
				}
			}
			if s.Active() != e.Camera {
				t.Errorf("Active() = %s, want %s", s.Active(), e.Camera)
			}
		})
	}
}

func TestSelect_UnknownUsesD(t *testing.T) {
	s, drv := newTestSelector(t)
	got, err := s.Select("E")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != D {
		t.Errorf("Select(E) resolved to %s, want D", got)
	}
	writes := drv.writeCalls()
	for i, w := range writes {
		if w.level != patterns[D][i] {
			t.Errorf("write %d level=%v, want %v", i, w.level, patterns[D][i])
		}
	}
}

func TestSelect_SwitchingKeepsOnePatternActive(t *testing.T) {
	s, _ := newTestSelector(t)
	for _, id := range []string{"A", "C", "B", "D"} {
		if _, err := s.Select(id); err != nil {
			t.Fatalf("Select(%s): %v", id, err)
		}
		if string(s.Active()) != id {
			t.Errorf("Active() = %s after Select(%s)", s.Active(), id)
		}
	}
}

func TestSelect_BeforeInit(t *testing.T) {
	s := NewSelector(&recordingDriver{}, testPins)
	if _, err := s.Select("A"); err == nil {
		t.Error("Select before Init should fail")
	}
}

func TestSelect_WriteError(t *testing.T) {
	drv := &recordingDriver{}
	s := NewSelector(drv, testPins)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	drv.failPin = 4
	if _, err := s.Select("B"); err == nil {
		t.Error("expected error when a select pin write fails")
	}
	if s.Active() != "" {
		t.Errorf("Active() should stay empty after failed Select, got %s", s.Active())
	}
}

func TestSelect_WithMockDriver(t *testing.T) {
	drv := &gpio.MockDriver{}
	s := NewSelector(drv, testPins)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := s.Select("C"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	for i, pin := range testPins.Select {
		lvl, _ := drv.ReadPin(pin)
		if lvl != patterns[C][i] {
			t.Errorf("pin %d = %v, want %v", pin, lvl, patterns[C][i])
		}
	}
}
