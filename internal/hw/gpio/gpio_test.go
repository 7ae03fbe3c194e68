package gpio

import "testing"

func TestBoardToBCM_SelectorPins(t *testing.T) {
	cases := []struct {
		board int
		bcm   int
	}{
		{7, 4},
		{11, 17},
		{12, 18},
		{15, 22},
		{16, 23},
		{21, 9},
		{22, 25},
	}
	for _, tc := range cases {
		got, err := BoardToBCM(tc.board)
		if err != nil {
			t.Fatalf("BoardToBCM(%d): %v", tc.board, err)
		}
		if got != tc.bcm {
			t.Errorf("BoardToBCM(%d) = %d, want %d", tc.board, got, tc.bcm)
		}
	}
}

func TestBoardToBCM_PowerAndGround(t *testing.T) {
	for _, pin := range []int{1, 2, 4, 6, 9, 14, 17, 20, 25, 30, 34, 39, 0, 41} {
		if _, err := BoardToBCM(pin); err == nil {
			t.Errorf("BoardToBCM(%d) should fail", pin)
		}
	}
}

func TestResolvePin(t *testing.T) {
	cases := []struct {
		name    string
		n       Numbering
		pin     int
		want    int
		wantErr bool
	}{
		{"board", Board, 7, 4, false},
		{"empty_defaults_to_board", "", 11, 17, false},
		{"bcm_passthrough", BCM, 17, 17, false},
		{"bcm_out_of_range", BCM, 28, 0, true},
		{"bcm_negative", BCM, -1, 0, true},
		{"unknown_numbering", Numbering("wiringpi"), 7, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolvePin(tc.n, tc.pin)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ResolvePin = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMockDriver_ReadBack(t *testing.T) {
	drv := &MockDriver{}
	if lvl, _ := drv.ReadPin(4); lvl != Low {
		t.Errorf("unwritten pin should read Low, got %v", lvl)
	}
	if err := drv.WritePin(4, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if lvl, _ := drv.ReadPin(4); lvl != High {
		t.Errorf("pin 4 = %v, want HIGH", lvl)
	}
	if err := drv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	drv, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := drv.(*MockDriver); !ok {
		t.Errorf("expected *MockDriver, got %T", drv)
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("unexpected level strings %q %q", High.String(), Low.String())
	}
}
