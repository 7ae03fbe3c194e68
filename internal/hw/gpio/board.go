package gpio

import "fmt"

// boardToBCM maps physical 40-pin header positions to BCM GPIO numbers.
// Power and ground positions are absent.
var boardToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15, 11: 17, 12: 18, 13: 27,
	15: 22, 16: 23, 18: 24, 19: 10, 21: 9, 22: 25, 23: 11, 24: 8,
	26: 7, 27: 0, 28: 1, 29: 5, 31: 6, 32: 12, 33: 13, 35: 19,
	36: 16, 37: 26, 38: 20, 40: 21,
}

// Numbering selects how configured pin numbers are interpreted.
type Numbering string

const (
	Board Numbering = "board"
	BCM   Numbering = "bcm"
)

// BoardToBCM converts a physical header position to its BCM number.
func BoardToBCM(pin int) (int, error) {
	bcm, ok := boardToBCM[pin]
	if !ok {
		return 0, fmt.Errorf("board pin %d is not a GPIO", pin)
	}
	return bcm, nil
}

// ResolvePin returns the BCM number for pin under the given numbering.
func ResolvePin(n Numbering, pin int) (int, error) {
	switch n {
	case Board, "":
		return BoardToBCM(pin)
	case BCM:
		if pin < 0 || pin > 27 {
			return 0, fmt.Errorf("bcm pin %d out of range 0-27", pin)
		}
		return pin, nil
	default:
		return 0, fmt.Errorf("unknown pin numbering %q", n)
	}
}
