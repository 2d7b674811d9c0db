package epd

import (
	"fmt"
	"strings"
)

// TriColor is one of the three colours a tri-color panel can show.
type TriColor int

const (
	White TriColor = iota
	Black
	Chromatic
)

// Byte returns the value used to fill the achromatic plane with c.
//
// Chromatic has no achromatic encoding of its own; ClearFrame handles it
// separately and the 0xFF returned here is never written for it.
func (c TriColor) Byte() byte {
	switch c {
	case Black:
		return 0x00
	default:
		return 0xFF
	}
}

func (c TriColor) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	case Chromatic:
		return "chromatic"
	}
	return fmt.Sprintf("TriColor(%d)", int(c))
}

// ParseTriColor accepts the names printed by String, plus "red" as an alias
// for Chromatic.
func ParseTriColor(s string) (TriColor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white":
		return White, nil
	case "black":
		return Black, nil
	case "chromatic", "red":
		return Chromatic, nil
	}
	return White, fmt.Errorf("epd: unknown color %q", s)
}
