// Package mods encodes gameplay modifiers as bitmasks and enumerates the
// mod combinations that get precomputed for every indexed beatmap.
package mods

import (
	"fmt"
	"strings"
)

// Mask is a set of simultaneously active mods, one bit per mod.
type Mask uint32

// Mod bits as used by the game client.
const (
	NoFail      Mask = 1 << 0
	Easy        Mask = 1 << 1
	TouchDevice Mask = 1 << 2
	Hidden      Mask = 1 << 3
	HardRock    Mask = 1 << 4
	SuddenDeath Mask = 1 << 5
	DoubleTime  Mask = 1 << 6
	Relax       Mask = 1 << 7
	HalfTime    Mask = 1 << 8
	Nightcore   Mask = 1 << 9
	Flashlight  Mask = 1 << 10
	Autoplay    Mask = 1 << 11
	SpunOut     Mask = 1 << 12
	Autopilot   Mask = 1 << 13
	Perfect     Mask = 1 << 14
)

// codes lists every known mod in display order.
var codes = []struct {
	code string
	bit  Mask
}{
	{"NF", NoFail},
	{"EZ", Easy},
	{"TD", TouchDevice},
	{"HD", Hidden},
	{"HR", HardRock},
	{"SD", SuddenDeath},
	{"DT", DoubleTime},
	{"RX", Relax},
	{"HT", HalfTime},
	{"NC", Nightcore},
	{"FL", Flashlight},
	{"AT", Autoplay},
	{"SO", SpunOut},
	{"AP", Autopilot},
	{"PF", Perfect},
}

// Lookup returns the bit for a 2-letter mod code (case-insensitive).
func Lookup(code string) (Mask, bool) {
	code = strings.ToUpper(code)
	for _, c := range codes {
		if c.code == code {
			return c.bit, true
		}
	}
	return 0, false
}

// Parse converts concatenated 2-letter codes ("HDHR") into a Mask.
// The empty string is the empty mask.
func Parse(s string) (Mask, error) {
	if len(s)%2 != 0 {
		return 0, fmt.Errorf("mod string %q: odd length", s)
	}
	var m Mask
	for i := 0; i < len(s); i += 2 {
		bit, ok := Lookup(s[i : i+2])
		if !ok {
			return 0, fmt.Errorf("mod string %q: unknown mod %q", s, s[i:i+2])
		}
		m |= bit
	}
	return m, nil
}

// Has reports whether every bit of other is set in m.
func (m Mask) Has(other Mask) bool { return m&other == other }

// Codes returns the 2-letter codes of the mods in m, in display order.
func (m Mask) Codes() []string {
	out := []string{}
	for _, c := range codes {
		if m&c.bit != 0 {
			out = append(out, c.code)
		}
	}
	return out
}

// String returns the concatenated codes, e.g. "HDHR". The empty mask is "".
func (m Mask) String() string {
	return strings.Join(m.Codes(), "")
}

// SpeedMultiplier returns the playback rate implied by the mask.
func (m Mask) SpeedMultiplier() float64 {
	switch {
	case m&(DoubleTime|Nightcore) != 0:
		return 1.5
	case m&HalfTime != 0:
		return 0.75
	default:
		return 1
	}
}
