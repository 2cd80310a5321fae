// Package palette holds the typed accent colour and the HSL helpers the
// renderer and particle field share.
package palette

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor is returned for accent strings that are not hex colours.
var ErrInvalidColor = errors.New("invalid colour")

// DefaultAccent is the cyan the visualizer starts with.
const DefaultAccent = "#00fff7"

// Presets are the accents cycled from the keyboard.
var Presets = []string{DefaultAccent, "#ff2bd6", "#ffb000", "#7cff4f", "#8a5cff", "#ff4040"}

// Accent is a validated accent colour.
type Accent struct {
	c colorful.Color
}

// ParseAccent validates a "#rrggbb" or "#rgb" string. The leading '#' is optional.
func ParseAccent(s string) (Accent, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Accent{}, fmt.Errorf("%w: empty", ErrInvalidColor)
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(strings.ToLower(s))
	if err != nil {
		return Accent{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Accent{c: c}, nil
}

// MustAccent is ParseAccent for constants; it panics on bad input.
func MustAccent(s string) Accent {
	a, err := ParseAccent(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Hue returns the accent hue in degrees [0,360).
func (a Accent) Hue() float64 {
	h, _, _ := a.c.Hsl()
	return NormalizeHue(h)
}

// Hex returns the canonical "#rrggbb" form.
func (a Accent) Hex() string {
	return a.c.Hex()
}

// String implements fmt.Stringer.
func (a Accent) String() string { return a.Hex() }

// NormalizeHue wraps any hue into [0,360).
func NormalizeHue(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		// -tiny + 360 rounds up
		h = 0
	}
	return h
}

// HSLA converts CSS-style hsl (hue in degrees, saturation and lightness in
// 0..1) plus alpha into a non-premultiplied colour.
func HSLA(h, s, l, alpha float64) color.NRGBA {
	c := colorful.Hsl(NormalizeHue(h), clamp01(s), clamp01(l)).Clamped()
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(clamp01(alpha) * 255))}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
