package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/guidoenr/pulsefield/internal/analyzer"
	"github.com/guidoenr/pulsefield/internal/palette"
	"github.com/guidoenr/pulsefield/internal/particles"
)

// ErrRendererQuit is returned by a presenter when the user closed it.
var ErrRendererQuit = errors.New("renderer quit")

const (
	// DefaultLinkDistance is the base proximity threshold for connecting lines.
	DefaultLinkDistance = 18.0
	linkMidSpread       = 8.0
	linkWidth           = 0.7
	flashAlpha          = 0.18
)

// EventKind identifies presenter input.
type EventKind int

const (
	EventPointerMove EventKind = iota
	EventPointerDown
	EventResize
	EventKey
	EventQuit
)

// Event is raw input reported by a presenter. Width and Height are canvas
// pixels for EventResize; Key is set for EventKey.
type Event struct {
	Kind          EventKind
	X, Y          float64
	Width, Height int
	Key           rune
}

// Presenter shows finished frames and reports input from its backend.
type Presenter interface {
	// Size is the canvas size in pixels the presenter wants to be fed.
	Size() (int, int)
	Present(frame *image.RGBA, status string) error
	Poll() []Event
	Close() error
}

// Renderer paints the particle field onto a Surface. It only reads its
// inputs.
type Renderer struct {
	surface      Surface
	linkDistance float64
	links        []Segment
}

// New creates a Renderer drawing on surface. linkDistance <= 0 selects
// DefaultLinkDistance.
func New(surface Surface, linkDistance float64) *Renderer {
	if linkDistance <= 0 {
		linkDistance = DefaultLinkDistance
	}
	return &Renderer{surface: surface, linkDistance: linkDistance}
}

// Render draws one frame: a translucent wash that leaves trails, one disc
// per particle, proximity links, and a white flash on transients.
func (r *Renderer) Render(ps []particles.Particle, feat analyzer.Features, keyHue float64, isTransient bool) {
	w, h := r.surface.Size()
	bass := feat.Bass / 255
	treble := feat.Treble / 255

	wash := 0.12 + 0.08*bass
	r.surface.FillGradient(0, 0, float64(w), float64(h),
		palette.HSLA(keyHue, 0.6, (7+4*bass)/100, wash),
		palette.HSLA(keyHue+60, 0.6, (9+4*treble)/100, wash),
	)

	for i := range ps {
		p := &ps[i]
		energy, bassEnergy := particles.Energies(feat.Bins, i)
		radius := p.Size + energy*1.2 + bassEnergy*1.2
		fill := palette.HSLA(
			p.Hue+energy*80+feat.Bass/2,
			1,
			(35+15*energy)/100,
			0.32+0.18*energy+0.08*bassEnergy,
		)
		r.surface.FillCircle(p.X, p.Y, radius, fill)
	}

	threshold := r.linkDistance + linkMidSpread*feat.Mid/255
	r.links = collectLinks(r.links[:0], ps, threshold)
	if len(r.links) > 0 {
		r.surface.StrokeLines(r.links, linkWidth, palette.HSLA(keyHue, 1, 0.6, 0.06+0.06*treble))
	}

	if isTransient {
		r.surface.Fill(color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(flashAlpha * 255))})
	}
}

// collectLinks appends a segment for every pair closer than threshold.
func collectLinks(dst []Segment, ps []particles.Particle, threshold float64) []Segment {
	limit := threshold * threshold
	for i := 0; i < len(ps); i++ {
		a := &ps[i]
		for j := i + 1; j < len(ps); j++ {
			b := &ps[j]
			dx := a.X - b.X
			dy := a.Y - b.Y
			if dx*dx+dy*dy < limit {
				dst = append(dst, Segment{X0: a.X, Y0: a.Y, X1: b.X, Y1: b.Y})
			}
		}
	}
	return dst
}

// Status summarises a frame for the presenter's status line.
type Status struct {
	Source    string
	Particles int
	Tempo     int
	FPS       float64
	Accent    string
}

// StatusLine formats the status text shown under or above the canvas.
func StatusLine(s Status, feat analyzer.Features) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString("pulsefield | ")
	b.WriteString(s.Source)
	b.WriteString(" | accent ")
	b.WriteString(s.Accent)
	b.WriteString(" | bass ")
	appendFloat(&b, feat.Bass, 0)
	b.WriteString(" mid ")
	appendFloat(&b, feat.Mid, 0)
	b.WriteString(" treble ")
	appendFloat(&b, feat.Treble, 0)
	b.WriteString(" | ")
	b.WriteString(strconv.Itoa(s.Tempo))
	b.WriteString(" bpm")
	if feat.BeatAccepted {
		b.WriteString(" *")
	}
	b.WriteString(" | n ")
	b.WriteString(strconv.Itoa(s.Particles))
	b.WriteString(" fps ")
	appendFloat(&b, s.FPS, 1)
	return b.String()
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	builder.Write(strconv.AppendFloat(buf[:0], value, 'f', precision, 64))
}
