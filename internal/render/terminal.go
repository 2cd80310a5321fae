package render

import (
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const (
	fallbackCols = 80
	fallbackRows = 24

	// DefaultCellScale is how many canvas pixels map onto one terminal
	// column (and one half-row).
	DefaultCellScale = 4
)

var (
	resetANSI    = "\x1b[0m"
	fgANSI       [256]string
	bgANSI       [256]string
	hideCursor   = "\x1b[?25l"
	showCursor   = "\x1b[?25h"
	clearScreen  = "\x1b[2J"
	cursorHome   = "\x1b[H"
	upperHalfBox = '▀'
)

func init() {
	for i := range fgANSI {
		fgANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
		bgANSI[i] = "\x1b[48;5;" + strconv.Itoa(i) + "m"
	}
}

// Terminal presents frames as 256-colour half blocks: each character cell
// shows two vertically stacked pixels.
type Terminal struct {
	out      io.Writer
	fd       int
	scale    int
	cols     int
	rows     int
	builder  strings.Builder
	started  bool
	lastCols int
	lastRows int
}

var _ Presenter = (*Terminal)(nil)

// NewTerminal writes to out and queries the size of fd. A negative fd
// disables size detection.
func NewTerminal(out io.Writer, fd int, scale int) *Terminal {
	if scale <= 0 {
		scale = DefaultCellScale
	}
	t := &Terminal{out: out, fd: fd, scale: scale}
	t.ensureDimensions()
	t.lastCols, t.lastRows = t.cols, t.rows
	return t
}

// Size returns the canvas size that maps onto the current terminal.
func (t *Terminal) Size() (int, int) {
	return t.cols * t.scale, t.rows * 2 * t.scale
}

// Poll reports a resize when the terminal dimensions changed.
func (t *Terminal) Poll() []Event {
	t.ensureDimensions()
	if t.cols == t.lastCols && t.rows == t.lastRows {
		return nil
	}
	t.lastCols, t.lastRows = t.cols, t.rows
	w, h := t.Size()
	return []Event{{Kind: EventResize, Width: w, Height: h}}
}

// Present downsamples frame onto the character grid and writes it with
// the status line underneath.
func (t *Terminal) Present(frame *image.RGBA, status string) error {
	b := &t.builder
	b.Reset()
	if !t.started {
		b.WriteString(hideCursor)
		b.WriteString(clearScreen)
		t.started = true
	}
	b.WriteString(cursorHome)

	cols, rows := t.cols, t.rows
	bounds := frame.Bounds()
	cellW := math.Max(1, float64(bounds.Dx())/float64(cols))
	cellH := math.Max(1, float64(bounds.Dy())/float64(rows*2))
	b.Grow(cols * rows * 24)

	for y := 0; y < rows; y++ {
		lastFG, lastBG := -1, -1
		for x := 0; x < cols; x++ {
			x0 := bounds.Min.X + int(float64(x)*cellW)
			x1 := bounds.Min.X + int(float64(x+1)*cellW)
			top := blockColor(frame, x0, x1, bounds.Min.Y+int(float64(2*y)*cellH), bounds.Min.Y+int(float64(2*y+1)*cellH))
			bottom := blockColor(frame, x0, x1, bounds.Min.Y+int(float64(2*y+1)*cellH), bounds.Min.Y+int(float64(2*y+2)*cellH))
			if top != lastFG {
				b.WriteString(fgANSI[top])
				lastFG = top
			}
			if bottom != lastBG {
				b.WriteString(bgANSI[bottom])
				lastBG = bottom
			}
			b.WriteRune(upperHalfBox)
		}
		b.WriteString(resetANSI)
		b.WriteByte('\n')
	}
	if len(status) > cols {
		status = status[:cols]
	}
	b.WriteString(status)
	b.WriteString("\x1b[K")

	_, err := io.WriteString(t.out, b.String())
	return err
}

// Close restores the cursor and clears the screen.
func (t *Terminal) Close() error {
	if !t.started {
		return nil
	}
	_, err := io.WriteString(t.out, resetANSI+clearScreen+cursorHome+showCursor)
	return err
}

func (t *Terminal) ensureDimensions() {
	cols, rows := fallbackCols, fallbackRows
	if t.fd >= 0 {
		if w, h, err := term.GetSize(t.fd); err == nil && w > 0 && h > 1 {
			cols, rows = w, h
		}
	}
	// last row is the status line
	t.cols = cols
	t.rows = rows - 1
}

// blockColor averages the pixels in [x0,x1)x[y0,y1) into an ANSI index.
func blockColor(img *image.RGBA, x0, x1, y0, y1 int) int {
	rect := image.Rect(x0, y0, max(x1, x0+1), max(y1, y0+1)).Intersect(img.Rect)
	if rect.Empty() {
		return 16
	}
	var sr, sg, sb, n float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		i := img.PixOffset(rect.Min.X, y)
		for x := rect.Min.X; x < rect.Max.X; x++ {
			sr += float64(img.Pix[i])
			sg += float64(img.Pix[i+1])
			sb += float64(img.Pix[i+2])
			n++
			i += 4
		}
	}
	return rgbToANSI(sr/n/255, sg/n/255, sb/n/255)
}

// rgbToANSI maps a colour onto the xterm 256 palette, preferring the
// grayscale ramp for near-neutral colours.
func rgbToANSI(r, g, b float64) int {
	r = clamp01(r)
	g = clamp01(g)
	b = clamp01(b)

	if math.Abs(r-g) < 0.02 && math.Abs(g-b) < 0.02 {
		if r < 0.02 {
			return 16
		}
		gray := int(clampFloat(math.Round(r*23), 0, 23))
		return 232 + gray
	}

	ri := int(clampFloat(r*5+0.5, 0, 5))
	gi := int(clampFloat(g*5+0.5, 0, 5))
	bi := int(clampFloat(b*5+0.5, 0, 5))

	return 16 + 36*ri + 6*gi + bi
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
