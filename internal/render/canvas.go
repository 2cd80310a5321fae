package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// Segment is one line of the proximity pass.
type Segment struct {
	X0, Y0, X1, Y1 float64
}

// Surface is the 2D target the Renderer paints on.
type Surface interface {
	Size() (int, int)
	Fill(c color.NRGBA)
	FillGradient(x0, y0, x1, y1 float64, from, to color.NRGBA)
	FillCircle(cx, cy, radius float64, c color.NRGBA)
	StrokeLines(lines []Segment, width float64, c color.NRGBA)
}

// kappa places cubic control points so four arcs approximate a circle.
const kappa = 0.5522847498

// Canvas is a software Surface backed by an *image.RGBA.
type Canvas struct {
	img  *image.RGBA
	disc *vector.Rasterizer
	pass *vector.Rasterizer
}

var _ Surface = (*Canvas)(nil)

// NewCanvas allocates an opaque black canvas.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{
		disc: vector.NewRasterizer(1, 1),
		pass: vector.NewRasterizer(1, 1),
	}
	c.Resize(width, height)
	return c
}

// Resize reallocates the backing image when the dimensions change.
func (c *Canvas) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if c.img != nil && c.img.Rect.Dx() == width && c.img.Rect.Dy() == height {
		return
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(c.img, c.img.Rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
}

// Size returns the canvas dimensions in pixels.
func (c *Canvas) Size() (int, int) {
	return c.img.Rect.Dx(), c.img.Rect.Dy()
}

// Image returns the backing image. It is overwritten by the next frame.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Fill composites c over the whole canvas.
func (c *Canvas) Fill(col color.NRGBA) {
	if col.A == 0 {
		return
	}
	draw.Draw(c.img, c.img.Rect, image.NewUniform(col), image.Point{}, draw.Over)
}

// FillGradient composites a linear gradient running from (x0,y0) to (x1,y1)
// over the whole canvas. Stops and alpha are interpolated linearly.
func (c *Canvas) FillGradient(x0, y0, x1, y1 float64, from, to color.NRGBA) {
	dx := x1 - x0
	dy := y1 - y0
	lenSq := dx*dx + dy*dy
	w, h := c.Size()
	pix := c.img.Pix
	stride := c.img.Stride

	for y := 0; y < h; y++ {
		py := float64(y) + 0.5 - y0
		row := y * stride
		for x := 0; x < w; x++ {
			t := 0.0
			if lenSq > 0 {
				t = clamp01(((float64(x)+0.5-x0)*dx + py*dy) / lenSq)
			}
			a := lerp(float64(from.A), float64(to.A), t) / 255
			if a <= 0 {
				continue
			}
			r := lerp(float64(from.R), float64(to.R), t)
			g := lerp(float64(from.G), float64(to.G), t)
			b := lerp(float64(from.B), float64(to.B), t)
			i := row + x*4
			blendOver(pix[i:i+4], r, g, b, a)
		}
	}
}

// FillCircle composites an anti-aliased disc.
func (c *Canvas) FillCircle(cx, cy, radius float64, col color.NRGBA) {
	if radius <= 0 || col.A == 0 {
		return
	}
	bounds := image.Rect(
		int(math.Floor(cx-radius)), int(math.Floor(cy-radius)),
		int(math.Ceil(cx+radius)), int(math.Ceil(cy+radius)),
	).Intersect(c.img.Rect)
	if bounds.Empty() {
		return
	}

	z := c.disc
	z.Reset(bounds.Dx(), bounds.Dy())
	z.DrawOp = draw.Over
	ox := float32(cx - float64(bounds.Min.X))
	oy := float32(cy - float64(bounds.Min.Y))
	r := float32(radius)
	k := float32(kappa) * r

	z.MoveTo(ox+r, oy)
	z.CubeTo(ox+r, oy+k, ox+k, oy+r, ox, oy+r)
	z.CubeTo(ox-k, oy+r, ox-r, oy+k, ox-r, oy)
	z.CubeTo(ox-r, oy-k, ox-k, oy-r, ox, oy-r)
	z.CubeTo(ox+k, oy-r, ox+r, oy-k, ox+r, oy)
	z.ClosePath()
	z.Draw(c.img, bounds, image.NewUniform(col), image.Point{})
}

// StrokeLines rasterises every segment into one coverage mask and
// composites it once, so crossings do not stack alpha.
func (c *Canvas) StrokeLines(lines []Segment, width float64, col color.NRGBA) {
	if len(lines) == 0 || width <= 0 || col.A == 0 {
		return
	}
	w, h := c.Size()
	z := c.pass
	z.Reset(w, h)
	z.DrawOp = draw.Over
	half := width / 2
	drawn := 0
	for _, s := range lines {
		dx := s.X1 - s.X0
		dy := s.Y1 - s.Y0
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		nx := -dy / length * half
		ny := dx / length * half
		z.MoveTo(float32(s.X0+nx), float32(s.Y0+ny))
		z.LineTo(float32(s.X1+nx), float32(s.Y1+ny))
		z.LineTo(float32(s.X1-nx), float32(s.Y1-ny))
		z.LineTo(float32(s.X0-nx), float32(s.Y0-ny))
		z.ClosePath()
		drawn++
	}
	if drawn == 0 {
		return
	}
	z.Draw(c.img, c.img.Rect, image.NewUniform(col), image.Point{})
}

// blendOver composites a straight-alpha colour over a premultiplied RGBA pixel.
func blendOver(px []uint8, r, g, b, a float64) {
	inv := 1 - a
	px[0] = uint8(math.Round(r*a + float64(px[0])*inv))
	px[1] = uint8(math.Round(g*a + float64(px[1])*inv))
	px[2] = uint8(math.Round(b*a + float64(px[2])*inv))
	px[3] = uint8(math.Round(255*a + float64(px[3])*inv))
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

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
