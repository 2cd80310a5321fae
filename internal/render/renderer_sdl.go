//go:build sdl

package render

import (
	"fmt"
	"image"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	// SDL expects every video call on the thread that initialised it.
	runtime.LockOSThread()
}

// Window presents frames in an SDL window and reports mouse, keyboard and
// resize input.
type Window struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	width    int
	height   int
	texW     int
	texH     int
	title    string
}

var _ Presenter = (*Window)(nil)

// NewWindow opens a resizable window of the given size.
func NewWindow(title string, width, height int) (Presenter, error) {
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("init sdl video: %w", err)
	}
	window, err := sdl.CreateWindow(
		title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create window: %w", err)
	}
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	return &Window{
		window:   window,
		renderer: renderer,
		width:    width,
		height:   height,
		title:    title,
	}, nil
}

// Size returns the window's drawable size.
func (w *Window) Size() (int, int) {
	return w.width, w.height
}

// Present uploads frame into a streaming texture and flips it.
func (w *Window) Present(frame *image.RGBA, status string) error {
	if err := w.ensureTexture(frame.Rect.Dx(), frame.Rect.Dy()); err != nil {
		return err
	}
	if status != "" && status != w.title {
		w.window.SetTitle(status)
		w.title = status
	}

	pixels, pitch, err := w.texture.Lock(nil)
	if err != nil {
		return fmt.Errorf("lock texture: %w", err)
	}
	rowBytes := w.texW * 4
	for y := 0; y < w.texH; y++ {
		src := frame.Pix[frame.PixOffset(frame.Rect.Min.X, frame.Rect.Min.Y+y):]
		copy(pixels[y*pitch:y*pitch+rowBytes], src[:rowBytes])
	}
	w.texture.Unlock()

	if err := w.renderer.Clear(); err != nil {
		return err
	}
	if err := w.renderer.Copy(w.texture, nil, nil); err != nil {
		return err
	}
	w.renderer.Present()
	return nil
}

// Poll drains the SDL event queue.
func (w *Window) Poll() []Event {
	var events []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			events = append(events, Event{Kind: EventQuit})
		case *sdl.MouseMotionEvent:
			events = append(events, Event{Kind: EventPointerMove, X: float64(e.X), Y: float64(e.Y)})
		case *sdl.MouseButtonEvent:
			if e.Type == sdl.MOUSEBUTTONDOWN {
				events = append(events, Event{Kind: EventPointerDown, X: float64(e.X), Y: float64(e.Y)})
			}
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				w.width, w.height = int(e.Data1), int(e.Data2)
				events = append(events, Event{Kind: EventResize, Width: w.width, Height: w.height})
			}
		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN {
				continue
			}
			switch e.Keysym.Sym {
			case sdl.K_ESCAPE:
				events = append(events, Event{Kind: EventQuit})
			case sdl.K_SPACE:
				events = append(events, Event{Kind: EventKey, Key: ' '})
			default:
				if sym := e.Keysym.Sym; sym >= 'a' && sym <= 'z' {
					events = append(events, Event{Kind: EventKey, Key: rune(sym)})
				}
			}
		}
	}
	return events
}

// Close releases every SDL resource.
func (w *Window) Close() error {
	if w.texture != nil {
		w.texture.Destroy()
		w.texture = nil
	}
	if w.renderer != nil {
		w.renderer.Destroy()
		w.renderer = nil
	}
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	return nil
}

func (w *Window) ensureTexture(width, height int) error {
	if w.texture != nil && w.texW == width && w.texH == height {
		return nil
	}
	if w.texture != nil {
		w.texture.Destroy()
		w.texture = nil
	}
	tex, err := w.renderer.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888,
		sdl.TEXTUREACCESS_STREAMING,
		int32(width), int32(height),
	)
	if err != nil {
		return fmt.Errorf("create texture: %w", err)
	}
	w.texture = tex
	w.texW, w.texH = width, height
	return nil
}

// SupportsSDL reports whether the binary was built with the sdl tag.
func SupportsSDL() bool { return true }
