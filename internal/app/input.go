package app

import (
	"context"
	"sync"

	"github.com/eiannone/keyboard"

	"github.com/guidoenr/pulsefield/internal/palette"
	"github.com/guidoenr/pulsefield/internal/render"
)

type inputKind int

const (
	inputPointerMove inputKind = iota
	inputPointerDown
	inputResize
	inputRandomBurst
	inputCycleAccent
	inputQuit
)

type inputEvent struct {
	kind          inputKind
	x, y          float64
	width, height int
}

// PointerMove queues a repulsion impulse at (x, y).
func (a *App) PointerMove(x, y float64) bool {
	return a.enqueue(inputEvent{kind: inputPointerMove, x: x, y: y})
}

// PointerDown queues a particle burst at (x, y).
func (a *App) PointerDown(x, y float64) bool {
	return a.enqueue(inputEvent{kind: inputPointerDown, x: x, y: y})
}

// Burst queues a particle burst at a random point on the canvas.
func (a *App) Burst() bool {
	return a.enqueue(inputEvent{kind: inputRandomBurst})
}

// Resize queues a canvas resize.
func (a *App) Resize(width, height int) bool {
	return a.enqueue(inputEvent{kind: inputResize, width: width, height: height})
}

// Quit stops Run after the current frame.
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// enqueue never blocks; when the queue is full the event is dropped and
// false is returned.
func (a *App) enqueue(ev inputEvent) bool {
	select {
	case a.inputs <- ev:
		return true
	default:
		return false
	}
}

func (a *App) enqueuePresenterEvent(ev render.Event) {
	switch ev.Kind {
	case render.EventPointerMove:
		a.PointerMove(ev.X, ev.Y)
	case render.EventPointerDown:
		a.PointerDown(ev.X, ev.Y)
	case render.EventResize:
		a.Resize(ev.Width, ev.Height)
	case render.EventKey:
		a.handleKey(ev.Key)
	case render.EventQuit:
		a.Quit()
	}
}

// drainInputs applies every queued event in arrival order. It reports
// whether a quit was requested.
func (a *App) drainInputs() bool {
	for {
		select {
		case <-a.quit:
			return true
		default:
		}
		select {
		case ev := <-a.inputs:
			a.apply(ev)
		default:
			return false
		}
	}
}

func (a *App) apply(ev inputEvent) {
	switch ev.kind {
	case inputPointerMove:
		a.field.ApplyPointerRepulsion(ev.x, ev.y)
	case inputPointerDown:
		a.field.SpawnBurst(ev.x, ev.y, a.cfg.BurstSize, a.burstEnergy())
	case inputRandomBurst:
		w, h := a.field.Bounds()
		a.field.SpawnBurst(a.rng.Float64()*w, a.rng.Float64()*h, a.cfg.BurstSize, a.burstEnergy())
	case inputResize:
		a.canvas.Resize(ev.width, ev.height)
		w, h := a.canvas.Size()
		a.field.Resize(float64(w), float64(h))
	case inputCycleAccent:
		a.cycleAccent()
	case inputQuit:
		a.Quit()
	}
}

// burstEnergy samples a random bin of the last spectrum, or 0.5 when none
// has been seen yet.
func (a *App) burstEnergy() float64 {
	if len(a.lastBins) == 0 {
		return 0.5
	}
	return float64(a.lastBins[a.rng.Intn(len(a.lastBins))]) / 255
}

func (a *App) cycleAccent() {
	current, _ := a.Tunables()
	next := palette.Presets[0]
	for i, hex := range palette.Presets {
		if hex == current.Hex() {
			next = palette.Presets[(i+1)%len(palette.Presets)]
			break
		}
	}
	accent := palette.MustAccent(next)
	a.SetAccent(accent)
	a.log.Printf("accent -> %s", accent)
}

func (a *App) handleKey(key rune) {
	switch key {
	case 'q', 'Q':
		a.Quit()
	case 'c', 'C':
		a.enqueue(inputEvent{kind: inputCycleAccent})
	case ' ':
		a.Burst()
	}
}

// startInputListener reads raw keys from the terminal until ctx is done.
func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		return
	}

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch {
			case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
				a.Quit()
				return
			case key == keyboard.KeySpace:
				a.handleKey(' ')
			default:
				a.handleKey(char)
			}
		}
	}()
}
