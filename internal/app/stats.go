package app

import (
	"github.com/guidoenr/pulsefield/internal/analyzer"
	"github.com/guidoenr/pulsefield/internal/palette"
)

// Stats is a point-in-time copy of the scheduler's telemetry.
type Stats struct {
	Source      string            `json:"source"`
	Frames      uint64            `json:"frames"`
	Skipped     uint64            `json:"skipped"`
	FPS         float64           `json:"fps"`
	Tempo       int               `json:"tempo"`
	KeyHue      float64           `json:"keyHue"`
	Particles   int               `json:"particles"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Accent      string            `json:"accent"`
	Sensitivity float64           `json:"sensitivity"`
	Features    analyzer.Features `json:"features"`
}

// Stats returns the telemetry of the last presented frame.
func (a *App) Stats() Stats {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()
	return a.stats
}

func (a *App) publish(feat analyzer.Features, tempo int, keyHue float64, accent palette.Accent, sensitivity float64) {
	w, h := a.canvas.Size()
	feat.Bins = nil
	source := a.SourceName()

	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.stats.Source = source
	a.stats.Frames++
	a.stats.FPS = a.fps
	a.stats.Tempo = tempo
	a.stats.KeyHue = keyHue
	a.stats.Particles = a.field.Len()
	a.stats.Width = w
	a.stats.Height = h
	a.stats.Accent = accent.Hex()
	a.stats.Sensitivity = sensitivity
	a.stats.Features = feat
}

func (a *App) countSkipped() {
	a.statsMu.Lock()
	a.stats.Skipped++
	a.statsMu.Unlock()
}
