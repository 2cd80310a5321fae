package app

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var profileSections = []string{"input", "analysis", "physics", "render", "present"}

// profiler appends one CSV row of per-stage timings per frame. A nil
// profiler is valid and records nothing.
type profiler struct {
	out     io.WriteCloser
	w       *csv.Writer
	now     func() time.Time
	frame   uint64
	start   time.Time
	last    time.Time
	timings map[string]float64
	row     []string
}

func newProfiler(path string) (*profiler, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return newProfilerTo(f, time.Now, info.Size() == 0), nil
}

func newProfilerTo(out io.WriteCloser, now func() time.Time, header bool) *profiler {
	p := &profiler{
		out:     out,
		w:       csv.NewWriter(out),
		now:     now,
		timings: make(map[string]float64, len(profileSections)),
		row:     make([]string, 0, len(profileSections)+3),
	}
	if header {
		cols := append([]string{"timestamp", "frame"}, profileSections...)
		_ = p.w.Write(append(cols, "total_ms"))
	}
	return p
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	p.frame++
	p.start = p.now()
	p.last = p.start
	clear(p.timings)
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := p.now()
	p.timings[name] += millis(now.Sub(p.last))
	p.last = now
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	p.row = append(p.row[:0], p.start.Format(time.RFC3339Nano), strconv.FormatUint(p.frame, 10))
	for _, s := range profileSections {
		p.row = append(p.row, strconv.FormatFloat(p.timings[s], 'f', 3, 64))
	}
	p.row = append(p.row, strconv.FormatFloat(millis(p.now().Sub(p.start)), 'f', 3, 64))
	_ = p.w.Write(p.row)
	p.w.Flush()
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.w.Flush()
	return p.out.Close()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
