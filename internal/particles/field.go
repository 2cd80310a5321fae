// Package particles owns the audio-driven particle simulation.
package particles

import (
	"math"
	"math/rand"
	"time"

	"github.com/guidoenr/pulsefield/internal/analyzer"
	"github.com/guidoenr/pulsefield/internal/palette"
)

const (
	DefaultCount       = 120
	DefaultCeiling     = 120
	DefaultBurstSize   = 10
	DefaultRepelRadius = 100.0
	DefaultSensitivity = 5.0

	// MinSize is the floor every particle decays towards.
	MinSize = 0.5

	orbitProbability = 0.3
	baseDamping      = 0.98
)

// Particle is a single simulated glyph. Orbiting is fixed at creation.
type Particle struct {
	ID          uint64
	X, Y        float64
	VX, VY      float64
	Size        float64
	Hue         float64
	Orbiting    bool
	OrbitAngle  float64
	OrbitRadius float64
}

// Config controls population and interaction constants.
type Config struct {
	Ceiling     int
	RepelRadius float64
	Sensitivity float64
	AccentHue   float64
	Rand        *rand.Rand
}

// Field owns every particle. It is not safe for concurrent use: input
// handlers must go through the scheduler's queue rather than call it directly.
type Field struct {
	cfg         Config
	rng         *rand.Rand
	width       float64
	height      float64
	particles   []Particle
	nextID      uint64
	sensitivity float64
	accentHue   float64
}

// New creates an empty field. Call Initialize to seed it.
func New(cfg Config) *Field {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.RepelRadius <= 0 {
		cfg.RepelRadius = DefaultRepelRadius
	}
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = DefaultSensitivity
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Field{
		cfg:         cfg,
		rng:         rng,
		particles:   make([]Particle, 0, cfg.Ceiling),
		sensitivity: cfg.Sensitivity,
		accentHue:   palette.NormalizeHue(cfg.AccentHue),
	}
}

// Initialize replaces the population with count randomly seeded particles
// spread over a width x height canvas.
func (f *Field) Initialize(count int, width, height float64) {
	f.Resize(width, height)
	f.particles = f.particles[:0]
	for i := 0; i < count; i++ {
		f.particles = append(f.particles, Particle{
			ID:          f.newID(),
			X:           f.rng.Float64() * f.width,
			Y:           f.rng.Float64() * f.height,
			VX:          (f.rng.Float64() - 0.5) * 2,
			VY:          (f.rng.Float64() - 0.5) * 2,
			Size:        f.rng.Float64()*1.2 + MinSize,
			Hue:         f.rng.Float64() * 360,
			Orbiting:    f.rng.Float64() < orbitProbability,
			OrbitAngle:  f.rng.Float64() * math.Pi * 2,
			OrbitRadius: f.rng.Float64()*40 + 10,
		})
	}
	f.prune()
}

// Resize changes the reflecting bounds. Particles keep their positions.
func (f *Field) Resize(width, height float64) {
	f.width = math.Max(1, width)
	f.height = math.Max(1, height)
}

// Bounds returns the canvas size the field reflects against.
func (f *Field) Bounds() (float64, float64) { return f.width, f.height }

// Len returns the current population.
func (f *Field) Len() int { return len(f.particles) }

// Ceiling returns the population limit.
func (f *Field) Ceiling() int { return f.cfg.Ceiling }

// Particles exposes the population in insertion order. Callers must treat
// the slice as read only; it is reused by the next Advance.
func (f *Field) Particles() []Particle { return f.particles }

// SetSensitivity changes how strongly per-particle energy drives speed.
func (f *Field) SetSensitivity(s float64) { f.sensitivity = s }

// Sensitivity returns the current multiplier.
func (f *Field) Sensitivity() float64 { return f.sensitivity }

// Retint sets the accent hue used by bursts and repaints every particle with it.
func (f *Field) Retint(hue float64) {
	hue = palette.NormalizeHue(hue)
	f.accentHue = hue
	for i := range f.particles {
		f.particles[i].Hue = hue
	}
}

// AccentHue returns the hue bursts are seeded from.
func (f *Field) AccentHue() float64 { return f.accentHue }

// ApplyPointerRepulsion pushes every particle within the repulsion radius
// away from the pointer with a unit-direction impulse.
func (f *Field) ApplyPointerRepulsion(px, py float64) {
	radius := f.cfg.RepelRadius
	for i := range f.particles {
		p := &f.particles[i]
		dx := p.X - px
		dy := p.Y - py
		dist := math.Hypot(dx, dy)
		if dist >= radius || dist == 0 {
			continue
		}
		p.VX += dx / dist * 0.5
		p.VY += dy / dist * 0.5
	}
}

// SpawnBurst appends up to count particles at (x, y), scaled by energy
// (0..1). The oldest particles are evicted if the ceiling is exceeded.
// It returns how many particles were added.
func (f *Field) SpawnBurst(x, y float64, count int, energy float64) int {
	if count <= 0 {
		return 0
	}
	if count > f.cfg.Ceiling {
		count = f.cfg.Ceiling
	}
	energy = clamp(energy, 0, 1)
	for i := 0; i < count; i++ {
		f.particles = append(f.particles, Particle{
			ID:          f.newID(),
			X:           x,
			Y:           y,
			VX:          (f.rng.Float64() - 0.5) * 6 * (1 + energy),
			VY:          (f.rng.Float64() - 0.5) * 6 * (1 + energy),
			Size:        f.rng.Float64()*6 + 2 + energy*10,
			Hue:         palette.NormalizeHue(f.accentHue + energy*120),
			OrbitRadius: f.rng.Float64()*60 + 10,
		})
	}
	f.prune()
	return count
}

// Advance runs one physics step for every particle using this frame's
// features, key hue, tempo and clock, then enforces the ceiling.
func (f *Field) Advance(feat analyzer.Features, keyHue float64, tempo int, nowMs float64) {
	beatChance := 0.012 + feat.Bass/2000
	beatKick := 4 * (1 + feat.Bass/255)
	beatPhase := nowMs / 1000 * float64(tempo) / 60

	for i := range f.particles {
		p := &f.particles[i]
		energy, bassEnergy := Energies(feat.Bins, i)
		rhythm := math.Sin(beatPhase+float64(i))*0.5 + 1

		if p.Orbiting {
			p.OrbitAngle += 0.008 + energy*0.06 + bassEnergy*0.08 + float64(tempo)/10_000
			step := p.OrbitRadius * 0.006 * (1 + bassEnergy) * rhythm
			p.X += math.Cos(p.OrbitAngle) * step
			p.Y += math.Sin(p.OrbitAngle) * step
		}

		speed := (0.7 + energy*f.sensitivity*0.08 + bassEnergy*0.18) * rhythm
		p.X += p.VX * speed
		p.Y += p.VY * speed

		damping := baseDamping - bassEnergy*0.01
		p.VX *= damping
		p.VY *= damping

		// only flip when heading further out so edge-straddlers don't jitter
		if (p.X < 0 && p.VX < 0) || (p.X > f.width && p.VX > 0) {
			p.VX = -p.VX
		}
		if (p.Y < 0 && p.VY < 0) || (p.Y > f.height && p.VY > 0) {
			p.VY = -p.VY
		}

		if feat.BeatAccepted && f.rng.Float64() < beatChance {
			p.VX += (f.rng.Float64() - 0.5) * beatKick
			p.VY += (f.rng.Float64() - 0.5) * beatKick
			p.Size += 0.5 + feat.Bass/400
			p.Hue = palette.NormalizeHue(keyHue + 60 + feat.Bass/8)
		}

		if feat.IsTransient && f.rng.Float64() < 0.5 {
			p.Size += 2
			p.Hue = 60 + f.rng.Float64()*60
			p.VX += (f.rng.Float64() - 0.5) * 8
			p.VY += (f.rng.Float64() - 0.5) * 8
		}

		p.Size = math.Max(MinSize, p.Size*0.97+1.2*bassEnergy)
	}

	f.prune()
}

// Energies samples the spectrum for particle i: energy from bin i mod n and
// bass energy from the bin at 20% of that index, both scaled to 0..1.
func Energies(bins []uint8, i int) (energy, bass float64) {
	n := len(bins)
	if n == 0 || i < 0 {
		return 0, 0
	}
	idx := i % n
	energy = float64(bins[idx]) / 255
	bass = float64(bins[idx/5]) / 255
	return energy, bass
}

// prune drops the oldest particles above the ceiling.
func (f *Field) prune() {
	excess := len(f.particles) - f.cfg.Ceiling
	if excess <= 0 {
		return
	}
	f.particles = append(f.particles[:0], f.particles[excess:]...)
}

func (f *Field) newID() uint64 {
	f.nextID++
	return f.nextID
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
