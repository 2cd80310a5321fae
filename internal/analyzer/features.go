package analyzer

// Features describes one frame's band energies and rhythmic cues.
// Energies are means of byte bins, so they range 0..255.
type Features struct {
	Bass        float64 `json:"bass"`
	Mid         float64 `json:"mid"`
	Treble      float64 `json:"treble"`
	Overall     float64 `json:"overall"`
	DominantBin int     `json:"dominantBin"`
	DominantHz  float64 `json:"dominantHz"`

	// IsBeat is the raw loudness decision for this frame.
	IsBeat bool `json:"isBeat"`
	// BeatAccepted is set once the BeatTracker has debounced IsBeat.
	BeatAccepted bool `json:"beatAccepted"`
	IsTransient  bool `json:"isTransient"`

	// Bins aliases the snapshot the features were derived from. Read only.
	Bins []uint8 `json:"-"`
}

// BinEnergy returns bin i scaled to 0..1, or 0 when there is no spectrum.
func (f Features) BinEnergy(i int) float64 {
	if i < 0 || i >= len(f.Bins) {
		return 0
	}
	return float64(f.Bins[i]) / 255
}

// Quiet reports whether nothing in the spectrum carries energy.
func (f Features) Quiet() bool {
	return f.Overall == 0
}
