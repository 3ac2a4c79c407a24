package field

import "fmt"

// Params is the tunable surface of a field. All rates and thresholds live
// in [0,1] except MaxCapacity/ReservedTokens (proxy token counts) and
// MaxStrength/AmplificationFactor/StrengthFactor (>= 1.0 allowed).
type Params struct {
	Dimensions             int              `json:"dimensions"`
	DecayRate              float64          `json:"decay_rate"`
	BoundaryPermeability   float64          `json:"boundary_permeability"`
	ResonanceBandwidth     float64          `json:"resonance_bandwidth"`
	ResonanceThreshold     float64          `json:"resonance_threshold"`
	AttractorThreshold     float64          `json:"attractor_formation_threshold"`
	AttractorProtection    float64          `json:"attractor_protection"`
	MaxCapacity            int              `json:"max_capacity"`
	ReservedTokens         int              `json:"reserved_tokens"`
	OverflowStrategy       OverflowStrategy `json:"overflow_strategy"`
	ConsolidationThreshold float64          `json:"consolidation_threshold"`
	AccessBoost            float64          `json:"access_boost"`
	HealthThreshold        float64          `json:"health_threshold"`
	RepairStrength         float64          `json:"repair_strength"`
	MaxStrength            float64          `json:"max_strength"`
	AmplificationFactor    float64          `json:"amplification_factor"`
	StrengthFactor         float64          `json:"strength_factor"`
	PruneFloor             float64          `json:"prune_floor"`

	// Log bounds. The operation log and state history are ring buffers;
	// zero values fall back to defaults.
	OpLogCapacity   int `json:"op_log_capacity"`
	HistoryCapacity int `json:"history_capacity"`
	HistoryEvery    int `json:"history_every"`
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		Dimensions:             2,
		DecayRate:              0.05,
		BoundaryPermeability:   0.8,
		ResonanceBandwidth:     0.6,
		ResonanceThreshold:     0.2,
		AttractorThreshold:     0.7,
		AttractorProtection:    0.8,
		MaxCapacity:            100,
		ReservedTokens:         0,
		OverflowStrategy:       OverflowPruneOldest,
		ConsolidationThreshold: 0.5,
		AccessBoost:            0.1,
		HealthThreshold:        0.6,
		RepairStrength:         0.3,
		MaxStrength:            1.5,
		AmplificationFactor:    1.2,
		StrengthFactor:         1.2,
		PruneFloor:             0.05,
		OpLogCapacity:          256,
		HistoryCapacity:        32,
		HistoryEvery:           10,
	}
}

// Validate checks parameter ranges and fills zero-valued log bounds.
func (p *Params) Validate() error {
	if p.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", p.Dimensions)
	}
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"decay_rate", p.DecayRate},
		{"boundary_permeability", p.BoundaryPermeability},
		{"resonance_bandwidth", p.ResonanceBandwidth},
		{"resonance_threshold", p.ResonanceThreshold},
		{"attractor_formation_threshold", p.AttractorThreshold},
		{"attractor_protection", p.AttractorProtection},
		{"consolidation_threshold", p.ConsolidationThreshold},
		{"access_boost", p.AccessBoost},
		{"health_threshold", p.HealthThreshold},
		{"repair_strength", p.RepairStrength},
		{"prune_floor", p.PruneFloor},
	} {
		if r.v < 0 || r.v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", r.name, r.v)
		}
	}
	if p.MaxCapacity < 0 || p.ReservedTokens < 0 {
		return fmt.Errorf("capacity values must be non-negative")
	}
	if p.MaxStrength < 1.0 {
		return fmt.Errorf("max_strength must be >= 1.0, got %v", p.MaxStrength)
	}
	if p.AmplificationFactor < 1.0 || p.StrengthFactor < 1.0 {
		return fmt.Errorf("amplification_factor and strength_factor must be >= 1.0")
	}
	switch p.OverflowStrategy {
	case OverflowPruneOldest, OverflowPruneWeakest, OverflowMergeSimilar:
	default:
		return fmt.Errorf("unknown overflow_strategy %q", p.OverflowStrategy)
	}
	if p.OpLogCapacity <= 0 {
		p.OpLogCapacity = 256
	}
	if p.HistoryCapacity <= 0 {
		p.HistoryCapacity = 32
	}
	if p.HistoryEvery <= 0 {
		p.HistoryEvery = 10
	}
	return nil
}

// effectiveCapacity is the pattern budget after reserved tokens.
func (p *Params) effectiveCapacity() int {
	c := p.MaxCapacity - p.ReservedTokens
	if c < 0 {
		return 0
	}
	return c
}
