package field

import "math"

// Monitor returns the current health metrics.
func (f *Field) Monitor() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

// State returns the self-repair state.
func (f *Field) State() RepairState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repairState
}

// recomputeMetrics refreshes metrics after a mutation and transitions the
// repair state between healthy and degraded. The repairing and failed
// states are owned by the repair cycle. Caller holds lock.
func (f *Field) recomputeMetrics() {
	f.metrics = f.computeMetrics()
	if f.repairState == RepairRepairing {
		return
	}
	if f.metrics.OverallHealth >= f.params.HealthThreshold {
		f.repairState = RepairHealthy
	} else {
		f.repairState = RepairDegraded
	}
}

// computeMetrics derives all metrics from current state. Pure over field
// contents; overall health is always the declared weighted sum.
func (f *Field) computeMetrics() Metrics {
	m := Metrics{
		Coherence:         f.coherence(),
		Stability:         f.stability(),
		BoundaryIntegrity: f.boundaryIntegrity(),
		AttractorStrength: f.attractorStrength(),
	}
	m.OverallHealth = weightCoherence*m.Coherence +
		weightStability*m.Stability +
		weightBoundaryIntegrity*m.BoundaryIntegrity +
		weightAttractorStrength*m.AttractorStrength
	return m
}

// coherence is the attractor-alignment-weighted mean of the stored pairwise
// resonances. Pairs whose endpoints fed an attractor weigh heavier. A field
// with fewer than two patterns is trivially coherent.
func (f *Field) coherence() float64 {
	if len(f.patterns) < 2 {
		return 1.0
	}
	var sum, weights float64
	for _, a := range f.sortedPatternIDs() {
		for b, res := range f.patterns[a].Resonances {
			if a >= b {
				continue
			}
			w := 1.0
			if _, ok := f.promoted[a]; ok {
				w += 0.5
			}
			if _, ok := f.promoted[b]; ok {
				w += 0.5
			}
			sum += res * w
			weights += w
		}
	}
	if weights == 0 {
		return 0
	}
	return clamp(sum/weights, 0, 1)
}

// stability grows with more, stronger, well-separated attractors.
func (f *Field) stability() float64 {
	if len(f.attractors) == 0 {
		if len(f.patterns) == 0 {
			return 1.0
		}
		return 0
	}

	countFactor := math.Min(1, float64(len(f.attractors))/5)

	var total float64
	for _, a := range f.attractors {
		total += a.Strength
	}
	strengthFactor := clamp(total/float64(len(f.attractors))/f.params.MaxStrength, 0, 1)

	separation := 1.0
	ids := f.sortedAttractorIDs()
	if len(ids) > 1 {
		var overlap float64
		pairs := 0
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := f.attractors[ids[i]], f.attractors[ids[j]]
				d := distance(a.Position, b.Position)
				span := a.BasinWidth + b.BasinWidth
				if span > 0 && d < span {
					overlap += (span - d) / span
				}
				pairs++
			}
		}
		separation = clamp(1-overlap/float64(pairs), 0, 1)
	}

	return clamp(0.3*countFactor+0.4*strengthFactor+0.3*separation, 0, 1)
}

// boundaryIntegrity starts at 1.0 and degrades as amplify/attenuate
// operations push strengths against the clamp limits.
func (f *Field) boundaryIntegrity() float64 {
	if f.mutations == 0 {
		return 1.0
	}
	return clamp(1-float64(f.clampEvents)/float64(f.mutations), 0, 1)
}

// attractorStrength is the mean attractor strength normalized by the
// strength ceiling.
func (f *Field) attractorStrength() float64 {
	if len(f.attractors) == 0 {
		return 0
	}
	var total float64
	for _, a := range f.attractors {
		total += a.Strength
	}
	return clamp(total/float64(len(f.attractors))/f.params.MaxStrength, 0, 1)
}

func distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
