package field

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// evaluatePromotion advances a pattern through the formation state machine:
// unformed -> candidate (>= 0.8 * threshold) -> attractor (>= threshold).
// The candidate stage is a continuous slide; the promotion itself is a
// discrete event recorded once in the operation log. A pattern that already
// resonates with an existing attractor above the bandwidth reinforces that
// attractor instead of forming a duplicate, so re-injecting the same
// concept produces exactly one formation event. Caller holds lock.
func (f *Field) evaluatePromotion(p *Pattern) {
	if _, done := f.promoted[p.ID]; done {
		return
	}
	threshold := f.params.AttractorThreshold
	if p.Strength < threshold {
		if p.Strength >= 0.8*threshold {
			f.candidates[p.ID] = true
		}
		return
	}

	// Capture by an existing basin: same concept, no second formation.
	for _, aid := range f.sortedAttractorIDs() {
		a := f.attractors[aid]
		res, err := f.scorer.Score(p.Content, a.Pattern)
		if err != nil {
			continue
		}
		if res > f.params.ResonanceBandwidth {
			if p.Strength > a.Strength {
				a.Strength = clamp(p.Strength, 0, f.params.MaxStrength)
				a.BasinWidth = basinWidth(a.Strength)
			}
			f.promoted[p.ID] = a.ID
			delete(f.candidates, p.ID)
			return
		}
	}

	f.seq++
	a := &Attractor{
		ID:         uuid.New().String(),
		Pattern:    p.Content,
		Strength:   p.Strength,
		BasinWidth: basinWidth(p.Strength),
		Position:   append([]float64(nil), p.Position...),
		FormedAt:   f.now(),
		Seq:        f.seq,
		SourceID:   p.ID,
	}
	f.attractors[a.ID] = a
	f.promoted[p.ID] = a.ID
	delete(f.candidates, p.ID)
	f.log.append(LogEntry{
		Time:   f.now(),
		Op:     "attractor.formed",
		Target: a.ID,
		Detail: map[string]string{
			"source":   p.ID,
			"strength": fmt.Sprintf("%.3f", a.Strength),
		},
	})
	f.logger.Info("attractor formed",
		zap.String("field", f.ID),
		zap.String("attractor", a.ID),
		zap.Float64("strength", a.Strength))
}

// ScanAttractors returns attractors with strength >= minStrength, strongest
// first; ties go to the earlier formation.
func (f *Field) ScanAttractors(minStrength float64) []Attractor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanAttractorsLocked(minStrength)
}

func (f *Field) scanAttractorsLocked(minStrength float64) []Attractor {
	out := make([]Attractor, 0, len(f.attractors))
	for _, id := range f.sortedAttractorIDs() {
		a := f.attractors[id]
		if a.Strength >= minStrength {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		if !out[i].FormedAt.Equal(out[j].FormedAt) {
			return out[i].FormedAt.Before(out[j].FormedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// CoEmergencePair is a pair of attractors selected for merging.
type CoEmergencePair struct {
	A         string  `json:"a"`
	B         string  `json:"b"`
	Resonance float64 `json:"resonance"`
}

// IdentifyCoEmergencePairs selects mutually exclusive attractor pairs whose
// resonance exceeds the bandwidth and whose merged strength would exceed
// attractor_threshold * strength_factor. Matching is greedy by descending
// pair resonance; each attractor is used at most once per pass.
func (f *Field) IdentifyCoEmergencePairs() ([]CoEmergencePair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.sortedAttractorIDs()
	var candidates []CoEmergencePair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := f.attractors[ids[i]], f.attractors[ids[j]]
			res, err := f.scorer.Score(a.Pattern, b.Pattern)
			if err != nil {
				return nil, fmt.Errorf("pair resonance: %w", err)
			}
			if res <= f.params.ResonanceBandwidth {
				continue
			}
			merged := clamp((a.Strength+b.Strength)*f.params.StrengthFactor, 0, f.params.MaxStrength)
			if merged <= f.params.AttractorThreshold*f.params.StrengthFactor {
				continue
			}
			candidates = append(candidates, CoEmergencePair{A: ids[i], B: ids[j], Resonance: res})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Resonance != candidates[j].Resonance {
			return candidates[i].Resonance > candidates[j].Resonance
		}
		if candidates[i].A != candidates[j].A {
			return candidates[i].A < candidates[j].A
		}
		return candidates[i].B < candidates[j].B
	})

	used := make(map[string]bool)
	var pairs []CoEmergencePair
	for _, c := range candidates {
		if used[c.A] || used[c.B] {
			continue
		}
		used[c.A], used[c.B] = true, true
		pairs = append(pairs, c)
	}
	return pairs, nil
}

// FacilitateCoEmergence merges each pair into one new attractor. The source
// attractors are retained: co-emergence is additive, preserving history.
// Pathways link both sources to the merged attractor.
func (f *Field) FacilitateCoEmergence(pairs []CoEmergencePair) ([]Attractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var created []Attractor
	now := f.now()
	for _, pair := range pairs {
		a, okA := f.attractors[pair.A]
		b, okB := f.attractors[pair.B]
		if !okA {
			return created, &NotFoundError{Kind: "attractor", ID: pair.A}
		}
		if !okB {
			return created, &NotFoundError{Kind: "attractor", ID: pair.B}
		}

		f.seq++
		merged := &Attractor{
			ID:       uuid.New().String(),
			Pattern:  a.Pattern + " + " + b.Pattern,
			Strength: clamp((a.Strength+b.Strength)*f.params.StrengthFactor, 0, f.params.MaxStrength),
			Position: midpoint(a.Position, b.Position),
			FormedAt: now,
			Seq:      f.seq,
		}
		merged.BasinWidth = basinWidth(merged.Strength)
		f.attractors[merged.ID] = merged

		for _, src := range []*Attractor{a, b} {
			pw := &Pathway{
				ID:        uuid.New().String(),
				From:      src.ID,
				To:        merged.ID,
				Strength:  pair.Resonance,
				CreatedAt: now,
			}
			f.pathways[pw.ID] = pw
		}
		created = append(created, *merged)
		f.logger.Info("co-emergence merge",
			zap.String("field", f.ID),
			zap.String("a", pair.A),
			zap.String("b", pair.B),
			zap.String("merged", merged.ID))
	}

	f.afterMutation("co_emerge", "", map[string]string{"created": fmt.Sprintf("%d", len(created))})
	return created, nil
}

// CreateAttractor forms an attractor directly from supplied content,
// bypassing the pattern promotion path. Used by memory consolidation.
func (f *Field) CreateAttractor(content string, strength float64) (Attractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if content == "" {
		return Attractor{}, fmt.Errorf("attractor content must not be empty")
	}
	f.seq++
	a := &Attractor{
		ID:       uuid.New().String(),
		Pattern:  content,
		Strength: clamp(strength, 0, f.params.MaxStrength),
		Position: derivePosition(content, f.params.Dimensions),
		FormedAt: f.now(),
		Seq:      f.seq,
	}
	a.BasinWidth = basinWidth(a.Strength)
	f.attractors[a.ID] = a
	f.log.append(LogEntry{
		Time:   f.now(),
		Op:     "attractor.formed",
		Target: a.ID,
		Detail: map[string]string{"strength": fmt.Sprintf("%.3f", a.Strength)},
	})
	f.afterMutation("create_attractor", a.ID, nil)
	return *a, nil
}

// StrengthenPathways multiplies every pathway strength by factor,
// clamped to [0,1].
func (f *Field) StrengthenPathways(factor float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, pw := range f.pathways {
		pw.Strength = clamp(pw.Strength*factor, 0, 1)
		n++
	}
	f.afterMutation("strengthen_pathways", "", map[string]string{"count": fmt.Sprintf("%d", n)})
	return n
}

// LinkPathway creates a pathway between two existing patterns or attractors.
func (f *Field) LinkPathway(from, to string, strength float64) (Pathway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range []string{from, to} {
		if _, ok := f.patterns[id]; ok {
			continue
		}
		if _, ok := f.attractors[id]; ok {
			continue
		}
		return Pathway{}, &NotFoundError{Kind: "pathway endpoint", ID: id}
	}
	pw := &Pathway{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Strength:  clamp(strength, 0, 1),
		CreatedAt: f.now(),
	}
	f.pathways[pw.ID] = pw
	f.afterMutation("link_pathway", pw.ID, map[string]string{"from": from, "to": to})
	return *pw, nil
}

func midpoint(a, b []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}
