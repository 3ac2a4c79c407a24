package field

import (
	"fmt"
	"sort"
)

// ResonanceLink is one stored above-threshold resonance pair (From < To).
type ResonanceLink struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Score float64 `json:"score"`
}

// ResonanceLinks returns the sparse resonance structure of the field,
// each pair reported once, ordered by id.
func (f *Field) ResonanceLinks() []ResonanceLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resonanceLinksLocked()
}

func (f *Field) resonanceLinksLocked() []ResonanceLink {
	var links []ResonanceLink
	for _, a := range f.sortedPatternIDs() {
		p := f.patterns[a]
		bs := make([]string, 0, len(p.Resonances))
		for b := range p.Resonances {
			if a < b {
				bs = append(bs, b)
			}
		}
		sort.Strings(bs)
		for _, b := range bs {
			links = append(links, ResonanceLink{From: a, To: b, Score: p.Resonances[b]})
		}
	}
	return links
}

// CoherentGroups partitions patterns into connected components over links
// with resonance >= minResonance. Groups with fewer than two members are
// omitted. Output ordering is deterministic.
func (f *Field) CoherentGroups(minResonance float64) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coherentGroupsLocked(minResonance)
}

func (f *Field) coherentGroupsLocked(minResonance float64) [][]string {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	for id := range f.patterns {
		parent[id] = id
	}
	for _, a := range f.sortedPatternIDs() {
		for b, res := range f.patterns[a].Resonances {
			if a < b && res >= minResonance {
				parent[find(a)] = find(b)
			}
		}
	}

	members := make(map[string][]string)
	for _, id := range f.sortedPatternIDs() {
		root := find(id)
		members[root] = append(members[root], id)
	}

	var groups [][]string
	for _, g := range members {
		if len(g) >= 2 {
			sort.Strings(g)
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

// AmplifyGroups multiplies the strength of every member of the given
// groups by factor, one audit entry for the whole pass.
func (f *Field) AmplifyGroups(groups [][]string, factor float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, g := range groups {
		for _, id := range g {
			p, ok := f.patterns[id]
			if !ok {
				continue
			}
			raw := p.Strength * factor
			p.Strength = clamp(raw, 0, f.params.MaxStrength)
			if raw != p.Strength {
				f.clampEvents++
			}
			f.evaluatePromotion(p)
			n++
		}
	}
	f.afterMutation("amplify_groups", "", map[string]string{"patterns": fmt.Sprintf("%d", n)})
	return n
}

// DampenNoise attenuates every pattern that belongs to no coherent group.
func (f *Field) DampenNoise(minResonance, factor float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	grouped := make(map[string]bool)
	for _, g := range f.coherentGroupsLocked(minResonance) {
		for _, id := range g {
			grouped[id] = true
		}
	}

	n := 0
	for _, id := range f.sortedPatternIDs() {
		if grouped[id] {
			continue
		}
		p := f.patterns[id]
		p.Strength = clamp(p.Strength*factor, 0, f.params.MaxStrength)
		n++
	}
	f.afterMutation("dampen_noise", "", map[string]string{"patterns": fmt.Sprintf("%d", n)})
	return n
}

// AssessImportance scores content against the field's current attractors,
// returning the highest resonance found. Contents unrelated to any
// attractor score 0. Read-only.
func (f *Field) AssessImportance(content string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	best := 0.0
	for _, id := range f.sortedAttractorIDs() {
		res, err := f.scorer.Score(content, f.attractors[id].Pattern)
		if err != nil {
			return 0, fmt.Errorf("assess importance: %w", err)
		}
		if res > best {
			best = res
		}
	}
	return best, nil
}

// RescoreResonances recomputes the full sparse resonance structure from
// current contents. Used by the harmonize step after direct attractor or
// pattern creation.
func (f *Field) RescoreResonances() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.sortedPatternIDs()
	scores := make(map[string]map[string]float64, len(ids))
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			res, err := f.scorer.Score(f.patterns[ids[i]].Content, f.patterns[ids[j]].Content)
			if err != nil {
				return fmt.Errorf("rescore resonance: %w", err)
			}
			if res < f.params.ResonanceThreshold {
				continue
			}
			if scores[ids[i]] == nil {
				scores[ids[i]] = make(map[string]float64)
			}
			if scores[ids[j]] == nil {
				scores[ids[j]] = make(map[string]float64)
			}
			scores[ids[i]][ids[j]] = res
			scores[ids[j]][ids[i]] = res
		}
	}
	for _, id := range ids {
		m := scores[id]
		if m == nil {
			m = make(map[string]float64)
		}
		f.patterns[id].Resonances = m
	}
	f.afterMutation("rescore", "", nil)
	return nil
}
