package field

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scorer computes semantic resonance between two contents. Implementations
// must be pure and symmetric: the same pair always yields the same score,
// regardless of call order. The scorer call is the engine's only suspension
// point; a Field never exposes partial state while one is in flight.
type Scorer interface {
	Score(a, b string) (float64, error)
	Name() string
}

// Field owns all patterns, attractors and pathways of one semantic field.
// A field is a single unit of ownership behind one mutex; scaling across
// fields is done by sharding into independent Field instances.
type Field struct {
	ID string

	mu     sync.Mutex
	params Params
	scorer Scorer
	logger *zap.Logger

	patterns   map[string]*Pattern
	attractors map[string]*Attractor
	pathways   map[string]*Pathway

	// Promotion state machine bookkeeping: candidate pattern ids, and
	// pattern id -> attractor id for completed formations.
	candidates map[string]bool
	promoted   map[string]string

	metrics     Metrics
	repairState RepairState

	seq         int64
	mutations   int64
	clampEvents int64

	log  *opLog
	hist *history

	now func() time.Time
}

// New creates an empty field with the given parameters and resonance scorer.
func New(id string, params Params, scorer Scorer, logger *zap.Logger) (*Field, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("field params: %w", err)
	}
	if scorer == nil {
		return nil, fmt.Errorf("field requires a resonance scorer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if id == "" {
		id = uuid.New().String()
	}
	f := &Field{
		ID:          id,
		params:      params,
		scorer:      scorer,
		logger:      logger,
		patterns:    make(map[string]*Pattern),
		attractors:  make(map[string]*Attractor),
		pathways:    make(map[string]*Pathway),
		candidates:  make(map[string]bool),
		promoted:    make(map[string]string),
		repairState: RepairHealthy,
		log:         newOpLog(params.OpLogCapacity),
		hist:        newHistory(params.HistoryCapacity),
		now:         time.Now,
	}
	f.metrics = f.computeMetrics()
	return f, nil
}

// Params returns a copy of the field's parameters.
func (f *Field) Params() Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

// Inject stores new content in the field. The effective strength is
// attenuated by boundary permeability; injection never rejects content.
// One resonance pass runs against all existing patterns, attractor
// formation is re-evaluated, and the overflow strategy is applied if the
// capacity budget is exceeded.
func (f *Field) Inject(content string, strength float64, position []float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	capacity := f.params.effectiveCapacity()
	if capacity <= 0 {
		return "", &CapacityError{Capacity: capacity}
	}
	if position != nil && len(position) != f.params.Dimensions {
		return "", fmt.Errorf("position has %d dimensions, field has %d", len(position), f.params.Dimensions)
	}

	// Score against every existing pattern before mutating anything, so a
	// scorer failure leaves the field untouched.
	existing := f.sortedPatternIDs()
	scores := make(map[string]float64, len(existing))
	for _, id := range existing {
		s, err := f.scorer.Score(content, f.patterns[id].Content)
		if err != nil {
			return "", fmt.Errorf("resonance scoring: %w", err)
		}
		scores[id] = s
	}

	now := f.now()
	f.seq++
	p := &Pattern{
		ID:         uuid.New().String(),
		Content:    content,
		Strength:   clamp(strength*f.params.BoundaryPermeability, 0, f.params.MaxStrength),
		Position:   position,
		InjectedAt: now,
		UpdatedAt:  now,
		Resonances: make(map[string]float64),
		Seq:        f.seq,
	}
	if p.Position == nil {
		p.Position = derivePosition(content, f.params.Dimensions)
	}
	f.patterns[p.ID] = p

	// Retain only above-threshold scores (sparse representation), then run
	// a single amplification pass. One pass per injection, never recursive.
	amplified := 0
	for _, id := range existing {
		res := scores[id]
		if res < f.params.ResonanceThreshold {
			continue
		}
		other := f.patterns[id]
		p.Resonances[id] = res
		other.Resonances[p.ID] = res
		if res > f.params.ResonanceBandwidth {
			boost := 1 + (f.params.AmplificationFactor-1)*res
			p.Strength = clamp(p.Strength*boost, 0, f.params.MaxStrength)
			other.Strength = clamp(other.Strength*boost, 0, f.params.MaxStrength)
			other.UpdatedAt = now
			amplified++
		}
	}

	// Re-evaluate attractor formation for everything that moved.
	f.evaluatePromotion(p)
	for _, id := range existing {
		if scores[id] > f.params.ResonanceBandwidth {
			f.evaluatePromotion(f.patterns[id])
		}
	}

	detail := map[string]string{
		"strength":  fmt.Sprintf("%.3f", p.Strength),
		"amplified": fmt.Sprintf("%d", amplified),
	}
	if evicted := f.applyOverflow(capacity); len(evicted) > 0 {
		detail["evicted"] = fmt.Sprintf("%d", len(evicted))
	}

	f.afterMutation("inject", p.ID, detail)
	f.logger.Debug("pattern injected",
		zap.String("field", f.ID),
		zap.String("pattern", p.ID),
		zap.Float64("strength", p.Strength),
		zap.Int("amplified", amplified))
	return p.ID, nil
}

// Attenuate multiplies a pattern's or attractor's strength by factor,
// clamped to [0, max_strength].
func (f *Field) Attenuate(id string, factor float64) error {
	if factor < 0 {
		return fmt.Errorf("attenuate factor must be non-negative, got %v", factor)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scale(id, factor, "attenuate")
}

// Amplify multiplies a pattern's or attractor's strength by factor,
// clamped to [0, max_strength].
func (f *Field) Amplify(id string, factor float64) error {
	if factor < 0 {
		return fmt.Errorf("amplify factor must be non-negative, got %v", factor)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scale(id, factor, "amplify")
}

// scale applies a multiplicative strength change under the held lock.
// Hitting a clamp bound is recorded; frequent clamping degrades the
// boundary integrity metric.
func (f *Field) scale(id string, factor float64, op string) error {
	now := f.now()
	if p, ok := f.patterns[id]; ok {
		raw := p.Strength * factor
		p.Strength = clamp(raw, 0, f.params.MaxStrength)
		if raw != p.Strength {
			f.clampEvents++
		}
		p.UpdatedAt = now
		f.evaluatePromotion(p)
		f.afterMutation(op, id, map[string]string{"strength": fmt.Sprintf("%.3f", p.Strength)})
		return nil
	}
	if a, ok := f.attractors[id]; ok {
		raw := a.Strength * factor
		a.Strength = clamp(raw, 0, f.params.MaxStrength)
		if raw != a.Strength {
			f.clampEvents++
		}
		a.BasinWidth = basinWidth(a.Strength)
		f.afterMutation(op, id, map[string]string{"strength": fmt.Sprintf("%.3f", a.Strength)})
		return nil
	}
	return &NotFoundError{Kind: "pattern", ID: id}
}

// Prune removes a pattern or attractor and cascades removal of any pathway
// referencing it.
func (f *Field) Prune(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.patterns[id]; ok {
		f.removePattern(id)
		f.afterMutation("prune", id, nil)
		return nil
	}
	if _, ok := f.attractors[id]; ok {
		f.removeAttractor(id)
		f.afterMutation("prune", id, nil)
		return nil
	}
	return &NotFoundError{Kind: "pattern", ID: id}
}

// Decay advances simulated time by one unit. Patterns decay by decay_rate;
// attractors decay at the protected, reduced rate and are never pruned by
// decay. Patterns falling below the prune floor are removed.
// Exponential law: two decay calls equal one call at the squared retention.
func (f *Field) Decay() (pruned int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	retain := 1 - f.params.DecayRate
	for _, p := range f.patterns {
		p.Strength *= retain
		p.UpdatedAt = now
	}
	attractorRetain := 1 - f.params.DecayRate*(1-f.params.AttractorProtection)
	for _, a := range f.attractors {
		a.Strength *= attractorRetain
		a.BasinWidth = basinWidth(a.Strength)
	}

	for _, id := range f.sortedPatternIDs() {
		if f.patterns[id].Strength < f.params.PruneFloor {
			f.removePattern(id)
			pruned++
		}
	}

	f.afterMutation("decay", "", map[string]string{"pruned": fmt.Sprintf("%d", pruned)})
	f.logger.Debug("decay pass complete",
		zap.String("field", f.ID),
		zap.Int("pruned", pruned))
	return pruned
}

// StrengthenOnAccess boosts a pattern's strength by access_boost. Only
// operations explicitly marked as access call this; read-only inspection
// never does.
func (f *Field) StrengthenOnAccess(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.patterns[id]
	if !ok {
		return &NotFoundError{Kind: "pattern", ID: id}
	}
	p.Strength = clamp(p.Strength+f.params.AccessBoost, 0, f.params.MaxStrength)
	p.UpdatedAt = f.now()
	f.evaluatePromotion(p)
	f.afterMutation("access", id, map[string]string{"strength": fmt.Sprintf("%.3f", p.Strength)})
	return nil
}

// GetPattern returns a copy of the pattern. Read-only: no access boost.
func (f *Field) GetPattern(id string) (Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok {
		return Pattern{}, &NotFoundError{Kind: "pattern", ID: id}
	}
	return copyPattern(p), nil
}

// ActivePatterns returns copies of all patterns ordered by injection.
func (f *Field) ActivePatterns() []Pattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Pattern, 0, len(f.patterns))
	for _, id := range f.sortedPatternIDs() {
		out = append(out, copyPattern(f.patterns[id]))
	}
	return out
}

// Pathways returns copies of all pathways, oldest first.
func (f *Field) Pathways() []Pathway {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Pathway, 0, len(f.pathways))
	for _, pw := range f.pathways {
		out = append(out, *pw)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// OperationLog returns the retained audit trail, oldest first.
func (f *Field) OperationLog() []LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.log.all()
}

// StateHistory returns the retained periodic snapshots, oldest first.
func (f *Field) StateHistory() []HistoryPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hist.all()
}

// AppendProtocolRecord logs a protocol execution into the audit trail.
func (f *Field) AppendProtocolRecord(name string, detail map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.append(LogEntry{Time: f.now(), Op: "protocol." + name, Detail: detail})
}

// removePattern deletes a pattern, its resonance entries in other patterns,
// any pathway referencing it, and promotion bookkeeping. Caller holds lock.
func (f *Field) removePattern(id string) {
	delete(f.patterns, id)
	delete(f.candidates, id)
	delete(f.promoted, id)
	for _, other := range f.patterns {
		delete(other.Resonances, id)
	}
	f.removePathwaysOf(id)
}

// removeAttractor deletes an attractor and any pathway referencing it.
// Caller holds lock.
func (f *Field) removeAttractor(id string) {
	delete(f.attractors, id)
	for pid, aid := range f.promoted {
		if aid == id {
			delete(f.promoted, pid)
		}
	}
	f.removePathwaysOf(id)
}

func (f *Field) removePathwaysOf(id string) {
	for pwID, pw := range f.pathways {
		if pw.From == id || pw.To == id {
			delete(f.pathways, pwID)
		}
	}
}

// applyOverflow evicts or merges patterns until the count fits the budget.
// Returns the ids removed. Caller holds lock.
func (f *Field) applyOverflow(capacity int) []string {
	var removed []string
	for len(f.patterns) > capacity {
		var victim string
		switch f.params.OverflowStrategy {
		case OverflowPruneOldest:
			victim = f.oldestPattern()
		case OverflowPruneWeakest:
			victim = f.weakestPattern()
		case OverflowMergeSimilar:
			if merged := f.mergeMostResonant(); merged != "" {
				removed = append(removed, merged)
				continue
			}
			// No pair above the consolidation threshold: fall back to
			// evicting the weakest pattern.
			victim = f.weakestPattern()
		}
		if victim == "" {
			break
		}
		f.removePattern(victim)
		removed = append(removed, victim)
	}
	return removed
}

// oldestPattern returns the pattern with the lowest injection sequence.
func (f *Field) oldestPattern() string {
	var best string
	var bestSeq int64 = -1
	for _, id := range f.sortedPatternIDs() {
		p := f.patterns[id]
		if bestSeq == -1 || p.Seq < bestSeq {
			best, bestSeq = id, p.Seq
		}
	}
	return best
}

// weakestPattern returns the weakest pattern, older first on ties.
func (f *Field) weakestPattern() string {
	var best string
	bestStrength := -1.0
	var bestSeq int64
	for _, id := range f.sortedPatternIDs() {
		p := f.patterns[id]
		if bestStrength < 0 || p.Strength < bestStrength ||
			(p.Strength == bestStrength && p.Seq < bestSeq) {
			best, bestStrength, bestSeq = id, p.Strength, p.Seq
		}
	}
	return best
}

// mergeMostResonant merges the most resonant stored pair above the
// consolidation threshold into the stronger member: strength becomes the
// strength-weighted average, the stronger pattern's position is kept.
// Returns the id of the absorbed pattern, or "" when no pair qualifies.
func (f *Field) mergeMostResonant() string {
	var bestA, bestB string
	bestRes := 0.0
	for _, a := range f.sortedPatternIDs() {
		for b, res := range f.patterns[a].Resonances {
			if a >= b {
				continue
			}
			if res >= f.params.ConsolidationThreshold && res > bestRes {
				bestA, bestB, bestRes = a, b, res
			}
		}
	}
	if bestA == "" {
		return ""
	}

	pa, pb := f.patterns[bestA], f.patterns[bestB]
	keep, drop := pa, pb
	if pb.Strength > pa.Strength {
		keep, drop = pb, pa
	}
	total := keep.Strength + drop.Strength
	if total > 0 {
		keep.Strength = clamp((keep.Strength*keep.Strength+drop.Strength*drop.Strength)/total, 0, f.params.MaxStrength)
	}
	keep.Content = keep.Content + " | " + drop.Content
	keep.UpdatedAt = f.now()
	f.removePattern(drop.ID)
	return drop.ID
}

// afterMutation appends the operation's audit entry, recomputes metrics and
// pushes a periodic history point. Caller holds lock.
func (f *Field) afterMutation(op, target string, detail map[string]string) {
	f.mutations++
	f.log.append(LogEntry{Time: f.now(), Op: op, Target: target, Detail: detail})
	f.recomputeMetrics()
	if f.mutations%int64(f.params.HistoryEvery) == 0 {
		f.hist.push(HistoryPoint{
			Time:       f.now(),
			Patterns:   len(f.patterns),
			Attractors: len(f.attractors),
			Pathways:   len(f.pathways),
			Metrics:    f.metrics,
		})
	}
}

// sortedPatternIDs returns pattern ids in lexicographic order. Iteration
// over the map is never used where ordering is observable.
func (f *Field) sortedPatternIDs() []string {
	ids := make([]string, 0, len(f.patterns))
	for id := range f.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *Field) sortedAttractorIDs() []string {
	ids := make([]string, 0, len(f.attractors))
	for id := range f.attractors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyPattern(p *Pattern) Pattern {
	out := *p
	out.Position = append([]float64(nil), p.Position...)
	out.Resonances = make(map[string]float64, len(p.Resonances))
	for k, v := range p.Resonances {
		out.Resonances[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// derivePosition assigns a stable pseudo-random point in the unit cube,
// derived from the content so repeated runs place the same content at the
// same coordinates.
func derivePosition(content string, dims int) []float64 {
	pos := make([]float64, dims)
	for d := 0; d < dims; d++ {
		h := fnv.New64a()
		fmt.Fprintf(h, "%d:%s", d, content)
		pos[d] = float64(h.Sum64()%100000) / 100000
	}
	return pos
}
