package field

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Inconsistency kinds, each mapping one-to-one to a root-cause category.
const (
	InconsistencyOrphanPathway       = "orphan_pathway"
	InconsistencySubThresholdAttract = "sub_threshold_attractor"
	InconsistencyAsymmetricResonance = "asymmetric_resonance"
)

// Inconsistency is a structural defect found by a diagnostic sweep.
type Inconsistency struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Detail string `json:"detail,omitempty"`
}

// RepairAction is one planned repair step.
type RepairAction struct {
	Kind   string `json:"kind"` // "remove_pathway", "demote_attractor", "symmetrize_resonance", "reinforce_field"
	Target string `json:"target,omitempty"`
}

// RepairOutcome records one executed action. Partial success is allowed:
// a failed action rolls back only itself, not the whole plan.
type RepairOutcome struct {
	Action RepairAction `json:"action"`
	OK     bool         `json:"ok"`
	Error  string       `json:"error,omitempty"`
}

// RepairStatus is the verify verdict of one repair pass.
type RepairStatus string

const (
	RepairOK      RepairStatus = "ok"
	RepairPartial RepairStatus = "partial"
	RepairFailure RepairStatus = "failed"
)

// RepairReport is the full output of one self-repair cycle.
type RepairReport struct {
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Actions         []RepairAction  `json:"actions"`
	Outcomes        []RepairOutcome `json:"outcomes"`
	Before          Metrics         `json:"before"`
	After           Metrics         `json:"after"`
	Status          RepairStatus    `json:"status"`
}

// DetectInconsistencies sweeps the field for orphan pathways, attractors
// below threshold that were never demoted, and resonance asymmetries. The
// asymmetry check is defensive; a correct scorer never produces one.
func (f *Field) DetectInconsistencies() []Inconsistency {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detectLocked()
}

func (f *Field) detectLocked() []Inconsistency {
	var found []Inconsistency

	pwIDs := make([]string, 0, len(f.pathways))
	for id := range f.pathways {
		pwIDs = append(pwIDs, id)
	}
	sort.Strings(pwIDs)
	for _, id := range pwIDs {
		pw := f.pathways[id]
		for _, end := range []string{pw.From, pw.To} {
			_, isPattern := f.patterns[end]
			_, isAttractor := f.attractors[end]
			if !isPattern && !isAttractor {
				found = append(found, Inconsistency{
					Kind:   InconsistencyOrphanPathway,
					Target: id,
					Detail: "endpoint " + end + " pruned",
				})
				break
			}
		}
	}

	for _, id := range f.sortedAttractorIDs() {
		if f.attractors[id].Strength < f.params.AttractorThreshold {
			found = append(found, Inconsistency{
				Kind:   InconsistencySubThresholdAttract,
				Target: id,
			})
		}
	}

	seen := make(map[string]bool)
	for _, a := range f.sortedPatternIDs() {
		bs := make([]string, 0, len(f.patterns[a].Resonances))
		for b := range f.patterns[a].Resonances {
			bs = append(bs, b)
		}
		sort.Strings(bs)
		for _, b := range bs {
			other, ok := f.patterns[b]
			if !ok {
				continue
			}
			key := a + "|" + b
			if b < a {
				key = b + "|" + a
			}
			if seen[key] {
				continue
			}
			back, stored := other.Resonances[a]
			if !stored || back != f.patterns[a].Resonances[b] {
				seen[key] = true
				found = append(found, Inconsistency{
					Kind:   InconsistencyAsymmetricResonance,
					Target: key,
				})
			}
		}
	}
	return found
}

// Diagnose maps inconsistencies to root-cause categories. The mapping is
// deterministic: the inconsistency kind is the category.
func (f *Field) Diagnose(found []Inconsistency) map[string][]Inconsistency {
	report := make(map[string][]Inconsistency)
	for _, inc := range found {
		report[inc.Kind] = append(report[inc.Kind], inc)
	}
	return report
}

// PlanRepairs orders repair actions: orphan pathways first, then attractor
// demotions, then resonance symmetrization. When nothing structural is
// wrong but the field is degraded, a reinforcement pass is planned.
func (f *Field) PlanRepairs(diagnosis map[string][]Inconsistency) []RepairAction {
	var plan []RepairAction
	for _, inc := range diagnosis[InconsistencyOrphanPathway] {
		plan = append(plan, RepairAction{Kind: "remove_pathway", Target: inc.Target})
	}
	for _, inc := range diagnosis[InconsistencySubThresholdAttract] {
		plan = append(plan, RepairAction{Kind: "demote_attractor", Target: inc.Target})
	}
	for _, inc := range diagnosis[InconsistencyAsymmetricResonance] {
		plan = append(plan, RepairAction{Kind: "symmetrize_resonance", Target: inc.Target})
	}
	if len(plan) == 0 && f.Monitor().OverallHealth < f.Params().HealthThreshold {
		plan = append(plan, RepairAction{Kind: "reinforce_field"})
	}
	return plan
}

// ExecuteRepairs applies the planned actions. Each action checkpoints the
// mutable state beforehand; on failure only that action is rolled back and
// execution continues with the next.
func (f *Field) ExecuteRepairs(plan []RepairAction) []RepairOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	outcomes := make([]RepairOutcome, 0, len(plan))
	for _, action := range plan {
		checkpoint := f.cloneStateLocked()
		err := f.applyRepairLocked(action)
		if err != nil {
			f.restoreStateLocked(checkpoint)
			outcomes = append(outcomes, RepairOutcome{Action: action, Error: err.Error()})
			f.logger.Warn("repair action rolled back",
				zap.String("field", f.ID),
				zap.String("kind", action.Kind),
				zap.String("target", action.Target),
				zap.Error(err))
			continue
		}
		outcomes = append(outcomes, RepairOutcome{Action: action, OK: true})
	}

	f.afterMutation("execute_repairs", "", map[string]string{"actions": fmt.Sprintf("%d", len(plan))})
	return outcomes
}

func (f *Field) applyRepairLocked(action RepairAction) error {
	switch action.Kind {
	case "remove_pathway":
		if _, ok := f.pathways[action.Target]; !ok {
			return &NotFoundError{Kind: "pathway", ID: action.Target}
		}
		delete(f.pathways, action.Target)
		return nil

	case "demote_attractor":
		a, ok := f.attractors[action.Target]
		if !ok {
			return &NotFoundError{Kind: "attractor", ID: action.Target}
		}
		// Back to an ordinary pattern, strength preserved.
		f.seq++
		p := &Pattern{
			ID:         a.ID,
			Content:    a.Pattern,
			Strength:   a.Strength,
			Position:   append([]float64(nil), a.Position...),
			InjectedAt: f.now(),
			UpdatedAt:  f.now(),
			Resonances: make(map[string]float64),
			Seq:        f.seq,
		}
		f.removeAttractor(a.ID)
		f.patterns[p.ID] = p
		return nil

	case "symmetrize_resonance":
		a, b, ok := splitPairTarget(action.Target)
		if !ok {
			return fmt.Errorf("malformed resonance target %q", action.Target)
		}
		pa, okA := f.patterns[a]
		pb, okB := f.patterns[b]
		if !okA || !okB {
			return &NotFoundError{Kind: "pattern", ID: action.Target}
		}
		// Deterministic reconciliation: both sides take the higher score.
		res := pa.Resonances[b]
		if pb.Resonances[a] > res {
			res = pb.Resonances[a]
		}
		pa.Resonances[b] = res
		pb.Resonances[a] = res
		return nil

	case "reinforce_field":
		boost := 1 + f.params.RepairStrength
		for _, id := range f.sortedAttractorIDs() {
			a := f.attractors[id]
			a.Strength = clamp(a.Strength*boost, 0, f.params.MaxStrength)
			a.BasinWidth = basinWidth(a.Strength)
		}
		return nil

	default:
		return fmt.Errorf("unknown repair action %q", action.Kind)
	}
}

// VerifyRepairs judges a repair pass: ok when health reached the
// threshold, failed when health did not improve, partial otherwise.
func (f *Field) VerifyRepairs(before Metrics) RepairStatus {
	after := f.Monitor()
	threshold := f.Params().HealthThreshold
	switch {
	case after.OverallHealth >= threshold:
		return RepairOK
	case after.OverallHealth <= before.OverallHealth:
		return RepairFailure
	default:
		return RepairPartial
	}
}

// SelfRepair runs the full cycle: monitor, detect, diagnose, plan, execute,
// verify. A single pass only; the engine never retries automatically, the
// caller decides whether to re-invoke. Returns RepairFailedError when the
// verify verdict is failed.
func (f *Field) SelfRepair() (RepairReport, error) {
	before := f.Monitor()

	f.mu.Lock()
	f.repairState = RepairRepairing
	f.mu.Unlock()

	found := f.DetectInconsistencies()
	diagnosis := f.Diagnose(found)
	plan := f.PlanRepairs(diagnosis)
	outcomes := f.ExecuteRepairs(plan)
	status := f.VerifyRepairs(before)

	report := RepairReport{
		Inconsistencies: found,
		Actions:         plan,
		Outcomes:        outcomes,
		Before:          before,
		After:           f.Monitor(),
		Status:          status,
	}

	f.mu.Lock()
	if status == RepairFailure {
		f.repairState = RepairFailed
	} else {
		// Leave the repairing state before recomputing so the health
		// check can settle on healthy or degraded.
		f.repairState = RepairHealthy
		f.recomputeMetrics()
	}
	f.mu.Unlock()

	f.logger.Info("self-repair pass complete",
		zap.String("field", f.ID),
		zap.Int("inconsistencies", len(found)),
		zap.Int("actions", len(plan)),
		zap.String("status", string(status)))

	if status == RepairFailure {
		return report, &RepairFailedError{
			Health:    report.After.OverallHealth,
			Threshold: f.Params().HealthThreshold,
		}
	}
	return report, nil
}

// cloneStateLocked deep-copies the mutable collections for checkpointing.
func (f *Field) cloneStateLocked() fieldState {
	st := fieldState{
		patterns:   make(map[string]*Pattern, len(f.patterns)),
		attractors: make(map[string]*Attractor, len(f.attractors)),
		pathways:   make(map[string]*Pathway, len(f.pathways)),
		promoted:   make(map[string]string, len(f.promoted)),
	}
	for id, p := range f.patterns {
		cp := copyPattern(p)
		st.patterns[id] = &cp
	}
	for id, a := range f.attractors {
		ca := *a
		ca.Position = append([]float64(nil), a.Position...)
		st.attractors[id] = &ca
	}
	for id, pw := range f.pathways {
		cpw := *pw
		st.pathways[id] = &cpw
	}
	for k, v := range f.promoted {
		st.promoted[k] = v
	}
	return st
}

func (f *Field) restoreStateLocked(st fieldState) {
	f.patterns = st.patterns
	f.attractors = st.attractors
	f.pathways = st.pathways
	f.promoted = st.promoted
}

type fieldState struct {
	patterns   map[string]*Pattern
	attractors map[string]*Attractor
	pathways   map[string]*Pathway
	promoted   map[string]string
}

func splitPairTarget(target string) (string, string, bool) {
	for i := 0; i < len(target); i++ {
		if target[i] == '|' {
			return target[:i], target[i+1:], true
		}
	}
	return "", "", false
}
