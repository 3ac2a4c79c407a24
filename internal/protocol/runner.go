package protocol

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/field"
)

// Standard protocol names.
const (
	AttractorCoEmerge      = "attractor.co.emerge"
	FieldResonanceScaffold = "field.resonance.scaffold"
	RecursiveMemoryAttract = "recursive.memory.attractor"
	FieldSelfRepair        = "field.self_repair"
)

// Runner executes protocols against a field. Protocols register by name;
// the four standard pipelines are installed by NewRunner.
type Runner struct {
	registry map[string]*Protocol
	logger   *zap.Logger
}

// NewRunner builds a runner preloaded with the standard protocols.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{registry: map[string]*Protocol{}, logger: logger}
	for _, p := range standardProtocols() {
		r.registry[p.Name] = p
	}
	return r
}

// Register installs or replaces a protocol.
func (r *Runner) Register(p *Protocol) {
	r.registry[p.Name] = p
}

// Get returns a registered protocol.
func (r *Runner) Get(name string) (*Protocol, error) {
	p, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("protocol %s not registered", name)
	}
	return p, nil
}

// Names lists registered protocol names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for n := range r.registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// runState threads intermediate results between steps of one execution.
type runState struct {
	attractors []field.Attractor
	pairs      []field.CoEmergencePair
	created    []field.Attractor
	groups     [][]string
	items      []MemoryItem
	report     field.RepairReport
	before     field.Metrics
}

// Execute runs a registered protocol against a field. Steps run strictly
// in declared order; cancellation is checked between steps, never mid-step.
// On failure the error names the failed step and carries partial results.
func (r *Runner) Execute(ctx context.Context, f *field.Field, name string, args Args) (Results, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	results := Results{}
	st := &runState{items: args.Items, before: f.Monitor()}
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return results, &Error{Protocol: p.Name, Step: step.Kind, Partial: results, Err: err}
		}
		out, err := r.runStep(f, step, args, st)
		if err != nil {
			r.logger.Warn("protocol step failed",
				zap.String("protocol", p.Name),
				zap.String("step", string(step.Kind)),
				zap.Error(err))
			return results, &Error{Protocol: p.Name, Step: step.Kind, Partial: results, Err: err}
		}
		results[string(step.Kind)] = out
	}
	f.AppendProtocolRecord(p.Name, map[string]string{
		"version": p.Version,
		"steps":   strconv.Itoa(len(p.Steps)),
	})
	r.logger.Info("protocol complete",
		zap.String("protocol", p.Name),
		zap.Int("steps", len(p.Steps)))
	return results, nil
}

func (r *Runner) runStep(f *field.Field, step Step, args Args, st *runState) (interface{}, error) {
	param := func(key string, def float64) float64 {
		if v, ok := args.Overrides[key]; ok {
			return v
		}
		if v, ok := step.Params[key]; ok {
			return v
		}
		return def
	}
	fp := f.Params()

	switch step.Kind {
	case StepScanAttractors:
		st.attractors = f.ScanAttractors(0)
		return len(st.attractors), nil

	case StepFilterAttractors:
		min := param("min_strength", fp.AttractorThreshold)
		kept := st.attractors[:0]
		for _, a := range st.attractors {
			if a.Strength >= min {
				kept = append(kept, a)
			}
		}
		st.attractors = kept
		return len(st.attractors), nil

	case StepIdentifyPairs:
		pairs, err := f.IdentifyCoEmergencePairs()
		if err != nil {
			return nil, err
		}
		st.pairs = pairs
		return pairs, nil

	case StepFacilitate:
		created, err := f.FacilitateCoEmergence(st.pairs)
		if err != nil {
			return nil, err
		}
		st.created = created
		return created, nil

	case StepStrengthenAttractors:
		factor := param("factor", 1.1)
		n := 0
		for _, a := range f.ScanAttractors(0) {
			if err := f.Amplify(a.ID, factor); err != nil {
				continue
			}
			n++
		}
		return n, nil

	case StepDetectPatterns:
		return len(f.ActivePatterns()), nil

	case StepMeasureResonance:
		if err := f.RescoreResonances(); err != nil {
			return nil, err
		}
		links := f.ResonanceLinks()
		return len(links), nil

	case StepIdentifyGroups:
		min := param("min_resonance", fp.ResonanceBandwidth)
		st.groups = f.CoherentGroups(min)
		return st.groups, nil

	case StepAmplifyGroups:
		factor := param("factor", fp.AmplificationFactor)
		return f.AmplifyGroups(st.groups, factor), nil

	case StepDampenNoise:
		min := param("min_resonance", fp.ResonanceBandwidth)
		factor := param("factor", 0.9)
		return f.DampenNoise(min, factor), nil

	case StepRecomputeCoherence:
		m := f.Monitor()
		return map[string]float64{
			"coherence_before": st.before.Coherence,
			"coherence_after":  m.Coherence,
		}, nil

	case StepAssessImportance:
		scored := make([]MemoryItem, 0, len(st.items))
		for _, it := range st.items {
			if it.Importance == 0 {
				imp, err := f.AssessImportance(it.Content)
				if err != nil {
					return nil, err
				}
				it.Importance = imp
			}
			scored = append(scored, it)
		}
		st.items = scored
		return len(scored), nil

	case StepFilterImportance:
		min := param("min_importance", 0.5)
		kept := st.items[:0]
		for _, it := range st.items {
			if it.Importance >= min {
				kept = append(kept, it)
			}
		}
		st.items = kept
		return len(st.items), nil

	case StepCreateAttractors:
		created := make([]field.Attractor, 0, len(st.items))
		for _, it := range st.items {
			strength := it.Importance
			if strength < fp.AttractorThreshold {
				strength = fp.AttractorThreshold
			}
			a, err := f.CreateAttractor(it.Content, strength)
			if err != nil {
				return nil, err
			}
			created = append(created, a)
		}
		st.created = created
		return created, nil

	case StepStrengthenPathways:
		factor := param("factor", 1.1)
		return f.StrengthenPathways(factor), nil

	case StepHarmonize:
		if err := f.RescoreResonances(); err != nil {
			return nil, err
		}
		return f.Monitor(), nil

	case StepMonitorHealth:
		st.before = f.Monitor()
		return st.before, nil

	case StepDetectInconsistencies:
		st.report.Inconsistencies = f.DetectInconsistencies()
		return st.report.Inconsistencies, nil

	case StepDiagnose:
		diagnosis := f.Diagnose(st.report.Inconsistencies)
		kinds := make(map[string]int, len(diagnosis))
		for k, v := range diagnosis {
			kinds[k] = len(v)
		}
		return kinds, nil

	case StepPlanRepairs:
		st.report.Actions = f.PlanRepairs(f.Diagnose(st.report.Inconsistencies))
		return st.report.Actions, nil

	case StepExecuteRepairs:
		st.report.Outcomes = f.ExecuteRepairs(st.report.Actions)
		return st.report.Outcomes, nil

	case StepVerifyRepairs:
		st.report.Before = st.before
		st.report.After = f.Monitor()
		st.report.Status = f.VerifyRepairs(st.before)
		return st.report, nil
	}
	return nil, fmt.Errorf("unhandled step kind %q", step.Kind)
}

// standardProtocols builds the four built-in pipelines. Construction
// cannot fail for these; a panic here means a programming error.
func standardProtocols() []*Protocol {
	mk := func(name, version, intent string, steps []Step) *Protocol {
		p, err := New(name, version, intent, steps)
		if err != nil {
			panic(err)
		}
		return p
	}
	return []*Protocol{
		mk(AttractorCoEmerge, "1.0.0",
			"surface and merge co-emergent attractor pairs",
			[]Step{
				{Kind: StepScanAttractors},
				{Kind: StepFilterAttractors},
				{Kind: StepIdentifyPairs},
				{Kind: StepFacilitate},
				{Kind: StepStrengthenAttractors, Params: map[string]float64{"factor": 1.1}},
			}),
		mk(FieldResonanceScaffold, "1.0.0",
			"amplify coherent pattern groups and dampen noise",
			[]Step{
				{Kind: StepDetectPatterns},
				{Kind: StepMeasureResonance},
				{Kind: StepIdentifyGroups},
				{Kind: StepAmplifyGroups},
				{Kind: StepDampenNoise, Params: map[string]float64{"factor": 0.9}},
				{Kind: StepRecomputeCoherence},
			}),
		mk(RecursiveMemoryAttract, "1.0.0",
			"consolidate important memories into persistent attractors",
			[]Step{
				{Kind: StepAssessImportance},
				{Kind: StepFilterImportance, Params: map[string]float64{"min_importance": 0.5}},
				{Kind: StepCreateAttractors},
				{Kind: StepStrengthenPathways, Params: map[string]float64{"factor": 1.1}},
				{Kind: StepHarmonize},
			}),
		mk(FieldSelfRepair, "1.0.0",
			"detect, plan, and execute structural field repairs",
			[]Step{
				{Kind: StepMonitorHealth},
				{Kind: StepDetectInconsistencies},
				{Kind: StepDiagnose},
				{Kind: StepPlanRepairs},
				{Kind: StepExecuteRepairs},
				{Kind: StepVerifyRepairs},
			}),
	}
}
