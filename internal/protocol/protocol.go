// Package protocol implements the shell runner: named, versioned pipelines
// of field operations. Steps form a closed, validated set; pipelines run
// strictly in declared order with cooperative cancellation between steps.
package protocol

import (
	"fmt"
)

// StepKind is the closed set of pipeline step variants. Unknown kinds are
// rejected when a protocol is constructed, not when it runs.
type StepKind string

const (
	StepScanAttractors        StepKind = "scan_attractors"
	StepFilterAttractors      StepKind = "filter_attractors"
	StepIdentifyPairs         StepKind = "identify_co_emergence_pairs"
	StepFacilitate            StepKind = "facilitate_co_emergence"
	StepStrengthenAttractors  StepKind = "strengthen_attractors"
	StepDetectPatterns        StepKind = "detect_patterns"
	StepMeasureResonance      StepKind = "measure_resonance"
	StepIdentifyGroups        StepKind = "identify_coherent_groups"
	StepAmplifyGroups         StepKind = "amplify_groups"
	StepDampenNoise           StepKind = "dampen_noise"
	StepRecomputeCoherence    StepKind = "recompute_coherence"
	StepAssessImportance      StepKind = "assess_importance"
	StepFilterImportance      StepKind = "filter_importance"
	StepCreateAttractors      StepKind = "create_attractors"
	StepStrengthenPathways    StepKind = "strengthen_pathways"
	StepHarmonize             StepKind = "harmonize"
	StepMonitorHealth         StepKind = "monitor_health"
	StepDetectInconsistencies StepKind = "detect_inconsistencies"
	StepDiagnose              StepKind = "diagnose"
	StepPlanRepairs           StepKind = "plan_repairs"
	StepExecuteRepairs        StepKind = "execute_repairs"
	StepVerifyRepairs         StepKind = "verify_repairs"
)

var knownKinds = map[StepKind]bool{
	StepScanAttractors:        true,
	StepFilterAttractors:      true,
	StepIdentifyPairs:         true,
	StepFacilitate:            true,
	StepStrengthenAttractors:  true,
	StepDetectPatterns:        true,
	StepMeasureResonance:      true,
	StepIdentifyGroups:        true,
	StepAmplifyGroups:         true,
	StepDampenNoise:           true,
	StepRecomputeCoherence:    true,
	StepAssessImportance:      true,
	StepFilterImportance:      true,
	StepCreateAttractors:      true,
	StepStrengthenPathways:    true,
	StepHarmonize:             true,
	StepMonitorHealth:         true,
	StepDetectInconsistencies: true,
	StepDiagnose:              true,
	StepPlanRepairs:           true,
	StepExecuteRepairs:        true,
	StepVerifyRepairs:         true,
}

// Step is one declared operation call with numeric parameters.
// Missing parameters fall back to step defaults or field parameters.
type Step struct {
	Kind   StepKind           `json:"kind"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Protocol is a named, versioned, parameterized pipeline.
type Protocol struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Intent  string `json:"intent"`
	Steps   []Step `json:"steps"`
}

// New validates and constructs a protocol. Malformed step kinds or
// negative parameters are caught here, before the protocol can run.
func New(name, version, intent string, steps []Step) (*Protocol, error) {
	if name == "" {
		return nil, fmt.Errorf("protocol name must not be empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("protocol %s declares no steps", name)
	}
	for i, s := range steps {
		if !knownKinds[s.Kind] {
			return nil, fmt.Errorf("protocol %s step %d: unknown step kind %q", name, i, s.Kind)
		}
		for k, v := range s.Params {
			if v < 0 {
				return nil, fmt.Errorf("protocol %s step %d: parameter %s must be non-negative, got %v", name, i, k, v)
			}
		}
	}
	return &Protocol{Name: name, Version: version, Intent: intent, Steps: steps}, nil
}

// MemoryItem is an externally supplied memory unit for consolidation
// protocols. A zero importance is assessed against the field's attractors.
type MemoryItem struct {
	Content    string  `json:"content"`
	Importance float64 `json:"importance,omitempty"`
}

// Args carries per-execution inputs.
type Args struct {
	// Items feeds the memory consolidation pipeline.
	Items []MemoryItem `json:"items,omitempty"`
	// Overrides replace step parameter defaults by name for this run.
	Overrides map[string]float64 `json:"overrides,omitempty"`
}

// Results accumulates each executed step's output, keyed by step kind.
type Results map[string]interface{}

// Error is a pipeline failure: it names the failed step and carries the
// partial results gathered before the failure.
type Error struct {
	Protocol string
	Step     StepKind
	Partial  Results
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol %s: step %s: %v", e.Protocol, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
