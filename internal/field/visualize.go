package field

import "fmt"

// Summary is a read-only snapshot of counts, metrics and parameters.
type Summary struct {
	FieldID     string      `json:"field_id"`
	Patterns    int         `json:"patterns"`
	Attractors  int         `json:"attractors"`
	Pathways    int         `json:"pathways"`
	Candidates  int         `json:"candidates"`
	Metrics     Metrics     `json:"metrics"`
	RepairState RepairState `json:"repair_state"`
	Params      Params      `json:"params"`
}

// GetSummary returns the field's summary. Read-only: no access boost,
// no log entry.
func (f *Field) GetSummary() Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Summary{
		FieldID:     f.ID,
		Patterns:    len(f.patterns),
		Attractors:  len(f.attractors),
		Pathways:    len(f.pathways),
		Candidates:  len(f.candidates),
		Metrics:     f.metrics,
		RepairState: f.repairState,
		Params:      f.params,
	}
}

// View is the structured projection returned by Visualize. Rendering is
// the consumer's concern; the engine only returns the underlying data.
type View struct {
	Mode       string          `json:"mode"`
	Patterns   []Pattern       `json:"patterns,omitempty"`
	Attractors []Attractor     `json:"attractors,omitempty"`
	Links      []ResonanceLink `json:"links,omitempty"`
}

// Visualize returns a read-only projection for display. Supported modes:
// "patterns", "attractors", "resonance_links".
func (f *Field) Visualize(mode string) (View, error) {
	switch mode {
	case "patterns":
		return View{Mode: mode, Patterns: f.ActivePatterns()}, nil
	case "attractors":
		return View{Mode: mode, Attractors: f.ScanAttractors(0)}, nil
	case "resonance_links":
		return View{Mode: mode, Links: f.ResonanceLinks()}, nil
	default:
		return View{}, fmt.Errorf("unknown visualization mode %q", mode)
	}
}
