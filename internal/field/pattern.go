package field

import (
	"time"
)

// Pattern is a unit of injected semantic content.
type Pattern struct {
	ID         string             `json:"id"`
	Content    string             `json:"content"`
	Strength   float64            `json:"strength"`
	Position   []float64          `json:"position"`
	InjectedAt time.Time          `json:"injected_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Resonances map[string]float64 `json:"resonances"`

	// Seq orders patterns by injection, independent of wall-clock resolution.
	Seq int64 `json:"seq"`
}

// Attractor is a pattern promoted to persistent, slow-decaying status.
type Attractor struct {
	ID         string    `json:"id"`
	Pattern    string    `json:"pattern"`
	Strength   float64   `json:"strength"`
	BasinWidth float64   `json:"basin_width"`
	Position   []float64 `json:"position"`
	FormedAt   time.Time `json:"formed_at"`
	Seq        int64     `json:"seq"`

	// SourceID is the pattern this attractor was promoted from,
	// empty for attractors created by co-emergence or protocols.
	SourceID string `json:"source_id,omitempty"`
}

// Pathway is a persistent association between two attractors or patterns.
// Endpoints are soft references: pruning an endpoint invalidates the pathway.
type Pathway struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Strength  float64   `json:"strength"`
	CreatedAt time.Time `json:"created_at"`
}

// Metrics are the aggregate health metrics of a field.
// OverallHealth is always the weighted recomputation of the four
// component metrics, never set independently.
type Metrics struct {
	Coherence         float64 `json:"coherence"`
	Stability         float64 `json:"stability"`
	BoundaryIntegrity float64 `json:"boundary_integrity"`
	AttractorStrength float64 `json:"attractor_strength"`
	OverallHealth     float64 `json:"overall_health"`
}

// Health metric weights.
const (
	weightCoherence         = 0.3
	weightStability         = 0.3
	weightBoundaryIntegrity = 0.2
	weightAttractorStrength = 0.2
)

// RepairState tracks the self-repair state machine.
type RepairState string

const (
	RepairHealthy   RepairState = "healthy"
	RepairDegraded  RepairState = "degraded"
	RepairRepairing RepairState = "repairing"
	RepairFailed    RepairState = "failed"
)

// OverflowStrategy selects how capacity pressure is relieved.
type OverflowStrategy string

const (
	OverflowPruneOldest  OverflowStrategy = "prune_oldest"
	OverflowPruneWeakest OverflowStrategy = "prune_weakest"
	OverflowMergeSimilar OverflowStrategy = "merge_similar"
)

// basinWidth derives an attractor's radius of influence from its strength.
func basinWidth(strength float64) float64 {
	return 0.5 + 0.5*strength
}
