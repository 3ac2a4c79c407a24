package field

import "fmt"

// NotFoundError reports an operation that referenced an unknown id.
type NotFoundError struct {
	Kind string // "pattern", "attractor", "pathway", "field"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// CapacityError reports an injection that could not be accommodated even
// after applying the overflow strategy. Only reachable with a zero or
// pathological capacity configuration.
type CapacityError struct {
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("field capacity %d cannot accommodate injection", e.Capacity)
}

// RepairFailedError reports a self-repair pass whose verification did not
// reach healthy. The engine never retries automatically; the caller decides
// whether to re-invoke.
type RepairFailedError struct {
	Health    float64
	Threshold float64
}

func (e *RepairFailedError) Error() string {
	return fmt.Sprintf("self-repair failed: health %.3f below threshold %.3f", e.Health, e.Threshold)
}
