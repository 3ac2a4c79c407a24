package field

import "time"

// LogEntry is one audit-trail record. Every mutating operation appends
// exactly one entry before returning; discrete events such as attractor
// formation and protocol executions append their own entries.
type LogEntry struct {
	Seq    int64             `json:"seq"`
	Time   time.Time         `json:"time"`
	Op     string            `json:"op"`
	Target string            `json:"target,omitempty"`
	Detail map[string]string `json:"detail,omitempty"`
}

// opLog is a fixed-capacity ring buffer. Bounding the audit trail keeps
// long-lived fields from leaking memory.
type opLog struct {
	entries []LogEntry
	cap     int
	next    int64 // monotonically growing sequence
}

func newOpLog(capacity int) *opLog {
	return &opLog{cap: capacity}
}

func (l *opLog) append(e LogEntry) {
	l.next++
	e.Seq = l.next
	if len(l.entries) < l.cap {
		l.entries = append(l.entries, e)
		return
	}
	copy(l.entries, l.entries[1:])
	l.entries[len(l.entries)-1] = e
}

// all returns the retained entries oldest first.
func (l *opLog) all() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HistoryPoint is a periodic compact snapshot of field state.
type HistoryPoint struct {
	Time       time.Time `json:"time"`
	Patterns   int       `json:"patterns"`
	Attractors int       `json:"attractors"`
	Pathways   int       `json:"pathways"`
	Metrics    Metrics   `json:"metrics"`
}

// history is a fixed-capacity ring of HistoryPoints.
type history struct {
	points []HistoryPoint
	cap    int
}

func newHistory(capacity int) *history {
	return &history{cap: capacity}
}

func (h *history) push(p HistoryPoint) {
	if len(h.points) < h.cap {
		h.points = append(h.points, p)
		return
	}
	copy(h.points, h.points[1:])
	h.points[len(h.points)-1] = p
}

func (h *history) all() []HistoryPoint {
	out := make([]HistoryPoint, len(h.points))
	copy(out, h.points)
	return out
}
