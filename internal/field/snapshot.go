package field

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the complete serializable state of a field. Restoring a
// snapshot reproduces identical ids, strengths, positions and metrics.
type Snapshot struct {
	FieldID     string            `json:"field_id"`
	TakenAt     time.Time         `json:"taken_at"`
	Params      Params            `json:"params"`
	Patterns    []Pattern         `json:"patterns"`
	Attractors  []Attractor       `json:"attractors"`
	Pathways    []Pathway         `json:"pathways"`
	Candidates  []string          `json:"candidates"`
	Promoted    map[string]string `json:"promoted"`
	Metrics     Metrics           `json:"metrics"`
	RepairState RepairState       `json:"repair_state"`
	Seq         int64             `json:"seq"`
	Mutations   int64             `json:"mutations"`
	ClampEvents int64             `json:"clamp_events"`
	Log         []LogEntry        `json:"log"`
	LogSeq      int64             `json:"log_seq"`
	History     []HistoryPoint    `json:"history"`
}

// Snapshot captures the field's full state.
func (f *Field) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		FieldID:     f.ID,
		TakenAt:     f.now(),
		Params:      f.params,
		Promoted:    make(map[string]string, len(f.promoted)),
		Metrics:     f.metrics,
		RepairState: f.repairState,
		Seq:         f.seq,
		Mutations:   f.mutations,
		ClampEvents: f.clampEvents,
		Log:         f.log.all(),
		LogSeq:      f.log.next,
		History:     f.hist.all(),
	}
	for _, id := range f.sortedPatternIDs() {
		s.Patterns = append(s.Patterns, copyPattern(f.patterns[id]))
	}
	for _, id := range f.sortedAttractorIDs() {
		a := *f.attractors[id]
		a.Position = append([]float64(nil), f.attractors[id].Position...)
		s.Attractors = append(s.Attractors, a)
	}
	pwIDs := make([]string, 0, len(f.pathways))
	for id := range f.pathways {
		pwIDs = append(pwIDs, id)
	}
	sort.Strings(pwIDs)
	for _, id := range pwIDs {
		s.Pathways = append(s.Pathways, *f.pathways[id])
	}
	for id := range f.candidates {
		s.Candidates = append(s.Candidates, id)
	}
	sort.Strings(s.Candidates)
	for k, v := range f.promoted {
		s.Promoted[k] = v
	}
	return s
}

// FromSnapshot reconstructs a field from a snapshot.
func FromSnapshot(s Snapshot, scorer Scorer, logger *zap.Logger) (*Field, error) {
	f, err := New(s.FieldID, s.Params, scorer, logger)
	if err != nil {
		return nil, fmt.Errorf("restore field %s: %w", s.FieldID, err)
	}
	for i := range s.Patterns {
		p := copyPattern(&s.Patterns[i])
		f.patterns[p.ID] = &p
	}
	for i := range s.Attractors {
		a := s.Attractors[i]
		a.Position = append([]float64(nil), s.Attractors[i].Position...)
		f.attractors[a.ID] = &a
	}
	for i := range s.Pathways {
		pw := s.Pathways[i]
		f.pathways[pw.ID] = &pw
	}
	for _, id := range s.Candidates {
		f.candidates[id] = true
	}
	for k, v := range s.Promoted {
		f.promoted[k] = v
	}
	f.metrics = s.Metrics
	f.repairState = s.RepairState
	f.seq = s.Seq
	f.mutations = s.Mutations
	f.clampEvents = s.ClampEvents
	f.log.entries = append([]LogEntry(nil), s.Log...)
	f.log.next = s.LogSeq
	f.hist.points = append([]HistoryPoint(nil), s.History...)
	return f, nil
}
