package field

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Manager owns a set of independent fields. Each field serializes its own
// operations behind its own lock; the manager only guards the registry.
// Sharding across fields is the scaling strategy, not finer-grained
// locking inside one field.
type Manager struct {
	mu     sync.RWMutex
	fields map[string]*Field
	scorer Scorer
	logger *zap.Logger
}

// NewManager creates an empty field registry using the given default scorer.
func NewManager(scorer Scorer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fields: make(map[string]*Field),
		scorer: scorer,
		logger: logger,
	}
}

// Create registers a new field with the given parameters. An empty id is
// assigned automatically.
func (m *Manager) Create(id string, params Params) (*Field, error) {
	f, err := New(id, params, m.scorer, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.fields[f.ID]; exists {
		return nil, &NotFoundError{Kind: "field (duplicate)", ID: f.ID}
	}
	m.fields[f.ID] = f
	m.logger.Info("field created", zap.String("field", f.ID))
	return f, nil
}

// Adopt registers an already-constructed field, e.g. one restored from a
// snapshot. An existing field with the same id is replaced.
func (m *Manager) Adopt(f *Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.ID] = f
}

// Get returns the field with the given id.
func (m *Manager) Get(id string) (*Field, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fields[id]
	if !ok {
		return nil, &NotFoundError{Kind: "field", ID: id}
	}
	return f, nil
}

// List returns summaries of all fields, ordered by id.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	fields := make([]*Field, 0, len(m.fields))
	for _, f := range m.fields {
		fields = append(fields, f)
	}
	m.mu.RUnlock()

	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	out := make([]Summary, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.GetSummary())
	}
	return out
}

// IDs returns all field ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.fields))
	for id := range m.fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete removes a field from the registry.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fields[id]; !ok {
		return &NotFoundError{Kind: "field", ID: id}
	}
	delete(m.fields, id)
	m.logger.Info("field deleted", zap.String("field", id))
	return nil
}
