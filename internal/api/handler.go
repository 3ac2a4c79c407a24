package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/field"
	"github.com/nidhogg/semfield/internal/persist"
	"github.com/nidhogg/semfield/internal/protocol"
	"github.com/nidhogg/semfield/internal/vectors"
)

// Handler holds dependencies for HTTP handlers. The store and index are
// optional; routes that need them answer 503 when they are absent.
type Handler struct {
	manager  *field.Manager
	runner   *protocol.Runner
	store    *persist.Store
	index    *vectors.Index
	scorer   field.Scorer
	defaults field.Params
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	manager *field.Manager,
	runner *protocol.Runner,
	store *persist.Store,
	index *vectors.Index,
	scorer field.Scorer,
	defaults field.Params,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		manager:  manager,
		runner:   runner,
		store:    store,
		index:    index,
		scorer:   scorer,
		defaults: defaults,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/protocols", h.listProtocols)

		r.Post("/fields", h.createField)
		r.Get("/fields", h.listFields)
		r.Post("/fields/restore/{id}", h.restoreField)
		r.Get("/fields/{id}", h.getField)
		r.Delete("/fields/{id}", h.deleteField)

		r.Post("/fields/{id}/patterns", h.injectPattern)
		r.Get("/fields/{id}/patterns", h.listPatterns)
		r.Get("/fields/{id}/patterns/{pid}", h.getPattern)
		r.Delete("/fields/{id}/patterns/{pid}", h.prunePattern)
		r.Post("/fields/{id}/patterns/{pid}/amplify", h.amplifyPattern)
		r.Post("/fields/{id}/patterns/{pid}/attenuate", h.attenuatePattern)
		r.Post("/fields/{id}/patterns/{pid}/access", h.accessPattern)

		r.Post("/fields/{id}/decay", h.decayField)
		r.Get("/fields/{id}/attractors", h.listAttractors)
		r.Get("/fields/{id}/metrics", h.fieldMetrics)
		r.Post("/fields/{id}/repair", h.repairField)
		r.Get("/fields/{id}/visualize", h.visualizeField)
		r.Get("/fields/{id}/log", h.fieldLog)
		r.Get("/fields/{id}/similar", h.similarPatterns)

		r.Post("/fields/{id}/protocols/{name}", h.runProtocol)
		r.Post("/fields/{id}/save", h.saveField)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listProtocols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.Names())
}

// field returns the addressed field or answers 404 itself.
func (h *Handler) field(w http.ResponseWriter, r *http.Request) (*field.Field, bool) {
	id := chi.URLParam(r, "id")
	f, err := h.manager.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return nil, false
	}
	return f, true
}

type createFieldRequest struct {
	ID     string       `json:"id"`
	Params field.Params `json:"params"`
}

func (h *Handler) createField(w http.ResponseWriter, r *http.Request) {
	// Pre-populate with defaults so the body only needs overrides.
	req := createFieldRequest{Params: h.defaults}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	f, err := h.manager.Create(req.ID, req.Params)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, f.GetSummary())
}

func (h *Handler) listFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List())
}

func (h *Handler) getField(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.GetSummary())
}

func (h *Handler) deleteField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Delete(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type injectRequest struct {
	Content  string    `json:"content"`
	Strength float64   `json:"strength"`
	Position []float64 `json:"position,omitempty"`
}

func (h *Handler) injectPattern(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}
	if req.Strength == 0 {
		req.Strength = 1.0
	}
	id, err := f.Inject(req.Content, req.Strength, req.Position)
	if err != nil {
		writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	p, err := f.GetPattern(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) listPatterns(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.ActivePatterns())
}

func (h *Handler) getPattern(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	p, err := f.GetPattern(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) prunePattern(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	if err := f.Prune(chi.URLParam(r, "pid")); err != nil {
		writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pruned"})
}

type factorRequest struct {
	Factor float64 `json:"factor"`
}

func (h *Handler) amplifyPattern(w http.ResponseWriter, r *http.Request) {
	h.scalePattern(w, r, true)
}

func (h *Handler) attenuatePattern(w http.ResponseWriter, r *http.Request) {
	h.scalePattern(w, r, false)
}

func (h *Handler) scalePattern(w http.ResponseWriter, r *http.Request, amplify bool) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	var req factorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Factor <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "factor must be positive"})
		return
	}
	pid := chi.URLParam(r, "pid")
	var err error
	if amplify {
		err = f.Amplify(pid, req.Factor)
	} else {
		err = f.Attenuate(pid, req.Factor)
	}
	if err != nil {
		writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	p, _ := f.GetPattern(pid)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) accessPattern(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	pid := chi.URLParam(r, "pid")
	if err := f.StrengthenOnAccess(pid); err != nil {
		writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
		return
	}
	p, _ := f.GetPattern(pid)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) decayField(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	pruned := f.Decay()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pruned":  pruned,
		"metrics": f.Monitor(),
	})
}

func (h *Handler) listAttractors(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	min := 0.0
	if q := r.URL.Query().Get("min_strength"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_strength"})
			return
		}
		min = v
	}
	writeJSON(w, http.StatusOK, f.ScanAttractors(min))
}

func (h *Handler) fieldMetrics(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": f.Monitor(),
		"state":   f.State(),
	})
}

func (h *Handler) repairField(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	report, err := f.SelfRepair()
	if err != nil {
		// The report still describes what was attempted.
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) visualizeField(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "attractors"
	}
	view, err := f.Visualize(mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) fieldLog(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": f.OperationLog(),
		"history":    f.StateHistory(),
	})
}

func (h *Handler) similarPatterns(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "vector index not configured"})
		return
	}
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	topK := uint64(5)
	if q := r.URL.Query().Get("top_k"); q != "" {
		v, err := strconv.ParseUint(q, 10, 64)
		if err != nil || v == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid top_k"})
			return
		}
		topK = v
	}
	hits, err := h.index.Similar(r.Context(), f.ID, query, topK)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (h *Handler) runProtocol(w http.ResponseWriter, r *http.Request) {
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	var args protocol.Args
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	results, err := h.runner.Execute(r.Context(), f, name, args)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":   perr.Error(),
				"step":    string(perr.Step),
				"partial": perr.Partial,
			})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) saveField(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	f, ok := h.field(w, r)
	if !ok {
		return
	}
	snap := f.Snapshot()
	if err := h.store.SaveSnapshot(r.Context(), snap); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "saved",
		"field_id": snap.FieldID,
		"patterns": len(snap.Patterns),
	})
}

func (h *Handler) restoreField(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	snap, err := h.store.LoadSnapshot(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, persist.ErrNoSnapshot) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	f, err := field.FromSnapshot(snap, h.scorer, h.logger)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.manager.Adopt(f)
	writeJSON(w, http.StatusOK, f.GetSummary())
}

// errStatus maps engine errors to HTTP status codes.
func errStatus(err error) int {
	var nf *field.NotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	var ce *field.CapacityError
	if errors.As(err, &ce) {
		return http.StatusInsufficientStorage
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
