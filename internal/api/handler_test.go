package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/field"
	"github.com/nidhogg/semfield/internal/protocol"
	"github.com/nidhogg/semfield/internal/similarity"
)

// newTestHandler creates a Handler wired with in-memory deps only: token
// scorer, no Postgres, no Qdrant.
func newTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	logger := zap.NewNop()
	scorer := similarity.NewTokenOverlap()
	manager := field.NewManager(scorer, logger)
	runner := protocol.NewRunner(logger)
	h := NewHandler(manager, runner, nil, nil, scorer, field.DefaultParams(), logger)
	return h, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	resp, err := http.Post(ts.URL+path, "application/json", reader)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func deleteReq(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("DELETE", ts.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status %q, want ok", body["status"])
	}
}

func TestListProtocols(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/protocols")
	var names []string
	decodeJSON(t, resp, &names)
	if len(names) != 4 {
		t.Errorf("got %d protocols, want 4: %v", len(names), names)
	}
}

func TestCreateGetAndListFields(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/fields", map[string]string{"id": "alpha"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d, want 201", resp.StatusCode)
	}
	var summary field.Summary
	decodeJSON(t, resp, &summary)
	if summary.FieldID != "alpha" {
		t.Errorf("field id %q, want alpha", summary.FieldID)
	}

	resp = getJSON(t, ts, "/api/fields/alpha")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/fields")
	var list []field.Summary
	decodeJSON(t, resp, &list)
	if len(list) != 1 || list[0].FieldID != "alpha" {
		t.Errorf("list %+v, want single field alpha", list)
	}

	resp = getJSON(t, ts, "/api/fields/no-such-field")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown field status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateFieldParamOverrides(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/fields", map[string]interface{}{
		"id":     "tuned",
		"params": map[string]float64{"decay_rate": 0.2},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d, want 201", resp.StatusCode)
	}
	var summary field.Summary
	decodeJSON(t, resp, &summary)
	if summary.Params.DecayRate != 0.2 {
		t.Errorf("decay rate %v, want override 0.2", summary.Params.DecayRate)
	}
	// Unspecified params keep their defaults.
	if summary.Params.BoundaryPermeability != 0.8 {
		t.Errorf("permeability %v, want default 0.8", summary.Params.BoundaryPermeability)
	}
}

func TestDeleteField(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "doomed"}).Body.Close()

	resp := deleteReq(t, ts, "/api/fields/doomed")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = deleteReq(t, ts, "/api/fields/doomed")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInjectPattern(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()

	resp := postJSON(t, ts, "/api/fields/mem/patterns", map[string]interface{}{
		"content":  "river delta sediment",
		"strength": 1.0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("inject status %d, want 201", resp.StatusCode)
	}
	var p field.Pattern
	decodeJSON(t, resp, &p)
	if p.Content != "river delta sediment" {
		t.Errorf("content %q", p.Content)
	}
	// Boundary permeability scales the stored strength.
	if p.Strength != 0.8 {
		t.Errorf("stored strength %v, want 0.8", p.Strength)
	}

	resp = postJSON(t, ts, "/api/fields/mem/patterns", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty content status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/fields/mem/patterns")
	var patterns []field.Pattern
	decodeJSON(t, resp, &patterns)
	if len(patterns) != 1 {
		t.Errorf("got %d patterns, want 1", len(patterns))
	}
}

func TestPatternScalingAndPrune(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()
	resp := postJSON(t, ts, "/api/fields/mem/patterns", map[string]interface{}{
		"content": "tidal current", "strength": 0.5,
	})
	var p field.Pattern
	decodeJSON(t, resp, &p)

	resp = postJSON(t, ts, "/api/fields/mem/patterns/"+p.ID+"/amplify", map[string]float64{"factor": 1.2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("amplify status %d, want 200", resp.StatusCode)
	}
	var amplified field.Pattern
	decodeJSON(t, resp, &amplified)
	if amplified.Strength <= p.Strength {
		t.Errorf("amplify did not raise strength: %v -> %v", p.Strength, amplified.Strength)
	}

	// Scaling past the formation threshold promotes the pattern; the
	// response still carries it, because promotion keeps patterns live.
	resp = postJSON(t, ts, "/api/fields/mem/patterns/"+p.ID+"/amplify", map[string]float64{"factor": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("amplify past threshold status %d, want 200", resp.StatusCode)
	}
	var promoted field.Pattern
	decodeJSON(t, resp, &promoted)
	if promoted.ID != p.ID {
		t.Errorf("amplify response pattern %q, want %q", promoted.ID, p.ID)
	}

	resp = postJSON(t, ts, "/api/fields/mem/patterns/"+p.ID+"/attenuate", map[string]float64{"factor": 0.5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attenuate status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/fields/mem/patterns/"+p.ID+"/amplify", map[string]float64{"factor": -1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative factor status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/fields/mem/patterns/"+p.ID+"/access", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("access status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = deleteReq(t, ts, "/api/fields/mem/patterns/"+p.ID)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("prune status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/fields/mem/patterns/"+p.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("pruned pattern status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDecayEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()
	postJSON(t, ts, "/api/fields/mem/patterns", map[string]interface{}{
		"content": "fading memory", "strength": 0.5,
	}).Body.Close()

	resp := postJSON(t, ts, "/api/fields/mem/decay", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decay status %d, want 200", resp.StatusCode)
	}
	var body struct {
		Pruned  int           `json:"pruned"`
		Metrics field.Metrics `json:"metrics"`
	}
	decodeJSON(t, resp, &body)
	if body.Metrics.OverallHealth == 0 {
		t.Errorf("decay response missing metrics: %+v", body)
	}
}

func TestAttractorsEndpoint(t *testing.T) {
	h, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()
	f, _ := h.manager.Get("mem")
	f.CreateAttractor("strong concept", 1.2)
	f.CreateAttractor("weak concept", 0.75)

	resp := getJSON(t, ts, "/api/fields/mem/attractors")
	var all []field.Attractor
	decodeJSON(t, resp, &all)
	if len(all) != 2 {
		t.Fatalf("got %d attractors, want 2", len(all))
	}

	resp = getJSON(t, ts, "/api/fields/mem/attractors?min_strength=1.0")
	var strong []field.Attractor
	decodeJSON(t, resp, &strong)
	if len(strong) != 1 || strong[0].Pattern != "strong concept" {
		t.Errorf("filtered attractors %+v, want only the strong one", strong)
	}

	resp = getJSON(t, ts, "/api/fields/mem/attractors?min_strength=bogus")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid min_strength status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()

	resp := getJSON(t, ts, "/api/fields/mem/metrics")
	var body struct {
		Metrics field.Metrics     `json:"metrics"`
		State   field.RepairState `json:"state"`
	}
	decodeJSON(t, resp, &body)
	if body.State != field.RepairHealthy {
		t.Errorf("state %v, want healthy", body.State)
	}
	if body.Metrics.OverallHealth == 0 {
		t.Errorf("empty field health %v, want non-zero", body.Metrics.OverallHealth)
	}
}

func TestRepairEndpoint(t *testing.T) {
	h, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()
	f, _ := h.manager.Get("mem")
	f.CreateAttractor("stable anchor", 1.2)

	resp := postJSON(t, ts, "/api/fields/mem/repair", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repair status %d, want 200", resp.StatusCode)
	}
	var report field.RepairReport
	decodeJSON(t, resp, &report)
	if report.Status != field.RepairOK {
		t.Errorf("repair status %s, want ok", report.Status)
	}
}

func TestVisualizeEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()

	resp := getJSON(t, ts, "/api/fields/mem/visualize")
	var view field.View
	decodeJSON(t, resp, &view)
	if view.Mode != "attractors" {
		t.Errorf("default mode %q, want attractors", view.Mode)
	}

	resp = getJSON(t, ts, "/api/fields/mem/visualize?mode=heatmap")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown mode status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFieldLogEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()
	postJSON(t, ts, "/api/fields/mem/patterns", map[string]interface{}{
		"content": "logged event", "strength": 0.5,
	}).Body.Close()

	resp := getJSON(t, ts, "/api/fields/mem/log")
	var body struct {
		Operations []field.LogEntry `json:"operations"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Operations) == 0 {
		t.Error("operation log is empty after an injection")
	}
}

func TestRunProtocolEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()

	resp := postJSON(t, ts, "/api/fields/mem/protocols/"+protocol.FieldSelfRepair, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("protocol status %d, want 200", resp.StatusCode)
	}
	var results map[string]interface{}
	decodeJSON(t, resp, &results)
	if _, ok := results["verify_repairs"]; !ok {
		t.Errorf("results missing verify step: %v", results)
	}

	resp = postJSON(t, ts, "/api/fields/mem/protocols/no.such.protocol", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown protocol status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRunProtocolWithItems(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()

	resp := postJSON(t, ts, "/api/fields/mem/protocols/"+protocol.RecursiveMemoryAttract, protocol.Args{
		Items: []protocol.MemoryItem{{Content: "remember this", Importance: 0.9}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("protocol status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/fields/mem/attractors")
	var attractors []field.Attractor
	decodeJSON(t, resp, &attractors)
	if len(attractors) != 1 {
		t.Errorf("got %d attractors after consolidation, want 1", len(attractors))
	}
}

func TestPersistenceRoutesWithoutStore(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	postJSON(t, ts, "/api/fields", map[string]string{"id": "mem"}).Body.Close()

	resp := postJSON(t, ts, "/api/fields/mem/save", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("save status %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/fields/restore/mem", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("restore status %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/fields/mem/similar?q=anything")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("similar status %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}
