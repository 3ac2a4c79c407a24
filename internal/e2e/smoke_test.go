//go:build e2e

// Package e2e holds black-box smoke tests that drive a running fieldd
// server over HTTP. Start the server first, then run with -tags e2e.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("SEMFIELD_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(baseURL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestSmokeFieldLifecycle(t *testing.T) {
	fieldID := fmt.Sprintf("smoke-%d", time.Now().UnixNano())

	resp := post(t, "/api/fields", map[string]string{"id": fieldID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create field status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	var pattern struct {
		ID       string  `json:"id"`
		Strength float64 `json:"strength"`
	}
	resp = post(t, "/api/fields/"+fieldID+"/patterns", map[string]interface{}{
		"content": "smoke test memory", "strength": 1.0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("inject status %d, want 201", resp.StatusCode)
	}
	decode(t, resp, &pattern)
	if pattern.ID == "" || pattern.Strength <= 0 {
		t.Fatalf("malformed pattern response: %+v", pattern)
	}

	resp = post(t, "/api/fields/"+fieldID+"/decay", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("decay status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post(t, "/api/fields/"+fieldID+"/protocols/field.self_repair", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("self-repair protocol status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	var metrics struct {
		Metrics struct {
			OverallHealth float64 `json:"overall_health"`
		} `json:"metrics"`
		State string `json:"state"`
	}
	resp = get(t, "/api/fields/"+fieldID+"/metrics")
	decode(t, resp, &metrics)
	if metrics.Metrics.OverallHealth <= 0 {
		t.Errorf("overall health %v, want positive", metrics.Metrics.OverallHealth)
	}

	req, _ := http.NewRequest(http.MethodDelete, baseURL+"/api/fields/"+fieldID, nil)
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE field: %v", err)
	}
	if dresp.StatusCode != http.StatusOK {
		t.Errorf("delete status %d, want 200", dresp.StatusCode)
	}
	dresp.Body.Close()
}

func TestSmokeProtocolCatalog(t *testing.T) {
	resp := get(t, "/api/protocols")
	var names []string
	decode(t, resp, &names)
	if len(names) < 4 {
		t.Errorf("got %d protocols, want the four standard pipelines: %v", len(names), names)
	}
}
