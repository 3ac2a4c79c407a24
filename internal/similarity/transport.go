package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const embedTimeout = 30 * time.Second

// postEmbedding sends one JSON embedding request and decodes the JSON
// response into out. Non-200 responses surface the body in the error so
// misconfigured endpoints are diagnosable from the log.
func postEmbedding(ctx context.Context, client *http.Client, url, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("similarity: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("similarity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("similarity: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("similarity: endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("similarity: decode response: %w", err)
	}
	return nil
}

// dims caches the vector dimension observed on the first successful
// embedding, falling back to the configured value until then.
type dims struct {
	once     sync.Once
	observed int
	fallback int
}

func (d *dims) observe(vecs [][]float32) {
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return
	}
	d.once.Do(func() { d.observed = len(vecs[0]) })
}

func (d *dims) value() int {
	if d.observed > 0 {
		return d.observed
	}
	return d.fallback
}
