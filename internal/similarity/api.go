package similarity

import (
	"context"
	"net/http"
)

// APIProvider embeds pattern contents through an OpenAI-compatible
// /embeddings endpoint. The whole batch goes out in one request.
type APIProvider struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	dims     dims
}

func NewAPIProvider(cfg Config) *APIProvider {
	return &APIProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: embedTimeout},
		dims:     dims{fallback: cfg.Dimension},
	}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var result apiResponse
	err := postEmbedding(ctx, p.client, p.endpoint+"/embeddings", p.apiKey,
		apiRequest{Model: p.model, Input: texts}, &result)
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vecs[i] = d.Embedding
	}
	p.dims.observe(vecs)
	return vecs, nil
}

func (p *APIProvider) Dimension() int { return p.dims.value() }
