package similarity

import (
	"context"
	"net/http"
)

// LocalProvider embeds pattern contents through an Ollama-compatible
// endpoint, which only accepts one prompt per request.
type LocalProvider struct {
	endpoint string
	model    string
	client   *http.Client
	dims     dims
}

func NewLocalProvider(cfg Config) *LocalProvider {
	return &LocalProvider{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: embedTimeout},
		dims:     dims{fallback: cfg.Dimension},
	}
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var result localResponse
		err := postEmbedding(ctx, p.client, p.endpoint+"/api/embeddings", "",
			localRequest{Model: p.model, Prompt: text}, &result)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, result.Embedding)
	}
	p.dims.observe(vecs)
	return vecs, nil
}

func (p *LocalProvider) Dimension() int { return p.dims.value() }
