// Package similarity provides the pluggable resonance scorers used by the
// field engine: a deterministic token-overlap measure for tests and
// self-contained deployments, and embedding cosine similarity backed by an
// OpenAI-compatible or Ollama-compatible endpoint.
package similarity

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a scorer.
type Config struct {
	Provider  string `json:"provider"` // "token", "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// Scorer mirrors the engine's resonance contract: pure, symmetric,
// deterministic for a given pair of contents.
type Scorer interface {
	Score(a, b string) (float64, error)
	Name() string
}

// New builds a scorer from config. An empty provider falls back to the
// token-overlap default.
func New(cfg Config, logger *zap.Logger) (Scorer, error) {
	switch cfg.Provider {
	case "", "token":
		return NewTokenOverlap(), nil
	case "api":
		return NewEmbeddingScorer(NewAPIProvider(cfg), logger), nil
	case "local":
		return NewEmbeddingScorer(NewLocalProvider(cfg), logger), nil
	default:
		return nil, fmt.Errorf("unknown similarity provider %q", cfg.Provider)
	}
}
