package similarity

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingScorer scores contents by embedding cosine similarity.
// Embeddings are cached per content, so a pair always scores the same
// value within a process and the provider is hit once per distinct text.
type EmbeddingScorer struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string][]float32
}

// NewEmbeddingScorer wraps an embedding provider as a resonance scorer.
func NewEmbeddingScorer(provider Provider, logger *zap.Logger) *EmbeddingScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingScorer{
		provider: provider,
		timeout:  30 * time.Second,
		logger:   logger,
		cache:    make(map[string][]float32),
	}
}

func (s *EmbeddingScorer) Name() string { return "embedding-cosine" }

// Score embeds both contents and returns their cosine similarity
// clamped to [0,1]. Cache misses for the pair go out as one batch
// request, so a cold pair costs a single provider round trip.
func (s *EmbeddingScorer) Score(a, b string) (float64, error) {
	vecs, err := s.embedAll([]string{a, b})
	if err != nil {
		return 0, err
	}
	sim := Cosine(vecs[0], vecs[1])
	if sim < 0 {
		sim = 0
	}
	return sim, nil
}

// Vector returns the embedding for one content, for callers that mirror
// vectors into an external store.
func (s *EmbeddingScorer) Vector(content string) ([]float32, error) {
	vecs, err := s.embedAll([]string{content})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedAll returns one vector per content, serving cache hits directly
// and batching every miss into a single provider call.
func (s *EmbeddingScorer) embedAll(contents []string) ([][]float32, error) {
	out := make([][]float32, len(contents))
	var missing []string
	var missingAt []int
	s.mu.Lock()
	for i, c := range contents {
		if v, ok := s.cache[c]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, c)
		missingAt = append(missingAt, i)
	}
	s.mu.Unlock()
	if len(missing) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	vectors, err := s.provider.Embed(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed contents: %w", err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embed contents: provider returned %d vectors for %d inputs", len(vectors), len(missing))
	}
	for j, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("embed contents: empty vector for %q", missing[j])
		}
		out[missingAt[j]] = v
	}

	s.mu.Lock()
	for j, v := range vectors {
		s.cache[missing[j]] = v
	}
	s.mu.Unlock()
	return out, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
