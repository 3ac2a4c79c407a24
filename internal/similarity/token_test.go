package similarity

import (
	"math"
	"testing"
)

func TestTokenOverlapIdenticalContents(t *testing.T) {
	s := NewTokenOverlap()
	got, err := s.Score("river delta sediment", "river delta sediment")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 1.0 {
		t.Errorf("identical contents scored %v, want 1.0", got)
	}
}

func TestTokenOverlapDisjointContents(t *testing.T) {
	s := NewTokenOverlap()
	got, err := s.Score("river delta", "orbital mechanics")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 0 {
		t.Errorf("disjoint contents scored %v, want 0", got)
	}
}

func TestTokenOverlapBlendsJaccardAndContainment(t *testing.T) {
	s := NewTokenOverlap()
	// "deep ocean" is contained in "deep ocean current": jaccard 2/3,
	// overlap coefficient 1.
	got, err := s.Score("deep ocean current", "deep ocean")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := 0.4*(2.0/3.0) + 0.6*1.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenOverlapIsSymmetric(t *testing.T) {
	s := NewTokenOverlap()
	ab, _ := s.Score("coastal tide patterns", "coastal tide")
	ba, _ := s.Score("coastal tide", "coastal tide patterns")
	if ab != ba {
		t.Errorf("asymmetric scores: %v vs %v", ab, ba)
	}
}

func TestTokenOverlapNormalization(t *testing.T) {
	s := NewTokenOverlap()

	got, _ := s.Score("River DELTA", "river delta")
	if got != 1.0 {
		t.Errorf("case-insensitive match scored %v, want 1.0", got)
	}

	got, _ = s.Score("river, delta!", "river delta")
	if got != 1.0 {
		t.Errorf("punctuation-separated match scored %v, want 1.0", got)
	}
}

func TestTokenOverlapEmptyAndShortTokens(t *testing.T) {
	s := NewTokenOverlap()

	got, _ := s.Score("", "river delta")
	if got != 0 {
		t.Errorf("empty content scored %v, want 0", got)
	}

	// Single-character tokens are dropped; both sets end up empty.
	got, _ = s.Score("a b c", "a b c")
	if got != 0 {
		t.Errorf("single-char tokens scored %v, want 0", got)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New with empty provider: %v", err)
	}
	if _, ok := s.(*TokenOverlap); !ok {
		t.Errorf("empty provider built %T, want *TokenOverlap", s)
	}

	s, err = New(Config{Provider: "api", Endpoint: "http://localhost:9999"}, nil)
	if err != nil {
		t.Fatalf("New with api provider: %v", err)
	}
	if _, ok := s.(*EmbeddingScorer); !ok {
		t.Errorf("api provider built %T, want *EmbeddingScorer", s)
	}

	if _, err := New(Config{Provider: "quantum"}, nil); err == nil {
		t.Error("unknown provider accepted")
	}
}
