package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Similarity SimilarityConfig `json:"similarity"`
	Field      FieldConfig      `json:"field"`
	Decay      DecayConfig      `json:"decay"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SimilarityConfig selects and configures the resonance scorer.
type SimilarityConfig struct {
	Provider  string `json:"provider"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// FieldConfig carries the default parameters applied to newly created
// fields. Zero values defer to built-in defaults.
type FieldConfig struct {
	Dimensions             int     `json:"dimensions"`
	DecayRate              float64 `json:"decay_rate"`
	BoundaryPermeability   float64 `json:"boundary_permeability"`
	ResonanceBandwidth     float64 `json:"resonance_bandwidth"`
	ResonanceThreshold     float64 `json:"resonance_threshold"`
	AttractorThreshold     float64 `json:"attractor_threshold"`
	AttractorProtection    float64 `json:"attractor_protection"`
	MaxCapacity            int     `json:"max_capacity"`
	ReservedTokens         int     `json:"reserved_tokens"`
	OverflowStrategy       string  `json:"overflow_strategy"`
	ConsolidationThreshold float64 `json:"consolidation_threshold"`
	AccessBoost            float64 `json:"access_boost"`
	HealthThreshold        float64 `json:"health_threshold"`
	RepairStrength         float64 `json:"repair_strength"`
	MaxStrength            float64 `json:"max_strength"`
	AmplificationFactor    float64 `json:"amplification_factor"`
	StrengthFactor         float64 `json:"strength_factor"`
	PruneFloor             float64 `json:"prune_floor"`
}

// DecayConfig drives the background decay scheduler.
type DecayConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Decay.IntervalSeconds == 0 {
		c.Decay.IntervalSeconds = 60
	}
}
