package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type GraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

// ResolutionConfig holds the resolver strategy cutoffs. Strategies below the
// fuzzy stage only run when the previous stage found nothing, so the
// embedding cutoff bounds cost, not recall.
type ResolutionConfig struct {
	FuzzyCutoff            float64 `toml:"fuzzy_cutoff"`
	EmbeddingCutoff        float64 `toml:"embedding_cutoff"`
	NeighborhoodOverlap    float64 `toml:"neighborhood_overlap"`
	NeighborhoodConfidence float64 `toml:"neighborhood_confidence"`
	CandidateLimit         int     `toml:"candidate_limit"`
}

// LayersConfig holds the promotion guard thresholds per target layer.
type LayersConfig struct {
	SemanticConfidence     float64 `toml:"semantic_confidence"`
	ReasoningConfidence    float64 `toml:"reasoning_confidence"`
	ReasoningValidations   int     `toml:"reasoning_validations"`
	ApplicationConfidence  float64 `toml:"application_confidence"`
	ApplicationValidations int     `toml:"application_validations"`
}

type ScannerConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	BatchSize       int `toml:"batch_size"`
}

type StorageRetryConfig struct {
	MaxAttempts  int `toml:"max_attempts"`
	BaseMillis   int `toml:"base_ms"`
	MaxBackoffMS int `toml:"max_backoff_ms"`
}

type ConfidenceConfig struct {
	HalfLifeHours int `toml:"half_life_hours"`
}

type AuditConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	Graph      GraphConfig        `toml:"graph"`
	LLM        LLMConfig          `toml:"llm"`
	Resolution ResolutionConfig   `toml:"resolution"`
	Layers     LayersConfig       `toml:"layers"`
	Scanner    ScannerConfig      `toml:"scanner"`
	Retry      StorageRetryConfig `toml:"retry"`
	Confidence ConfidenceConfig   `toml:"confidence"`
	Audit      AuditConfig        `toml:"audit"`
	Server     ServerConfig       `toml:"server"`
	// Synonyms maps abbreviations to their expansions ("IBD" ->
	// "Inflammatory Bowel Disease"). Injected here, never hard-coded.
	Synonyms map[string]string `toml:"synonyms"`
}

// Default returns the documented defaults. Every threshold is tunable; none
// of these numbers appear anywhere else in the codebase.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{URI: "bolt://localhost:7687"},
		Resolution: ResolutionConfig{
			FuzzyCutoff:            0.85,
			EmbeddingCutoff:        0.85,
			NeighborhoodOverlap:    0.5,
			NeighborhoodConfidence: 0.6,
			CandidateLimit:         500,
		},
		Layers: LayersConfig{
			SemanticConfidence:     0.85,
			ReasoningConfidence:    0.90,
			ReasoningValidations:   2,
			ApplicationConfidence:  0.95,
			ApplicationValidations: 3,
		},
		Scanner: ScannerConfig{
			IntervalSeconds: 30,
			BatchSize:       100,
		},
		Retry: StorageRetryConfig{
			MaxAttempts:  5,
			BaseMillis:   100,
			MaxBackoffMS: 5000,
		},
		Confidence: ConfidenceConfig{HalfLifeHours: 24 * 7},
		Audit:      AuditConfig{Path: "audit.jsonl"},
		Server:     ServerConfig{Port: "8080"},
		Synonyms:   map[string]string{},
	}
}

// Load reads a TOML file over the defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Graph.URI, "GRAPH_URI")
	setString(&c.Graph.User, "GRAPH_USER")
	setString(&c.Graph.Password, "GRAPH_PASSWORD")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.Server.Port, "PORT")
	setString(&c.Audit.Path, "AUDIT_PATH")
	setInt(&c.Scanner.IntervalSeconds, "SCAN_INTERVAL_SECONDS")
	setInt(&c.Scanner.BatchSize, "SCAN_BATCH_SIZE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ScanInterval returns the scanner tick as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

// HalfLife returns the confidence decay half-life as a duration.
func (c *Config) HalfLife() time.Duration {
	return time.Duration(c.Confidence.HalfLifeHours) * time.Hour
}
