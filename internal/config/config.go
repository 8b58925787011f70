package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/core/query"
	"github.com/agenthands/argus/internal/core/ranking"
	"github.com/agenthands/argus/internal/core/structure"
	"github.com/pelletier/go-toml/v2"
)

const DefaultPath = "config/config.toml"

type EngineConfig struct {
	HopLimit          int             `toml:"hop_limit"`
	MinEdgeConfidence float64         `toml:"min_edge_confidence"`
	MinFusedScore     float64         `toml:"min_fused_score"`
	TopK              int             `toml:"top_k"`
	Weights           ranking.Weights `toml:"weights"`
}

type StructureConfig struct {
	Damping                float64 `toml:"damping"`
	Epsilon                float64 `toml:"epsilon"`
	MaxIterations          int     `toml:"max_iterations"`
	RefreshIntervalSeconds int     `toml:"refresh_interval_seconds"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	// EmbeddingVersion tags query embeddings; it defaults to "<provider>/<embedding_model>".
	EmbeddingVersion string `toml:"embedding_version"`
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Narrative        bool   `toml:"narrative"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	// Hydrate loads the stored graph into the index at startup.
	Hydrate bool `toml:"hydrate"`
}

type IngestConfig struct {
	AMQPURL                   string  `toml:"amqp_url"`
	Queue                     string  `toml:"queue"`
	Prefetch                  int     `toml:"prefetch"`
	WatchDir                  string  `toml:"watch_dir"`
	MinRelationshipConfidence float64 `toml:"min_relationship_confidence"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Prompts struct {
	Narrative string `toml:"narrative"`
}

type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Structure StructureConfig `toml:"structure"`
	LLM       LLMConfig       `toml:"llm"`
	Memgraph  MemgraphConfig  `toml:"memgraph"`
	Ingest    IngestConfig    `toml:"ingest"`
	Server    ServerConfig    `toml:"server"`
	Prompts   Prompts         `toml:"prompts"`
	Debug     bool            `toml:"debug"`
}

func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			HopLimit:          2,
			MinEdgeConfidence: 0.3,
			MinFusedScore:     ranking.DefaultMinScore,
			TopK:              10,
			Weights:           ranking.DefaultWeights(),
		},
		Structure: StructureConfig{
			Damping:                structure.DefaultDamping,
			Epsilon:                structure.DefaultEpsilon,
			MaxIterations:          structure.DefaultMaxIterations,
			RefreshIntervalSeconds: 300,
		},
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		Ingest:   IngestConfig{Queue: "argus.extractions", Prefetch: 4},
		Server:   ServerConfig{Port: "8080"},
		Prompts:  Prompts{Narrative: DefaultNarrativePrompt},
	}
}

// Load decodes the TOML file at path over Default, so omitted keys keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides file values with environment variables that are set.
func (c *Config) ApplyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)
	str("LLM_EMBEDDING_VERSION", &c.LLM.EmbeddingVersion)
	str("LLM_API_KEY", &c.LLM.APIKey)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("MEMGRAPH_URI", &c.Memgraph.URI)
	str("MEMGRAPH_USER", &c.Memgraph.User)
	str("MEMGRAPH_PASSWORD", &c.Memgraph.Password)
	str("AMQP_URL", &c.Ingest.AMQPURL)
	str("INGEST_WATCH_DIR", &c.Ingest.WatchDir)
	str("PORT", &c.Server.Port)
	if v, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		c.Debug = v
	}
}

// Validate reports the first out-of-range setting as a ConfigurationError.
func (c *Config) Validate() error {
	e := c.Engine
	if err := e.Weights.Validate(); err != nil {
		return err
	}
	if e.HopLimit < 1 {
		return model.NewConfigurationError("engine.hop_limit", "must be a positive integer, got %d", e.HopLimit)
	}
	if !inUnit(e.MinEdgeConfidence) {
		return model.NewConfigurationError("engine.min_edge_confidence", "must be in [0,1], got %v", e.MinEdgeConfidence)
	}
	if !inUnit(e.MinFusedScore) {
		return model.NewConfigurationError("engine.min_fused_score", "must be in [0,1], got %v", e.MinFusedScore)
	}
	if e.TopK < 1 {
		return model.NewConfigurationError("engine.top_k", "must be at least 1, got %d", e.TopK)
	}
	if err := c.PageRankOptions().Validate(); err != nil {
		return err
	}
	if c.Structure.RefreshIntervalSeconds < 0 {
		return model.NewConfigurationError("structure.refresh_interval_seconds", "must not be negative, got %d", c.Structure.RefreshIntervalSeconds)
	}
	if !inUnit(c.Ingest.MinRelationshipConfidence) {
		return model.NewConfigurationError("ingest.min_relationship_confidence", "must be in [0,1], got %v", c.Ingest.MinRelationshipConfidence)
	}
	if c.Ingest.Prefetch < 0 {
		return model.NewConfigurationError("ingest.prefetch", "must not be negative, got %d", c.Ingest.Prefetch)
	}
	return nil
}

func (c *Config) PageRankOptions() structure.PageRankOptions {
	return structure.PageRankOptions{
		Damping:       c.Structure.Damping,
		Epsilon:       c.Structure.Epsilon,
		MaxIterations: c.Structure.MaxIterations,
	}
}

func (c *Config) EngineOptions() core.Options {
	return core.Options{
		Query: query.Options{
			HopLimit:          c.Engine.HopLimit,
			MinEdgeConfidence: c.Engine.MinEdgeConfidence,
			TopK:              c.Engine.TopK,
		},
		Weights:                   c.Engine.Weights,
		MinScore:                  c.Engine.MinFusedScore,
		PageRank:                  c.PageRankOptions(),
		MinRelationshipConfidence: c.Ingest.MinRelationshipConfidence,
	}
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Structure.RefreshIntervalSeconds) * time.Second
}

func inUnit(f float64) bool {
	return f >= 0 && f <= 1 && !math.IsNaN(f)
}
