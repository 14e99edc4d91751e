// Package config loads and persists cv's configuration, layering
// .cv/config.yaml over built-in defaults and CV_* environment overrides
// (env > file > default), matching the teacher's internal/config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/contextvault/cv/internal/logging"
)

// GraphConfig configures the labeled-property-graph backend (spec.md §6).
type GraphConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// VectorCollections names the five per-repo vector collections.
type VectorCollections struct {
	CodeChunks      string `yaml:"codeChunks"`
	Docstrings      string `yaml:"docstrings"`
	Commits         string `yaml:"commits"`
	DocumentChunks  string `yaml:"documentChunks"`
	Summaries       string `yaml:"summaries"`
}

// VectorConfig configures the HTTP vector-DB backend.
type VectorConfig struct {
	URL         string             `yaml:"url"`
	Collections VectorCollections  `yaml:"collections"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "ollama" | "genai"
	Model      string `yaml:"model"`
	URL        string `yaml:"url"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"-"`
}

// AIConfig configures the text-generation provider used by
// summarization prompts.
type AIConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"-"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

// SyncConfig configures the delta-sync engine.
type SyncConfig struct {
	AutoSync         bool     `yaml:"autoSync"`
	ExcludePatterns  []string `yaml:"excludePatterns"`
	IncludeLanguages []string `yaml:"includeLanguages"`
	Parallelism      int      `yaml:"parallelism"`
	MaxFileSizeBytes int64    `yaml:"maxFileSizeBytes"`
}

// DocsConfig configures markdown/document ingestion.
type DocsConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Patterns        []string `yaml:"patterns"`
	ExcludePatterns []string `yaml:"excludePatterns"`
	ChunkByHeading  bool     `yaml:"chunkByHeading"`
	InferTypes      bool     `yaml:"inferTypes"`
}

// LoggingConfig controls console verbosity; DebugMode switches the zap
// logger to debug level. No trace log file is written.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	DebugMode bool   `yaml:"debug_mode"`
}

// TraversalConfig configures the stateful navigation engine.
type TraversalConfig struct {
	SessionExpiry time.Duration `yaml:"sessionExpiry"`
}

// SupervisorConfig schedules the Infra Supervisor's background cron
// entries: a frequent health check and a much rarer full resync.
type SupervisorConfig struct {
	HealthCheckSpec string `yaml:"healthCheckSpec"`
	ResyncSpec      string `yaml:"resyncSpec"`
}

// Config holds all cv configuration (spec.md §6 "Recognized options").
type Config struct {
	Repository struct {
		ID string `yaml:"id"`
	} `yaml:"repository"`

	Graph     GraphConfig     `yaml:"graph"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	AI        AIConfig        `yaml:"ai"`
	Sync      SyncConfig      `yaml:"sync"`
	Docs      DocsConfig      `yaml:"docs"`
	Logging    LoggingConfig    `yaml:"logging"`
	Traversal  TraversalConfig  `yaml:"traversal"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Graph = GraphConfig{
		URL:      "redis://localhost:6379",
		Database: "",
	}
	cfg.Vector = VectorConfig{
		URL: "http://localhost:6333",
		Collections: VectorCollections{
			CodeChunks:     "code_chunks",
			Docstrings:     "docstrings",
			Commits:        "commits",
			DocumentChunks: "document_chunks",
			Summaries:      "summaries",
		},
	}
	cfg.Embedding = EmbeddingConfig{
		Provider:   "ollama",
		Model:      "embeddinggemma",
		URL:        "http://localhost:11434",
		Dimensions: 768,
	}
	cfg.AI = AIConfig{
		Provider:    "ollama",
		Model:       "qwen2.5-coder",
		MaxTokens:   4000,
		Temperature: 0.3,
	}
	cfg.Sync = SyncConfig{
		AutoSync:         false,
		ExcludePatterns:  []string{".git/**", "node_modules/**", "vendor/**", ".cv/**"},
		IncludeLanguages: nil, // nil = all supported languages
		Parallelism:      0,   // 0 = runtime.NumCPU()
		MaxFileSizeBytes: 1 << 20,
	}
	cfg.Docs = DocsConfig{
		Enabled:         true,
		Patterns:        []string{"**/*.md", "**/*.mdx"},
		ExcludePatterns: []string{"node_modules/**", "vendor/**"},
		ChunkByHeading:  true,
		InferTypes:      true,
	}
	cfg.Logging = LoggingConfig{Level: "info", DebugMode: false}
	cfg.Traversal = TraversalConfig{SessionExpiry: time.Hour}
	cfg.Supervisor = SupervisorConfig{HealthCheckSpec: "*/1 * * * *", ResyncSpec: "0 3 * * *"}
	return cfg
}

// Load reads .cv/config.yaml under root, falling back to defaults if the
// file is absent, then applies CV_* environment overrides.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(root, ".cv", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Infof(logging.CategoryBoot, "config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config back to .cv/config.yaml under root.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".cv")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create .cv directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// envString applies the first set environment variable among names to dst.
func envString(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

// applyEnvOverrides layers CV_* (and legacy unprefixed) environment
// variables over the loaded config, per spec.md §6 precedence rules.
func (c *Config) applyEnvOverrides() {
	envString(&c.Graph.URL, "CV_FALKORDB_URL", "FALKORDB_URL")
	envString(&c.Vector.URL, "CV_QDRANT_URL", "QDRANT_URL")
	envString(&c.Embedding.URL, "CV_OLLAMA_URL", "OLLAMA_URL")
	envString(&c.Logging.Level, "CV_LOG_LEVEL")

	if v := os.Getenv("CV_MAX_FILE_SIZE"); v != "" {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Sync.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("CV_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}
