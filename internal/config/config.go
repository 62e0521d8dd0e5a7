// Package config loads the YAML application config and its env overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourcesConfig points at the two startup sources. Synonyms, when set,
// replaces the built-in expansion table.
type SourcesConfig struct {
	Tabular   string              `yaml:"tabular"`
	Narrative string              `yaml:"narrative"`
	Synonyms  map[string][]string `yaml:"synonyms,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how narrative sections are windowed. The zero
// value keeps one chunk per paragraph.
type ChunkerConfig struct {
	SentencesPerChunk int `yaml:"sentences_per_chunk"`
	OverlapSentences  int `yaml:"overlap_sentences"`
}

// RetrievalConfig bounds the per-query search.
type RetrievalConfig struct {
	TopK       int `yaml:"top_k"`
	MaxResults int `yaml:"max_results"`
	TimeoutMS  int `yaml:"timeout_ms"`
}

// Timeout returns the retrieval deadline as a duration.
func (r RetrievalConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

type RelevanceConfig struct {
	MinOverlap float64 `yaml:"min_overlap"`
}

type SessionConfig struct {
	ContextTurns int `yaml:"context_turns"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EventsConfig enables the NATS turn publisher when NATSURL is set.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Token   string `yaml:"token,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Sources   SourcesConfig   `yaml:"sources"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Relevance RelevanceConfig `yaml:"relevance"`
	Session   SessionConfig   `yaml:"session"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Events    EventsConfig    `yaml:"events"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/trialrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/trialrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first setting the engine cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "tfidf":
	case "openai":
		if c.Embedder.OpenAI == nil {
			return errors.New("embedder.openai section is required for type openai")
		}
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	if c.Retrieval.TopK <= 0 {
		return errors.New("retrieval.top_k must be positive")
	}
	if c.Retrieval.MaxResults <= 0 {
		return errors.New("retrieval.max_results must be positive")
	}
	if c.Retrieval.TimeoutMS <= 0 {
		return errors.New("retrieval.timeout_ms must be positive")
	}
	if c.Relevance.MinOverlap < 0 || c.Relevance.MinOverlap >= 1 {
		return errors.New("relevance.min_overlap must be in [0, 1)")
	}
	if c.Chunker.OverlapSentences < 0 || (c.Chunker.SentencesPerChunk > 0 && c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk) {
		return errors.New("chunker.overlap_sentences must be smaller than sentences_per_chunk")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "trialrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Sources:   SourcesConfig{Tabular: "data/trials.xlsx", Narrative: "data/drug_notes.md"},
		Embedder:  EmbedderConfig{Type: "tfidf"},
		Retrieval: RetrievalConfig{TopK: 5, MaxResults: 3, TimeoutMS: 2000},
		Session:   SessionConfig{ContextTurns: 5},
		Server:    ServerConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info", Format: "json"},
		Events:    EventsConfig{Subject: "trialrag.turn.completed"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.MaxResults == 0 {
		cfg.Retrieval.MaxResults = def.Retrieval.MaxResults
	}
	if cfg.Retrieval.TimeoutMS == 0 {
		cfg.Retrieval.TimeoutMS = def.Retrieval.TimeoutMS
	}
	if cfg.Session.ContextTurns == 0 {
		cfg.Session.ContextTurns = def.Session.ContextTurns
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = def.Events.Subject
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
}

// applyEnvOverrides lets deployments override a handful of settings without
// editing the file.
func applyEnvOverrides(cfg *AppConfig) {
	cfg.Server.Addr = envOr("TRIALRAG_ADDR", cfg.Server.Addr)
	cfg.Log.Level = envOr("TRIALRAG_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("TRIALRAG_LOG_FORMAT", cfg.Log.Format)
	cfg.Sources.Tabular = envOr("TRIALRAG_TABULAR", cfg.Sources.Tabular)
	cfg.Sources.Narrative = envOr("TRIALRAG_NARRATIVE", cfg.Sources.Narrative)
	cfg.Events.NATSURL = envOr("NATS_URL", cfg.Events.NATSURL)
	cfg.Events.Token = envOr("NATS_TOKEN", cfg.Events.Token)
	if v := os.Getenv("TRIALRAG_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.Retrieval.TimeoutMS = n
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
