package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedder.Type != "tfidf" || cfg.Retrieval.TopK != 5 || cfg.Retrieval.MaxResults != 3 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Retrieval.Timeout() != 2*time.Second {
		t.Errorf("timeout = %v", cfg.Retrieval.Timeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
sources:
  tabular: trials.csv
  narrative: notes.md
  synonyms:
    nausea: [emesis]
embedder:
  type: openai
relevance:
  min_overlap: 0.2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sources.Tabular != "trials.csv" || cfg.Sources.Synonyms["nausea"][0] != "emesis" {
		t.Errorf("sources not read: %+v", cfg.Sources)
	}
	if cfg.Embedder.OpenAI == nil || cfg.Embedder.OpenAI.Model != "text-embedding-3-small" || cfg.Embedder.OpenAI.BatchSize != 32 {
		t.Errorf("openai defaults not applied: %+v", cfg.Embedder.OpenAI)
	}
	if cfg.Relevance.MinOverlap != 0.2 || cfg.Session.ContextTurns != 5 || cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sources: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_ChunkerWindowing(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		perChunk int
		overlap  int
	}{
		{"omitted", "embedder:\n  type: tfidf\n", 0, 0},
		{"explicit zero", "chunker:\n  sentences_per_chunk: 0\n", 0, 0},
		{"windowed", "chunker:\n  sentences_per_chunk: 4\n  overlap_sentences: 1\n", 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Chunker.SentencesPerChunk != tt.perChunk || cfg.Chunker.OverlapSentences != tt.overlap {
				t.Errorf("chunker = %+v, want %d/%d", cfg.Chunker, tt.perChunk, tt.overlap)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("validate: %v", err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIALRAG_ADDR", ":9999")
	t.Setenv("TRIALRAG_LOG_LEVEL", "debug")
	t.Setenv("TRIALRAG_TIMEOUT_MS", "750")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Log.Level != "debug" || cfg.Retrieval.TimeoutMS != 750 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 9
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Retrieval.TopK != 9 {
		t.Errorf("top_k = %d", got.Retrieval.TopK)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }},
		{"openai without section", func(c *AppConfig) { c.Embedder.Type = "openai" }},
		{"zero top_k", func(c *AppConfig) { c.Retrieval.TopK = 0 }},
		{"zero max_results", func(c *AppConfig) { c.Retrieval.MaxResults = 0 }},
		{"zero timeout", func(c *AppConfig) { c.Retrieval.TimeoutMS = 0 }},
		{"overlap threshold too high", func(c *AppConfig) { c.Relevance.MinOverlap = 1 }},
		{"chunk overlap too large", func(c *AppConfig) { c.Chunker = ChunkerConfig{SentencesPerChunk: 3, OverlapSentences: 5} }},
		{"negative chunk overlap", func(c *AppConfig) { c.Chunker.OverlapSentences = -1 }},
		{"bad log format", func(c *AppConfig) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
