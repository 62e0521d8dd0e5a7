// Package app assembles the answer engine from configuration: it loads both
// sources, selects the embedder and connects the optional event publisher.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trialrag/internal/config"
	"trialrag/internal/embedding"
	"trialrag/internal/embedding/openai"
	"trialrag/internal/embedding/tfidf"
	"trialrag/internal/engine"
	"trialrag/internal/events"
	"trialrag/internal/lexicon"
	"trialrag/internal/loader"
	"trialrag/internal/summarizer"
)

// App is a ready engine plus the resources it holds.
type App struct {
	Engine   *engine.Engine
	Overview string
	events   *events.Client
}

// Build loads the configured sources and returns an engine whose indices are
// complete. Any source or indexing failure is fatal.
func Build(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	records, err := loader.LoadTabular(cfg.Sources.Tabular)
	if err != nil {
		return nil, fmt.Errorf("load tabular source: %w", err)
	}
	sections, err := loader.LoadNarrative(cfg.Sources.Narrative)
	if err != nil {
		return nil, fmt.Errorf("load narrative source: %w", err)
	}
	logger.Info("sources loaded", "records", len(records), "sections", len(sections))

	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	synonyms := lexicon.DefaultSynonyms()
	if len(cfg.Sources.Synonyms) > 0 {
		synonyms = lexicon.NewSynonyms(cfg.Sources.Synonyms)
	}

	a := &App{}
	var emitter *events.Emitter
	if cfg.Events.NATSURL != "" {
		client, err := events.NewClient(ctx, cfg.Events.NATSURL, cfg.Events.Token, logger)
		if err != nil {
			logger.Warn("turn events disabled", "error", err)
		} else {
			a.events = client
			emitter = events.NewEmitter(client, cfg.Events.Subject, logger)
		}
	}

	eng, err := engine.New(ctx, engine.Sources{Records: records, Sections: sections}, engine.Options{
		Embedder:          emb,
		Synonyms:          synonyms,
		TopK:              cfg.Retrieval.TopK,
		MaxResults:        cfg.Retrieval.MaxResults,
		Timeout:           cfg.Retrieval.Timeout(),
		MinOverlap:        cfg.Relevance.MinOverlap,
		ContextTurns:      cfg.Session.ContextTurns,
		SentencesPerChunk: cfg.Chunker.SentencesPerChunk,
		OverlapSentences:  cfg.Chunker.OverlapSentences,
		Logger:            logger,
		Events:            emitter,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng
	a.Overview = summarizer.Overview(records, sections, 2)
	return a, nil
}

// Close releases the event connection, if any.
func (a *App) Close() {
	if a.events != nil {
		a.events.Close()
		a.events = nil
	}
}

// NewEmbedder selects the embedder implementation named by cfg.Type.
func NewEmbedder(cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}
