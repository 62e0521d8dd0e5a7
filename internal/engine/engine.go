// Package engine is the process-scoped answer engine. It owns the indices,
// the session registry and the metrics, and turns (session, message) pairs
// into grounded, refused or unknown replies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trialrag/internal/chunker"
	"trialrag/internal/classifier"
	"trialrag/internal/domain"
	"trialrag/internal/embedding"
	"trialrag/internal/events"
	"trialrag/internal/index"
	"trialrag/internal/lexicon"
	"trialrag/internal/metrics"
	"trialrag/internal/relevance"
	"trialrag/internal/retriever"
	"trialrag/internal/safety"
	"trialrag/internal/session"
	"trialrag/internal/snippet"
)

var (
	ErrRetrieval        = retriever.ErrRetrieval
	ErrRetrievalTimeout = retriever.ErrTimeout
	ErrEmptyMessage     = errors.New("message is empty")
	ErrEmptySession     = session.ErrEmptyID
)

// Fixed replies. Refusal texts live in the safety package.
const (
	UnknownMessage       = "I don't have grounded information for that in the loaded clinical trial data."
	ClarificationMessage = "Could you specify the drug name to help me answer accurately?"
	GreetingMessage      = "Hello! I am your Clinical Trial Assistant. How can I help you regarding drug dosages, adverse events, or clinical contexts?"
)

// Source usage labels, matching the metrics buckets.
const (
	SourceExcelOnly = "excel_only"
	SourceDocOnly   = "doc_only"
	SourceBoth      = "both"
	SourceNone      = "none"
)

// Sources is the already-parsed startup input.
type Sources struct {
	Records  []domain.Record
	Sections []domain.Section
}

// Options tunes the engine. Zero values select defaults.
type Options struct {
	Embedder          embedding.Embedder
	Synonyms          *lexicon.Synonyms
	TopK              int
	MaxResults        int
	Timeout           time.Duration
	MinOverlap        float64
	ContextTurns      int
	SentencesPerChunk int
	OverlapSentences  int
	Logger            *slog.Logger
	Events            *events.Emitter
}

// SourceRef describes one cited chunk.
type SourceRef struct {
	Kind       string            `json:"kind"`
	Provenance string            `json:"provenance"`
	Score      float64           `json:"score"`
	Overlap    float64           `json:"overlap"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Reply is the outcome of one turn.
type Reply struct {
	Message       string
	Citation      string
	Unknown       bool
	SafetyRefusal bool
	Clarification bool
	Greeting      bool
	Intent        domain.Intent
	// Source is the usage bucket of the turn: excel_only, doc_only, both or none.
	Source    string
	Retrieved int
	Sources   []SourceRef
}

// Engine is safe for concurrent use. Everything but sessions and metrics is
// read-only after New returns.
type Engine struct {
	indices    index.Set
	classifier *classifier.Classifier
	retriever  *retriever.Retriever
	filter     *relevance.Filter
	extractor  *snippet.Extractor
	sessions   *session.Manager
	metrics    *metrics.Tracker
	events     *events.Emitter
	logger     *slog.Logger
}

// New chunks the sources, embeds every chunk and builds one index per source
// kind. It returns only once all indices are complete; any failure is fatal.
func New(ctx context.Context, src Sources, opts Options) (*Engine, error) {
	if opts.Embedder == nil {
		return nil, errors.New("engine: no embedder")
	}
	if opts.Synonyms == nil {
		opts.Synonyms = lexicon.DefaultSynonyms()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ch := chunker.New(opts.SentencesPerChunk, opts.OverlapSentences)
	byKind := map[domain.SourceKind][]domain.Chunk{
		domain.Tabular:   ch.Records(src.Records),
		domain.Narrative: ch.Sections(src.Sections),
	}
	var corpus []string
	for _, kind := range []domain.SourceKind{domain.Tabular, domain.Narrative} {
		if len(byKind[kind]) == 0 {
			return nil, fmt.Errorf("engine: %s source produced no chunks", kind)
		}
		for _, c := range byKind[kind] {
			corpus = append(corpus, c.IndexText())
		}
	}
	if err := opts.Embedder.Prepare(corpus); err != nil {
		return nil, fmt.Errorf("engine: prepare %s embedder: %w", opts.Embedder.Name(), err)
	}

	indices := make(index.Set, len(byKind))
	for kind, chunks := range byKind {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.IndexText()
		}
		vecs, err := embedding.EmbedAll(ctx, opts.Embedder, texts)
		if err != nil {
			return nil, fmt.Errorf("engine: embed %s chunks: %w", kind, err)
		}
		idx, err := index.Build(kind, chunks, vecs)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		indices[kind] = idx
		opts.Logger.Info("index built", "kind", kind.String(), "chunks", idx.Len(), "dimension", idx.Dimension())
	}

	var drugs, indications []string
	for _, r := range src.Records {
		drugs = append(drugs, r.Drug)
		if r.Indication != "" {
			indications = append(indications, r.Indication)
		}
	}

	return &Engine{
		indices:    indices,
		classifier: classifier.New(opts.Synonyms, drugs, indications),
		retriever:  retriever.New(opts.Embedder, indices, opts.TopK, opts.Timeout),
		filter:     relevance.New(opts.MinOverlap),
		extractor:  snippet.New(opts.MaxResults),
		sessions:   session.NewManager(opts.ContextTurns),
		metrics:    metrics.New(),
		events:     opts.Events,
		logger:     opts.Logger,
	}, nil
}

// SubmitTurn answers message within sessionID, creating the session on first
// use. Turns on one session run one at a time. A retrieval failure is
// returned as an error wrapping ErrRetrieval or ErrRetrievalTimeout and is
// never turned into an answer.
func (e *Engine) SubmitTurn(ctx context.Context, sessionID, message string) (Reply, error) {
	if sessionID == "" {
		return Reply{}, ErrEmptySession
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	s, created, err := e.sessions.Acquire(sessionID)
	if err != nil {
		return Reply{}, err
	}
	s.Lock()
	defer s.Unlock()
	if created {
		e.logger.Debug("session created", "session", sessionID)
	}

	start := time.Now()
	history := e.sessions.Context(s)
	e.sessions.Append(s, domain.Turn{Role: domain.RoleUser, Text: message, Time: start})

	cls := e.classifier.Classify(message, history)
	reply, err := e.answer(ctx, cls)
	if err != nil {
		e.sessions.Append(s, domain.Turn{Role: domain.RoleAssistant, Text: err.Error(), Failed: true, Time: time.Now()})
		e.metrics.Failure(sessionID)
		e.logger.Error("turn failed", "session", sessionID, "intent", cls.Intent.String(), "message", truncate(message, 80), "error", err)
		e.emit(sessionID, cls, Reply{Source: SourceNone}, true, start)
		return Reply{}, fmt.Errorf("submit turn: %w", err)
	}

	e.sessions.Append(s, domain.Turn{
		Role:          domain.RoleAssistant,
		Text:          reply.Message,
		Citation:      reply.Citation,
		Unknown:       reply.Unknown,
		SafetyRefusal: reply.SafetyRefusal,
		Clarification: reply.Clarification,
		Time:          time.Now(),
	})
	e.metrics.Turn(sessionID, outcome(reply), reply.Source == SourceExcelOnly || reply.Source == SourceBoth,
		reply.Source == SourceDocOnly || reply.Source == SourceBoth)
	e.logger.Info("turn",
		"session", sessionID,
		"message", truncate(message, 80),
		"intent", cls.Intent.String(),
		"source", reply.Source,
		"retrieved", reply.Retrieved,
		"cited", len(reply.Sources),
		"unknown", reply.Unknown,
		"refusal", reply.SafetyRefusal,
		"clarification", reply.Clarification,
		"duration", time.Since(start),
	)
	e.emit(sessionID, cls, reply, false, start)
	return reply, nil
}

// answer runs the pipeline after classification. The safety check comes
// before anything that could touch an index.
func (e *Engine) answer(ctx context.Context, cls domain.Classification) (Reply, error) {
	base := Reply{Intent: cls.Intent, Source: SourceNone}

	if v := safety.Check(cls); v.Refuse {
		base.Message = v.Message
		base.SafetyRefusal = true
		return base, nil
	}
	if cls.Greeting {
		base.Message = GreetingMessage
		base.Greeting = true
		return base, nil
	}
	if cls.NeedsDrug {
		base.Message = ClarificationMessage
		base.Clarification = true
		return base, nil
	}
	if len(cls.Terms) == 0 {
		base.Message = UnknownMessage
		base.Unknown = true
		return base, nil
	}

	cands, err := e.retriever.Retrieve(ctx, cls)
	if err != nil {
		return Reply{}, err
	}
	base.Retrieved = len(cands)

	survivors := focus(e.filter.Apply(cls.Terms, cands), cls.Drugs)
	ans := e.extractor.Compose(cls.Terms, survivors)
	if ans.Empty() {
		base.Message = UnknownMessage
		base.Unknown = true
		return base, nil
	}

	base.Message = ans.Text
	base.Citation = ans.Citation
	switch {
	case ans.Tabular && ans.Narrative:
		base.Source = SourceBoth
	case ans.Tabular:
		base.Source = SourceExcelOnly
	default:
		base.Source = SourceDocOnly
	}
	for _, c := range ans.Cited {
		base.Sources = append(base.Sources, SourceRef{
			Kind:       c.Chunk.Kind.String(),
			Provenance: c.Chunk.Provenance,
			Score:      c.Score,
			Overlap:    c.Overlap,
			Fields:     c.Chunk.Fields,
		})
	}
	return base, nil
}

// ResetSession clears a session's history. Unknown ids are acknowledged.
func (e *Engine) ResetSession(sessionID string) error {
	if err := e.sessions.Reset(sessionID); err != nil {
		return err
	}
	e.logger.Info("session reset", "session", sessionID)
	return nil
}

// History returns the full display history of a session.
func (e *Engine) History(sessionID string) []domain.Turn {
	return e.sessions.History(sessionID)
}

// Metrics returns a snapshot of the process-wide counters.
func (e *Engine) Metrics() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// Stats describes the built indices.
type Stats struct {
	TabularChunks   int   `json:"tabular_chunks"`
	NarrativeChunks int   `json:"narrative_chunks"`
	Searches        int64 `json:"searches"`
	Sessions        int   `json:"sessions"`
}

// Stats reports index sizes and how often the indices have been searched.
func (e *Engine) Stats() Stats {
	st := Stats{Searches: e.indices.Searches(), Sessions: e.sessions.Len()}
	if idx, err := e.indices.Get(domain.Tabular); err == nil {
		st.TabularChunks = idx.Len()
	}
	if idx, err := e.indices.Get(domain.Narrative); err == nil {
		st.NarrativeChunks = idx.Len()
	}
	return st
}

func (e *Engine) emit(sessionID string, cls domain.Classification, r Reply, failed bool, start time.Time) {
	e.events.TurnCompleted(events.TurnCompleted{
		SessionID:     sessionID,
		TurnID:        uuid.NewString(),
		Intent:        cls.Intent.String(),
		Source:        r.Source,
		Citation:      r.Citation,
		Retrieved:     r.Retrieved,
		Unknown:       r.Unknown,
		SafetyRefusal: r.SafetyRefusal,
		Clarification: r.Clarification,
		Failed:        failed,
		DurationMS:    time.Since(start).Milliseconds(),
		Time:          time.Now().UTC(),
	})
}

// focus keeps the survivors that mention a drug named in the query, when
// there are any. Otherwise survivors are returned unchanged.
func focus(survivors []domain.Candidate, drugs []string) []domain.Candidate {
	if len(drugs) == 0 {
		return survivors
	}
	var kept []domain.Candidate
	for _, c := range survivors {
		for _, d := range drugs {
			if lexicon.Contains(c.Chunk.Keywords, strings.Join(lexicon.Tokenize(d), " ")) {
				kept = append(kept, c)
				break
			}
		}
	}
	if len(kept) == 0 {
		return survivors
	}
	return kept
}

func outcome(r Reply) metrics.Outcome {
	switch {
	case r.SafetyRefusal:
		return metrics.SafetyRefusal
	case r.Greeting:
		return metrics.Greeting
	case r.Clarification:
		return metrics.Clarification
	case r.Unknown:
		return metrics.Unknown
	default:
		return metrics.Grounded
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
