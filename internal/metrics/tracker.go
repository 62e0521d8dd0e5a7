// Package metrics tracks process-wide turn counters.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Outcome classifies a completed turn.
type Outcome int

const (
	Grounded Outcome = iota
	Unknown
	SafetyRefusal
	Clarification
	Greeting
)

// Usage is the source usage tally. ExcelOnly, DocOnly and Both count grounded
// answers by the kinds they cite; None counts every other completed turn.
type Usage struct {
	ExcelOnly int64 `json:"excel_only"`
	DocOnly   int64 `json:"doc_only"`
	Both      int64 `json:"both"`
	None      int64 `json:"none"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalTurns       int64 `json:"total_turns"`
	SourceUsage      Usage `json:"source_usage"`
	SafetyRefusals   int64 `json:"safety_refusals"`
	UnknownResponses int64 `json:"unknown_responses"`
	Clarifications   int64 `json:"clarifications"`
	Greetings        int64 `json:"greetings"`
	Failures         int64 `json:"failures"`
	UniqueSessions   int64 `json:"unique_sessions"`
}

// Tracker is safe for concurrent use. Counters only reset with the process.
type Tracker struct {
	total, excelOnly, docOnly, both, none atomic.Int64
	refusals, unknown, clarify, greet     atomic.Int64
	failures, sessions                    atomic.Int64

	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns a zeroed tracker.
func New() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// Turn records a completed turn. tabular and narrative say which kinds a
// grounded answer cited and are ignored for other outcomes.
func (t *Tracker) Turn(sessionID string, o Outcome, tabular, narrative bool) {
	t.observe(sessionID)
	t.total.Add(1)
	switch o {
	case Grounded:
		switch {
		case tabular && narrative:
			t.both.Add(1)
		case tabular:
			t.excelOnly.Add(1)
		case narrative:
			t.docOnly.Add(1)
		default:
			t.none.Add(1)
		}
		return
	case Unknown:
		t.unknown.Add(1)
	case SafetyRefusal:
		t.refusals.Add(1)
	case Clarification:
		t.clarify.Add(1)
	case Greeting:
		t.greet.Add(1)
	}
	t.none.Add(1)
}

// Failure records a turn that ended in a retrieval error. It is not a
// completed turn and does not count towards TotalTurns.
func (t *Tracker) Failure(sessionID string) {
	t.observe(sessionID)
	t.failures.Add(1)
}

func (t *Tracker) observe(sessionID string) {
	if sessionID == "" {
		return
	}
	t.mu.Lock()
	if _, ok := t.seen[sessionID]; !ok {
		t.seen[sessionID] = struct{}{}
		t.sessions.Add(1)
	}
	t.mu.Unlock()
}

// Snapshot copies the counters. Counters are read one by one, so a snapshot
// taken during concurrent turns may be off by those in-flight turns.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		TotalTurns: t.total.Load(),
		SourceUsage: Usage{
			ExcelOnly: t.excelOnly.Load(),
			DocOnly:   t.docOnly.Load(),
			Both:      t.both.Load(),
			None:      t.none.Load(),
		},
		SafetyRefusals:   t.refusals.Load(),
		UnknownResponses: t.unknown.Load(),
		Clarifications:   t.clarify.Load(),
		Greetings:        t.greet.Load(),
		Failures:         t.failures.Load(),
		UniqueSessions:   t.sessions.Load(),
	}
}

// Grounded returns the number of turns answered from retrieved text.
func (s Snapshot) Grounded() int64 {
	return s.SourceUsage.ExcelOnly + s.SourceUsage.DocOnly + s.SourceUsage.Both
}
