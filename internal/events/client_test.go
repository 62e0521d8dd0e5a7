package events

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type recordingPublisher struct {
	subjects []string
	payloads []any
	err      error
}

func (r *recordingPublisher) Publish(subject string, data any) error {
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return r.err
}

func TestEmitter_DefaultSubject(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.TurnCompleted(TurnCompleted{SessionID: "s1", Source: "excel_only"})

	if len(pub.subjects) != 1 || pub.subjects[0] != SubjectTurnCompleted {
		t.Fatalf("subjects = %v", pub.subjects)
	}
	ev, ok := pub.payloads[0].(TurnCompleted)
	if !ok || ev.SessionID != "s1" {
		t.Errorf("payload = %+v", pub.payloads[0])
	}
}

func TestEmitter_PublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	e := NewEmitter(pub, "custom.subject", slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.TurnCompleted(TurnCompleted{SessionID: "s1"})
	if pub.subjects[0] != "custom.subject" {
		t.Errorf("subject = %q", pub.subjects[0])
	}
}

func TestEmitter_Nil(t *testing.T) {
	var e *Emitter
	e.TurnCompleted(TurnCompleted{})
	NewEmitter(nil, "", nil).TurnCompleted(TurnCompleted{})
}
