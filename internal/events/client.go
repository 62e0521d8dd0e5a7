// Package events publishes turn notifications to NATS for downstream consumers
// such as dashboards. Publishing is best effort and never fails a turn.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectTurnCompleted is the default NATS subject for completed turns.
const SubjectTurnCompleted = "trialrag.turn.completed"

// TurnCompleted is emitted once per completed or failed turn.
type TurnCompleted struct {
	SessionID     string    `json:"session_id"`
	TurnID        string    `json:"turn_id"`
	Intent        string    `json:"intent"`
	Source        string    `json:"source"`
	Citation      string    `json:"citation,omitempty"`
	Retrieved     int       `json:"retrieved_count"`
	Unknown       bool      `json:"is_unknown"`
	SafetyRefusal bool      `json:"is_safety_refusal"`
	Clarification bool      `json:"is_clarification"`
	Failed        bool      `json:"failed"`
	DurationMS    int64     `json:"duration_ms"`
	Time          time.Time `json:"time"`
}

// Publisher sends a payload on a subject.
type Publisher interface {
	Publish(subject string, data any) error
}

// Client is a NATS connection that publishes JSON payloads.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient connects to url, retrying in the background when the server is not up yet.
// A deadline on ctx bounds the initial dial.
func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("trialrag"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc, logger: logger}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Close drains pending messages, falling back to a hard close when draining fails.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// Emitter publishes turn events on a fixed subject and logs failures.
// A nil Emitter or one without a publisher does nothing.
type Emitter struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

// NewEmitter returns an emitter for subject, defaulting to SubjectTurnCompleted.
func NewEmitter(pub Publisher, subject string, logger *slog.Logger) *Emitter {
	if subject == "" {
		subject = SubjectTurnCompleted
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, subject: subject, logger: logger}
}

// TurnCompleted publishes ev.
func (e *Emitter) TurnCompleted(ev TurnCompleted) {
	if e == nil || e.pub == nil {
		return
	}
	if err := e.pub.Publish(e.subject, ev); err != nil {
		e.logger.Warn("publish turn event failed", "subject", e.subject, "session", ev.SessionID, "error", err)
	}
}
