// Package auditlog records structured, append-only operational events
// (token issuance, hold activation, schema rejections) distinct from
// the hash-linked Audit-Chain Record in pkg/auditchain: this is an
// operational trail for operators, not a tamper-evident ledger.
package auditlog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventAccess   EventType = "ACCESS"
	EventMutation EventType = "MUTATION"
	EventSystem   EventType = "SYSTEM"
	EventPolicy   EventType = "POLICY"
)

// Event represents a structured audit record.
type Event struct {
	ID        string                 `json:"id"`
	ActorID   string                 `json:"actor_id"`
	Type      EventType              `json:"type"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events. actorID
// identifies the caller (a Virtue Token sub, a signal client_id, or
// "system" for daemon-originated events) and is supplied by the
// caller rather than derived from request context.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, actorID string, metadata map[string]interface{}) error
}

// logger implements Logger, writing structured JSON to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, actorID string, metadata map[string]interface{}) error {
	event := Event{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Type:      eventType,
		Action:    action,
		Resource:  action,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}
