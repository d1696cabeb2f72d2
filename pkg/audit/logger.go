// Package audit records command outcomes as JSON lines. Rejected operations
// never reach the ledger, so the audit trail is the only place they appear.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	EventMutation EventType = "MUTATION"
	EventAccess   EventType = "ACCESS"
	EventPolicy   EventType = "POLICY"
	EventSystem   EventType = "SYSTEM"
)

// Outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
)

// Event is one structured audit record.
type Event struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Outcome   string         `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Success builds an event for a command that went through.
func Success(typ EventType, actor, action, resource string, metadata map[string]any) Event {
	return Event{
		Actor:    actor,
		Type:     typ,
		Action:   action,
		Resource: resource,
		Outcome:  OutcomeOK,
		Metadata: metadata,
	}
}

// Rejection builds an event for a command that was refused.
func Rejection(typ EventType, actor, action, resource string, cause error, metadata map[string]any) Event {
	e := Event{
		Actor:    actor,
		Type:     typ,
		Action:   action,
		Resource: resource,
		Outcome:  OutcomeRejected,
		Metadata: metadata,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, event Event) error
}

// logger writes JSON lines to a configurable writer.
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

func (l *logger) Record(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeOK
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// nop discards every event.
type nop struct{}

// NewNopLogger returns a Logger that records nothing.
func NewNopLogger() Logger { return nop{} }

func (nop) Record(context.Context, Event) error { return nil }
