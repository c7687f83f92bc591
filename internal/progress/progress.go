// Package progress carries the engine's lifecycle events to whoever listens.
// The engine never formats or transports them itself.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

const (
	RunStarted          Type = "run_started"
	PathCreationStarted Type = "path_creation_started"
	PathsIdentified     Type = "paths_identified"
	EntryPointCompleted Type = "entry_point_completed"
	RunCompleted        Type = "run_completed"
)

// Event is one lifecycle notification.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	// EntryPoint is the identity key of the entry point, when the event has one.
	EntryPoint string `json:"entry_point,omitempty"`
	// Count is the number of paths for paths_identified and the number of
	// entry points for run_started and run_completed.
	Count  int    `json:"count,omitempty"`
	Status string `json:"status,omitempty"`
}

// New stamps a fresh event.
func New(typ Type, runID string) Event {
	return Event{ID: uuid.NewString(), Type: typ, RunID: runID, OccurredAt: time.Now().UTC()}
}

// Notifier receives lifecycle events. Notify is called from worker goroutines
// and must be safe for concurrent use; it must not block for long.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) {})

// Multi fans an event out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewLogNotifier logs events at debug level, run boundaries at info.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger, Level: slog.LevelDebug}
}

func (l *LogNotifier) Notify(ctx context.Context, e Event) {
	level := l.Level
	if e.Type == RunStarted || e.Type == RunCompleted {
		level = slog.LevelInfo
	}
	attrs := []any{"run_id", e.RunID}
	if e.EntryPoint != "" {
		attrs = append(attrs, "entry_point", e.EntryPoint)
	}
	if e.Count != 0 {
		attrs = append(attrs, "count", e.Count)
	}
	if e.Status != "" {
		attrs = append(attrs, "status", e.Status)
	}
	l.Logger.Log(ctx, level, string(e.Type), attrs...)
}
