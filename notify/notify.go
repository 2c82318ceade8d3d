package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Severity is how prominently a notification should be shown.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Sink receives user facing notifications. Rendering is up to the caller.
type Sink func(message string, severity Severity)

// Nop discards notifications.
func Nop(string, Severity) {}

// LogSink writes notifications to l at a level matching the severity.
func LogSink(l zerolog.Logger) Sink {
	return func(message string, severity Severity) {
		var ev *zerolog.Event
		switch severity {
		case Error:
			ev = l.Error()
		case Warning:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.Str("severity", string(severity)).Msg(message)
	}
}

// Recorder is a Sink that keeps what it receives, for tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

type Notification struct {
	Message  string
	Severity Severity
}

func (r *Recorder) Sink(message string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Message: message, Severity: severity})
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Count returns the number of notifications with the given severity.
func (r *Recorder) Count(severity Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Severity == severity {
			n++
		}
	}
	return n
}
