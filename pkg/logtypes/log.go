package logtypes

import (
	"encoding/json"
	"time"
)

// Console levels emitted by the page-side logger.
const (
	LevelLog   = "log"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelDebug = "debug"
)

// DefaultSource is used when an event does not say where it came from.
const DefaultSource = "console"

// LogEntry is one raw console event as captured in the page runtime.
// Args keeps every argument in its serialized form so that formatting can
// happen later, per report request.
type LogEntry struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Level     string            `json:"level"`
	Source    string            `json:"source,omitempty"`
	URL       string            `json:"url,omitempty"`
	Args      []json.RawMessage `json:"args"`
}

// Fill sets the defaults for missing fields. now is used for absent timestamps.
func (e *LogEntry) Fill(now time.Time) {
	if e.Timestamp == "" {
		e.Timestamp = now.UTC().Format(TimestampLayout)
	}
	if e.Level == "" {
		e.Level = LevelLog
	}
	if e.Source == "" {
		e.Source = DefaultSource
	}
}

// TimestampLayout matches Date.prototype.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NormalizedEntry is a LogEntry rendered to a single message.
type NormalizedEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

// DedupedEntry carries the repeat count for a normalized message.
type DedupedEntry struct {
	NormalizedEntry
	Count         int    `json:"count"`
	LastTimestamp string `json:"lastTimestamp"`
}

// RedactionReport represents credential redaction information
type RedactionReport struct {
	Applied bool     `json:"applied"`
	Rules   []string `json:"rules"`
	Count   int      `json:"count"`
}
