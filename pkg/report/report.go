package report

import (
	"bytes"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/format"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// Source is anything holding captured entries, normally a capture.Buffer.
type Source interface {
	Snapshot(n int) []logtypes.LogEntry
	Len() int
}

// LevelCounts maps level to occurrences, remembering first-seen key order so
// the serialized form is stable.
type LevelCounts struct {
	keys   []string
	counts map[string]int
}

func (l *LevelCounts) add(level string, n int) {
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	if _, ok := l.counts[level]; !ok {
		l.keys = append(l.keys, level)
	}
	l.counts[level] += n
}

// Get returns the count for one level.
func (l LevelCounts) Get(level string) int {
	return l.counts[level]
}

// Keys returns levels in first-seen order.
func (l LevelCounts) Keys() []string {
	return append([]string(nil), l.keys...)
}

// MarshalJSON writes {"error":2,"warn":1} in first-seen order.
func (l LevelCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range l.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, _ := json.Marshal(l.counts[key])
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Report is one rendered view of a capture buffer.
type Report struct {
	TotalCaptured   int                     `json:"totalCaptured"`
	TotalCount      int                     `json:"count"`
	UniqueCount     int                     `json:"uniqueCount"`
	LevelCounts     LevelCounts             `json:"levelCounts"`
	Format          string                  `json:"format"`
	LevelPreset     string                  `json:"levelPreset"`
	PageURL         string                  `json:"pageUrl"`
	Entries         []logtypes.DedupedEntry `json:"-"`
	Text            string                  `json:"text"`
	EstimatedTokens int                     `json:"estimatedTokens"`
}

// Builder runs the select, filter, format, optimize, dedupe and render pipeline.
type Builder struct {
	metric *metrics.Handler
	now    func() time.Time
}

// NewBuilder creates a report builder. metric may be nil.
func NewBuilder(metric *metrics.Handler) *Builder {
	return &Builder{
		metric: metric,
		now:    time.Now,
	}
}

// WithClock replaces the wall clock used for capture times and missing timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build renders src for pageURL. It never fails: empty input produces an
// empty but well-formed report.
func (b *Builder) Build(src Source, pageURL string, opts Options) *Report {
	now := b.now().UTC()
	rep := b.collect(src, opts, now)
	rep.PageURL = pageURL

	switch opts.Format {
	case FormatXML:
		rep.Text = renderXML(rep, now)
	case FormatPlain:
		rep.Text = renderPlain(rep, now)
	default:
		rep.Text = renderAI(rep, now)
	}
	rep.EstimatedTokens = EstimateTokens(rep.Text)

	if b.metric != nil {
		b.metric.IncReportsBuilt(rep.Format, rep.LevelPreset)
		b.metric.ObserveTokens("report", rep.EstimatedTokens)
	}
	return rep
}

func (b *Builder) collect(src Source, opts Options, now time.Time) *Report {
	total := src.Len()
	n := total
	if opts.MaxEntries > 0 {
		n = opts.MaxEntries
	}
	selected := src.Snapshot(n)

	optimize := ingest.OptimizeOptions{
		MaxCharsPerEntry: opts.MaxCharsPerEntry,
		MaxStackLines:    opts.MaxStackLines,
	}

	normalized := make([]logtypes.NormalizedEntry, 0, len(selected))
	for _, entry := range selected {
		level := entry.Level
		if level == "" {
			level = logtypes.LevelLog
		}
		source := entry.Source
		if source == "" {
			source = logtypes.DefaultSource
		}
		if !includeLevel(level, opts.LevelPreset) {
			continue
		}

		var message string
		if opts.Format == FormatPlain {
			message = format.FormatPlain(entry.Args)
		} else {
			message = format.FormatCompact(entry.Args)
		}
		if opts.OptimizeForAI {
			message = ingest.OptimizeMessage(message, optimize)
		} else if message == "" {
			message = ingest.EmptyMessage
		}

		timestamp := entry.Timestamp
		if timestamp == "" {
			timestamp = now.Format(logtypes.TimestampLayout)
		}
		normalized = append(normalized, logtypes.NormalizedEntry{
			Timestamp: timestamp,
			Level:     level,
			Source:    source,
			Message:   message,
		})
	}

	var entries []logtypes.DedupedEntry
	if opts.OptimizeForAI || opts.Format == FormatAI {
		entries = ingest.Dedupe(normalized)
	} else {
		entries = ingest.PassThrough(normalized)
	}

	rep := &Report{
		TotalCaptured: total,
		TotalCount:    len(normalized),
		UniqueCount:   len(entries),
		Format:        opts.Format,
		LevelPreset:   opts.LevelPreset,
		Entries:       entries,
	}
	for _, e := range entries {
		rep.LevelCounts.add(e.Level, e.Count)
	}
	return rep
}

// EstimateTokens is ceil(chars / 4).
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
