package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grafana/loki/pkg/logproto"

	"github.com/kumarabd/console-brief/pkg/format"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

const lokiSource = "loki"

// DecodeLoki parses a Loki JSON push request.
func (h *Handler) DecodeLoki(r io.Reader) ([]logtypes.LogEntry, error) {
	body, err := h.ReadBody(r)
	if err != nil {
		return nil, err
	}

	var req logproto.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid loki request format: %w", err)
	}
	return h.finish(ConvertLoki(&req))
}

// ConvertLoki maps each stream entry to a console event. Stream labels supply
// level, source and url; a line holding a JSON array becomes the argument list.
func ConvertLoki(req *logproto.PushRequest) []logtypes.LogEntry {
	var entries []logtypes.LogEntry

	for _, stream := range req.Streams {
		labels := ParseLokiLabels(stream.Labels)
		level := labels["level"]
		if level == "" {
			level = labels["severity"]
		}
		source := labels["source"]
		if source == "" {
			source = lokiSource
		}

		for _, e := range stream.Entries {
			entry := logtypes.LogEntry{
				Level:  normalizeLevel(level),
				Source: source,
				URL:    labels["url"],
				Args:   lineArgs(e.Line),
			}
			if !e.Timestamp.IsZero() {
				entry.Timestamp = e.Timestamp.UTC().Format(logtypes.TimestampLayout)
			}
			entries = append(entries, entry)
		}
	}

	return entries
}

func lineArgs(line string) []json.RawMessage {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "[") {
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
			return args
		}
	}
	return format.Args(line)
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return logtypes.LevelLog
	case "warning":
		return logtypes.LevelWarn
	case "err", "fatal", "critical":
		return logtypes.LevelError
	case "trace":
		return logtypes.LevelDebug
	default:
		return strings.ToLower(strings.TrimSpace(level))
	}
}

// ParseLokiLabels parses the Loki selector form {key1="value1",key2="value2"}.
// Values are Go-style quoted strings and may contain commas or escaped quotes.
func ParseLokiLabels(selector string) map[string]string {
	labels := make(map[string]string)
	s := strings.TrimSpace(selector)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")

	for {
		s = strings.TrimLeft(s, " ,")
		if s == "" {
			return labels
		}

		eq := strings.IndexByte(s, '=')
		if eq == -1 {
			return labels
		}
		key := strings.TrimSpace(s[:eq])
		s = strings.TrimSpace(s[eq+1:])

		if !strings.HasPrefix(s, `"`) {
			// Unquoted value runs to the next comma.
			end := strings.IndexByte(s, ',')
			if end == -1 {
				end = len(s)
			}
			labels[key] = strings.TrimSpace(s[:end])
			s = s[end:]
			continue
		}

		end := closingQuote(s)
		if end == -1 {
			labels[key] = strings.Trim(s, `"`)
			return labels
		}
		value, err := strconv.Unquote(s[:end+1])
		if err != nil {
			value = s[1:end]
		}
		labels[key] = value
		s = s[end+1:]
	}
}

// closingQuote returns the index of the quote ending the string opened at s[0].
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
