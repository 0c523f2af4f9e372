package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kumarabd/console-brief/pkg/logtypes"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
)

// Attribute keys understood on OTLP records and resources.
const (
	AttrSessionID     = "session.id"
	AttrConsoleLevel  = "console.level"
	AttrConsoleSource = "console.source"
	AttrPageURL       = "url.full"

	otlpSource = "otlp"
)

// OTLPRecord is a converted log record and the session its resource names.
type OTLPRecord struct {
	SessionID string
	Entry     logtypes.LogEntry
}

// DecodeOTLP parses an OTLP/HTTP logs export body, protobuf or JSON by content type.
func (h *Handler) DecodeOTLP(body []byte, contentType string) ([]OTLPRecord, error) {
	if len(body) > h.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	req := plogotlp.NewExportRequest()
	if strings.Contains(strings.ToLower(contentType), "json") {
		if err := req.UnmarshalJSON(body); err != nil {
			return nil, fmt.Errorf("invalid OTLP json request: %w", err)
		}
	} else {
		if err := req.UnmarshalProto(body); err != nil {
			return nil, fmt.Errorf("invalid OTLP request format: %w", err)
		}
	}

	return h.FromOTLP(req.Logs())
}

// FromOTLP converts already decoded logs and applies the batch bounds.
func (h *Handler) FromOTLP(logs plog.Logs) ([]OTLPRecord, error) {
	records := ConvertOTLP(logs)
	entries := make([]logtypes.LogEntry, len(records))
	for i := range records {
		entries[i] = records[i].Entry
	}
	entries, err := h.finish(entries)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Entry = entries[i]
	}
	return records, nil
}

// ConvertOTLP flattens every log record into a console event.
func ConvertOTLP(logs plog.Logs) []OTLPRecord {
	var records []OTLPRecord

	resourceLogs := logs.ResourceLogs()
	for i := 0; i < resourceLogs.Len(); i++ {
		resourceLog := resourceLogs.At(i)
		resourceAttrs := resourceLog.Resource().Attributes()
		sessionID := attrString(resourceAttrs, AttrSessionID)

		scopeLogs := resourceLog.ScopeLogs()
		for j := 0; j < scopeLogs.Len(); j++ {
			scopeLog := scopeLogs.At(j)
			logRecords := scopeLog.LogRecords()

			for k := 0; k < logRecords.Len(); k++ {
				logRecord := logRecords.At(k)
				attrs := logRecord.Attributes()

				entry := logtypes.LogEntry{
					Timestamp: otlpTimestamp(logRecord),
					Level:     otlpLevel(logRecord),
					Source:    attrString(attrs, AttrConsoleSource),
					URL:       attrString(attrs, AttrPageURL),
					Args:      otlpArgs(logRecord.Body()),
				}
				if entry.Source == "" {
					entry.Source = scopeLog.Scope().Name()
				}
				if entry.Source == "" {
					entry.Source = otlpSource
				}
				if entry.URL == "" {
					entry.URL = attrString(resourceAttrs, AttrPageURL)
				}

				records = append(records, OTLPRecord{SessionID: sessionID, Entry: entry})
			}
		}
	}

	return records
}

func attrString(attrs pcommon.Map, key string) string {
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	return v.AsString()
}

func otlpTimestamp(lr plog.LogRecord) string {
	ts := lr.Timestamp()
	if ts == 0 {
		ts = lr.ObservedTimestamp()
	}
	if ts == 0 {
		return ""
	}
	return ts.AsTime().UTC().Format(logtypes.TimestampLayout)
}

// otlpLevel prefers an explicit console level, then severity text, then number.
func otlpLevel(lr plog.LogRecord) string {
	if v, ok := lr.Attributes().Get(AttrConsoleLevel); ok && v.AsString() != "" {
		return strings.ToLower(v.AsString())
	}

	switch strings.ToLower(strings.TrimSpace(lr.SeverityText())) {
	case "trace", "debug":
		return logtypes.LevelDebug
	case "info", "information":
		return logtypes.LevelInfo
	case "warn", "warning":
		return logtypes.LevelWarn
	case "error", "err", "fatal", "critical":
		return logtypes.LevelError
	case "log":
		return logtypes.LevelLog
	}

	n := lr.SeverityNumber()
	switch {
	case n >= plog.SeverityNumberError:
		return logtypes.LevelError
	case n >= plog.SeverityNumberWarn:
		return logtypes.LevelWarn
	case n >= plog.SeverityNumberInfo:
		return logtypes.LevelInfo
	case n >= plog.SeverityNumberTrace:
		return logtypes.LevelDebug
	}
	return logtypes.LevelLog
}

// otlpArgs treats an array body as the console argument list.
func otlpArgs(body pcommon.Value) []json.RawMessage {
	switch body.Type() {
	case pcommon.ValueTypeEmpty:
		return nil
	case pcommon.ValueTypeSlice:
		slice := body.Slice()
		args := make([]json.RawMessage, 0, slice.Len())
		for i := 0; i < slice.Len(); i++ {
			args = append(args, rawValue(slice.At(i)))
		}
		return args
	}
	return []json.RawMessage{rawValue(body)}
}

func rawValue(v pcommon.Value) json.RawMessage {
	raw, err := json.Marshal(v.AsRaw())
	if err != nil {
		raw, _ = json.Marshal(v.AsString())
	}
	return raw
}
