package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/logtypes"
	"github.com/kumarabd/gokit/logger"
)

// Config contains configuration for console event ingestion
type Config struct {
	MaxBodyBytes int  `json:"max_body_bytes" yaml:"max_body_bytes" default:"1048576"` // 1MB
	MaxBatchSize int  `json:"max_batch_size" yaml:"max_batch_size" default:"1000"`    // events per request
	MaxArgs      int  `json:"max_args" yaml:"max_args" default:"64"`                  // arguments kept per event
	ValidateUTF8 bool `json:"validate_utf8" yaml:"validate_utf8" default:"true"`
}

// Decoding failures surfaced to callers.
var (
	ErrEmptyBatch    = errors.New("empty batch")
	ErrBatchTooLarge = errors.New("batch size exceeds maximum")
	ErrBodyTooLarge  = errors.New("request body too large")
)

// Handler decodes producer payloads into capture events.
type Handler struct {
	config *Config
	log    *logger.Handler
	metric *metrics.Handler
}

// NewHandler creates a new ingest handler
func NewHandler(config *Config, log *logger.Handler, metric *metrics.Handler) *Handler {
	if config == nil {
		config = &Config{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 1000
	}
	if config.MaxArgs <= 0 {
		config.MaxArgs = 64
	}
	return &Handler{
		config: config,
		log:    log,
		metric: metric,
	}
}

// GetConfig returns the handler configuration
func (h *Handler) GetConfig() *Config {
	return h.config
}

// ReadBody reads at most MaxBodyBytes from r.
func (h *Handler) ReadBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, int64(h.config.MaxBodyBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > h.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// DecodeJSON accepts a single event object, a JSON array of events, or
// newline-delimited events.
func (h *Handler) DecodeJSON(r io.Reader) ([]logtypes.LogEntry, error) {
	body, err := h.ReadBody(r)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBatch
	}

	var entries []logtypes.LogEntry
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("invalid json batch: %w", err)
		}
	} else {
		entries, err = decodeStream(trimmed)
		if err != nil {
			return nil, err
		}
	}

	return h.finish(entries)
}

// decodeStream reads concatenated or newline-delimited JSON objects.
func decodeStream(body []byte) ([]logtypes.LogEntry, error) {
	var entries []logtypes.LogEntry
	dec := json.NewDecoder(bufio.NewReader(bytes.NewReader(body)))
	for {
		var entry logtypes.LogEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid json event %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// finish enforces batch bounds and trims per-event fields.
func (h *Handler) finish(entries []logtypes.LogEntry) ([]logtypes.LogEntry, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(entries) > h.config.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	clipped := 0
	for i := range entries {
		entries[i].Level = strings.TrimSpace(entries[i].Level)
		entries[i].Source = strings.TrimSpace(entries[i].Source)
		if len(entries[i].Args) > h.config.MaxArgs {
			entries[i].Args = entries[i].Args[:h.config.MaxArgs]
			clipped++
		}
		if h.config.ValidateUTF8 {
			entries[i].Source = strings.ToValidUTF8(entries[i].Source, "\uFFFD")
			entries[i].URL = strings.ToValidUTF8(entries[i].URL, "\uFFFD")
		}
	}

	if clipped > 0 && h.log != nil {
		h.log.Debug().Int("events", clipped).Int("max_args", h.config.MaxArgs).Msg("clipped console arguments")
	}
	return entries, nil
}
