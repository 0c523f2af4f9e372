package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"

	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// Source labels recorded on captured events.
const (
	sourceHTTP = "http"
	sourceOTLP = "otlp"
	sourceLoki = "loki"
)

// ingestHandler routes a push to the matching protocol handler by content type.
func (s *HTTP) ingestHandler(c *gin.Context) {
	start := time.Now()

	ct := c.GetHeader("Content-Type")
	if isOTLPContentType(ct) {
		s.otlpHandler(c, start)
		return
	}

	s.jsonHandler(c, start)
}

// isOTLPContentType checks if the content type indicates OTLP protocol
func isOTLPContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "application/x-protobuf") ||
		strings.Contains(ct, "application/protobuf") ||
		strings.Contains(ct, "application/octet-stream")
}

// jsonHandler accepts console events as an object, an array or NDJSON.
func (s *HTTP) jsonHandler(c *gin.Context, start time.Time) {
	reader, err := getBodyReader(c.Request)
	if err != nil {
		s.badRequest(c, "bad_body", err)
		return
	}
	defer reader.Close()

	entries, err := s.service.Ingest().DecodeJSON(reader)
	if err != nil {
		s.rejectDecode(c, "bad_json", err)
		return
	}
	s.accept(c, sourceHTTP, entries, start)
}

// lokiHandler accepts a Loki push. Stream labels select level and source.
func (s *HTTP) lokiHandler(c *gin.Context, start time.Time) {
	reader, err := getBodyReader(c.Request)
	if err != nil {
		s.badRequest(c, "bad_body", err)
		return
	}
	defer reader.Close()

	entries, err := s.service.Ingest().DecodeLoki(reader)
	if err != nil {
		s.rejectDecode(c, "bad_loki_json", err)
		return
	}
	if err := s.service.Append(c.Request.Context(), c.Param("id"), sourceLoki, entries); err != nil {
		s.fail(c, err)
		return
	}
	s.ingested(len(entries), start)
	c.Status(http.StatusNoContent)
}

// otlpHandler accepts an OTLP/HTTP logs export. Every record lands in the
// session named by the path, whatever its resource says.
func (s *HTTP) otlpHandler(c *gin.Context, start time.Time) {
	reader, err := getBodyReader(c.Request)
	if err != nil {
		s.badRequest(c, "bad_body", err)
		return
	}
	defer reader.Close()

	body, err := s.service.Ingest().ReadBody(reader)
	if err != nil {
		s.rejectDecode(c, "bad_body", err)
		return
	}
	ct := c.GetHeader("Content-Type")
	records, err := s.service.Ingest().DecodeOTLP(body, ct)
	if err != nil {
		s.rejectDecode(c, "bad_otlp", err)
		return
	}

	entries := make([]logtypes.LogEntry, len(records))
	for i, r := range records {
		entries[i] = r.Entry
	}
	if err := s.service.Append(c.Request.Context(), c.Param("id"), sourceOTLP, entries); err != nil {
		s.fail(c, err)
		return
	}
	s.ingested(len(entries), start)

	resp := plogotlp.NewExportResponse()
	if strings.Contains(strings.ToLower(ct), "json") {
		out, err := resp.MarshalJSON()
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
		return
	}
	out, err := resp.MarshalProto()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/x-protobuf", out)
}

// accept appends decoded entries and answers 202.
func (s *HTTP) accept(c *gin.Context, source string, entries []logtypes.LogEntry, start time.Time) {
	if err := s.service.Append(c.Request.Context(), c.Param("id"), source, entries); err != nil {
		s.fail(c, err)
		return
	}
	s.ingested(len(entries), start)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "accepted": len(entries)})
}

func (s *HTTP) ingested(n int, start time.Time) {
	if s.log != nil {
		s.log.Debug().Int("events", n).Dur("latency", time.Since(start)).Msg("events accepted")
	}
	if s.metric != nil {
		s.metric.IncRequestsReceived("202")
	}
}

// rejectDecode maps bound violations to their status and anything else to 400.
func (s *HTTP) rejectDecode(c *gin.Context, reason string, err error) {
	switch {
	case errors.Is(err, ingest.ErrBodyTooLarge):
		s.reject(c, "body_too_large", err)
	case errors.Is(err, ingest.ErrBatchTooLarge):
		s.reject(c, "batch_too_large", err)
	case errors.Is(err, ingest.ErrEmptyBatch):
		s.reject(c, "empty_batch", err)
	default:
		s.badRequest(c, reason, err)
	}
}

func (s *HTTP) reject(c *gin.Context, reason string, err error) {
	if s.metric != nil {
		s.metric.IncIngestRejectedTotal(reason)
	}
	s.fail(c, err)
}
