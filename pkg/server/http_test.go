package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kumarabd/gokit/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/provider"
	"github.com/kumarabd/console-brief/pkg/service"
)

const pageHTML = `<html><head><title>Checkout</title></head><body><main><h1>Checkout</h1>
<p>Payment failed with error code 402 while submitting the order form.</p></main></body></html>`

func newTestService(t *testing.T) (*service.Handler, *logger.Handler, *metrics.Handler) {
	t.Helper()
	log, err := logger.New("test", logger.Options{Format: logger.JSONLogFormat})
	require.NoError(t, err)
	metric, err := metrics.New("test")
	require.NoError(t, err)

	svc, err := service.New(context.Background(), log, metric, &service.Config{
		Provider: &provider.Config{Name: provider.NameEcho},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })
	return svc, log, metric
}

func newTestHTTP(t *testing.T) *HTTP {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, log, metric := newTestService(t)
	return NewHTTP(&HTTPConfig{Host: "127.0.0.1", Port: "8080"}, svc, log, metric)
}

func do(t *testing.T, s *HTTP, method, path string, body []byte, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createSession(t *testing.T, s *HTTP) string {
	t.Helper()
	w := do(t, s, "POST", "/v1/sessions", []byte(`{"pageUrl":"https://shop.test/checkout"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "https://shop.test/checkout", resp["pageUrl"])
	return resp["sessionId"].(string)
}

func TestHTTPEndpoints(t *testing.T) {
	server := newTestHTTP(t)

	t.Run("health endpoint", func(t *testing.T) {
		w := do(t, server, "GET", "/healthz", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		response := decode(t, w)
		assert.Equal(t, "ok", response["status"])
		assert.Contains(t, response, "time")
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		w := do(t, server, "GET", "/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "# HELP")
	})

	t.Run("cors preflight", func(t *testing.T) {
		w := do(t, server, "OPTIONS", "/v1/sessions", nil,
			"Origin", "https://shop.test",
			"Access-Control-Request-Method", "POST")
		assert.Less(t, w.Code, 300)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestHTTPCaptureAndReport(t *testing.T) {
	server := newTestHTTP(t)
	id := createSession(t, server)
	base := "/v1/sessions/" + id

	w := do(t, server, "POST", base+"/logs",
		[]byte(`[{"level":"error","args":["boom"]},{"level":"error","args":["boom"]},{"level":"log","args":["ready"]}]`))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, float64(3), decode(t, w)["accepted"])

	t.Run("query options", func(t *testing.T) {
		w := do(t, server, "GET", base+"/report?levelPreset=errors&format=xml&maxEntries=50", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		assert.Equal(t, true, resp["ok"])
		assert.Equal(t, float64(3), resp["totalCaptured"])
		assert.Equal(t, float64(2), resp["count"])
		assert.Equal(t, float64(1), resp["uniqueCount"])
		assert.Equal(t, "xml", resp["format"])
		assert.Equal(t, "https://shop.test/checkout", resp["pageUrl"])
	})

	t.Run("empty body uses defaults", func(t *testing.T) {
		w := do(t, server, "POST", base+"/report", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		assert.Equal(t, "ai", resp["format"])
		assert.Equal(t, "full", resp["levelPreset"])
		assert.True(t, strings.HasPrefix(resp["text"].(string), "AI_LOGS_V1"))
	})

	t.Run("loosely typed options", func(t *testing.T) {
		tests := []struct {
			name   string
			body   string
			format string
			count  float64
		}{
			{name: "numeric format", body: `{"format":5}`, format: "ai", count: 3},
			{name: "array format", body: `{"format":["x"]}`, format: "ai", count: 3},
			{name: "fractional max entries", body: `{"maxEntries":2.5,"format":"plain"}`, format: "plain", count: 2},
			{name: "string max entries", body: `{"maxEntries":"1"}`, format: "ai", count: 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := do(t, server, "POST", base+"/report", []byte(tt.body))
				require.Equal(t, http.StatusOK, w.Code, w.Body.String())
				resp := decode(t, w)
				assert.Equal(t, tt.format, resp["format"])
				assert.Equal(t, tt.count, resp["count"])
			})
		}

		w := do(t, server, "POST", base+"/report", []byte(`[1]`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("gzip body", func(t *testing.T) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte(`{"level":"warn","args":["compressed"]}`))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		w := do(t, server, "POST", base+"/logs", buf.Bytes(), "Content-Encoding", "gzip")
		assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	})

	t.Run("ingest routes json", func(t *testing.T) {
		w := do(t, server, "POST", base+"/ingest", []byte(`{"level":"info","args":["routed"]}`))
		assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	})
}

func TestHTTPIngestProtocols(t *testing.T) {
	server := newTestHTTP(t)
	id := createSession(t, server)
	base := "/v1/sessions/" + id

	t.Run("loki push", func(t *testing.T) {
		body := `{"streams":[{"labels":"{level=\"error\",source=\"window.onerror\"}","entries":[{"ts":"2024-05-01T10:00:00Z","line":"boom"}]}]}`
		w := do(t, server, "POST", base+"/loki/api/v1/push", []byte(body))
		assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	})

	t.Run("otlp json", func(t *testing.T) {
		logs := plog.NewLogs()
		lr := logs.ResourceLogs().AppendEmpty().ScopeLogs().AppendEmpty().LogRecords().AppendEmpty()
		lr.SetSeverityText("WARN")
		lr.Body().SetStr("slow response")
		body, err := plogotlp.NewExportRequestFromLogs(logs).MarshalJSON()
		require.NoError(t, err)

		w := do(t, server, "POST", base+"/otlp", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	})

	t.Run("otlp protobuf", func(t *testing.T) {
		logs := plog.NewLogs()
		logs.ResourceLogs().AppendEmpty().ScopeLogs().AppendEmpty().LogRecords().AppendEmpty().Body().SetStr("x")
		body, err := plogotlp.NewExportRequestFromLogs(logs).MarshalProto()
		require.NoError(t, err)

		w := do(t, server, "POST", base+"/otlp", body, "Content-Type", "application/x-protobuf")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := plogotlp.NewExportResponse()
		assert.NoError(t, resp.UnmarshalProto(w.Body.Bytes()))
	})

	w := do(t, server, "GET", base+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["totalCaptured"])
}

func TestHTTPErrors(t *testing.T) {
	server := newTestHTTP(t)
	id := createSession(t, server)
	base := "/v1/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "unknown session report", method: "GET", path: "/v1/sessions/missing/report", status: http.StatusNotFound},
		{name: "unknown session logs", method: "POST", path: "/v1/sessions/missing/logs", body: `{"args":["x"]}`, status: http.StatusNotFound},
		{name: "unknown session delete", method: "DELETE", path: "/v1/sessions/missing", status: http.StatusNotFound},
		{name: "empty batch", method: "POST", path: base + "/logs", body: `[]`, status: http.StatusBadRequest},
		{name: "malformed json", method: "POST", path: base + "/logs", body: `{`, status: http.StatusBadRequest},
		{name: "context without html", method: "POST", path: base + "/context", body: `{"url":"https://shop.test/"}`, status: http.StatusBadRequest},
		{name: "unknown strategy", method: "POST", path: base + "/context", body: `{"html":"<p>x</p>","strategy":"nope"}`, status: http.StatusBadRequest},
		{name: "brief without logs", method: "POST", path: base + "/brief", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown provider", method: "POST", path: base + "/brief", body: `{"provider":"nope"}`, status: http.StatusBadRequest},
		{name: "chat without key", method: "POST", path: base + "/brief", body: `{"provider":"chat"}`, status: http.StatusBadRequest},
		{name: "empty api key", method: "PUT", path: "/v1/settings", body: `{"apiKey":"  "}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			w := do(t, server, tt.method, tt.path, body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode(t, w)
			assert.Equal(t, false, resp["ok"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestHTTPBriefAndContext(t *testing.T) {
	server := newTestHTTP(t)
	id := createSession(t, server)
	base := "/v1/sessions/" + id

	w := do(t, server, "POST", base+"/logs", []byte(`{"level":"error","args":["Authorization: Bearer abcdefghijklmnop"]}`))
	require.Equal(t, http.StatusAccepted, w.Code)

	t.Run("context", func(t *testing.T) {
		body, _ := json.Marshal(map[string]interface{}{"html": pageHTML, "strategy": "content-root"})
		w := do(t, server, "POST", base+"/context", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		assert.Equal(t, "ai-context-markdown", resp["format"])
		assert.Equal(t, "content-root", resp["strategy"])
		assert.Contains(t, resp["text"], "Payment failed")
		assert.Equal(t, float64(1), resp["count"])
	})

	t.Run("brief", func(t *testing.T) {
		w := do(t, server, "POST", base+"/brief", []byte(`{"levelPreset":"errors","summaryStyle":"steps"}`))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		assert.Equal(t, true, resp["ok"])
		assert.Contains(t, resp["summary"], "## TL;DR")
		assert.NotContains(t, resp["summary"], "abcdefghijklmnop")
		assert.Equal(t, float64(1), resp["count"])
	})

	t.Run("condense", func(t *testing.T) {
		body, _ := json.Marshal(map[string]interface{}{"html": pageHTML})
		w := do(t, server, "POST", base+"/condense", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		assert.Contains(t, resp["summary"], "## TL;DR")
		assert.Equal(t, "https://shop.test/checkout", resp["pageUrl"])
	})

	t.Run("rate limited", func(t *testing.T) {
		w := do(t, server, "POST", base+"/brief", []byte(`{}`))
		assert.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	})
}

func TestHTTPSettings(t *testing.T) {
	server := newTestHTTP(t)

	w := do(t, server, "GET", "/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["hasApiKey"])
	assert.Equal(t, "deepseek-chat", resp["model"])

	w = do(t, server, "PUT", "/v1/settings", []byte(`{"apiKey":" sk-test-1234567890 ","model":"deepseek-reasoner"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decode(t, w)
	assert.Equal(t, true, resp["hasApiKey"])
	assert.Equal(t, "deepseek-reasoner", resp["model"])
	assert.NotContains(t, w.Body.String(), "sk-test")

	w = do(t, server, "DELETE", "/v1/settings/key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["hasApiKey"])
}

func TestHTTPDeleteSession(t *testing.T) {
	server := newTestHTTP(t)
	id := createSession(t, server)

	w := do(t, server, "DELETE", "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, "GET", "/v1/sessions/"+id+"/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(service.ErrRateLimited))
	assert.Equal(t, http.StatusBadGateway, statusFor(provider.ErrNoSummary))
}
