package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarabd/console-brief/pkg/provider"
)

const captureNDJSON = `{"timestamp":"2024-05-01T10:00:00.000Z","level":"error","source":"console","args":["TypeError: x is undefined"]}
{"timestamp":"2024-05-01T10:00:01.000Z","level":"error","source":"console","args":["TypeError: x is undefined"]}
{"timestamp":"2024-05-01T10:00:02.000Z","level":"log","source":"console","args":["ready",{"items":3}]}
`

const pageHTML = `<html><head><title>Orders</title></head><body><nav>Home</nav>
<main><h1>Orders</h1><p>The orders table failed to load because the API returned an error.</p></main></body></html>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestReportCmd(t *testing.T) {
	path := writeFile(t, "capture.ndjson", captureNDJSON)

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{
			name:     "ai errors",
			args:     []string{"report", "--file", path, "--preset", "errors", "--url", "https://shop.test/"},
			contains: []string{"AI_LOGS_V1", "|error|2|console|TypeError: x is undefined"},
		},
		{
			name:     "xml full",
			args:     []string{"report", "--file", path, "--format", "xml"},
			contains: []string{"<", "ready"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, "", tt.args...)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}

	t.Run("stdin", func(t *testing.T) {
		out, stderr, err := run(t, captureNDJSON, "report", "--max-entries", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "ready")
		assert.NotContains(t, out, "TypeError")
		assert.Contains(t, stderr, "1 of 3 entries")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := run(t, "", "report", "--file", filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}

func TestContextCmd(t *testing.T) {
	html := writeFile(t, "page.html", pageHTML)
	logs := writeFile(t, "capture.ndjson", captureNDJSON)

	out, _, err := run(t, "", "context", "--file", html, "--url", "https://shop.test/orders",
		"--strategy", "content-root", "--logs", logs)
	require.NoError(t, err)
	assert.Contains(t, out, "# Page Context (Relevant From Main Content)")
	assert.Contains(t, out, "## Console Signals")

	out, _, err = run(t, pageHTML, "context", "--json")
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ai-context-markdown", result["format"])
	assert.Equal(t, "full-page", result["strategy"])
}

func TestBriefCmd(t *testing.T) {
	path := writeFile(t, "capture.ndjson", captureNDJSON)

	t.Run("echo provider", func(t *testing.T) {
		t.Setenv("BRIEF_PROVIDER", provider.NameEcho)
		out, _, err := run(t, "", "brief", "--file", path)
		require.NoError(t, err)
		assert.Contains(t, out, "## TL;DR")
	})

	t.Run("chat without key", func(t *testing.T) {
		t.Setenv("BRIEF_PROVIDER", provider.NameChat)
		t.Setenv("BRIEF_API_KEY", "")
		_, _, err := run(t, "", "brief", "--file", path)
		assert.ErrorIs(t, err, provider.ErrMissingAPIKey)
	})

	t.Run("chat endpoint", func(t *testing.T) {
		var got map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer sk-test-0123456789", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"deepseek-reasoner","choices":[{"message":{"content":"## TL;DR\n- x is undefined"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
		}))
		defer srv.Close()

		t.Setenv("BRIEF_PROVIDER", provider.NameChat)
		t.Setenv("BRIEF_API_KEY", "sk-test-0123456789")
		t.Setenv("BRIEF_ENDPOINT", srv.URL)

		out, stderr, err := run(t, "", "brief", "--file", path, "--model", "deepseek-reasoner", "--style", "rootcause")
		require.NoError(t, err)
		assert.Contains(t, out, "x is undefined")
		assert.Contains(t, stderr, "10 prompt + 5 completion tokens")
		assert.Equal(t, "deepseek-reasoner", got["model"])
	})
}

func TestRedactCmd(t *testing.T) {
	out, stderr, err := run(t, "Authorization: Bearer abc.def-123 and password=hunter2", "redact")
	require.NoError(t, err)
	assert.Equal(t, "Authorization: Bearer [REDACTED] and password=[REDACTED]", out)
	assert.Contains(t, stderr, "redacted 2 matches")
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BRIEF_MODEL", "deepseek-reasoner")
	t.Setenv("BRIEF_TIMEOUT", "3s")
	cfg, err := loadEnv()
	require.NoError(t, err)
	assert.Equal(t, "deepseek-reasoner", cfg.Model)
	assert.Equal(t, "3s", cfg.Timeout.String())

	t.Setenv("BRIEF_TIMEOUT", "soon")
	_, err = loadEnv()
	assert.Error(t, err)
}
