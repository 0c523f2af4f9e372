package ingest

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/grafana/loki/pkg/logproto"
	"github.com/kumarabd/console-brief/pkg/logtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLokiLabels(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		expected map[string]string
	}{
		{
			name:     "simple",
			selector: `{level="error", source="console"}`,
			expected: map[string]string{"level": "error", "source": "console"},
		},
		{
			name:     "comma and escaped quote in value",
			selector: `{url="https://app.test/?a=1,b=2", msg="say \"hi\""}`,
			expected: map[string]string{"url": "https://app.test/?a=1,b=2", "msg": `say "hi"`},
		},
		{
			name:     "unquoted value",
			selector: `{level=warn,source=app}`,
			expected: map[string]string{"level": "warn", "source": "app"},
		},
		{
			name:     "empty",
			selector: `{}`,
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLokiLabels(tt.selector))
		})
	}
}

func TestConvertLoki(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	req := &logproto.PushRequest{
		Streams: []logproto.Stream{
			{
				Labels: `{severity="warning", url="https://app.test/"}`,
				Entries: []logproto.Entry{
					{Timestamp: ts, Line: "Slow response"},
					{Timestamp: ts.Add(time.Second), Line: `["Fetch failed: %s", "/api/x"]`},
				},
			},
			{
				Labels:  `{}`,
				Entries: []logproto.Entry{{Line: "[not json"}},
			},
		},
	}

	entries := ConvertLoki(req)
	require.Len(t, entries, 3)

	assert.Equal(t, logtypes.LevelWarn, entries[0].Level)
	assert.Equal(t, "loki", entries[0].Source)
	assert.Equal(t, "https://app.test/", entries[0].URL)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", entries[0].Timestamp)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"Slow response"`)}, entries[0].Args)

	require.Len(t, entries[1].Args, 2)
	assert.Equal(t, json.RawMessage(`"/api/x"`), entries[1].Args[1])

	assert.Equal(t, logtypes.LevelLog, entries[2].Level)
	assert.Equal(t, "", entries[2].Timestamp)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"[not json"`)}, entries[2].Args)
}

func TestDecodeLoki(t *testing.T) {
	handler := newTestHandler(t, nil)

	body := `{"streams":[{"labels":"{level=\"error\",source=\"window.onerror\"}","entries":[{"ts":"2024-05-01T10:00:00Z","line":"boom"}]}]}`
	entries, err := handler.DecodeLoki(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, logtypes.LevelError, entries[0].Level)
	assert.Equal(t, "window.onerror", entries[0].Source)

	_, err = handler.DecodeLoki(strings.NewReader(`{"streams":[]}`))
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = handler.DecodeLoki(strings.NewReader(`{`))
	assert.Error(t, err)
}
