package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/format"
	"github.com/kumarabd/console-brief/pkg/logtypes"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageURL = "https://app.test/checkout"

func ptr[T any](v T) *T { return &v }

func fixedBuilder(metric *metrics.Handler) *Builder {
	return NewBuilder(metric).WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	})
}

func bufferOf(entries ...logtypes.LogEntry) *capture.Buffer {
	buf := capture.NewBuffer(capture.DefaultCapacity)
	buf.AppendAll(entries)
	return buf
}

func logEntry(ts, level string, args ...any) logtypes.LogEntry {
	return logtypes.LogEntry{
		Timestamp: ts,
		Level:     level,
		Source:    logtypes.DefaultSource,
		Args:      format.Args(args...),
	}
}

func TestRequestOptions(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Options
	}{
		{
			name: "defaults",
			req:  Request{},
			want: Options{Format: FormatAI, LevelPreset: PresetFull, OptimizeForAI: true, MaxCharsPerEntry: 700, MaxStackLines: 6},
		},
		{
			name: "unknown values fall back",
			req:  Request{Format: "yaml", LevelPreset: "fatal"},
			want: Options{Format: FormatAI, LevelPreset: PresetFull, OptimizeForAI: true, MaxCharsPerEntry: 700, MaxStackLines: 6},
		},
		{
			name: "explicit values",
			req: Request{
				Format:           FormatXML,
				LevelPreset:      PresetWarnings,
				OptimizeForAI:    ptr(false),
				MaxEntries:       ptr(50),
				MaxCharsPerEntry: ptr(120),
				MaxStackLines:    ptr(2),
			},
			want: Options{Format: FormatXML, LevelPreset: PresetWarnings, OptimizeForAI: false, MaxEntries: 50, MaxCharsPerEntry: 120, MaxStackLines: 2},
		},
		{
			name: "max entries clamped low",
			req:  Request{MaxEntries: ptr(0)},
			want: Options{Format: FormatAI, LevelPreset: PresetFull, OptimizeForAI: true, MaxEntries: 1, MaxCharsPerEntry: 700, MaxStackLines: 6},
		},
		{
			name: "max entries clamped high",
			req:  Request{MaxEntries: ptr(99999)},
			want: Options{Format: FormatAI, LevelPreset: PresetFull, OptimizeForAI: true, MaxEntries: 5000, MaxCharsPerEntry: 700, MaxStackLines: 6},
		},
		{
			name: "invalid max chars uses default",
			req:  Request{MaxCharsPerEntry: ptr(-5)},
			want: Options{Format: FormatAI, LevelPreset: PresetFull, OptimizeForAI: true, MaxCharsPerEntry: 700, MaxStackLines: 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Options())
		})
	}
}

func TestRequestUnmarshalJSON(t *testing.T) {
	defaults := Options{Format: FormatAI, LevelPreset: PresetFull, OptimizeForAI: true, MaxCharsPerEntry: 700, MaxStackLines: 6}
	with := func(fn func(o *Options)) Options {
		o := defaults
		fn(&o)
		return o
	}

	tests := []struct {
		name string
		body string
		want Options
	}{
		{name: "empty object", body: `{}`, want: defaults},
		{name: "numeric format", body: `{"format":5}`, want: defaults},
		{name: "array format", body: `{"format":["x"],"levelPreset":{"a":1}}`, want: defaults},
		{name: "null fields", body: `{"format":null,"optimizeForAi":null,"maxEntries":null}`, want: defaults},
		{name: "string format", body: `{"format":"plain","levelPreset":"errors"}`, want: with(func(o *Options) {
			o.Format = FormatPlain
			o.LevelPreset = PresetErrors
		})},
		{name: "fractional max entries floored", body: `{"maxEntries":2.5}`, want: with(func(o *Options) { o.MaxEntries = 2 })},
		{name: "numeric string", body: `{"maxEntries":"10","maxStackLines":" 3 "}`, want: with(func(o *Options) {
			o.MaxEntries = 10
			o.MaxStackLines = 3
		})},
		{name: "non-numeric string ignored", body: `{"maxEntries":"lots","maxCharsPerEntry":true}`, want: defaults},
		{name: "huge number clamped", body: `{"maxEntries":1e300}`, want: with(func(o *Options) { o.MaxEntries = 5000 })},
		{name: "optimize only disabled by false", body: `{"optimizeForAi":"false"}`, want: defaults},
		{name: "optimize false", body: `{"optimizeForAi":false}`, want: with(func(o *Options) { o.OptimizeForAI = false })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, req.Options())
		})
	}

	var req Request
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &req))
}

func TestParseQuery(t *testing.T) {
	values, err := url.ParseQuery("format=xml&levelPreset=warnings&maxEntries=7.9&maxStackLines=x&optimizeForAi=false")
	require.NoError(t, err)

	assert.Equal(t, Options{
		Format:           FormatXML,
		LevelPreset:      PresetWarnings,
		OptimizeForAI:    false,
		MaxEntries:       7,
		MaxCharsPerEntry: 700,
		MaxStackLines:    6,
	}, ParseQuery(values).Options())
	assert.Equal(t, Request{}, ParseQuery(url.Values{}))
}

func TestBuildEndToEndErrorsPreset(t *testing.T) {
	buf := bufferOf(
		logEntry("2024-05-01T10:00:00.000Z", "error", "Fetch failed: %s", "/api/x"),
		logEntry("2024-05-01T10:00:01.000Z", "error", "Fetch failed: %s", "/api/x"),
		logEntry("2024-05-01T10:00:02.000Z", "warn", "Slow response"),
	)

	rep := fixedBuilder(nil).Build(buf, pageURL, Request{
		Format:      FormatAI,
		LevelPreset: PresetErrors,
		MaxEntries:  ptr(10),
	}.Options())

	assert.Equal(t, 3, rep.TotalCaptured)
	assert.Equal(t, 2, rep.TotalCount)
	assert.Equal(t, 1, rep.UniqueCount)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, 2, rep.Entries[0].Count)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", rep.Entries[0].Timestamp)
	assert.Equal(t, "2024-05-01T10:00:01.000Z", rep.Entries[0].LastTimestamp)
	assert.NotContains(t, rep.Text, "Slow response")

	want := strings.Join([]string{
		"AI_LOGS_V1",
		"url=" + pageURL,
		"captured=2024-05-01T12:00:00.000Z",
		"preset=errors",
		"total=2",
		"unique=1",
		`levels={"error":2}`,
		"1|2024-05-01T10:00:00.000Z|error|2|console|Fetch failed: /api/x",
	}, "\n")
	assert.Equal(t, want, rep.Text)
	assert.Equal(t, EstimateTokens(want), rep.EstimatedTokens)
}

func TestBuildLevelPresets(t *testing.T) {
	buf := bufferOf(
		logEntry("t1", "log", "a"),
		logEntry("t2", "error", "b"),
		logEntry("t3", "warn", "c"),
		logEntry("t4", "info", "d"),
		logEntry("t5", "debug", "e"),
		logEntry("t6", "error", "f"),
	)

	tests := []struct {
		preset  string
		allowed map[string]bool
		count   int
	}{
		{preset: PresetErrors, allowed: map[string]bool{"error": true}, count: 2},
		{preset: PresetWarnings, allowed: map[string]bool{"error": true, "warn": true}, count: 3},
		{preset: PresetFull, allowed: map[string]bool{"log": true, "error": true, "warn": true, "info": true, "debug": true}, count: 6},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			rep := fixedBuilder(nil).Build(buf, pageURL, Request{LevelPreset: tt.preset}.Options())
			assert.Equal(t, tt.count, rep.TotalCount)
			for _, e := range rep.Entries {
				assert.True(t, tt.allowed[e.Level], "unexpected level %s", e.Level)
			}
		})
	}
}

func TestBuildSelectsMostRecent(t *testing.T) {
	buf := capture.NewBuffer(capture.DefaultCapacity)
	for i := 0; i < 5; i++ {
		buf.Append(logEntry(fmt.Sprintf("t%d", i), "log", fmt.Sprintf("line %d", i)))
	}

	rep := fixedBuilder(nil).Build(buf, pageURL, Request{MaxEntries: ptr(2)}.Options())
	assert.Equal(t, 5, rep.TotalCaptured)
	require.Len(t, rep.Entries, 2)
	assert.Equal(t, "line 3", rep.Entries[0].Message)
	assert.Equal(t, "line 4", rep.Entries[1].Message)
}

func TestBuildAIEscapesNewlines(t *testing.T) {
	buf := bufferOf(logEntry("t1", "error", "first\nsecond"))

	rep := fixedBuilder(nil).Build(buf, pageURL, Request{OptimizeForAI: ptr(false)}.Options())
	assert.Contains(t, rep.Text, `1|t1|error|1|console|first\nsecond`)
}

func TestBuildAICompressesStacks(t *testing.T) {
	stack := "TypeError: x is undefined\n" + strings.Repeat("    at fn (app.js:1:1)\n", 10)
	buf := bufferOf(logEntry("t1", "error", stack))

	rep := fixedBuilder(nil).Build(buf, pageURL, Request{MaxStackLines: ptr(2)}.Options())
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, "TypeError: x is undefined | at fn (app.js:1:1) | at fn (app.js:1:1) | ... +8 stack frames", rep.Entries[0].Message)
}

func TestBuildXMLRoundTrip(t *testing.T) {
	message := `a < b && c > d "quoted" 'single'`
	buf := bufferOf(
		logEntry("2024-05-01T10:00:00.000Z", "error", message),
		logEntry("2024-05-01T10:00:01.000Z", "warn", "plain"),
	)

	rep := fixedBuilder(nil).Build(buf, pageURL+"?a=1&b=2", Request{Format: FormatXML}.Options())

	var doc struct {
		XMLName  xml.Name `xml:"logs"`
		URL      string   `xml:"url,attr"`
		Captured string   `xml:"captured,attr"`
		Preset   string   `xml:"preset,attr"`
		Total    int      `xml:"total,attr"`
		Unique   int      `xml:"unique,attr"`
		Entries  []struct {
			Index  int    `xml:"i,attr"`
			Time   string `xml:"t,attr"`
			Level  string `xml:"l,attr"`
			Source string `xml:"s,attr"`
			Count  int    `xml:"c,attr"`
			Text   string `xml:",chardata"`
		} `xml:"e"`
	}
	require.NoError(t, xml.Unmarshal([]byte(rep.Text), &doc))

	assert.Equal(t, pageURL+"?a=1&b=2", doc.URL)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", doc.Captured)
	assert.Equal(t, PresetFull, doc.Preset)
	assert.Equal(t, 2, doc.Total)
	assert.Equal(t, 2, doc.Unique)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, 1, doc.Entries[0].Index)
	assert.Equal(t, "error", doc.Entries[0].Level)
	assert.Equal(t, "console", doc.Entries[0].Source)
	assert.Equal(t, message, doc.Entries[0].Text)
	assert.Equal(t, "plain", doc.Entries[1].Text)
}

func TestBuildXMLControlCharacters(t *testing.T) {
	buf := bufferOf(logEntry("2024-05-01T10:00:00.000Z", "error", "\x1b[31mred\x1b[0m\x00\x07 text"))

	for _, optimize := range []bool{true, false} {
		t.Run(fmt.Sprintf("optimize=%v", optimize), func(t *testing.T) {
			rep := fixedBuilder(nil).Build(buf, pageURL, Request{Format: FormatXML, OptimizeForAI: ptr(optimize)}.Options())

			var doc struct {
				Entries []struct {
					Text string `xml:",chardata"`
				} `xml:"e"`
			}
			require.NoError(t, xml.Unmarshal([]byte(rep.Text), &doc), rep.Text)
			require.Len(t, doc.Entries, 1)
			assert.NotContains(t, doc.Entries[0].Text, "\x1b")
			assert.Contains(t, doc.Entries[0].Text, "\uFFFD[31mred")
		})
	}
}

func TestBuildPlain(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		rep := fixedBuilder(nil).Build(bufferOf(), pageURL, Request{Format: FormatPlain}.Options())
		assert.Equal(t, "URL: "+pageURL+"\nCaptured console logs: 0\n\nNo console logs captured yet.", rep.Text)
		assert.Equal(t, 0, rep.UniqueCount)
	})

	t.Run("repeats without optimization stay separate", func(t *testing.T) {
		buf := bufferOf(
			logEntry("t1", "info", "ready"),
			logEntry("t2", "info", "ready"),
		)
		rep := fixedBuilder(nil).Build(buf, pageURL, Request{Format: FormatPlain, OptimizeForAI: ptr(false)}.Options())
		want := strings.Join([]string{
			"URL: " + pageURL,
			"Captured at: 2024-05-01T12:00:00.000Z",
			"Captured console logs: 2",
			"Unique after dedupe: 2",
			"",
			"1. t1 [info] [console] ready",
			"2. t2 [info] [console] ready",
		}, "\n")
		assert.Equal(t, want, rep.Text)
	})

	t.Run("repeats with optimization collapse", func(t *testing.T) {
		buf := bufferOf(
			logEntry("t1", "info", "ready"),
			logEntry("t2", "info", "ready"),
		)
		rep := fixedBuilder(nil).Build(buf, pageURL, Request{Format: FormatPlain}.Options())
		assert.True(t, strings.HasSuffix(rep.Text, "1. t1 [info] [console] x2 ready"))
	})

	t.Run("objects render pretty", func(t *testing.T) {
		buf := bufferOf(logEntry("t1", "log", "state", map[string]int{"a": 1}))
		rep := fixedBuilder(nil).Build(buf, pageURL, Request{Format: FormatPlain, OptimizeForAI: ptr(false)}.Options())
		assert.Contains(t, rep.Text, "1. t1 [log] [console] state {\n  \"a\": 1\n}")
	})
}

func TestBuildFillsMissingFields(t *testing.T) {
	buf := bufferOf(logtypes.LogEntry{Args: format.Args("")})

	rep := fixedBuilder(nil).Build(buf, pageURL, Request{}.Options())
	require.Len(t, rep.Entries, 1)
	e := rep.Entries[0]
	assert.Equal(t, "2024-05-01T12:00:00.000Z", e.Timestamp)
	assert.Equal(t, logtypes.LevelLog, e.Level)
	assert.Equal(t, logtypes.DefaultSource, e.Source)
	assert.Equal(t, "[empty log]", e.Message)
}

func TestLevelCountsOrder(t *testing.T) {
	buf := bufferOf(
		logEntry("t1", "warn", "w"),
		logEntry("t2", "error", "e"),
		logEntry("t3", "warn", "w"),
		logEntry("t4", "log", "l"),
	)

	rep := fixedBuilder(nil).Build(buf, pageURL, Request{}.Options())
	assert.Contains(t, rep.Text, `levels={"warn":2,"error":1,"log":1}`)
	assert.Equal(t, []string{"warn", "error", "log"}, rep.LevelCounts.Keys())
	assert.Equal(t, 2, rep.LevelCounts.Get("warn"))
}

func TestBuildRecordsMetrics(t *testing.T) {
	metric, err := metrics.New("test")
	require.NoError(t, err)

	fixedBuilder(metric).Build(bufferOf(logEntry("t1", "error", "boom")), pageURL, Request{Format: FormatXML, LevelPreset: PresetErrors}.Options())
	assert.Equal(t, float64(1), testutil.ToFloat64(metric.ReportsBuiltTotal.WithLabelValues(FormatXML, PresetErrors)))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"日本語です", 2},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}
