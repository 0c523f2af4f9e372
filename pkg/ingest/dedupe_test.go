package ingest

import (
	"testing"

	"github.com/kumarabd/console-brief/pkg/logtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalized(ts, level, source, message string) logtypes.NormalizedEntry {
	return logtypes.NormalizedEntry{Timestamp: ts, Level: level, Source: source, Message: message}
}

func TestDedupe(t *testing.T) {
	input := []logtypes.NormalizedEntry{
		normalized("t1", "error", "console", "boom"),
		normalized("t2", "warn", "console", "slow"),
		normalized("t3", "error", "console", "boom"),
		normalized("t4", "error", "window.onerror", "boom"),
		normalized("t5", "warn", "console", "slow"),
		normalized("t6", "error", "console", "boom"),
	}

	out := Dedupe(input)
	require.Len(t, out, 3)

	t.Run("first seen order", func(t *testing.T) {
		keys := make([]string, len(out))
		for i, e := range out {
			keys[i] = DedupeKey(e.NormalizedEntry)
		}
		assert.Equal(t, []string{
			"error|console|boom",
			"warn|console|slow",
			"error|window.onerror|boom",
		}, keys)
	})

	t.Run("merge keeps first entry fields", func(t *testing.T) {
		assert.Equal(t, "t1", out[0].Timestamp)
		assert.Equal(t, "error", out[0].Level)
		assert.Equal(t, "console", out[0].Source)
		assert.Equal(t, 3, out[0].Count)
		assert.Equal(t, "t6", out[0].LastTimestamp)

		assert.Equal(t, 2, out[1].Count)
		assert.Equal(t, "t2", out[1].Timestamp)
		assert.Equal(t, "t5", out[1].LastTimestamp)

		assert.Equal(t, 1, out[2].Count)
		assert.Equal(t, "t4", out[2].LastTimestamp)
	})
}

func TestPassThrough(t *testing.T) {
	input := []logtypes.NormalizedEntry{
		normalized("t1", "info", "console", "same"),
		normalized("t2", "info", "console", "same"),
	}

	out := PassThrough(input)
	require.Len(t, out, 2)
	for i, e := range out {
		assert.Equal(t, 1, e.Count)
		assert.Equal(t, input[i].Timestamp, e.LastTimestamp)
	}
}

func TestDedupeKeepsCompositionDistinct(t *testing.T) {
	out := Dedupe([]logtypes.NormalizedEntry{
		normalized("t1", "log", "console", "caf\u00e9"),
		normalized("t2", "log", "console", "cafe\u0301"),
		normalized("t3", "log", "console", "caf\u00e9"),
	})
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].Count)
	assert.Equal(t, 1, out[1].Count)
	assert.Equal(t, "cafe\u0301", out[1].Message)
}
