package ingest

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCompressStack(t *testing.T) {
	frames := make([]string, 10)
	for i := range frames {
		frames[i] = fmt.Sprintf("    at fn%d (app.js:%d:1)", i, i)
	}

	tests := []struct {
		name     string
		input    string
		maxLines int
		expected string
	}{
		{
			name:     "head and ten frames keep six",
			input:    "Error: boom\n" + strings.Join(frames, "\n"),
			maxLines: 6,
			expected: "Error: boom | " + strings.Join(frames[:6], " | ") + " | ... +4 stack frames",
		},
		{
			name:     "no frames hidden",
			input:    "Error: boom\n" + strings.Join(frames[:2], "\n"),
			maxLines: 6,
			expected: "Error: boom | " + strings.Join(frames[:2], " | "),
		},
		{
			name:     "no stack marker joins lines",
			input:    "first\n\n  second  \nthird",
			maxLines: 6,
			expected: "first |   second | third",
		},
		{
			name:     "single line unchanged",
			input:    "  one line  ",
			maxLines: 6,
			expected: "  one line  ",
		},
		{
			name:     "zero frames kept",
			input:    "Error\n  at a\n  at b",
			maxLines: 0,
			expected: "Error | ... +2 stack frames",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CompressStack(tt.input, tt.maxLines))
		})
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
	}{
		{name: "ascii", input: "abcdefghij", limit: 4},
		{name: "runes", input: "héllo wörld ünïcode", limit: 3},
		{name: "zero limit", input: "abc", limit: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := utf8.RuneCountInString(tt.input)
			trailer := fmt.Sprintf(" ... [truncated %d chars]", total-tt.limit)

			got := TruncateText(tt.input, tt.limit)
			assert.True(t, strings.HasSuffix(got, trailer))
			assert.Equal(t, tt.limit+utf8.RuneCountInString(trailer), utf8.RuneCountInString(got))
		})
	}

	t.Run("within limit unchanged", func(t *testing.T) {
		assert.Equal(t, "short", TruncateText("short", 5))
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a \n\t b c  "))
	assert.Equal(t, "", NormalizeWhitespace(" \n "))
	assert.Equal(t, "x y", NormalizeWhitespace("\uFEFFx\u00a0y"))
	assert.Equal(t, "cafe\u0301 open", NormalizeWhitespace(" cafe\u0301\nopen "))
}

func TestOptimizeMessage(t *testing.T) {
	opts := OptimizeOptions{MaxCharsPerEntry: 20, MaxStackLines: 1}

	assert.Equal(t, EmptyMessage, OptimizeMessage("", opts))
	assert.Equal(t, EmptyMessage, OptimizeMessage("   ", opts))
	assert.Equal(t, "E | at a | ... +1 stack frames", OptimizeMessage("E\n   at a\n   at b", OptimizeOptions{MaxCharsPerEntry: 700, MaxStackLines: 1}))
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaa ... [truncated 10 chars]", OptimizeMessage(strings.Repeat("a", 30), opts))
}
