package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EmptyMessage stands in for a console call that rendered to nothing.
const EmptyMessage = "[empty log]"

const stackFramePrefix = "at "

var whitespacePattern = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// OptimizeOptions bounds the size of one optimized message.
type OptimizeOptions struct {
	MaxCharsPerEntry int
	MaxStackLines    int
}

// NormalizeWhitespace collapses every whitespace run, newlines included, to a
// single space and trims the ends. Other characters are left as they are.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// CompressStack keeps the lines before the first stack frame plus at most
// maxStackLines frames, joined with " | " so the message stays on one line.
// A message of one line or less is returned unchanged.
func CompressStack(text string, maxStackLines int) string {
	if maxStackLines < 0 {
		maxStackLines = 0
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRightFunc(line, isSpace)
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) <= 1 {
		return text
	}

	stackStart := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeftFunc(line, isSpace), stackFramePrefix) {
			stackStart = i
			break
		}
	}
	if stackStart == -1 {
		return strings.Join(lines, " | ")
	}

	head := lines[:stackStart]
	stack := lines[stackStart:]
	kept := stack
	if len(kept) > maxStackLines {
		kept = stack[:maxStackLines]
	}
	hidden := len(stack) - len(kept)

	compressed := make([]string, 0, len(head)+len(kept)+1)
	compressed = append(compressed, head...)
	compressed = append(compressed, kept...)
	if hidden > 0 {
		compressed = append(compressed, fmt.Sprintf("... +%d stack frames", hidden))
	}
	return strings.Join(compressed, " | ")
}

// TruncateText clips s to limit characters and appends a trailer naming how
// many were hidden. Lengths are counted in runes.
func TruncateText(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	total := utf8.RuneCountInString(s)
	if total <= limit {
		return s
	}
	return fmt.Sprintf("%s ... [truncated %d chars]", runePrefix(s, limit), total-limit)
}

// OptimizeMessage compresses stacks, collapses whitespace and clips, in that order.
func OptimizeMessage(message string, opts OptimizeOptions) string {
	text := message
	if text == "" {
		text = EmptyMessage
	}
	text = CompressStack(text, opts.MaxStackLines)
	text = NormalizeWhitespace(text)
	text = TruncateText(text, opts.MaxCharsPerEntry)
	if text == "" {
		return EmptyMessage
	}
	return text
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// isSpace matches the characters String.prototype.trim strips.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
