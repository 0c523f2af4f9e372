package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kumarabd/console-brief/pkg/logtypes"
)

const noLogsMessage = "No console logs captured yet."

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// escapeXML also swaps characters XML 1.0 does not allow, such as the ESC
// of ANSI colour codes, for U+FFFD.
func escapeXML(s string) string {
	return xmlEscaper.Replace(strings.Map(xmlChar, s))
}

func xmlChar(r rune) rune {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return r
	case r < 0x20, r >= 0xD800 && r <= 0xDFFF, r == 0xFFFE, r == 0xFFFF:
		return utf8.RuneError
	}
	return r
}

func capturedAt(now time.Time) string {
	return now.UTC().Format(logtypes.TimestampLayout)
}

// renderAI writes the AI_LOGS_V1 form: a key=value header and one
// pipe-delimited line per entry.
func renderAI(rep *Report, now time.Time) string {
	levels, _ := json.Marshal(rep.LevelCounts)

	lines := make([]string, 0, 7+len(rep.Entries))
	lines = append(lines,
		"AI_LOGS_V1",
		"url="+rep.PageURL,
		"captured="+capturedAt(now),
		"preset="+rep.LevelPreset,
		"total="+strconv.Itoa(rep.TotalCount),
		"unique="+strconv.Itoa(rep.UniqueCount),
		"levels="+string(levels),
	)
	for i, e := range rep.Entries {
		lines = append(lines, fmt.Sprintf("%d|%s|%s|%d|%s|%s",
			i+1, e.Timestamp, e.Level, e.Count, e.Source, strings.ReplaceAll(e.Message, "\n", `\n`)))
	}
	return strings.Join(lines, "\n")
}

func renderXML(rep *Report, now time.Time) string {
	rows := make([]string, len(rep.Entries))
	for i, e := range rep.Entries {
		rows[i] = fmt.Sprintf(`<e i="%d" t="%s" l="%s" s="%s" c="%d">%s</e>`,
			i+1, escapeXML(e.Timestamp), escapeXML(e.Level), escapeXML(e.Source), e.Count, escapeXML(e.Message))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<logs url="%s" captured="%s" preset="%s" total="%d" unique="%d">`,
		escapeXML(rep.PageURL), escapeXML(capturedAt(now)), escapeXML(rep.LevelPreset), rep.TotalCount, rep.UniqueCount)
	b.WriteString("\n")
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n</logs>")
	return b.String()
}

func renderPlain(rep *Report, now time.Time) string {
	if rep.TotalCount == 0 {
		return strings.Join([]string{
			"URL: " + rep.PageURL,
			"Captured console logs: 0",
			"",
			noLogsMessage,
		}, "\n")
	}

	lines := []string{
		"URL: " + rep.PageURL,
		"Captured at: " + capturedAt(now),
		"Captured console logs: " + strconv.Itoa(rep.TotalCount),
		"Unique after dedupe: " + strconv.Itoa(rep.UniqueCount),
		"",
	}
	for i, e := range rep.Entries {
		source := ""
		if e.Source != "" {
			source = " [" + e.Source + "]"
		}
		repeat := ""
		if e.Count > 1 {
			repeat = fmt.Sprintf(" x%d", e.Count)
		}
		lines = append(lines, fmt.Sprintf("%d. %s [%s]%s%s %s", i+1, e.Timestamp, e.Level, source, repeat, e.Message))
	}
	return strings.Join(lines, "\n")
}
