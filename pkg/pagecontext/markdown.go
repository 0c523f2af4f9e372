package pagecontext

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kumarabd/console-brief/pkg/ingest"
)

func (p *profile) Render(pc *PageContext, signals *ConsoleSignals) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	lines = append(lines, p.heading)
	add("- URL: %s", pc.Page.URL)
	title := pc.Page.Title
	if title == "" {
		title = "[none]"
	}
	add("- Title: %s", title)
	add("- Scan mode: %s", p.scanMode)
	if p.consoleSignals {
		add("- Content root: %s", pc.Content.RootSelector)
	}
	if pc.Meta.Description != "" {
		add("- Description: %s", pc.Meta.Description)
	}
	if pc.Meta.Canonical != "" {
		add("- Canonical: %s", pc.Meta.Canonical)
	}
	add("- Captured: %s", pc.Page.CapturedAt)
	add("- Coverage: %d rendered chars across %d DOM elements", pc.Content.RenderedTextChars, pc.Structure.DOMStats.ElementsScanned)
	lines = append(lines, "")

	lines = append(lines, "## Most Relevant Content")
	if len(pc.Content.RelevantLines) > 0 {
		for _, line := range pc.Content.RelevantLines {
			add("- %s", line)
		}
	} else {
		lines = append(lines, "- No high-signal lines detected; use supporting snippets below.")
	}
	lines = append(lines, "")

	if len(pc.Content.Headings) > 0 {
		lines = append(lines, "## Page Headings")
		for _, h := range pc.Content.Headings {
			add("- %s: %s", strings.ToUpper(h.Level), h.Text)
		}
		lines = append(lines, "")
	}

	lines = append(lines, "## Key Page Content")
	switch {
	case len(pc.Content.Snippets) > 0:
		for _, snippet := range pc.Content.Snippets {
			add("- %s", snippet)
		}
	case pc.Content.SummaryText != "":
		add("- %s", ingest.TruncateText(pc.Content.SummaryText, 900))
	default:
		lines = append(lines, "- No meaningful page text detected.")
	}
	lines = append(lines, "")

	if len(pc.Content.InteractiveElements) > 0 {
		lines = append(lines, "## Key UI Elements")
		for _, item := range pc.Content.InteractiveElements {
			if item.Destination != "" {
				add("- %s: %s -> %s", item.Element, item.Label, item.Destination)
			} else {
				add("- %s: %s", item.Element, item.Label)
			}
		}
		lines = append(lines, "")
	}

	if len(pc.Content.KeyLinks) > 0 {
		lines = append(lines, "## Key Links")
		for _, link := range pc.Content.KeyLinks {
			marker := "internal"
			if link.External {
				marker = "external"
			}
			add("- [%s] %s: %s", marker, link.Text, link.Href)
		}
		lines = append(lines, "")
	}

	if p.consoleSignals && signals != nil {
		lines = append(lines, "## Console Signals")
		add("- Captured: %d total, %d errors/warnings, %d unique", signals.TotalCaptured, signals.Count, signals.UniqueCount)
		if len(signals.Lines) == 0 {
			lines = append(lines, "- No console errors or warnings captured.")
		}
		for _, line := range signals.Lines {
			add("- %s", line)
		}
		lines = append(lines, "")
	}

	lines = append(lines, "")
	lines = append(lines, "## Context Stats")
	add("- Text included: %d/%d chars", pc.Content.TextCharsIncluded, pc.Content.TextCharsOriginal)
	add("- DOM links: %d", pc.Structure.DOMStats.Links)
	add("- DOM headings: %d", pc.Structure.DOMStats.Headings)
	add("- DOM forms: %d", pc.Structure.DOMStats.Forms)

	return clipDocument(strings.TrimSpace(strings.Join(lines, "\n")), p.outputChars)
}

// clipDocument bounds the rendered document and notes how much was cut.
func clipDocument(raw string, limit int) string {
	total := utf8.RuneCountInString(raw)
	if total <= limit {
		return raw
	}
	cut := raw
	i := 0
	for pos := range raw {
		if i == limit {
			cut = raw[:pos]
			break
		}
		i++
	}
	return fmt.Sprintf("%s\n\n... [truncated %d chars for prompt efficiency]", cut, total-limit)
}
