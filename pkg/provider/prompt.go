package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kumarabd/console-brief/pkg/ingest"
)

// Summary styles.
const (
	StyleBrief     = "brief"
	StyleSteps     = "steps"
	StyleRootCause = "rootcause"
)

// Upstream payload limits, in characters, and completion budgets.
const (
	MaxLogChars          = 14000
	MaxContextChars      = 12000
	BriefMaxTokens       = 900
	CondenseMaxTokens    = 700
	DefaultTemperature   = 0.2
	defaultStyleFallback = "Keep output concise."
)

// StyleInstruction returns the extra instruction for a summary style.
func StyleInstruction(style string) string {
	switch style {
	case StyleSteps:
		return "Focus more on actionable step-by-step fix instructions."
	case StyleRootCause:
		return "Focus more on likely root causes and confidence ranking."
	}
	return "Keep output concise with balanced causes and fixes."
}

// TrimForSending clips text to max characters and notes how much was cut.
func TrimForSending(text string, max int) string {
	n := utf8.RuneCountInString(text)
	if n <= max {
		return text
	}
	runes := []rune(text)
	return fmt.Sprintf("%s\n\n... [truncated %d chars before sending to AI]", string(runes[:max]), n-max)
}

// Prepare redacts text and then trims it. redactor may be nil.
func Prepare(redactor *ingest.Redactor, text string, max int) string {
	if redactor != nil {
		text = redactor.Redact(text)
	}
	return TrimForSending(text, max)
}

// BriefContext describes the report a brief is built from.
type BriefContext struct {
	PageURL          string `json:"pageUrl"`
	LevelPreset      string `json:"levelPreset"`
	Format           string `json:"format"`
	SelectedCount    int    `json:"selectedCount"`
	UniqueCount      int    `json:"uniqueCount"`
	SummaryStyle     string `json:"summaryStyle"`
	StyleInstruction string `json:"styleInstruction"`
}

func briefSystemPrompt() string {
	return strings.Join([]string{
		"You are an expert debugging assistant for web apps.",
		"Transform browser console logs into a concise engineering brief for an AI developer.",
		"Prioritize real errors over noisy warnings.",
		"Separate deprecations/noise from actionable failures.",
		"Be concrete and concise.",
	}, " ")
}

func briefUserPrompt(logsText string, bc BriefContext) string {
	style := bc.StyleInstruction
	if style == "" {
		style = defaultStyleFallback
	}
	return strings.Join([]string{
		"Create a concise response with this exact structure:",
		"",
		"## TL;DR",
		"- One sentence summary.",
		"",
		"## Primary Failures",
		"- Up to 4 bullets (most critical first).",
		"",
		"## Likely Root Causes",
		"- Up to 4 bullets with confidence (high/med/low).",
		"",
		"## Fix Plan",
		"1. Short numbered steps.",
		"",
		"## Verify",
		"- Up to 4 checks.",
		"",
		"## AI_DEV_INPUT_JSON",
		"```json",
		"{",
		`  "suspect_area": "...",`,
		`  "top_errors": ["..."],`,
		`  "likely_causes": ["..."],`,
		`  "next_actions": ["..."]`,
		"}",
		"```",
		"",
		"Keep output below ~350 words.",
		style,
		"",
		"Context:",
		indentJSON(bc),
		"",
		"Logs:",
		logsText,
	}, "\n")
}

// BriefRequest builds the log brief prompt. The style instruction is derived
// from bc.SummaryStyle.
func BriefRequest(redactor *ingest.Redactor, logsText string, bc BriefContext) Request {
	if bc.SummaryStyle == "" {
		bc.SummaryStyle = StyleBrief
	}
	bc.StyleInstruction = StyleInstruction(bc.SummaryStyle)
	return Request{
		MaxTokens: BriefMaxTokens,
		Messages: []Message{
			{Role: "system", Content: briefSystemPrompt()},
			{Role: "user", Content: briefUserPrompt(Prepare(redactor, logsText, MaxLogChars), bc)},
		},
	}
}

func condenseSystemPrompt() string {
	return strings.Join([]string{
		"You are an expert technical summarizer.",
		"Condense page context into a high-signal brief for another AI coding assistant.",
		"Preserve critical facts, remove noise, and keep it concise.",
	}, " ")
}

func condenseUserPrompt(pageURL, contextText string) string {
	return strings.Join([]string{
		"Return exactly this structure:",
		"",
		"## TL;DR",
		"- One sentence summary.",
		"",
		"## Key Context",
		"- 4 to 8 bullets with important facts, entities, and numbers.",
		"",
		"## What To Ignore",
		"- Up to 4 bullets for irrelevant/noisy content.",
		"",
		"## Suggested Next Prompt",
		"```text",
		"One concise prompt another AI can use with this context.",
		"```",
		"",
		"Keep output below 220 words.",
		"",
		"Page URL: " + pageURL,
		"",
		"Source Context:",
		contextText,
	}, "\n")
}

// CondenseRequest builds the page context condensing prompt.
func CondenseRequest(redactor *ingest.Redactor, pageURL, contextText string) Request {
	return Request{
		MaxTokens: CondenseMaxTokens,
		Messages: []Message{
			{Role: "system", Content: condenseSystemPrompt()},
			{Role: "user", Content: condenseUserPrompt(pageURL, Prepare(redactor, contextText, MaxContextChars))},
		},
	}
}

// indentJSON renders v with two-space indentation and no HTML escaping.
func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
