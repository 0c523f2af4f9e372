package pagecontext

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/kumarabd/console-brief/pkg/ingest"
)

const (
	maxHeadings       = 20
	maxInteractives   = 36
	maxSnippets       = 8
	minSnippetChars   = 45
	minRelevantChars  = 25
	primacyLines      = 120
	interactiveSelect = `a[href], button, input, select, textarea, [role="button"], [role="link"], [contenteditable="true"]`
)

var (
	keywordPattern = regexp.MustCompile(`(?i)(error|warning|failed|failure|critical|issue|problem|bug|exception|fix|payment|checkout|login|auth|order|total|price|api|token|required|important)`)
	navNoise       = regexp.MustCompile(`(?i)^(home|menu|search|about|contact|privacy|terms|cookies?)$`)
	digitPattern   = regexp.MustCompile(`[0-9]`)
	symbolPattern  = regexp.MustCompile(`[$£€%]`)
)

func metaContent(doc *goquery.Document, selector string) string {
	v, ok := doc.Find(selector).First().Attr("content")
	if !ok {
		return ""
	}
	return ingest.NormalizeWhitespace(v)
}

func collectMeta(doc *goquery.Document, res resolver) Meta {
	canonical, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	return Meta{
		Description:   ingest.TruncateText(metaContent(doc, `meta[name="description"]`), 220),
		Keywords:      ingest.TruncateText(metaContent(doc, `meta[name="keywords"]`), 220),
		Canonical:     ingest.TruncateText(res.resolve(canonical), 240),
		OGTitle:       ingest.TruncateText(metaContent(doc, `meta[property="og:title"]`), 220),
		OGDescription: ingest.TruncateText(metaContent(doc, `meta[property="og:description"]`), 220),
	}
}

// interactiveLabel is the first non-empty of text, aria-label, title,
// placeholder, name and id.
func interactiveLabel(s *goquery.Selection) string {
	if text := textOf(s); text != "" {
		return text
	}
	for _, key := range []string{"aria-label", "title", "placeholder", "name", "id"} {
		if v, ok := s.Attr(key); ok {
			if v = ingest.NormalizeWhitespace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func collectHeadings(root *goquery.Selection) []Heading {
	headings := []Heading{}
	seen := make(map[string]bool)
	root.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !visibleSelection(s) {
			return true
		}
		text := textOf(s)
		if text == "" || seen[text] {
			return true
		}
		seen[text] = true
		headings = append(headings, Heading{
			Level: goquery.NodeName(s),
			Text:  ingest.TruncateText(text, 240),
		})
		return len(headings) < maxHeadings
	})
	return headings
}

func collectLinks(root *goquery.Selection, res resolver, limit int) []Link {
	links := []Link{}
	seen := make(map[string]bool)
	root.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !visibleSelection(s) {
			return true
		}
		raw, _ := s.Attr("href")
		href := res.resolve(raw)
		if skipLink(raw, href, res.page) {
			return true
		}
		label := ingest.TruncateText(interactiveLabel(s), 140)
		if label == "" || seen[href] {
			return true
		}
		seen[href] = true
		links = append(links, Link{
			Text:     label,
			Href:     ingest.TruncateText(href, 240),
			External: res.external(href),
		})
		return len(links) < limit
	})
	return links
}

func skipLink(raw, href, page string) bool {
	raw = strings.TrimSpace(raw)
	switch {
	case href == "":
		return true
	case strings.HasPrefix(strings.ToLower(href), "javascript:"):
		return true
	case strings.HasSuffix(href, "#"), strings.HasSuffix(raw, "#"), strings.HasPrefix(raw, "#"):
		return true
	case page != "" && strings.HasPrefix(href, page+"#"):
		return true
	}
	return false
}

func collectInteractives(root *goquery.Selection, res resolver) []Interactive {
	items := []Interactive{}
	seen := make(map[string]bool)
	root.Find(interactiveSelect).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !visibleSelection(s) {
			return true
		}
		label := ingest.TruncateText(interactiveLabel(s), 140)
		if label == "" {
			return true
		}
		tag := goquery.NodeName(s)
		typ := ingest.NormalizeWhitespace(s.AttrOr("type", ""))
		var destination string
		if tag == "a" {
			destination = res.resolve(s.AttrOr("href", ""))
		} else {
			destination = ingest.NormalizeWhitespace(s.AttrOr("action", ""))
		}

		key := tag + "|" + label + "|" + destination
		if seen[key] {
			return true
		}
		seen[key] = true

		element := tag
		if typ != "" {
			element = tag + "[" + typ + "]"
		}
		if destination != "" {
			destination = ingest.TruncateText(destination, 220)
		}
		items = append(items, Interactive{Element: element, Label: label, Destination: destination})
		return len(items) < maxInteractives
	})
	return items
}

func collectStats(doc *goquery.Document) DOMStats {
	images := doc.Find("img")
	withoutAlt := images.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return ingest.NormalizeWhitespace(s.AttrOr("alt", "")) == ""
	})
	return DOMStats{
		ElementsScanned:  doc.Find("*").Length(),
		Links:            doc.Find("a[href]").Length(),
		Headings:         doc.Find("h1, h2, h3").Length(),
		Paragraphs:       doc.Find("p").Length(),
		Lists:            doc.Find("ul, ol").Length(),
		Tables:           doc.Find("table").Length(),
		Forms:            doc.Find("form").Length(),
		Images:           images.Length(),
		ImagesWithoutAlt: withoutAlt.Length(),
	}
}

// scoreLine rates a rendered line for relevance.
func scoreLine(line string, index int) int {
	score := 0
	n := utf8.RuneCountInString(line)
	if n >= 35 && n <= 220 {
		score += 2
	} else if n > 220 {
		score++
	}
	if keywordPattern.MatchString(line) {
		score += 3
	}
	if digitPattern.MatchString(line) {
		score++
	}
	if symbolPattern.MatchString(line) {
		score++
	}
	if index < primacyLines {
		score++
	}
	if navNoise.MatchString(line) {
		score -= 3
	}
	return score
}

type scoredLine struct {
	line  string
	index int
	score int
}

// rankLines keeps the top limit positively scored lines, highest score first
// and earlier lines first on ties. Without any scored line it falls back to
// the first limit lines.
func rankLines(lines []string, limit int) []string {
	ranked := make([]scoredLine, 0, len(lines))
	for i, line := range lines {
		score := scoreLine(line, i)
		if utf8.RuneCountInString(line) < minRelevantChars || score <= 0 {
			continue
		}
		ranked = append(ranked, scoredLine{line: line, index: i, score: score})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].index < ranked[b].index
	})

	picked := []string{}
	seen := make(map[string]bool)
	for _, item := range ranked {
		key := lineKey(item.line)
		if seen[key] {
			continue
		}
		seen[key] = true
		picked = append(picked, ingest.TruncateText(item.line, 240))
		if len(picked) >= limit {
			break
		}
	}
	if len(picked) > 0 {
		return picked
	}

	for i := 0; i < len(lines) && i < limit; i++ {
		picked = append(picked, ingest.TruncateText(lines[i], 240))
	}
	return picked
}

// lineKey folds case and Unicode composition so visually equal page lines
// are reported once.
func lineKey(line string) string {
	return strings.ToLower(norm.NFC.String(line))
}

func collectSnippets(lines []string) []string {
	snippets := []string{}
	seen := make(map[string]bool)
	for _, line := range lines {
		text := ingest.NormalizeWhitespace(line)
		if utf8.RuneCountInString(text) < minSnippetChars {
			continue
		}
		key := lineKey(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		snippets = append(snippets, ingest.TruncateText(text, 220))
		if len(snippets) >= maxSnippets {
			break
		}
	}
	return snippets
}
