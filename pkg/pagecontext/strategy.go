package pagecontext

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// Strategy names.
const (
	StrategyFullPage    = "full-page"
	StrategyContentRoot = "content-root"
)

// Snapshot is a parsed page plus what the caller knows about it that the
// markup cannot tell.
type Snapshot struct {
	Doc             *goquery.Document
	URL             string
	Title           string
	Referrer        string
	ReadyState      string
	RenderedText    string
	Timing          *Timing
	MaxContextChars int
	Now             time.Time
}

// Strategy extracts and renders page context. The snapshot document is
// treated as read-only.
type Strategy interface {
	Name() string
	Extract(snap Snapshot) *PageContext
	Render(pc *PageContext, signals *ConsoleSignals) string
	WantsConsoleSignals() bool
}

// profile is a table-driven Strategy.
type profile struct {
	name           string
	heading        string
	scanMode       string
	rootCandidates []string
	minRootChars   int
	noise          []string
	noisePattern   *regexp.Regexp
	relevantLines  int
	maxLinks       int
	summaryChars   int
	outputChars    int
	consoleSignals bool
}

var contentNoisePattern = regexp.MustCompile(`(?i)cookie|consent|newsletter|subscribe`)

// FullPage scans the whole rendered body.
func FullPage() Strategy {
	return &profile{
		name:          StrategyFullPage,
		heading:       "# Page Context (Relevant From Full Page Capture)",
		scanMode:      "full rendered DOM text (console excluded)",
		noise:         []string{"script", "style", "noscript", "template"},
		relevantLines: 18,
		maxLinks:      20,
		summaryChars:  12000,
		outputChars:   10000,
	}
}

// ContentRoot narrows the scan to the main content container, strips page
// chrome and embeds console signals.
func ContentRoot(minRootChars int) Strategy {
	if minRootChars <= 0 {
		minRootChars = 200
	}
	return &profile{
		name:     StrategyContentRoot,
		heading:  "# Page Context (Relevant From Main Content)",
		scanMode: "main content root with console signals",
		rootCandidates: []string{
			"main",
			"article",
			`[role="main"]`,
			"#content",
			"#main",
			"#main-content",
			"#app",
			"#root",
			".content",
			".main-content",
			".page-content",
		},
		minRootChars: minRootChars,
		noise: []string{
			"script", "style", "noscript", "template", "svg", "iframe",
			"nav", "footer", "header", "aside", "form", "input", "button", "select", "textarea",
			`[role="navigation"]`, `[role="banner"]`, `[role="contentinfo"]`,
		},
		noisePattern:   contentNoisePattern,
		relevantLines:  25,
		maxLinks:       10,
		summaryChars:   12000,
		outputChars:    10000,
		consoleSignals: true,
	}
}

func (p *profile) Name() string { return p.name }

func (p *profile) WantsConsoleSignals() bool { return p.consoleSignals }

// root picks the first candidate with enough visible text, else body.
func (p *profile) root(doc *goquery.Document) (*goquery.Selection, string) {
	for _, selector := range p.rootCandidates {
		var picked *goquery.Selection
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !visibleSelection(s) {
				return true
			}
			if utf8.RuneCountInString(ingest.NormalizeWhitespace(renderedText(s.Nodes[0]))) >= p.minRootChars {
				picked = s
				return false
			}
			return true
		})
		if picked != nil {
			return picked, selector
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body, "body"
	}
	return doc.Selection, "html"
}

// prune removes noise from a detached clone of root.
func (p *profile) prune(root *goquery.Selection) *goquery.Selection {
	clone := root.Clone()
	clone.Find(strings.Join(p.noise, ", ")).Remove()
	clone.Find(`[hidden], [aria-hidden="true"]`).Remove()
	clone.Find("[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return styleHidden(s.Nodes[0])
	}).Remove()
	if p.noisePattern != nil {
		clone.Find("[id], [class], [aria-label]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return p.noisePattern.MatchString(s.AttrOr("id", "")) ||
				p.noisePattern.MatchString(s.AttrOr("class", "")) ||
				p.noisePattern.MatchString(s.AttrOr("aria-label", ""))
		}).Remove()
	}
	return clone
}

func (p *profile) Extract(snap Snapshot) *PageContext {
	doc := snap.Doc
	res := newResolver(snap.URL)
	root, rootSelector := p.root(doc)

	cleaned := textOf(p.prune(root))

	source := snap.RenderedText
	if source == "" && root.Length() > 0 {
		source = renderedText(root.Nodes[0])
	}
	lines := splitLines(source)
	fullText := strings.Join(lines, "\n")
	fullTextSample := ingest.TruncateText(fullText, snap.MaxContextChars)

	title := snap.Title
	if title == "" {
		title = textOf(doc.Find("title").First())
	}

	return &PageContext{
		Page: Page{
			URL:         snap.URL,
			Title:       title,
			Lang:        doc.Find("html").First().AttrOr("lang", ""),
			ContentType: "text/html",
			ReadyState:  snap.ReadyState,
			Referrer:    snap.Referrer,
			CapturedAt:  snap.Now.UTC().Format(logtypes.TimestampLayout),
		},
		Meta: collectMeta(doc, res),
		Content: Content{
			RootSelector:        rootSelector,
			SummaryText:         ingest.TruncateText(cleaned, p.summaryChars),
			FullTextSample:      fullTextSample,
			RelevantLines:       rankLines(lines, p.relevantLines),
			Snippets:            collectSnippets(lines),
			InteractiveElements: collectInteractives(root, res),
			Headings:            collectHeadings(root),
			KeyLinks:            collectLinks(root, res, p.maxLinks),
			TextCharsOriginal:   utf8.RuneCountInString(fullText),
			TextCharsIncluded:   utf8.RuneCountInString(fullTextSample),
			RenderedTextChars:   utf8.RuneCountInString(source),
			TextWasTruncated:    fullTextSample != fullText,
		},
		Structure: Structure{
			DOMStats: collectStats(doc),
			Timing:   snap.Timing,
		},
	}
}
