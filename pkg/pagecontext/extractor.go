package pagecontext

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	ozzo "github.com/go-ozzo/ozzo-validation"
	"github.com/kumarabd/gokit/logger"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/report"
)

// ResultFormat tags every extraction result.
const ResultFormat = "ai-context-markdown"

// Bounds on the full-text sample carried in a PageContext.
const (
	DefaultMaxContextChars = 26000
	MinMaxContextChars     = 6000
	MaxMaxContextChars     = 60000
)

var ErrUnknownStrategy = errors.New("unknown context strategy")

// Config contains configuration for page context extraction
type Config struct {
	DefaultStrategy     string `json:"default_strategy" yaml:"default_strategy" default:"full-page"`
	MaxHTMLBytes        int    `json:"max_html_bytes" yaml:"max_html_bytes" default:"5242880"`
	ContentRootMinChars int    `json:"content_root_min_chars" yaml:"content_root_min_chars" default:"200"`
	SignalEntries       int    `json:"signal_entries" yaml:"signal_entries" default:"40"`
	SignalLines         int    `json:"signal_lines" yaml:"signal_lines" default:"12"`
}

// Request asks for the context of one HTML snapshot.
type Request struct {
	HTML            string  `json:"html"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Strategy        string  `json:"strategy"`
	MaxContextChars *int    `json:"maxContextChars"`
	RenderedText    string  `json:"renderedText"`
	Referrer        string  `json:"referrer"`
	ReadyState      string  `json:"readyState"`
	Timing          *Timing `json:"timing"`
}

// Validate checks the request shape before any parsing happens.
func (r Request) Validate(maxHTMLBytes int) error {
	return ozzo.ValidateStruct(&r,
		ozzo.Field(&r.HTML, ozzo.Required, ozzo.Length(0, maxHTMLBytes)),
		ozzo.Field(&r.Strategy, ozzo.In(StrategyFullPage, StrategyContentRoot)),
	)
}

// Result is the wire response for a context request.
type Result struct {
	Format          string `json:"format"`
	Text            string `json:"text"`
	PageURL         string `json:"pageUrl"`
	Strategy        string `json:"strategy"`
	SourceTextChars int    `json:"sourceTextChars"`
	ElementsScanned int    `json:"elementsScanned"`
	RelevantCount   int    `json:"relevantCount"`
	EstimatedTokens int    `json:"estimatedTokens"`
	TotalCaptured   *int   `json:"totalCaptured,omitempty"`
	Count           *int   `json:"count,omitempty"`
	UniqueCount     *int   `json:"uniqueCount,omitempty"`

	Context *PageContext `json:"-"`
}

// Extractor dispatches requests to strategies.
type Extractor struct {
	config     *Config
	strategies map[string]Strategy
	reports    *report.Builder
	log        *logger.Handler
	metric     *metrics.Handler
	now        func() time.Time
}

// NewExtractor creates an extractor with both built-in strategies.
func NewExtractor(config *Config, log *logger.Handler, metric *metrics.Handler) *Extractor {
	if config == nil {
		config = &Config{}
	}
	if config.DefaultStrategy == "" {
		config.DefaultStrategy = StrategyFullPage
	}
	if config.MaxHTMLBytes <= 0 {
		config.MaxHTMLBytes = 5 << 20
	}
	if config.SignalEntries <= 0 {
		config.SignalEntries = 40
	}
	if config.SignalLines <= 0 {
		config.SignalLines = 12
	}

	e := &Extractor{
		config:     config,
		strategies: make(map[string]Strategy),
		reports:    report.NewBuilder(nil),
		log:        log,
		metric:     metric,
		now:        time.Now,
	}
	e.Register(FullPage())
	e.Register(ContentRoot(config.ContentRootMinChars))
	return e
}

// Register adds or replaces a strategy.
func (e *Extractor) Register(s Strategy) {
	e.strategies[s.Name()] = s
}

// WithClock replaces the wall clock, for tests.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	e.reports.WithClock(now)
	return e
}

// ResolveMaxContextChars clamps an explicit budget and defaults an absent one.
func ResolveMaxContextChars(v *int) int {
	if v == nil {
		return DefaultMaxContextChars
	}
	switch {
	case *v < MinMaxContextChars:
		return MinMaxContextChars
	case *v > MaxMaxContextChars:
		return MaxMaxContextChars
	}
	return *v
}

// Extract builds the context document for req. pageURL is used when the
// request does not carry its own url. console may be nil; it is read only by
// strategies that embed console signals.
func (e *Extractor) Extract(req Request, pageURL string, console report.Source) (*Result, error) {
	if err := req.Validate(e.config.MaxHTMLBytes); err != nil {
		return nil, fmt.Errorf("invalid context request: %w", err)
	}

	name := req.Strategy
	if name == "" {
		name = e.config.DefaultStrategy
	}
	strategy, ok := e.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(req.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	start := e.now()
	url := req.URL
	if url == "" {
		url = pageURL
	}

	pc := strategy.Extract(Snapshot{
		Doc:             doc,
		URL:             url,
		Title:           req.Title,
		Referrer:        req.Referrer,
		ReadyState:      req.ReadyState,
		RenderedText:    req.RenderedText,
		Timing:          req.Timing,
		MaxContextChars: ResolveMaxContextChars(req.MaxContextChars),
		Now:             start,
	})

	result := &Result{
		Format:          ResultFormat,
		PageURL:         url,
		Strategy:        strategy.Name(),
		SourceTextChars: pc.Content.RenderedTextChars,
		ElementsScanned: pc.Structure.DOMStats.ElementsScanned,
		RelevantCount:   len(pc.Content.RelevantLines),
		Context:         pc,
	}

	var signals *ConsoleSignals
	if strategy.WantsConsoleSignals() && console != nil {
		signals = e.consoleSignals(console, url)
		result.TotalCaptured = &signals.TotalCaptured
		result.Count = &signals.Count
		result.UniqueCount = &signals.UniqueCount
	}

	result.Text = strategy.Render(pc, signals)
	result.EstimatedTokens = report.EstimateTokens(result.Text)

	if e.metric != nil {
		e.metric.ObserveContextExtraction(strategy.Name(), time.Since(start))
		e.metric.ObserveTokens("context", result.EstimatedTokens)
	}
	if e.log != nil {
		e.log.Debug().
			Str("strategy", strategy.Name()).
			Str("root", pc.Content.RootSelector).
			Int("relevant", result.RelevantCount).
			Int("tokens", result.EstimatedTokens).
			Msg("extracted page context")
	}
	return result, nil
}

// consoleSignals digests recent errors and warnings in the AI-compact form.
func (e *Extractor) consoleSignals(console report.Source, pageURL string) *ConsoleSignals {
	rep := e.reports.Build(console, pageURL, report.Options{
		Format:           report.FormatAI,
		LevelPreset:      report.PresetWarnings,
		OptimizeForAI:    true,
		MaxEntries:       e.config.SignalEntries,
		MaxCharsPerEntry: 280,
		MaxStackLines:    3,
	})

	signals := &ConsoleSignals{
		TotalCaptured: rep.TotalCaptured,
		Count:         rep.TotalCount,
		UniqueCount:   rep.UniqueCount,
	}
	for i, entry := range rep.Entries {
		if i >= e.config.SignalLines {
			break
		}
		repeat := ""
		if entry.Count > 1 {
			repeat = fmt.Sprintf(" x%d", entry.Count)
		}
		signals.Lines = append(signals.Lines, fmt.Sprintf("[%s]%s %s", entry.Level, repeat, strings.ReplaceAll(entry.Message, "\n", `\n`)))
	}
	return signals
}
