package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kumarabd/gokit/logger"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/forwarder"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/logtypes"
	"github.com/kumarabd/console-brief/pkg/pagecontext"
	"github.com/kumarabd/console-brief/pkg/provider"
	"github.com/kumarabd/console-brief/pkg/report"
	"github.com/kumarabd/console-brief/pkg/session"
	"github.com/kumarabd/console-brief/pkg/settings"
)

var (
	ErrRateLimited    = errors.New("brief rate limit exceeded, try again shortly")
	ErrNoLogs         = errors.New("no logs available for summarization")
	ErrMissingSession = errors.New("missing session.id resource attribute")
)

type Config struct {
	Ingest   *ingest.Config      `json:"ingest" yaml:"ingest"`
	Session  *session.Config     `json:"session" yaml:"session"`
	Context  *pagecontext.Config `json:"context" yaml:"context"`
	Provider *provider.Config    `json:"provider" yaml:"provider"`
	Settings *settings.Config    `json:"settings" yaml:"settings"`
	Export   *forwarder.Config   `json:"export" yaml:"export"`
}

// Handler ties sessions, capture, reports, page context and providers together.
type Handler struct {
	log    *logger.Handler
	config *Config
	metric *metrics.Handler

	ingest    *ingest.Handler
	sessions  *session.Registry
	reports   *report.Builder
	extractor *pagecontext.Extractor
	redactor  *ingest.Redactor
	providers *provider.Router
	settings  settings.Store
	forwarder *forwarder.Forwarder
}

func New(ctx context.Context, l *logger.Handler, m *metrics.Handler, sConfig *Config) (*Handler, error) {
	if sConfig == nil {
		sConfig = &Config{}
	}
	if sConfig.Export == nil {
		sConfig.Export = &forwarder.Config{}
	}

	store, err := settings.New(ctx, sConfig.Settings, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	redactor := ingest.NewRedactor(m)
	chat := provider.NewChat(sConfig.Provider, l, m)
	fallback := provider.NameChat
	if sConfig.Provider != nil && sConfig.Provider.Name != "" {
		fallback = sConfig.Provider.Name
	}

	h := &Handler{
		log:       l,
		config:    sConfig,
		metric:    m,
		ingest:    ingest.NewHandler(sConfig.Ingest, l, m),
		sessions:  session.NewRegistry(sConfig.Session, l, m),
		reports:   report.NewBuilder(m),
		extractor: pagecontext.NewExtractor(sConfig.Context, l, m),
		redactor:  redactor,
		providers: provider.NewRouter(fallback, chat, provider.NewEcho()),
		settings:  store,
		forwarder: forwarder.NewForwarder(sConfig.Export, redactor, l, m),
	}
	if _, err := h.providers.Get(""); err != nil {
		return nil, err
	}
	return h, nil
}

// Start launches background workers.
func (h *Handler) Start() error {
	return h.forwarder.Start()
}

// Stop closes every session and flushes the export forwarder.
func (h *Handler) Stop() error {
	h.sessions.Close()
	return h.forwarder.Stop()
}

// Ingest returns the payload decoder.
func (h *Handler) Ingest() *ingest.Handler {
	return h.ingest
}

// Redactor returns the shared redactor.
func (h *Handler) Redactor() *ingest.Redactor {
	return h.redactor
}

// CreateSession opens a session for one tab.
func (h *Handler) CreateSession(pageURL string) *session.Session {
	return h.sessions.Create(strings.TrimSpace(pageURL))
}

// DeleteSession closes a session.
func (h *Handler) DeleteSession(id string) error {
	return h.sessions.Delete(id)
}

// Session looks a session up.
func (h *Handler) Session(id string) (*session.Session, error) {
	return h.sessions.Get(id)
}

// Append queues entries for a session and mirrors them to the forwarder.
// Defaults are filled once, on a copy, so capture and export agree on them.
// The caller's slice is left untouched.
func (h *Handler) Append(ctx context.Context, id, source string, entries []logtypes.LogEntry) error {
	sess, err := h.sessions.Get(id)
	if err != nil {
		return err
	}

	now := time.Now()
	batch := make([]logtypes.LogEntry, len(entries))
	for i, entry := range entries {
		entry.Fill(now)
		batch[i] = entry
	}
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].URL != "" {
			sess.SetPageURL(batch[i].URL)
			break
		}
	}
	if err := sess.Enqueue(ctx, source, batch); err != nil {
		return fmt.Errorf("failed to enqueue events: %w", err)
	}
	h.forwarder.Forward(ctx, sess.ID, sess.PageURL(), batch)
	return nil
}

// ExportOTLP routes records to the sessions named by their session.id
// resource attribute. It returns the number of accepted records.
func (h *Handler) ExportOTLP(ctx context.Context, records []ingest.OTLPRecord) (int, error) {
	var order []string
	grouped := make(map[string][]logtypes.LogEntry)
	for _, r := range records {
		if r.SessionID == "" {
			return 0, ErrMissingSession
		}
		if _, ok := grouped[r.SessionID]; !ok {
			if _, err := h.sessions.Get(r.SessionID); err != nil {
				return 0, fmt.Errorf("%w: %s", err, r.SessionID)
			}
			order = append(order, r.SessionID)
		}
		grouped[r.SessionID] = append(grouped[r.SessionID], r.Entry)
	}

	accepted := 0
	for _, id := range order {
		if err := h.Append(ctx, id, "otlp", grouped[id]); err != nil {
			return accepted, err
		}
		accepted += len(grouped[id])
	}
	return accepted, nil
}

// Report flushes pending events and builds a report of the session buffer.
func (h *Handler) Report(ctx context.Context, id string, opts report.Options) (*report.Report, error) {
	sess, err := h.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if err := sess.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush capture: %w", err)
	}
	return h.reports.Build(sess.Buffer(), sess.PageURL(), opts), nil
}

// PageContext extracts context from an HTML snapshot of the session's page.
func (h *Handler) PageContext(ctx context.Context, id string, req pagecontext.Request) (*pagecontext.Result, error) {
	sess, err := h.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if err := sess.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush capture: %w", err)
	}
	sess.SetPageURL(req.URL)
	return h.extractor.Extract(req, sess.PageURL(), sess.Buffer())
}

// BriefRequest asks for an LLM brief of the session's console.
type BriefRequest struct {
	report.Request
	Model        *string `json:"model" form:"model"`
	SummaryStyle string  `json:"summaryStyle" form:"summaryStyle"`
	Provider     string  `json:"provider" form:"provider"`
}

// BriefResult is a summary plus the shape of what was summarized.
type BriefResult struct {
	Summary         string          `json:"summary"`
	Usage           *provider.Usage `json:"usage"`
	Model           string          `json:"model"`
	Count           int             `json:"count"`
	UniqueCount     int             `json:"uniqueCount"`
	EstimatedTokens int             `json:"estimatedTokens"`
}

// Brief builds a report and summarizes it. Briefs are rate limited per session.
func (h *Handler) Brief(ctx context.Context, id string, req BriefRequest) (*BriefResult, error) {
	sess, err := h.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	p, creds, err := h.route(ctx, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if !sess.AllowBrief() {
		return nil, ErrRateLimited
	}

	opts := req.Options()
	rep, err := h.Report(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if rep.TotalCount == 0 || strings.TrimSpace(rep.Text) == "" {
		return nil, ErrNoLogs
	}

	preq := provider.BriefRequest(h.redactor, rep.Text, provider.BriefContext{
		PageURL:       rep.PageURL,
		LevelPreset:   rep.LevelPreset,
		Format:        rep.Format,
		SelectedCount: rep.TotalCount,
		UniqueCount:   rep.UniqueCount,
		SummaryStyle:  req.SummaryStyle,
	})
	preq.APIKey, preq.Model = creds.APIKey, creds.Model

	result, err := p.Summarize(ctx, preq)
	if err != nil {
		return nil, err
	}
	if h.log != nil {
		h.log.Info().Str("session", id).Str("provider", p.Name()).Str("model", result.Model).
			Int("entries", rep.TotalCount).Msg("brief generated")
	}
	return &BriefResult{
		Summary:         result.Summary,
		Usage:           result.Usage,
		Model:           result.Model,
		Count:           rep.TotalCount,
		UniqueCount:     rep.UniqueCount,
		EstimatedTokens: rep.EstimatedTokens,
	}, nil
}

// CondenseRequest asks for page context condensed by an LLM.
type CondenseRequest struct {
	pagecontext.Request
	Model    *string `json:"model"`
	Provider string  `json:"provider"`
}

// CondenseResult is a condensed context.
type CondenseResult struct {
	Summary         string          `json:"summary"`
	Usage           *provider.Usage `json:"usage"`
	Model           string          `json:"model"`
	PageURL         string          `json:"pageUrl"`
	EstimatedTokens int             `json:"estimatedTokens"`
}

// Condense extracts page context and condenses it. It shares the brief rate limit.
func (h *Handler) Condense(ctx context.Context, id string, req CondenseRequest) (*CondenseResult, error) {
	sess, err := h.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	p, creds, err := h.route(ctx, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if !sess.AllowBrief() {
		return nil, ErrRateLimited
	}

	pc, err := h.PageContext(ctx, id, req.Request)
	if err != nil {
		return nil, err
	}

	preq := provider.CondenseRequest(h.redactor, pc.PageURL, pc.Text)
	preq.APIKey, preq.Model = creds.APIKey, creds.Model

	result, err := p.Summarize(ctx, preq)
	if err != nil {
		return nil, err
	}
	return &CondenseResult{
		Summary:         result.Summary,
		Usage:           result.Usage,
		Model:           result.Model,
		PageURL:         pc.PageURL,
		EstimatedTokens: pc.EstimatedTokens,
	}, nil
}

// route picks a provider and resolves credentials. An explicit model wins
// over the saved one.
func (h *Handler) route(ctx context.Context, name string, model *string) (provider.Provider, settings.Settings, error) {
	p, err := h.providers.Get(name)
	if err != nil {
		return nil, settings.Settings{}, err
	}
	creds, err := h.settings.Get(ctx)
	if err != nil {
		return nil, settings.Settings{}, err
	}
	if model != nil && strings.TrimSpace(*model) != "" {
		creds.Model = strings.TrimSpace(*model)
	}
	if p.Name() == provider.NameChat && creds.APIKey == "" {
		return nil, settings.Settings{}, provider.ErrMissingAPIKey
	}
	return p, creds, nil
}

// Settings returns the caller-visible settings.
func (h *Handler) Settings(ctx context.Context) (settings.View, error) {
	s, err := h.settings.Get(ctx)
	if err != nil {
		return settings.View{}, err
	}
	return s.View(), nil
}

// SaveSettings applies a partial settings update.
func (h *Handler) SaveSettings(ctx context.Context, u settings.Update) (settings.View, error) {
	s, err := h.settings.Save(ctx, u)
	if err != nil {
		return settings.View{}, err
	}
	return s.View(), nil
}

// ClearKey removes the saved API key.
func (h *Handler) ClearKey(ctx context.Context) (settings.View, error) {
	s, err := h.settings.ClearKey(ctx)
	if err != nil {
		return settings.View{}, err
	}
	return s.View(), nil
}
