package ingest

import (
	"regexp"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// redactionRule is one compiled credential pattern and its replacement.
type redactionRule struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// Redactor masks credential-shaped substrings before text leaves the process.
type Redactor struct {
	rules  []redactionRule
	metric *metrics.Handler
}

// NewRedactor creates a redactor with the built-in rules. metric may be nil.
func NewRedactor(metric *metrics.Handler) *Redactor {
	return &Redactor{
		// Order matters: a bearer token is masked before the key/value rule can see it.
		rules: []redactionRule{
			{
				name:        "bearer",
				pattern:     regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9._-]+`),
				replacement: "${1}[REDACTED]",
			},
			{
				name:        "api_key",
				pattern:     regexp.MustCompile(`sk-[A-Za-z0-9_-]{12,}`),
				replacement: "[REDACTED_API_KEY]",
			},
			{
				name:        "secret_pair",
				pattern:     regexp.MustCompile(`(?i)(password|token|secret)\s*[:=]\s*["']?[^"'\s]+`),
				replacement: "${1}=[REDACTED]",
			},
		},
		metric: metric,
	}
}

// RedactMessage applies every rule in order and returns the redacted text and report
func (r *Redactor) RedactMessage(message string) (string, logtypes.RedactionReport) {
	report := logtypes.RedactionReport{
		Applied: false,
		Rules:   []string{},
		Count:   0,
	}

	redacted := message
	for _, rule := range r.rules {
		matches := rule.pattern.FindAllStringIndex(redacted, -1)
		if len(matches) == 0 {
			continue
		}
		report.Applied = true
		report.Rules = append(report.Rules, rule.name)
		report.Count += len(matches)
		redacted = rule.pattern.ReplaceAllString(redacted, rule.replacement)

		if r.metric != nil {
			r.metric.IncRedactionsTotal(rule.name)
		}
	}

	return redacted, report
}

// Redact is RedactMessage without the report.
func (r *Redactor) Redact(message string) string {
	redacted, _ := r.RedactMessage(message)
	return redacted
}
