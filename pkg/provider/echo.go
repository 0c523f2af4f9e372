package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/report"
)

// echoPreviewChars bounds the prompt excerpt returned by Echo.
const echoPreviewChars = 600

// Echo answers without leaving the process. It returns a digest of the prompt
// it was given, which is enough to exercise the brief flow offline.
type Echo struct{}

func NewEcho() *Echo { return &Echo{} }

func (e *Echo) Name() string { return NameEcho }

func (e *Echo) Summarize(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
		prompt.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(prompt.String()))

	user := ""
	if n := len(req.Messages); n > 0 {
		user = req.Messages[n-1].Content
	}

	summary := fmt.Sprintf("## TL;DR\n- Offline echo of a %d-message prompt (sha256 %s).\n\n%s",
		len(req.Messages), hex.EncodeToString(sum[:8]), ingest.TruncateText(user, echoPreviewChars))

	promptTokens := report.EstimateTokens(prompt.String())
	completionTokens := report.EstimateTokens(summary)
	model := req.Model
	if model == "" {
		model = NameEcho
	}
	return &Result{
		Summary: summary,
		Usage: &Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Model: model,
	}, nil
}
