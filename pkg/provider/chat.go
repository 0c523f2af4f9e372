package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kumarabd/gokit/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kumarabd/console-brief/internal/metrics"
)

// maxReasonChars bounds a raw upstream error body quoted back to callers.
const maxReasonChars = 300

type chatRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Chat talks to an OpenAI-compatible chat completions endpoint.
type Chat struct {
	config  *Config
	client  *http.Client
	breaker *Breaker
	tracer  trace.Tracer
	log     *logger.Handler
	metric  *metrics.Handler
}

// NewChat creates a chat completions client.
func NewChat(config *Config, log *logger.Handler, metric *metrics.Handler) *Chat {
	if config == nil {
		config = &Config{}
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Label == "" {
		config.Label = DefaultLabel
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = 30 * time.Second
	}
	return &Chat{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: NewBreaker(config.BreakerFailures, config.BreakerCooldown),
		tracer:  otel.Tracer("console-brief/provider"),
		log:     log,
		metric:  metric,
	}
}

func (c *Chat) Name() string { return NameChat }

// Summarize sends req upstream. Transport errors and 5xx responses are retried
// up to MaxRetries times and feed the circuit breaker.
func (c *Chat) Summarize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", c.config.Label, ErrMissingAPIKey)
	}
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	ctx, span := c.tracer.Start(ctx, "provider.Summarize")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.model", model),
		attribute.Int("provider.max_tokens", req.MaxTokens),
	)

	if c.breaker.Open() {
		span.SetStatus(codes.Error, "breaker open")
		return nil, ErrBreakerOpen
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Temperature: DefaultTemperature,
		MaxTokens:   req.MaxTokens,
		Messages:    req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.config.RetryBackoff*time.Duration(attempt)); err != nil {
				lastErr = err
				break
			}
		}

		result, retry, err := c.post(ctx, body, req.APIKey, model)
		if err == nil {
			c.breaker.Success()
			c.observe(start, true)
			span.SetAttributes(attribute.Int("provider.attempts", attempt+1))
			return result, nil
		}
		lastErr = err
		if !retry {
			break
		}
		if attempt == c.config.MaxRetries {
			if state := c.breaker.Fail(); state == BreakerOpen && c.log != nil {
				c.log.Warn().Str("endpoint", c.config.Endpoint).Dur("cooldown", c.config.BreakerCooldown).Msg("provider circuit opened")
			}
		}
		if c.log != nil {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("provider call failed")
		}
	}

	c.observe(start, false)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Chat) observe(start time.Time, success bool) {
	if c.metric != nil {
		c.metric.ObserveProviderCall(c.Name(), time.Since(start), success)
	}
}

// post performs one attempt. retry reports whether the failure is transient.
func (c *Chat) post(ctx context.Context, body []byte, apiKey, model string) (*Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%s %w: %v", c.config.Label, ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%s %w: %v", c.config.Label, ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := errorReason(resp.Status, raw)
		return nil, resp.StatusCode >= 500, fmt.Errorf("%s %w: %s", c.config.Label, ErrRequestFailed, reason)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, fmt.Errorf("%s %w", c.config.Label, ErrNonJSON)
	}

	var summary string
	if len(parsed.Choices) > 0 {
		if err := json.Unmarshal(parsed.Choices[0].Message.Content, &summary); err != nil {
			summary = ""
		}
	}
	if summary == "" {
		return nil, false, fmt.Errorf("%s %w", c.config.Label, ErrNoSummary)
	}

	result := &Result{
		Summary: summary,
		Usage:   parsed.Usage,
		Model:   parsed.Model,
	}
	if result.Model == "" {
		result.Model = model
	}
	return result, false, nil
}

// errorReason prefers error.message, then message, from a JSON body. A body
// that is not JSON is quoted raw. status is the fallback.
func errorReason(status string, raw []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if len(raw) == 0 {
			return status
		}
		text := string(raw)
		if utf8.RuneCountInString(text) > maxReasonChars {
			text = string([]rune(text)[:maxReasonChars])
		}
		return text
	}
	if e, ok := parsed["error"].(map[string]any); ok {
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := parsed["message"].(string); ok && msg != "" {
		return msg
	}
	return status
}

// IsUpstreamError reports whether err came back from the upstream itself
// rather than from local validation.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrNonJSON) ||
		errors.Is(err, ErrNoSummary) || errors.Is(err, ErrBreakerOpen)
}
