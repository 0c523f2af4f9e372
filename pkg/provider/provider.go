package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider names.
const (
	NameChat = "chat"
	NameEcho = "echo"
)

// Default chat endpoint settings.
const (
	DefaultEndpoint = "https://api.deepseek.com/chat/completions"
	DefaultModel    = "deepseek-chat"
	DefaultLabel    = "DeepSeek"
)

var (
	ErrMissingAPIKey   = errors.New("no API key saved")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrRequestFailed   = errors.New("request failed")
	ErrNonJSON         = errors.New("returned a non-JSON response")
	ErrNoSummary       = errors.New("response did not contain summary text")
	ErrBreakerOpen     = errors.New("provider circuit open")
)

// Config contains configuration for LLM providers
type Config struct {
	Name            string        `json:"name" yaml:"name" default:"chat"`
	Label           string        `json:"label" yaml:"label" default:"DeepSeek"`
	Endpoint        string        `json:"endpoint" yaml:"endpoint" default:"https://api.deepseek.com/chat/completions"`
	Model           string        `json:"model" yaml:"model" default:"deepseek-chat"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" default:"20s"`
	MaxRetries      int           `json:"max_retries" yaml:"max_retries" default:"2"`
	RetryBackoff    time.Duration `json:"retry_backoff" yaml:"retry_backoff" default:"500ms"`
	BreakerFailures int           `json:"breaker_failures" yaml:"breaker_failures" default:"5"`
	BreakerCooldown time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown" default:"30s"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a fully built prompt. APIKey and Model are filled in by the caller
// from the saved settings.
type Request struct {
	APIKey    string
	Model     string
	MaxTokens int
	Messages  []Message
}

// Usage is the token accounting reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a summary produced by a provider.
type Result struct {
	Summary string `json:"summary"`
	Usage   *Usage `json:"usage"`
	Model   string `json:"model"`
}

// Provider turns a prompt into a summary.
type Provider interface {
	Name() string
	Summarize(ctx context.Context, req Request) (*Result, error)
}

// Router picks a provider by name.
type Router struct {
	providers map[string]Provider
	fallback  string
}

// NewRouter creates a router. fallback names the provider used when a caller
// does not ask for one.
func NewRouter(fallback string, providers ...Provider) *Router {
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		fallback:  fallback,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider, or the fallback when name is empty.
func (r *Router) Get(name string) (Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
