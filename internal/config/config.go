package config

import (
	"fmt"
	"time"

	config_pkg "github.com/kumarabd/gokit/config"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/forwarder"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/pagecontext"
	"github.com/kumarabd/console-brief/pkg/provider"
	"github.com/kumarabd/console-brief/pkg/server"
	"github.com/kumarabd/console-brief/pkg/service"
	"github.com/kumarabd/console-brief/pkg/session"
	"github.com/kumarabd/console-brief/pkg/settings"
)

var (
	ApplicationName    = "console-brief"
	ApplicationVersion = "dev"
)

type Config struct {
	Server   *server.Config      `json:"server,omitempty" yaml:"server,omitempty"`
	Ingest   *ingest.Config      `json:"ingest" yaml:"ingest"`
	Session  *session.Config     `json:"session" yaml:"session"`
	Context  *pagecontext.Config `json:"context" yaml:"context"`
	Provider *provider.Config    `json:"provider" yaml:"provider"`
	Settings *settings.Config    `json:"settings" yaml:"settings"`
	Export   *forwarder.Config   `json:"export" yaml:"export"`
	Metrics  *metrics.Options    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Service returns the slice of configuration the service layer needs.
func (c *Config) Service() *service.Config {
	return &service.Config{
		Ingest:   c.Ingest,
		Session:  c.Session,
		Context:  c.Context,
		Provider: c.Provider,
		Settings: c.Settings,
		Export:   c.Export,
	}
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: &server.Config{
			HTTP: &server.HTTPConfig{
				Host:         "0.0.0.0",
				Port:         "8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second, // briefs wait on the provider
				IdleTimeout:  60 * time.Second,
			},
			GRPC: &server.GRPCConfig{
				Host:                  "0.0.0.0",
				Port:                  "4317",
				MaxConcurrentStreams:  100,
				MaxConnectionIdle:     "30s",
				MaxConnectionAge:      "60s",
				MaxConnectionAgeGrace: "10s",
				Time:                  "5s",
				Timeout:               "1s",
			},
		},
		Ingest: &ingest.Config{
			MaxBodyBytes: 1048576, // 1MB
			MaxBatchSize: 1000,    // events per request
			MaxArgs:      64,
			ValidateUTF8: true,
		},
		Session: &session.Config{
			TTL:             30 * time.Minute,
			CleanupInterval: time.Minute,
			BufferCapacity:  capture.DefaultCapacity,
			BriefPerMinute:  6,
			BriefBurst:      2,
			Pump: capture.PumpConfig{
				QueueSize:      256,
				EnqueueTimeout: 2 * time.Second,
			},
		},
		Context: &pagecontext.Config{
			DefaultStrategy:     pagecontext.StrategyFullPage,
			MaxHTMLBytes:        5 << 20,
			ContentRootMinChars: 200,
			SignalEntries:       40,
			SignalLines:         12,
		},
		Provider: &provider.Config{
			Name:            provider.NameChat,
			Label:           provider.DefaultLabel,
			Endpoint:        provider.DefaultEndpoint,
			Model:           provider.DefaultModel,
			Timeout:         20 * time.Second,
			MaxRetries:      2,
			RetryBackoff:    500 * time.Millisecond,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Settings: &settings.Config{
			Backend:   settings.BackendMemory,
			RedisAddr: "localhost:6379",
		},
		Export: &forwarder.Config{
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			MaxQueueSize:  10000,
			Loki: forwarder.LokiConfig{
				Endpoint: "http://localhost:3100/loki/api/v1/push",
				Timeout:  5 * time.Second,
			},
			Kafka: forwarder.KafkaConfig{
				Topic:        "console-events",
				Timeout:      5 * time.Second,
				BatchTimeout: 100 * time.Millisecond,
			},
		},
		Metrics: &metrics.Options{},
	}
}

// New creates a new config instance
func New() (*Config, error) {
	// Load config using gokit config package
	finalConfig, err := config_pkg.New(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Safe type assertion
	if finalConfig == nil {
		return nil, fmt.Errorf("config is nil")
	}

	cfg, ok := finalConfig.(*Config)
	if !ok {
		return nil, fmt.Errorf("config type assertion failed: expected *Config, got %T", finalConfig)
	}

	return cfg, nil
}
