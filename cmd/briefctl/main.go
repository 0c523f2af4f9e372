package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kumarabd/console-brief/pkg/provider"
)

// Env is the provider configuration read from the environment.
type Env struct {
	APIKey   string        `env:"BRIEF_API_KEY"`
	Model    string        `env:"BRIEF_MODEL" envDefault:"deepseek-chat"`
	Endpoint string        `env:"BRIEF_ENDPOINT" envDefault:"https://api.deepseek.com/chat/completions"`
	Provider string        `env:"BRIEF_PROVIDER" envDefault:"chat"`
	Timeout  time.Duration `env:"BRIEF_TIMEOUT" envDefault:"20s"`
	Retries  int           `env:"BRIEF_MAX_RETRIES" envDefault:"2"`
}

// loadEnv reads .env for local use, then the process environment.
func loadEnv() (*Env, error) {
	_ = godotenv.Load()

	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

func (e *Env) providerConfig() *provider.Config {
	return &provider.Config{
		Name:         e.Provider,
		Endpoint:     e.Endpoint,
		Model:        e.Model,
		Timeout:      e.Timeout,
		MaxRetries:   e.Retries,
		RetryBackoff: 500 * time.Millisecond,
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "briefctl",
		Short:         "Compact browser console captures and page snapshots for AI debugging",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReportCmd())
	root.AddCommand(newContextCmd())
	root.AddCommand(newBriefCmd())
	root.AddCommand(newRedactCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "briefctl: %v\n", err)
		os.Exit(1)
	}
}
