package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ozzo "github.com/go-ozzo/ozzo-validation"
	"github.com/kumarabd/gokit/logger"
)

// Storage keys shared by every backend.
const (
	KeyAPIKey = "brief:settings:api_key"
	KeyModel  = "brief:settings:model"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const DefaultModel = "deepseek-chat"

// AllowedModels lists the models a caller may select.
var AllowedModels = []string{"deepseek-chat", "deepseek-reasoner"}

var (
	ErrEmptyAPIKey    = errors.New("API key is empty")
	ErrUnknownBackend = errors.New("unknown settings backend")
)

// Config contains configuration for provider settings storage
type Config struct {
	Backend       string `json:"backend" yaml:"backend" default:"memory"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" default:"localhost:6379"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" default:""`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" default:"0"`
}

// Settings are the saved provider credentials.
type Settings struct {
	APIKey string
	Model  string
}

// View is what callers are allowed to see.
type View struct {
	HasAPIKey bool   `json:"hasApiKey"`
	Model     string `json:"model"`
}

func (s Settings) View() View {
	return View{HasAPIKey: s.APIKey != "", Model: s.Model}
}

// Update is a partial change. Nil fields are left alone.
type Update struct {
	APIKey *string `json:"apiKey"`
	Model  *string `json:"model"`
}

// Store persists Settings.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, u Update) (Settings, error)
	ClearKey(ctx context.Context) (Settings, error)
}

// AllowedModel reports whether model may be saved.
func AllowedModel(model string) bool {
	if model == "" {
		return false
	}
	return ozzo.Validate(model, ozzo.In(toAny(AllowedModels)...)) == nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// kv is the storage primitive each backend provides.
type kv interface {
	get(ctx context.Context, key string) (string, error)
	set(ctx context.Context, values map[string]string) error
	del(ctx context.Context, key string) error
}

type store struct {
	kv  kv
	log *logger.Handler
}

func (s *store) Get(ctx context.Context) (Settings, error) {
	key, err := s.kv.get(ctx, KeyAPIKey)
	if err != nil {
		return Settings{}, err
	}
	model, err := s.kv.get(ctx, KeyModel)
	if err != nil {
		return Settings{}, err
	}
	if model == "" {
		model = DefaultModel
	}
	return Settings{APIKey: key, Model: model}, nil
}

// Save trims and stores the key, and stores the model only when it is one of
// AllowedModels. Unknown models are ignored.
func (s *store) Save(ctx context.Context, u Update) (Settings, error) {
	values := make(map[string]string, 2)
	if u.APIKey != nil {
		key := strings.TrimSpace(*u.APIKey)
		if key == "" {
			return Settings{}, ErrEmptyAPIKey
		}
		values[KeyAPIKey] = key
	}
	if u.Model != nil {
		model := strings.TrimSpace(*u.Model)
		if AllowedModel(model) {
			values[KeyModel] = model
		} else if model != "" && s.log != nil {
			s.log.Warn().Str("model", model).Msg("ignoring unsupported model")
		}
	}

	if len(values) > 0 {
		if err := s.kv.set(ctx, values); err != nil {
			return Settings{}, err
		}
	}
	return s.Get(ctx)
}

func (s *store) ClearKey(ctx context.Context) (Settings, error) {
	if err := s.kv.del(ctx, KeyAPIKey); err != nil {
		return Settings{}, err
	}
	return s.Get(ctx)
}

// New opens the configured backend.
func New(ctx context.Context, config *Config, log *logger.Handler) (Store, error) {
	if config == nil {
		config = &Config{Backend: BackendMemory}
	}
	switch config.Backend {
	case "", BackendMemory:
		return NewMemory(log), nil
	case BackendRedis:
		return NewRedis(ctx, config, log)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, config.Backend)
}
