package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kumarabd/gokit/logger"
	"golang.org/x/time/rate"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/cache"
	"github.com/kumarabd/console-brief/pkg/capture"
)

// Config contains configuration for session lifetime and per-session limits
type Config struct {
	TTL             time.Duration      `json:"ttl" yaml:"ttl" default:"30m"`
	CleanupInterval time.Duration      `json:"cleanup_interval" yaml:"cleanup_interval" default:"1m"`
	BufferCapacity  int                `json:"buffer_capacity" yaml:"buffer_capacity" default:"5000"`
	BriefPerMinute  float64            `json:"brief_per_minute" yaml:"brief_per_minute" default:"6"`
	BriefBurst      int                `json:"brief_burst" yaml:"brief_burst" default:"2"`
	Pump            capture.PumpConfig `json:"pump" yaml:"pump"`
}

var ErrUnknownSession = errors.New("unknown session")

// Registry owns live sessions. Idle sessions expire after TTL and have their
// pump stopped.
type Registry struct {
	config   *Config
	sessions *cache.Handler[*Session]
	log      *logger.Handler
	metric   *metrics.Handler
	now      func() time.Time
}

// NewRegistry creates a registry and starts its expiry sweeper.
func NewRegistry(config *Config, log *logger.Handler, metric *metrics.Handler) *Registry {
	if config == nil {
		config = &Config{}
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.BufferCapacity <= 0 {
		config.BufferCapacity = capture.DefaultCapacity
	}
	if config.BriefPerMinute <= 0 {
		config.BriefPerMinute = 6
	}
	if config.BriefBurst <= 0 {
		config.BriefBurst = 2
	}

	r := &Registry{
		config:   config,
		sessions: cache.New[*Session](config.TTL, config.CleanupInterval),
		log:      log,
		metric:   metric,
		now:      time.Now,
	}
	r.sessions.OnEvicted(r.evicted)
	return r
}

func (r *Registry) evicted(id string, s *Session) {
	s.Close()
	if r.metric != nil {
		r.metric.SetSessionsActive(r.sessions.Len())
	}
	if r.log != nil {
		r.log.Info().Str("session", id).Int("buffered", s.Buffer().Len()).Msg("session closed")
	}
}

// Create opens a session for pageURL and starts its pump.
func (r *Registry) Create(pageURL string) *Session {
	pump := r.config.Pump
	buffer := capture.NewBuffer(r.config.BufferCapacity)

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: r.now(),
		pageURL:   pageURL,
		buffer:    buffer,
		pump:      capture.NewPump(buffer, &pump, r.log, r.metric),
		limiter:   rate.NewLimiter(rate.Limit(r.config.BriefPerMinute/60), r.config.BriefBurst),
	}
	s.pump.Start()
	r.sessions.Set(s.ID, s)

	if r.metric != nil {
		r.metric.SetSessionsActive(r.sessions.Len())
	}
	if r.log != nil {
		r.log.Info().Str("session", s.ID).Str("page_url", pageURL).Msg("session opened")
	}
	return s
}

// Get returns a live session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	r.sessions.Touch(id)
	return s, nil
}

// Delete closes a session.
func (r *Registry) Delete(id string) error {
	if _, ok := r.sessions.Get(id); !ok {
		return ErrUnknownSession
	}
	r.sessions.Delete(id)
	return nil
}

// Len counts live sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Close tears down every session.
func (r *Registry) Close() {
	for _, id := range r.sessions.Keys() {
		r.sessions.Delete(id)
	}
}
