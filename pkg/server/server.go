package server

import (
	"context"
	"errors"

	"github.com/kumarabd/gokit/logger"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/service"
)

// Config contains configuration for all server types. A nil section
// disables that listener.
type Config struct {
	HTTP *HTTPConfig `json:"http" yaml:"http"`
	GRPC *GRPCConfig `json:"grpc" yaml:"grpc"`
}

type listener interface {
	GetName() string
	Start() error
	Stop(ctx context.Context) error
}

// Handler owns the configured listeners.
type Handler struct {
	HTTP      *HTTP
	GRPC      *GRPC
	listeners []listener
	log       *logger.Handler
}

// New builds the listeners named in serverConfig over one service.
func New(l *logger.Handler, m *metrics.Handler, serverConfig *Config, svc *service.Handler) (*Handler, error) {
	if serverConfig == nil || (serverConfig.HTTP == nil && serverConfig.GRPC == nil) {
		return nil, errors.New("no listener configured")
	}

	h := &Handler{log: l}
	if serverConfig.HTTP != nil {
		h.HTTP = NewHTTP(serverConfig.HTTP, svc, l, m)
		h.listeners = append(h.listeners, h.HTTP)
	}
	if serverConfig.GRPC != nil {
		h.GRPC = NewGRPC(serverConfig.GRPC, svc, l, m)
		h.listeners = append(h.listeners, h.GRPC)
	}
	return h, nil
}

// Start runs every listener. A value is sent on ch when any of them exits,
// so ch needs room for one value per listener.
func (h *Handler) Start(ch chan struct{}) {
	for _, ln := range h.listeners {
		go func(ln listener) {
			if err := ln.Start(); err != nil {
				h.log.Error().Err(err).Str("server", ln.GetName()).Msg("listener failed")
			}
			ch <- struct{}{}
		}(ln)
	}
}

// Stop shuts every listener down and returns the first error.
func (h *Handler) Stop(ctx context.Context) error {
	var firstErr error
	for _, ln := range h.listeners {
		if err := ln.Stop(ctx); err != nil {
			h.log.Warn().Err(err).Str("server", ln.GetName()).Msg("listener did not stop cleanly")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
