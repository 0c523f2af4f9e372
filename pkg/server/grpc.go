package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/kumarabd/gokit/logger"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/service"
)

// GRPCConfig contains configuration for the gRPC server
type GRPCConfig struct {
	Host                  string `json:"host" yaml:"host" default:"0.0.0.0"`
	Port                  string `json:"port" yaml:"port" default:"4317"`
	MaxConcurrentStreams  uint32 `json:"max_concurrent_streams" yaml:"max_concurrent_streams" default:"100"`
	MaxConnectionIdle     string `json:"max_connection_idle" yaml:"max_connection_idle" default:"30s"`
	MaxConnectionAge      string `json:"max_connection_age" yaml:"max_connection_age" default:"60s"`
	MaxConnectionAgeGrace string `json:"max_connection_age_grace" yaml:"max_connection_age_grace" default:"10s"`
	Time                  string `json:"time" yaml:"time" default:"5s"`
	Timeout               string `json:"timeout" yaml:"timeout" default:"1s"`
}

// keepalive converts the string durations. Unparseable values are left at
// the grpc defaults.
func (c *GRPCConfig) keepalive() keepalive.ServerParameters {
	parse := func(s string) time.Duration {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0
		}
		return d
	}
	return keepalive.ServerParameters{
		MaxConnectionIdle:     parse(c.MaxConnectionIdle),
		MaxConnectionAge:      parse(c.MaxConnectionAge),
		MaxConnectionAgeGrace: parse(c.MaxConnectionAgeGrace),
		Time:                  parse(c.Time),
		Timeout:               parse(c.Timeout),
	}
}

// GRPC serves the OTLP logs service.
type GRPC struct {
	handler   *grpc.Server
	health    *health.Server
	service   *service.Handler
	log       *logger.Handler
	metric    *metrics.Handler
	config    *GRPCConfig
	listener  net.Listener
	isRunning bool
	mu        sync.RWMutex
}

// NewGRPC creates a new gRPC server instance
func NewGRPC(config *GRPCConfig, svc *service.Handler, log *logger.Handler, metric *metrics.Handler) *GRPC {
	recovery := grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
		log.Error().Msgf("gRPC handler panic: %v", p)
		return status.Errorf(codes.Internal, "internal error")
	})

	opts := []grpc.ServerOption{
		grpc.MaxConcurrentStreams(config.MaxConcurrentStreams),
		grpc.KeepaliveParams(config.keepalive()),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(recovery),
			grpcLoggingInterceptor(log),
			grpcMetricsInterceptor(metric),
		)),
	}

	server := &GRPC{
		handler: grpc.NewServer(opts...),
		health:  health.NewServer(),
		service: svc,
		log:     log,
		metric:  metric,
		config:  config,
	}

	plogotlp.RegisterGRPCServer(server.handler, newLogsService(svc, log))
	healthpb.RegisterHealthServer(server.handler, server.health)
	server.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register reflection service for gRPC debugging
	reflection.Register(server.handler)

	return server
}

// Start starts the gRPC server
func (s *GRPC) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Stop.
func (s *GRPC) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("gRPC server is already running")
	}
	s.listener = listener
	s.isRunning = true
	s.mu.Unlock()

	s.log.Info().Msgf("Starting gRPC server on %s", listener.Addr())
	return s.handler.Serve(listener)
}

// Stop gracefully shuts down the gRPC server
func (s *GRPC) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.handler == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down gRPC server...")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.handler.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.handler.Stop()
	}

	s.isRunning = false
	s.log.Info().Msg("gRPC server stopped")
	return nil
}

// IsRunning returns true if the gRPC server is currently running
func (s *GRPC) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetName returns the name of the server implementation
func (s *GRPC) GetName() string {
	return "gRPC"
}

// GetServer returns the underlying gRPC server for service registration
func (s *GRPC) GetServer() *grpc.Server {
	return s.handler
}
