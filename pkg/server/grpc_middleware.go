package server

import (
	"context"
	"time"

	"github.com/kumarabd/gokit/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/kumarabd/console-brief/internal/metrics"
)

func grpcLoggingInterceptor(log *logger.Handler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			log.Error().
				Err(err).
				Str("method", info.FullMethod).
				Str("code", status.Code(err).String()).
				Dur("latency", time.Since(start)).
				Msg("gRPC Request failed")
		} else {
			log.Debug().
				Str("method", info.FullMethod).
				Dur("latency", time.Since(start)).
				Msg("gRPC Request completed")
		}

		return resp, err
	}
}

func grpcMetricsInterceptor(metric *metrics.Handler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if metric != nil {
			metric.IncGRPCRequests(info.FullMethod, status.Code(err).String())
		}
		return resp, err
	}
}
