package server

import (
	"context"
	"errors"

	"github.com/kumarabd/gokit/logger"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/service"
	"github.com/kumarabd/console-brief/pkg/session"
)

// logsService implements the OTLP logs collector. Records are routed by their
// session.id resource attribute.
type logsService struct {
	plogotlp.UnimplementedGRPCServer
	service *service.Handler
	log     *logger.Handler
}

func newLogsService(svc *service.Handler, log *logger.Handler) *logsService {
	return &logsService{service: svc, log: log}
}

func (s *logsService) Export(ctx context.Context, req plogotlp.ExportRequest) (plogotlp.ExportResponse, error) {
	resp := plogotlp.NewExportResponse()
	total := req.Logs().LogRecordCount()

	records, err := s.service.Ingest().FromOTLP(req.Logs())
	if err != nil {
		return resp, grpcStatus(err)
	}

	accepted, err := s.service.ExportOTLP(ctx, records)
	if err != nil {
		if accepted == 0 {
			return resp, grpcStatus(err)
		}
		resp.PartialSuccess().SetRejectedLogRecords(int64(total - accepted))
		resp.PartialSuccess().SetErrorMessage(err.Error())
		return resp, nil
	}
	return resp, nil
}

func grpcStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ingest.ErrBatchTooLarge), errors.Is(err, ingest.ErrBodyTooLarge):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ingest.ErrEmptyBatch), errors.Is(err, service.ErrMissingSession):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, capture.ErrPumpStopped), errors.Is(err, capture.ErrEnqueueTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
