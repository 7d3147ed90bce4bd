package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentals/internal/calendar"
	"rentals/internal/database"
	"rentals/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		base.Info().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", status.Code(err).String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

// ErrorUnaryInterceptor turns domain errors into gRPC status codes.
// Errors that already carry a status pass through unchanged.
func ErrorUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return resp, status.Error(grpcCode(err), err.Error())
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, service.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, database.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, service.ErrRateLimited):
		return codes.ResourceExhausted
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, calendar.ErrDateConflict),
		errors.Is(err, database.ErrDatesTaken),
		errors.Is(err, database.ErrConcurrentModification):
		return codes.FailedPrecondition
	case errors.Is(err, database.ErrDuplicate):
		return codes.AlreadyExists
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, calendar.ErrPastDate),
		errors.Is(err, calendar.ErrDateTooFar),
		errors.Is(err, calendar.ErrInvalidDuration):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}
