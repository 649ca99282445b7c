package grpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"duckreplay/player/internal/logging"
)

const (
	// SecretMetadataKey carries the shared control secret.
	SecretMetadataKey = "x-replayd-secret"
	// TraceMetadataKey lets callers pick the trace id of their request.
	TraceMetadataKey = "x-trace-id"
)

// ServerOptions returns the interceptors every control server runs: tracing, and the shared
// secret check when secret is not empty.
func ServerOptions(secret string, log *logging.Logger) []grpc.ServerOption {
	if log == nil {
		log = logging.L()
	}
	unary := []grpc.UnaryServerInterceptor{traceUnaryInterceptor(log)}
	streams := []grpc.StreamServerInterceptor{traceStreamInterceptor(log)}
	if normalized := strings.TrimSpace(secret); normalized != "" {
		unary = append(unary, secretUnaryInterceptor(normalized))
		streams = append(streams, secretStreamInterceptor(normalized))
		log.Info("control service requires the shared secret")
	}
	return []grpc.ServerOption{grpc.ChainUnaryInterceptor(unary...), grpc.ChainStreamInterceptor(streams...)}
}

func traceUnaryInterceptor(base *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, log, _ := logging.WithTrace(ctx, base, firstMetadata(ctx, TraceMetadataKey))
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, requestTimeout)
			defer cancel()
		}
		started := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc finished",
			logging.String("method", info.FullMethod),
			logging.String("code", status.Code(err).String()),
			logging.String("elapsed", time.Since(started).String()))
		return resp, err
	}
}

// tracedStream swaps the stream context for one carrying the request logger.
type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }

func traceStreamInterceptor(base *logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, log, _ := logging.WithTrace(ss.Context(), base, firstMetadata(ss.Context(), TraceMetadataKey))
		log.Debug("stream opened", logging.String("method", info.FullMethod))
		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		log.Debug("stream closed", logging.String("method", info.FullMethod), logging.String("code", status.Code(err).String()))
		return err
	}
}

func secretUnaryInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkSecret(ctx, secret); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func secretStreamInterceptor(secret string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkSecret(ss.Context(), secret); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func checkSecret(ctx context.Context, secret string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	candidate := extractSecret(md)
	if candidate == "" {
		return status.Error(codes.Unauthenticated, "missing shared secret")
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid shared secret")
	}
	return nil
}

// extractSecret accepts the dedicated header or a bearer token.
func extractSecret(md metadata.MD) string {
	for _, value := range md.Get(SecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if strings.HasPrefix(strings.ToLower(value), "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
