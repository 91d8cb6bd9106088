package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/session"
)

const (
	requestIDHeader = "x-request-id"
	authHeader      = "authorization"
	bearerPrefix    = "bearer "
)

// Verifier turns a bearer token into a session.
type Verifier interface {
	Verify(token string) (session.Session, error)
}

// ServerOptions returns the interceptor chain every matchmaker server runs
// with: request id + access log first, then authentication. Bodies are picked
// by content subtype, so reflection keeps its protobuf codec.
func ServerOptions(verifier Verifier, log *slog.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RequestIDUnary(log), AuthUnary(verifier)),
		grpc.ChainStreamInterceptor(RequestIDStream(log), AuthStream(verifier)),
	}
}

// RequestIDUnary tags the call with a request id (the caller's x-request-id
// or a new UUID), stores a child logger in the context and logs the outcome.
func RequestIDUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, l := withRequestID(ctx, log, info.FullMethod)
		start := time.Now()

		resp, err := handler(ctx, req)
		logOutcome(l, start, err)
		return resp, err
	}
}

func RequestIDStream(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, l := withRequestID(ss.Context(), log, info.FullMethod)
		start := time.Now()

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		logOutcome(l, start, err)
		return err
	}
}

// AuthUnary verifies the bearer token and puts the session in the context.
func AuthUnary(verifier Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, verifier)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func AuthStream(verifier Verifier) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), verifier)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func withRequestID(ctx context.Context, log *slog.Logger, method string) (context.Context, *slog.Logger) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDHeader); len(v) > 0 {
			id = v[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))

	l := log.With("req_id", id, "method", method)
	return logger.WithContext(ctx, l), l
}

func logOutcome(l *slog.Logger, start time.Time, err error) {
	code := status.Code(err)
	args := []any{"code", code.String(), "duration", time.Since(start)}
	if err != nil {
		l.Warn("rpc failed", append(args, "err", err)...)
		return
	}
	l.Debug("rpc done", args...)
}

func authenticate(ctx context.Context, verifier Verifier) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, svcErr.Unauthenticated("missing metadata")
	}
	values := md.Get(authHeader)
	if len(values) == 0 {
		return nil, svcErr.Unauthenticated("missing bearer token")
	}
	raw := values[0]
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return nil, svcErr.Unauthenticated("authorization must be a bearer token")
	}

	sess, err := verifier.Verify(strings.TrimSpace(raw[len(bearerPrefix):]))
	if err != nil {
		logger.FromContext(ctx, logger.L()).Debug("token rejected", "err", err)
		return nil, svcErr.Unauthenticated("invalid token")
	}
	return session.NewContext(ctx, sess), nil
}

// wrappedStream overrides the context of a server stream.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
