package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/matchmaker/internal/config"
)

// NewGRPCServer builds a gRPC server with opts and registers all provided services
func NewGRPCServer(opts []grpc.ServerOption, registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer(opts...)

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl. It lists services
	// only: the JSON-coded matchmaker service has no proto descriptor, so
	// grpcurl can list it but not describe or call it. Use api.Client.
	reflection.Register(grpcServer)

	return grpcServer
}

// StartGRPCServer listens on the configured address and serves until ctx is
// cancelled, then stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config, opts []grpc.ServerOption, registrars ...Registrar) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return Serve(ctx, lis, NewGRPCServer(opts, registrars...))
}

// Serve runs s on lis until ctx is done, then drains in-flight calls. Open
// streams must be ended by their owner (see convsync.Hub.Close) or the drain
// waits for them.
func Serve(ctx context.Context, lis net.Listener, s *grpc.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.GracefulStop()
		return <-errCh
	}
}
