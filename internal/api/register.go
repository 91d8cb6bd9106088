package api

import (
	"google.golang.org/grpc"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/service/convsync"
)

// Registrar ties the Matchmaker service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
	hub    *convsync.Hub
}

// NewRegistrar creates a new Registrar for the Matchmaker service
func NewRegistrar(appCtx *app.AppContext, hub *convsync.Hub) *Registrar {
	return &Registrar{appCtx: appCtx, hub: hub}
}

// Register attaches the Matchmaker service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewService(r.appCtx, r.hub))
}
