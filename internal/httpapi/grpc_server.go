package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"vedarc.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer exposes the standard gRPC health service backed by the same
// readiness probe as /readyz.
type GRPCServer struct {
	readiness readinessChecker
	health    *health.Server
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	return &GRPCServer{
		readiness: r,
		health:    health.NewServer(),
	}
}

// Register attaches health and reflection to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// Refresh re-evaluates readiness and publishes it for both the overall
// server and the named service.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	st := healthpb.HealthCheckResponse_SERVING
	ok := true
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			ok = false
		}
	}
	obs.SetReady(ok)
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
	return ok
}

// Watch refreshes the serving status every interval until ctx ends.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain before stop.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
	obs.SetReady(false)
}
