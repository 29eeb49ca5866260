package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ecportal.org/internal/obs"
)

// HealthServer publishes the readiness check as grpc.health.v1.Health,
// both for the empty service name and for "ecportal".
type HealthServer struct {
	srv       *health.Server
	readiness Checker
}

// NewHealthServer creates the health service; it reports NOT_SERVING until
// the first successful Refresh.
func NewHealthServer(r Checker) *HealthServer {
	s := &HealthServer{srv: health.NewServer(), readiness: r}
	s.set(false)
	return s
}

// Register attaches the health service to g.
func (s *HealthServer) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.srv)
}

// Refresh runs the readiness check and publishes the result.
func (s *HealthServer) Refresh(ctx context.Context) error {
	err := s.readiness.Check(ctx)
	s.set(err == nil)
	return err
}

// Run refreshes every interval until ctx is done.
func (s *HealthServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		if err := s.Refresh(checkCtx); err != nil {
			obs.Logger().Warn().Err(err).Msg("readiness check failed")
		}
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *HealthServer) Shutdown() {
	obs.SetReady(false)
	s.srv.Shutdown()
}

func (s *HealthServer) set(ready bool) {
	obs.SetReady(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.srv.SetServingStatus("", status)
	s.srv.SetServingStatus(serviceName, status)
}
