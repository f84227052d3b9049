package transportgrpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/social-identity/internal/transport/grpc/interceptors"
)

// ServiceName is the health service key reported for the identity core.
const ServiceName = "social.identity.v1"

// ServerDependencies encapsulates what the gRPC listener needs.
type ServerDependencies struct {
	Logger  *zap.Logger
	Metrics *grpcinterceptors.GRPCMetrics
	Tracing *grpcinterceptors.TracingOptions
}

// Server exposes the gRPC health protocol for the identity service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer wires health and reflection services behind metrics and tracing.
func NewServer(deps ServerDependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tracing := grpcinterceptors.TracingOptions{
		SkipMethods: []string{healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName},
	}
	if deps.Tracing != nil {
		tracing = *deps.Tracing
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(grpcinterceptors.NewTracingHandler(tracing)),
		grpc.ChainUnaryInterceptor(deps.Metrics.UnaryServerInterceptor()),
	)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return &Server{grpc: srv, health: hs, logger: logger}
}

// SetServing flips both the overall and the identity service status.
func (s *Server) SetServing(serving bool) {
	state := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		state = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", state)
	s.health.SetServingStatus(ServiceName, state)
	s.logger.Debug("grpc health status changed", zap.String("status", state.String()))
}

// Serve blocks accepting connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.SetServing(true)
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING and drains in-flight calls, forcing a stop once ctx ends.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("grpc graceful stop timed out, forcing")
		s.grpc.Stop()
	}
}
