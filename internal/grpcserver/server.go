// Package grpcserver exposes the standard gRPC health service so
// orchestrators can health-check the messaging service.
package grpcserver

import (
	"net"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"messaging-service/internal/observability"
)

// Server wraps a grpc.Server with a health registry.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	service string
	logger  zerolog.Logger
}

// New builds the server. service is the name reported alongside the
// overall ("") health status.
func New(service string, logger zerolog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{
		grpc:    srv,
		health:  hs,
		service: service,
		logger:  logger.With().Str("component", "grpc").Logger(),
	}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the named service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	s.SetServing(true)
	return s.grpc.Serve(lis)
}

// Stop marks the service unhealthy and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
