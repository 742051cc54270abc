package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server is the internal gRPC endpoint. It only carries the standard
// health service, used by load balancers and orchestrators.
type Server struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	address  string
	logger   *zap.Logger
}

func NewServer(address string, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := &Server{listener: listener, address: listener.Addr().String(), logger: logger, health: health.NewServer()}
	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(s.unaryLoggingInterceptor),
		grpc.StreamInterceptor(s.streamLoggingInterceptor),
	)
	healthpb.RegisterHealthServer(s.server, s.health)
	return s, nil
}

func (s *Server) unaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	resp, err = handler(ctx, req)
	s.logger.Debug("gRPC call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.Stringer("code", status.Code(err)),
	)
	return resp, err
}

func (s *Server) streamLoggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	code := codes.OK
	if err != nil {
		code = status.Code(err)
	}
	s.logger.Debug("gRPC stream call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.Stringer("code", code),
	)
	return err
}

// SetServing flips the status reported for service. The empty name is the
// overall server status.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

func (s *Server) Address() string {
	return s.address
}

func (s *Server) Start() error {
	s.logger.Info("Starting gRPC server", zap.String("address", s.address))
	return s.server.Serve(s.listener)
}

func (s *Server) Stop() {
	s.logger.Info("Stopping gRPC server")
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *Server) GetServer() *grpc.Server {
	return s.server
}
