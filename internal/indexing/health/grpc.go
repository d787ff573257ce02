package health

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName returns the gRPC health service name of a network.
func ServiceName(network string) string {
	return "envelope-indexer." + network
}

// GRPCServer exposes the standard grpc.health.v1 service. The empty service
// name reflects the system status; each network has its own service.
type GRPCServer struct {
	port   int
	server *grpc.Server
	health *grpchealth.Server
}

// NewGRPCServer creates a gRPC health server fed by monitor reports.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	s := &GRPCServer{
		port:   port,
		server: grpc.NewServer(),
		health: grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	monitor.OnReport(s.Update)
	return s
}

// Update mirrors a health report into serving statuses. Only critical maps
// to NOT_SERVING.
func (s *GRPCServer) Update(report HealthReport) {
	s.health.SetServingStatus("", servingStatus(report.SystemStatus))
	for name, n := range report.Networks {
		s.health.SetServingStatus(ServiceName(name), servingStatus(n.Status))
	}
}

func servingStatus(status SystemStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == StatusCritical {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Start listens and serves until Stop is called.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains connections.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
