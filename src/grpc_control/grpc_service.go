package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"resilient-feed/src/logger"
	"resilient-feed/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// -----------------------------------------------------------------------------
// GRPCService handles gRPC server lifecycle
// -----------------------------------------------------------------------------

// GRPCService serves grpc.health.v1 with one service name per monitored
// endpoint, plus the control service.
type GRPCService struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	control  *ControlService
	logger   *logger.Logger
	running  atomic.Bool
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService instance listening on config's address.
func NewGRPCService(config models.MGRPCConfig, log *logger.Logger, control *ControlService) (*GRPCService, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	serverOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(10 * 1024 * 1024), // 10MB
		grpc.MaxSendMsgSize(10 * 1024 * 1024), // 10MB
	}

	return &GRPCService{
		server:   grpc.NewServer(serverOptions...),
		listener: listener,
		health:   health.NewServer(),
		control:  control,
		logger:   log,
	}, nil
}

// -----------------------------------------------------------------------------

// Start registers the services and serves in the background.
func (g *GRPCService) Start() error {
	if g.running.Load() {
		return nil
	}

	grpc_health_v1.RegisterHealthServer(g.server, g.health)
	if g.control != nil {
		RegisterControlService(g.server, g.control)
		g.health.SetServingStatus(controlServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	g.running.Store(true)
	go func() {
		if err := g.server.Serve(g.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			g.logger.Error("gRPC server failed: %v", err)
		}
		g.running.Store(false)
	}()

	g.logger.Info("gRPC service started on %s", g.Addr())
	return nil
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server, forcing it when ctx expires.
func (g *GRPCService) Stop(ctx context.Context) error {
	g.logger.Info("Stopping gRPC service...")

	// watchers see NOT_SERVING before the connection goes away
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		g.logger.Warning("gRPC graceful shutdown timeout, forcing stop...")
		g.server.Stop()
	case <-done:
	}
	_ = g.listener.Close()

	g.running.Store(false)
	g.logger.Info("gRPC service stopped")
	return nil
}

// -----------------------------------------------------------------------------
// Health feed
// -----------------------------------------------------------------------------

// OnHealthChanged mirrors one endpoint status into the health server.
func (g *GRPCService) OnHealthChanged(record models.MHealthRecord) {
	g.health.SetServingStatus(record.Name, servingStatus(record.Status))
}

// OnHealthReport mirrors a full cycle. The empty service name carries the
// overall status: only an unhealthy aggregate stops serving.
func (g *GRPCService) OnHealthReport(report models.MHealthReport) {
	for name, record := range report.Records {
		g.health.SetServingStatus(name, servingStatus(record.Status))
	}

	overall := grpc_health_v1.HealthCheckResponse_SERVING
	if report.Overall == models.HealthUnhealthy {
		overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", overall)
}

func servingStatus(status models.HealthStatus) grpc_health_v1.HealthCheckResponse_ServingStatus {
	switch status {
	case models.HealthHealthy:
		return grpc_health_v1.HealthCheckResponse_SERVING
	case models.HealthChecking, models.HealthReconnecting:
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	default:
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
}

// -----------------------------------------------------------------------------

// Addr returns the bound listener address
func (g *GRPCService) Addr() string {
	return g.listener.Addr().String()
}

// IsRunning returns whether the gRPC server is running
func (g *GRPCService) IsRunning() bool {
	return g.running.Load()
}
