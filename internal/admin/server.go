// Package admin serves the daemon's local control surface: a gRPC health
// service on a unix socket that reports SERVING while the relay is READY.
package admin

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/chatrelay/internal/bus"
	"github.com/matheus3301/chatrelay/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "chatrelay.Relay"

// Server manages the gRPC admin server lifecycle for an instance daemon.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	machine    *status.Machine
	events     <-chan bus.Event
	unsub      func()
	logger     *zap.Logger
	done       chan struct{}
}

// NewServer creates a gRPC server bound to the instance's Unix domain socket.
func NewServer(socketPath string, machine *status.Machine, b *bus.Bus, logger *zap.Logger) (*Server, error) {
	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Subscribe before reading the current state so no transition falls
	// between the two.
	events, unsub := b.Subscribe("relay.", 16)
	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		machine:    machine,
		events:     events,
		unsub:      unsub,
		logger:     logger,
		done:       make(chan struct{}),
	}
	s.apply(machine.Current())
	return s, nil
}

// Start follows lifecycle events and serves gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	go func() {
		defer s.unsub()
		for {
			select {
			case <-s.done:
				return
			case <-s.events:
				// Events can be dropped on a full buffer; the machine is authoritative.
				s.apply(s.machine.Current())
			}
		}
	}()

	s.logger.Info("admin server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop marks every service NOT_SERVING, drains RPCs, and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("admin server stopping")
	close(s.done)
	s.unsub()
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

func (s *Server) apply(state status.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if state == status.Ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	s.logger.Debug("admin health updated", zap.String("state", string(state)), zap.String("health", st.String()))
}

// Check asks the daemon listening on socketPath for its serving status.
func Check(ctx context.Context, socketPath string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
