package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/parley/internal/api"
	"github.com/matheus3301/parley/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"
)

const unixScheme = "unix://"

// Server manages the gRPC server lifecycle for the daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the configured address. An
// address of the form unix:///path listens on a Unix domain socket.
func NewServer(p Params, logger *zap.Logger, gw *api.Gateway) (*Server, error) {
	addr := p.listenAddr()
	var (
		listener   net.Listener
		socketPath string
		err        error
	)
	if path, ok := strings.CutPrefix(addr, unixScheme); ok {
		socketPath = path
		listener, err = listenUnix(socketPath)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	wire.RegisterGatewayServer(srv, gw)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	// Clean stale socket if it exists.
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return l, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("addr", s.listener.Addr().String()))
	err := s.grpcServer.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop drains in-flight RPCs, forcing them closed if ctx ends first, and
// removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, closing remaining streams")
		s.grpcServer.Stop()
		<-done
	}
	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", grpcstatus.Code(err).String()),
			zap.Duration("took", time.Since(start)))
		return resp, err
	}
}
