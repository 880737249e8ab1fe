package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

// DefaultAddr is the listen address of the existence service.
const DefaultAddr = ":8000"

// ServerOptions configures the network side of the service.
type ServerOptions struct {
	Addr string

	// MetricsAddr, when set, exposes /metrics over HTTP.
	MetricsAddr string

	MaxRecvMsgSize int
	MaxSendMsgSize int
}

// Server hosts a Service over gRPC.
type Server struct {
	opts   ServerOptions
	svc    *Service
	server *grpc.Server
	logger *slog.Logger
}

// NewServer registers svc on a new grpc.Server.
func NewServer(svc *Service, opts ServerOptions) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}

	var grpcOpts []grpc.ServerOption
	if opts.MaxRecvMsgSize > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxRecvMsgSize(opts.MaxRecvMsgSize))
	}
	if opts.MaxSendMsgSize > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxSendMsgSize(opts.MaxSendMsgSize))
	}

	gs := grpc.NewServer(grpcOpts...)
	gs.RegisterService(&ServiceDesc, svc)

	return &Server{opts: opts, svc: svc, server: gs, logger: svc.logger}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	var metricsSrv *http.Server
	if s.opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.svc.Registry(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: s.opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics endpoint failed", "addr", s.opts.MetricsAddr, "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(lis)
	}()
	s.logger.Info("service ready", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		if metricsSrv != nil {
			metricsSrv.Close()
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("service stopping")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	s.server.GracefulStop()
	<-errCh
	return nil
}
