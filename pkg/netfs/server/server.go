// Package server wires together the registry, broker, event loop, and
// listener into one running netfsd process, and drives the event
// loop's single goroutine until a caller-supplied context is
// cancelled.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netfsd/netfsd/internal/config"
	"github.com/netfsd/netfsd/internal/logger"
	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/backend/localfs"
	"github.com/netfsd/netfsd/pkg/netfs/backend/s3"
	"github.com/netfsd/netfsd/pkg/netfs/broker"
	"github.com/netfsd/netfsd/pkg/netfs/conn"
	"github.com/netfsd/netfsd/pkg/netfs/listener"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/metrics"
	metricsprom "github.com/netfsd/netfsd/pkg/netfs/metrics/prometheus"
)

// pollTimeoutMillis bounds how long a single Wait blocks, so the
// Serve loop periodically re-checks ctx even with no fd activity.
const pollTimeoutMillis = 250

// Server owns the event loop, the listening socket, every registered
// backend, and (if enabled) the metrics HTTP endpoint for one netfsd
// process.
type Server struct {
	cfg *config.Config

	registry *backend.Registry
	broker   *broker.Broker
	loop     *loop.Loop
	listener *listener.Listener
	metrics  metrics.Collector

	metricsSrv *http.Server
	closers    []func() error
}

// New builds a Server from cfg: it registers every configured backend,
// binds the listening socket, and wires the broker's notification
// adoption into the event loop. It does not block; call Serve to run.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		registry: backend.NewRegistry(),
	}

	for _, bc := range cfg.Backends {
		if err := s.registerBackend(bc); err != nil {
			return nil, err
		}
	}

	s.broker = broker.New(s.registry)

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector := metricsprom.New(reg)
		s.metrics = collector
		s.metricsSrv = newMetricsServer(cfg.Metrics.ListenAddr, reg)
	}

	l, err := loop.New()
	if err != nil {
		return nil, fmt.Errorf("server: new event loop: %w", err)
	}
	s.loop = l

	if err := s.broker.AdoptBackends(l); err != nil {
		s.closeAll()
		return nil, fmt.Errorf("server: adopt backend notifications: %w", err)
	}

	ln, err := listener.New(cfg.Server.ListenAddr, conn.Deps{
		Registry:        s.registry,
		Broker:          s.broker,
		Metrics:         s.metrics,
		DefaultProtocol: cfg.Server.DefaultProtocol,
	}, s.metrics)
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("server: bind listener: %w", err)
	}
	s.listener = ln
	s.closers = append(s.closers, ln.Close)

	if err := l.RegisterHandler(loop.In, ln); err != nil {
		s.closeAll()
		return nil, fmt.Errorf("server: register listener: %w", err)
	}

	return s, nil
}

// ListenAddr returns the address the server's socket is bound to,
// resolving the actual port the kernel assigned for a ":0" bind.
func (s *Server) ListenAddr() (string, error) {
	return s.listener.Addr()
}

func (s *Server) registerBackend(bc config.BackendConfig) error {
	var be backend.Backend
	switch bc.Kind {
	case config.BackendKindLocalFS:
		lb, err := localfs.New(bc.LocalFS.Root)
		if err != nil {
			return fmt.Errorf("server: backend %q: %w", bc.Protocol, err)
		}
		be = lb
		s.closers = append(s.closers, lb.Close)
	case config.BackendKindS3:
		sb, err := s3.New(context.Background(), s3.Config{
			Bucket:          bc.S3.Bucket,
			Prefix:          bc.S3.Prefix,
			Region:          bc.S3.Region,
			Endpoint:        bc.S3.Endpoint,
			AccessKeyID:     bc.S3.AccessKeyID,
			SecretAccessKey: bc.S3.SecretAccessKey,
			ForcePathStyle:  bc.S3.ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("server: backend %q: %w", bc.Protocol, err)
		}
		be = sb
	default:
		return fmt.Errorf("server: backend %q: unknown kind %q", bc.Protocol, bc.Kind)
	}

	s.registry.Register(bc.Protocol, be)
	logger.Info("backend registered", logger.Protocol(bc.Protocol), "kind", string(bc.Kind))
	return nil
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}

// Serve runs the event loop until ctx is cancelled, then drains
// in-flight connections for up to Server.ShutdownTimeout before
// returning. It blocks for the lifetime of the server.
func (s *Server) Serve(ctx context.Context) error {
	if s.metricsSrv != nil {
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
	}

	logger.Info("netfsd listening", "addr", s.cfg.Server.ListenAddr)

	for ctx.Err() == nil {
		if _, err := s.loop.Wait(pollTimeoutMillis); err != nil {
			return fmt.Errorf("server: event loop: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops accepting new connections and lets in-flight
// connections drain for Server.ShutdownTimeout, continuing to service
// the loop so pending writes and notification frames can flush.
func (s *Server) shutdown() error {
	logger.Info("shutting down")

	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", logger.Err(err))
		}
	}

	s.listener.Close()

	deadline := time.Now().Add(s.cfg.Server.ShutdownTimeout)
	for time.Now().Before(deadline) {
		n, err := s.loop.Wait(pollTimeoutMillis)
		if err != nil {
			return fmt.Errorf("server: drain event loop: %w", err)
		}
		if n == 0 {
			break
		}
	}

	return s.closeAll()
}

func (s *Server) closeAll() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.loop != nil {
		if err := s.loop.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
