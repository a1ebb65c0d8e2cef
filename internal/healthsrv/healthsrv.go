// Package healthsrv exposes store connectivity over the standard gRPC
// health protocol.
package healthsrv

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported alongside the overall ("") status.
const Service = "oretrack.Records"

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer() *Server {
	h := health.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, h)
	return &Server{grpc: g, health: h}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
}

// MonitorConfig holds the parameters for NewMonitor.
type MonitorConfig struct {
	// Interval between pings. Defaults to 15s.
	Interval time.Duration
	// Timeout for one ping. Defaults to 3s.
	Timeout time.Duration
}

// Monitor pings the store on a ticker and mirrors the result into the
// health server.
type Monitor struct {
	pinger   Pinger
	srv      *Server
	interval time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
	cancel   context.CancelFunc
	done     chan struct{}

	mu   sync.Mutex
	last *bool
}

// NewMonitor creates a monitor but does not start it.
func NewMonitor(p Pinger, srv *Server, cfg MonitorConfig, logger logrus.FieldLogger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Monitor{
		pinger:   p,
		srv:      srv,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start checks once immediately, then on every tick, until ctx is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.Check(ctx)
	go m.loop(ctx)
	m.logger.WithField("interval", m.interval.String()).Info("store monitor started")
}

// Stop signals the monitor to exit and waits for it to finish. It is a
// no-op if Start was never called.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check pings the store once and updates the serving status. Transitions
// are logged; steady state is not.
func (m *Monitor) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pingCtx)
	cancel()
	ok := err == nil

	m.srv.setServing(ok)

	m.mu.Lock()
	changed := m.last == nil || *m.last != ok
	m.last = &ok
	m.mu.Unlock()

	if changed {
		if ok {
			m.logger.Info("record store reachable")
		} else {
			m.logger.WithError(err).Warn("record store unreachable")
		}
	}
	return ok
}
