// Package listener implements the server's accept loop: a single
// loop.Handler bound to the listening socket that wraps every accepted
// connection in a conn.Conn and registers it with the same event loop.
package listener

import (
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/netfsd/netfsd/internal/logger"
	"github.com/netfsd/netfsd/pkg/netfs/broker"
	"github.com/netfsd/netfsd/pkg/netfs/conn"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/metrics"
)

// Listener is a loop.Handler for the bound, listening socket. On each
// readiness dispatch it drains every connection the kernel has queued,
// stopping at EAGAIN rather than assuming exactly one per dispatch.
type Listener struct {
	fd int

	connDeps    conn.Deps
	metrics     metrics.Collector
	nextConnID  atomic.Uint64
	activeConns atomic.Int64
}

// New binds and listens on addr (host:port, TCP) and returns a
// Listener ready to register with a loop.Loop. connDeps is cloned for
// every accepted connection, with OnClose wired to keep this
// listener's active-connection gauge accurate.
func New(addr string, connDeps conn.Deps, m metrics.Collector) (*Listener, error) {
	fd, err := bindListen(addr)
	if err != nil {
		return nil, err
	}
	return &Listener{fd: fd, connDeps: connDeps, metrics: m}, nil
}

// FD returns the listening socket's file descriptor.
func (l *Listener) FD() int { return l.fd }

// Addr returns the address the listening socket is bound to, resolving
// the actual port the kernel assigned for a ":0" bind.
func (l *Listener) Addr() (string, error) {
	return sockaddrForFD(l.fd)
}

// Handle accepts every connection currently queued and registers each
// with the loop in ReadCommand state.
func (l *Listener) Handle(lp *loop.Loop, _ loop.Flags) bool {
	for {
		fd, sa, err := unix.Accept(l.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return true
			}
			logger.Warn("accept failed", logger.Err(err))
			return true
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			logger.Warn("set nonblocking failed on accepted connection", logger.Err(err))
			unix.Close(fd)
			continue
		}

		remote := remoteAddrString(sa)
		id := broker.ConnID(l.nextConnID.Add(1))

		deps := l.connDeps
		active := &l.activeConns
		metricsCollector := l.metrics
		deps.OnClose = func() {
			n := active.Add(-1)
			if metricsCollector != nil {
				metricsCollector.SetActiveConnections(int(n))
			}
		}

		c := conn.New(fd, id, remote, deps)
		if err := lp.RegisterHandler(loop.In, c); err != nil {
			logger.Warn("register accepted connection failed", logger.Err(err))
			unix.Close(fd)
			continue
		}

		n := l.activeConns.Add(1)
		if l.metrics != nil {
			l.metrics.RecordConnectionAccepted()
			l.metrics.SetActiveConnections(int(n))
		}
		logger.Debug("connection accepted", logger.ConnID(strconv.FormatUint(uint64(id), 10)), logger.RemoteAddr(remote))
	}
}

// Close shuts down the listening socket. Already-accepted connections
// are unaffected; the loop owns their lifecycle from here.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}
