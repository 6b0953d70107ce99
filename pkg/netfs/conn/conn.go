// Package conn implements the per-connection protocol state machine:
// parsing requests, dispatching them against a filesystem backend,
// streaming replies, and running the notification sub-protocol once a
// connection selects a protocol via NOTIFICATION. A Conn is a
// loop.Handler; its Handle method is a single dispatch keyed on the
// connection's current state tag.
package conn

import (
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/netfsd/netfsd/internal/logger"
	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/broker"
	"github.com/netfsd/netfsd/pkg/netfs/ioloop"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/metrics"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// State tags the connection's position in the protocol state machine.
type State int

const (
	StateReadCommand State = iota
	StateReadChunkSize
	StateReadChunkData
	StateReadChunkSize2
	StateReadChunkData2
	StateWriteReplyChunk
	StateWriteReplyData
	StateNotificationLoop
	StateNotificationLoopRegister
	StateNotificationLoopUnregister
)

func (s State) String() string {
	switch s {
	case StateReadCommand:
		return "ReadCommand"
	case StateReadChunkSize:
		return "ReadChunkSize"
	case StateReadChunkData:
		return "ReadChunkData"
	case StateReadChunkSize2:
		return "ReadChunkSize2"
	case StateReadChunkData2:
		return "ReadChunkData2"
	case StateWriteReplyChunk:
		return "WriteReplyChunk"
	case StateWriteReplyData:
		return "WriteReplyData"
	case StateNotificationLoop:
		return "NotificationLoop"
	case StateNotificationLoopRegister:
		return "NotificationLoopRegister"
	case StateNotificationLoopUnregister:
		return "NotificationLoopUnregister"
	default:
		return "Unknown"
	}
}

// Deps are the collaborators a Conn dispatches against. Registry and
// Broker are required; Metrics may be a nil-receiver-safe concrete
// value (or omitted, in which case Conn no-ops its own metrics calls).
type Deps struct {
	Registry *backend.Registry
	Broker   *broker.Broker
	Metrics  metrics.Collector

	// DefaultProtocol is the backend protocol used for STAT, LIST,
	// WALK, READ_FILE, and WRITE_FILE. The NOTIFICATION handshake
	// separately selects a (possibly different) protocol scoped to
	// the connection's notification subscriptions.
	DefaultProtocol string

	// OnClose, if set, is invoked once after teardown completes
	// (close reason already recorded), letting the listener keep an
	// aggregate active-connection count without Conn needing to know
	// about the listener.
	OnClose func()
}

// Conn is one client connection's protocol state machine.
type Conn struct {
	fd         int
	id         broker.ConnID
	logID      string
	remoteAddr string

	registry        *backend.Registry
	brk             *broker.Broker
	metrics         metrics.Collector
	defaultProtocol string
	onClose         func()

	l *loop.Loop

	state      State
	commandID  wire.Command
	protocol   string
	closeReason string

	headerBuf [wire.RequestPreambleSize]byte
	bodyBuf   *wire.Buffer
	replyBuf  *wire.Buffer

	reader *ioloop.Reader
	writer *ioloop.Writer

	file   backend.File
	mapped []byte

	writeFileAwaitingBody bool

	outbox  []*wire.Buffer
	outHead *wire.Buffer
}

// New returns a Conn in state ReadCommand, ready to register with the
// event loop.
func New(fd int, id broker.ConnID, remoteAddr string, deps Deps) *Conn {
	c := &Conn{
		fd:              fd,
		id:              id,
		logID:           uuid.NewString(),
		remoteAddr:      remoteAddr,
		registry:        deps.Registry,
		brk:             deps.Broker,
		metrics:         deps.Metrics,
		defaultProtocol: deps.DefaultProtocol,
		onClose:         deps.OnClose,
		state:           StateReadCommand,
		bodyBuf:         wire.NewBuffer(),
		replyBuf:        wire.NewBuffer(),
		reader:          ioloop.NewReader(),
		writer:          ioloop.NewWriter(),
	}
	c.reader.Start(c.headerBuf[0:4])
	return c
}

// FD returns the connection's socket file descriptor.
func (c *Conn) FD() int { return c.fd }

// Handle dispatches one readiness event to the state-specific handler
// and runs teardown if the connection is to be destroyed.
func (c *Conn) Handle(l *loop.Loop, flags loop.Flags) bool {
	c.l = l
	ok := c.dispatch(flags)
	if !ok {
		c.teardown()
	}
	return ok
}

func (c *Conn) dispatch(flags loop.Flags) bool {
	switch c.state {
	case StateReadCommand:
		return c.handleReadCommand()
	case StateReadChunkSize:
		return c.handleReadChunkSize()
	case StateReadChunkData:
		return c.handleReadChunkData()
	case StateReadChunkSize2:
		return c.handleReadChunkSize2()
	case StateReadChunkData2:
		return c.handleReadChunkData2()
	case StateWriteReplyChunk:
		return c.handleWriteReplyChunk()
	case StateWriteReplyData:
		return c.handleWriteReplyData()
	case StateNotificationLoop:
		return c.handleNotificationLoop(flags)
	case StateNotificationLoopRegister:
		return c.handleNotificationLoopRegister()
	case StateNotificationLoopUnregister:
		return c.handleNotificationLoopUnregister()
	default:
		return c.failf("unknown state %v", c.state)
	}
}

// teardown releases everything this connection owns: any open file
// and its mapping, the pending outbound queue, and every notification
// subscription registered at the broker. Cleanup runs regardless of
// why the connection is closing.
func (c *Conn) teardown() {
	if c.file != nil {
		c.file.Unmap()
		c.file.Close()
		c.file = nil
	}
	c.outbox = nil
	c.outHead = nil

	c.brk.Detach(c.id)

	reason := c.closeReason
	if reason == "" {
		reason = "error"
	}
	c.metricsClosed(reason)

	unix.Close(c.fd)

	logger.Debug("connection closed",
		logger.ConnID(c.logID), logger.RemoteAddr(c.remoteAddr))

	if c.onClose != nil {
		c.onClose()
	}
}

// readStep drives the connection's reader and calls onComplete once
// its target buffer fills. ErrWouldBlock parks in the current state;
// any other error is fatal to the connection.
func (c *Conn) readStep(onComplete func() bool) bool {
	_, err := c.reader.Process(c.fd)
	if err != nil {
		if err == ioloop.ErrWouldBlock {
			return true
		}
		return c.fail(err)
	}
	if !c.reader.Complete() {
		return true
	}
	return onComplete()
}

// writeStep mirrors readStep for the connection's writer.
func (c *Conn) writeStep(onComplete func() bool) bool {
	_, err := c.writer.Process(c.fd)
	if err != nil {
		if err == ioloop.ErrWouldBlock {
			return true
		}
		return c.fail(err)
	}
	if !c.writer.Complete() {
		return true
	}
	return onComplete()
}
