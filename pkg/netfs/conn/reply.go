package conn

import (
	"fmt"
	"time"

	"github.com/netfsd/netfsd/internal/logger"
	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// fail logs a fatal connection error and marks the close reason as
// "error". It never writes a reply: protocol-level violations and I/O
// failures below the reply layer close the socket with no frame at
// all, per the no-reply rule for transport errors.
func (c *Conn) fail(err error) bool {
	logger.Warn("connection terminated",
		logger.ConnID(c.logID), logger.RemoteAddr(c.remoteAddr), logger.Err(err))
	c.closeReason = "error"
	return false
}

func (c *Conn) failf(format string, args ...any) bool {
	return c.fail(fmt.Errorf(format, args...))
}

// finish ends the connection after a normal single-shot exchange
// completes. Every non-notification command terminates the connection
// once its reply (and, for READ_FILE, body) has been flushed.
func (c *Conn) finish() bool {
	if c.closeReason == "" {
		c.closeReason = "client"
	}
	return false
}

// emitIOError replaces whatever reply was in progress with a
// well-formed ERROR_IO frame and queues it for the single in-flight
// reply writer. The connection still terminates once it's flushed —
// errors are surfaced at the protocol layer, not swallowed.
func (c *Conn) emitIOError(cmd wire.Command, err error) bool {
	logger.Debug("command failed",
		logger.ConnID(c.logID), logger.Command(cmd.String()), logger.Err(err))
	wire.ErrorReply(c.replyBuf)
	return c.startReply()
}

func (c *Conn) startReply() bool {
	c.writer.Start(c.replyBuf.Bytes())
	c.state = StateWriteReplyChunk
	c.l.ModifyHandler(loop.Out, c)
	return true
}

func (c *Conn) recordCommand(cmd wire.Command, d time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	status := 0
	if err != nil {
		status = 1
	}
	c.metrics.RecordCommand(cmd.String(), c.defaultProtocol, d, status)
}

func (c *Conn) metricsBytes(direction string, n uint64) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordBytesTransferred(c.defaultProtocol, direction, n)
}

func (c *Conn) metricsClosed(reason string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordConnectionClosed(reason)
}

func (c *Conn) metricsQueueDepth() {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveQueueDepth(len(c.outbox))
}

func toPathType(t backend.EntryType) wire.PathType {
	switch t {
	case backend.EntryDirectory:
		return wire.PathTypeDirectory
	case backend.EntrySpecial:
		return wire.PathTypeSpecial
	default:
		return wire.PathTypePlain
	}
}

func toNotifyKind(k backend.NotifyKind) wire.NotifyKind {
	switch k {
	case backend.NotifyCreated:
		return wire.NotifyFileCreated
	case backend.NotifyDeleted:
		return wire.NotifyFileDeleted
	default:
		return wire.NotifyFileChanged
	}
}
