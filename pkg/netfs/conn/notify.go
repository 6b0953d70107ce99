package conn

import (
	"github.com/netfsd/netfsd/internal/logger"
	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/ioloop"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// beginNotificationHandshake enters the notification sub-protocol: the
// connection attaches to the broker under the chosen protocol and
// settles into a steady state of REGISTER_NOTIFICATION/
// UNREGISTER_NOTIFICATION round trips, interleaved with whatever
// change events the broker delivers. A connection that reaches this
// state never returns to request/reply mode.
func (c *Conn) beginNotificationHandshake(protocol string) bool {
	c.protocol = protocol
	c.brk.Attach(c.id, c)
	c.startNotifyPreambleRead()
	c.state = StateNotificationLoop
	c.l.ModifyHandler(loop.In, c)
	return true
}

func (c *Conn) startNotifyPreambleRead() {
	c.reader.Start(c.headerBuf[:wire.NotifyPreambleSize])
}

// handleNotificationLoop is the steady state of the notification
// sub-protocol. On IN, it reads the next 12-byte preamble (command id
// + size, no magic — the handshake already established framing) and
// branches to REGISTER_NOTIFICATION or UNREGISTER_NOTIFICATION. On
// OUT, it drains one step of the outbound queue: notification frames
// pushed by the broker and replies to REGISTER/UNREGISTER requests
// share the same FIFO.
func (c *Conn) handleNotificationLoop(flags loop.Flags) bool {
	if flags&loop.In != 0 {
		return c.readStep(func() bool {
			cmd, size, err := wire.ParseNotifyPreamble(c.headerBuf[:wire.NotifyPreambleSize])
			if err != nil {
				return c.fail(err)
			}
			switch cmd {
			case wire.CommandRegisterNotification:
				c.bodyBuf.Begin(int(size))
				c.reader.Start(c.bodyBuf.Bytes())
				c.state = StateNotificationLoopRegister
				return true
			case wire.CommandUnregisterNotification:
				c.bodyBuf.Begin(int(size))
				c.reader.Start(c.bodyBuf.Bytes())
				c.state = StateNotificationLoopUnregister
				return true
			default:
				return c.failf("unexpected command in notification loop: %v", cmd)
			}
		})
	}
	if flags&loop.Out != 0 {
		return c.drainOutbox()
	}
	return true
}

// handleNotificationLoopRegister installs a subscription for the path
// carried in the just-completed body read and queues a reply carrying
// the new handle. Re-arms the preamble read before returning to
// NotificationLoop: the shared scratch buffer must be a fresh
// NotifyPreambleSize target for the next round trip, not whatever size
// this one last resized it to.
func (c *Conn) handleNotificationLoopRegister() bool {
	return c.readStep(func() bool {
		path := c.bodyBuf.ReadStringImplicitCount()
		handle, err := c.brk.InstallNotification(c.id, c.protocol, path)
		if err != nil {
			logger.Warn("install notification failed",
				logger.ConnID(c.logID), logger.Path(path), logger.Err(err))
		}

		reply := wire.NewBuffer()
		wire.WriteReplyHeader(reply, wire.MagicBeginChunkReply, wire.StatusOK, 8)
		reply.AddU64(uint64(handle))
		c.enqueueOutbound(reply)

		return c.returnToNotificationLoop()
	})
}

// handleNotificationLoopUnregister releases the subscription named by
// the handle in the just-completed body read and queues an empty OK
// reply. Unknown or already-released handles are a silent no-op at
// the broker layer, matching the round-trip property that repeated
// unregisters never fail the connection.
func (c *Conn) handleNotificationLoopUnregister() bool {
	return c.readStep(func() bool {
		handle, _ := c.bodyBuf.ReadU64()
		if err := c.brk.UninstallNotification(c.id, c.protocol, backend.SubscriptionID(handle)); err != nil {
			logger.Warn("uninstall notification failed",
				logger.ConnID(c.logID), logger.Handle(int64(handle)), logger.Err(err))
		}

		reply := wire.NewBuffer()
		wire.WriteReplyHeader(reply, wire.MagicBeginChunkReply, wire.StatusOK, 0)
		c.enqueueOutbound(reply)

		return c.returnToNotificationLoop()
	})
}

func (c *Conn) returnToNotificationLoop() bool {
	c.startNotifyPreambleRead()
	c.state = StateNotificationLoop
	c.l.ModifyHandler(loop.In|loop.Out, c)
	return true
}

// enqueueOutbound appends buf to the connection's outbound FIFO, used
// for both REGISTER/UNREGISTER replies and broker-delivered
// notifications once a connection has entered the notification loop.
func (c *Conn) enqueueOutbound(buf *wire.Buffer) {
	c.outbox = append(c.outbox, buf)
	c.metricsQueueDepth()
}

// drainOutbox writes at most one step of the head-of-queue frame per
// dispatch, mirroring the original single-attempt-per-event-loop-turn
// behavior: a handler must never block draining an unbounded queue
// within one Handle call.
func (c *Conn) drainOutbox() bool {
	if len(c.outbox) == 0 && c.outHead == nil {
		c.l.ModifyHandler(loop.In, c)
		return true
	}
	if c.outHead == nil {
		c.outHead = c.outbox[0]
		c.outbox = c.outbox[1:]
		c.writer.Start(c.outHead.Bytes())
	}

	_, err := c.writer.Process(c.fd)
	if err != nil && err != ioloop.ErrWouldBlock {
		return c.fail(err)
	}
	if c.writer.Complete() {
		c.outHead = nil
	}
	if len(c.outbox) == 0 && c.outHead == nil {
		c.l.ModifyHandler(loop.In, c)
	}
	return true
}

// Notify implements broker.Subscriber: it is called synchronously, on
// the event loop's own thread, from within the backend's
// PollNotifications. It builds a notification frame and appends it to
// the outbound queue, widening the connection's interest to OUT if the
// queue was empty — mirroring the original's reply_queue.empty() check
// before flipping the epoll mask.
func (c *Conn) Notify(protocol string, ev backend.NotifyEvent) {
	reply := wire.NewBuffer()
	offset := wire.WriteReplyHeader(reply, wire.MagicBeginChunkNotify, wire.StatusOK, 0)
	reply.AddString(ev.Path)
	reply.AddU32(uint32(toNotifyKind(ev.Kind)))
	reply.PokeU64(offset, uint64(reply.Len()-(offset+8)))

	wasEmpty := len(c.outbox) == 0 && c.outHead == nil
	c.enqueueOutbound(reply)

	if wasEmpty && c.l != nil {
		c.l.ModifyHandler(loop.In|loop.Out, c)
	}
}
