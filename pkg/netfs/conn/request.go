package conn

import (
	"context"
	"time"

	"github.com/netfsd/netfsd/internal/telemetry"
	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// handleReadCommand reads the 4-byte command id that opens every
// request and, once known, primes the reader for the remaining 12
// bytes of the full request header (state ReadChunkSize).
func (c *Conn) handleReadCommand() bool {
	return c.readStep(func() bool {
		cmdID, _ := wire.WrapBuffer(c.headerBuf[0:4]).ReadU32()
		cmd := wire.Command(cmdID)
		switch cmd {
		case wire.CommandWalk, wire.CommandList, wire.CommandReadFile,
			wire.CommandWriteFile, wire.CommandStat, wire.CommandNotification:
			c.commandID = cmd
			c.reader.Start(c.headerBuf[4:16])
			c.state = StateReadChunkSize
			return true
		default:
			return c.failf("unknown command id %d", cmdID)
		}
	})
}

// handleReadChunkSize completes the request header (magic + payload
// length), validates it, and reads the payload — the request's path
// argument, in every command this state is reached for.
func (c *Conn) handleReadChunkSize() bool {
	return c.readStep(func() bool {
		h, err := wire.ParseRequestHeader(c.headerBuf[:wire.RequestPreambleSize])
		if err != nil {
			// Malformed header: a protocol error terminates the
			// connection with no reply, per the no-reply rule for
			// transport-level violations.
			return c.fail(err)
		}
		c.bodyBuf.Begin(int(h.PayloadLen))
		c.reader.Start(c.bodyBuf.Bytes())
		c.state = StateReadChunkData
		return true
	})
}

// handleReadChunkData completes the payload read and dispatches to the
// command-specific handler.
func (c *Conn) handleReadChunkData() bool {
	return c.readStep(func() bool {
		path := c.bodyBuf.ReadStringImplicitCount()
		cmd := c.commandID
		ctx, span := telemetry.StartSpan(context.Background(), cmd.String())
		defer span.End()

		switch cmd {
		case wire.CommandStat:
			return c.beginStat(ctx, path)
		case wire.CommandList:
			return c.beginListing(ctx, wire.CommandList, path)
		case wire.CommandWalk:
			return c.beginListing(ctx, wire.CommandWalk, path)
		case wire.CommandReadFile:
			return c.beginReadFile(ctx, path)
		case wire.CommandWriteFile:
			return c.beginWriteFile(ctx, path)
		case wire.CommandNotification:
			return c.beginNotificationHandshake(path)
		default:
			return c.failf("unexpected command in ReadChunkData: %v", cmd)
		}
	})
}

func (c *Conn) lookupDefaultBackend() (backend.Backend, error) {
	return c.registry.Lookup(c.defaultProtocol)
}

// emitTracedIOError records err on ctx's span before queuing the
// ERROR_IO reply, so a failed command's span reflects why it failed.
func (c *Conn) emitTracedIOError(ctx context.Context, cmd wire.Command, err error) bool {
	telemetry.RecordError(ctx, err)
	return c.emitIOError(cmd, err)
}

func (c *Conn) beginStat(ctx context.Context, path string) bool {
	start := time.Now()
	be, err := c.lookupDefaultBackend()
	if err != nil {
		return c.emitTracedIOError(ctx, wire.CommandStat, err)
	}

	entry, size, err := be.Stat(ctx, path)
	c.recordCommand(wire.CommandStat, time.Since(start), err)
	if err != nil {
		return c.emitTracedIOError(ctx, wire.CommandStat, err)
	}

	c.replyBuf.Begin(0)
	offset := wire.WriteReplyHeader(c.replyBuf, wire.MagicBeginChunkReply, wire.StatusOK, 0)
	c.replyBuf.AddU64(size)
	c.replyBuf.AddU32(uint32(toPathType(entry.Type)))
	c.replyBuf.PokeU64(offset, uint64(c.replyBuf.Len()-(offset+8)))
	return c.startReply()
}

// beginListing implements both LIST and WALK: a count followed by that
// many (path, type) pairs. The only difference is which backend method
// supplies the entries.
func (c *Conn) beginListing(ctx context.Context, cmd wire.Command, path string) bool {
	start := time.Now()
	be, err := c.lookupDefaultBackend()
	if err != nil {
		return c.emitTracedIOError(ctx, cmd, err)
	}

	var entries []backend.Entry
	if cmd == wire.CommandList {
		entries, err = be.List(ctx, path)
	} else {
		entries, err = be.Walk(ctx, path)
	}
	c.recordCommand(cmd, time.Since(start), err)
	if err != nil {
		return c.emitTracedIOError(ctx, cmd, err)
	}

	c.replyBuf.Begin(0)
	offset := wire.WriteReplyHeader(c.replyBuf, wire.MagicBeginChunkReply, wire.StatusOK, 0)
	c.replyBuf.AddU32(uint32(len(entries)))
	for _, e := range entries {
		c.replyBuf.AddString(e.Path)
		c.replyBuf.AddU32(uint32(toPathType(e.Type)))
	}
	c.replyBuf.PokeU64(offset, uint64(c.replyBuf.Len()-(offset+8)))
	return c.startReply()
}

// beginReadFile opens path and maps it for zero-copy streaming. The
// reply's payload_len field doubles as the file size; a zero-byte file
// maps to nil and the connection closes after the header alone, with
// no WriteReplyData step.
func (c *Conn) beginReadFile(ctx context.Context, path string) bool {
	start := time.Now()
	be, err := c.lookupDefaultBackend()
	if err != nil {
		return c.emitTracedIOError(ctx, wire.CommandReadFile, err)
	}

	f, err := be.Open(ctx, path, backend.ModeRead)
	if err != nil {
		c.recordCommand(wire.CommandReadFile, time.Since(start), err)
		return c.emitTracedIOError(ctx, wire.CommandReadFile, err)
	}

	size, err := f.Size()
	if err != nil {
		f.Close()
		c.recordCommand(wire.CommandReadFile, time.Since(start), err)
		return c.emitTracedIOError(ctx, wire.CommandReadFile, err)
	}

	var mapped []byte
	if size > 0 {
		mapped, err = f.Map()
		if err != nil {
			f.Close()
			c.recordCommand(wire.CommandReadFile, time.Since(start), err)
			return c.emitTracedIOError(ctx, wire.CommandReadFile, err)
		}
	}
	c.recordCommand(wire.CommandReadFile, time.Since(start), nil)
	c.metricsBytes("read", size)

	c.file = f
	c.mapped = mapped

	c.replyBuf.Begin(0)
	wire.WriteReplyHeader(c.replyBuf, wire.MagicBeginChunkReply, wire.StatusOK, size)
	return c.startReply()
}

// beginWriteFile opens path for writing and, on success, acknowledges
// immediately with an OK/size=0 reply before reading the body preamble
// — the client does not send the write's body until it sees this ack.
func (c *Conn) beginWriteFile(ctx context.Context, path string) bool {
	start := time.Now()
	be, err := c.lookupDefaultBackend()
	if err != nil {
		return c.emitTracedIOError(ctx, wire.CommandWriteFile, err)
	}

	f, err := be.Open(ctx, path, backend.ModeWrite)
	c.recordCommand(wire.CommandWriteFile, time.Since(start), err)
	if err != nil {
		return c.emitTracedIOError(ctx, wire.CommandWriteFile, err)
	}
	c.file = f

	c.writeFileAwaitingBody = true
	c.replyBuf.Begin(0)
	wire.WriteReplyHeader(c.replyBuf, wire.MagicBeginChunkReply, wire.StatusOK, 0)
	return c.startReply()
}
