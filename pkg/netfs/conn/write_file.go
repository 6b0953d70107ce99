package conn

import (
	"time"

	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// handleReadChunkSize2 reads the write-file body preamble (magic +
// payload length, no command id — the command is already known) and
// maps a writable region of that size for zero-copy ingest.
func (c *Conn) handleReadChunkSize2() bool {
	return c.readStep(func() bool {
		payloadLen, err := wire.ParseBodyPreamble(c.headerBuf[:wire.BodyPreambleSize])
		if err != nil {
			return c.fail(err)
		}

		mapped, err := c.file.MapWrite(payloadLen)
		if err != nil {
			return c.emitIOError(wire.CommandWriteFile, err)
		}
		c.mapped = mapped
		c.reader.Start(mapped)
		c.state = StateReadChunkData2
		return true
	})
}

// handleReadChunkData2 completes the body ingest and replies with the
// file's final size, again via the dual-purpose payload_len field.
func (c *Conn) handleReadChunkData2() bool {
	return c.readStep(func() bool {
		start := time.Now()
		size, err := c.file.Size()
		if err != nil {
			c.recordCommand(wire.CommandWriteFile, time.Since(start), err)
			return c.emitIOError(wire.CommandWriteFile, err)
		}
		c.recordCommand(wire.CommandWriteFile, time.Since(start), nil)
		c.metricsBytes("write", size)

		c.replyBuf.Begin(0)
		wire.WriteReplyHeader(c.replyBuf, wire.MagicBeginChunkReply, wire.StatusOK, size)
		return c.startReply()
	})
}

// handleWriteReplyChunk drains the single in-flight reply header. What
// happens once it's fully written depends on which command is in
// flight and, for WRITE_FILE, which of its two reply points this is:
// the open-ack (resume reading the body) or the final reply (release
// the file and close).
func (c *Conn) handleWriteReplyChunk() bool {
	return c.writeStep(func() bool {
		switch c.commandID {
		case wire.CommandReadFile:
			if c.mapped != nil {
				c.writer.Start(c.mapped)
				c.state = StateWriteReplyData
				return true
			}
			c.releaseFile()
			return c.finish()
		case wire.CommandWriteFile:
			if c.writeFileAwaitingBody {
				c.writeFileAwaitingBody = false
				c.reader.Start(c.headerBuf[:wire.BodyPreambleSize])
				c.state = StateReadChunkSize2
				c.l.ModifyHandler(loop.In, c)
				return true
			}
			c.releaseFile()
			return c.finish()
		default:
			return c.finish()
		}
	})
}

// handleWriteReplyData drains the mapped file body following a
// READ_FILE reply header.
func (c *Conn) handleWriteReplyData() bool {
	return c.writeStep(func() bool {
		c.releaseFile()
		return c.finish()
	})
}

func (c *Conn) releaseFile() {
	if c.file == nil {
		return
	}
	c.file.Unmap()
	c.file.Close()
	c.file = nil
	c.mapped = nil
}
