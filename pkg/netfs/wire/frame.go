package wire

import "fmt"

// RequestHeader is the fixed preamble of a client request frame:
// command_id:u32 | magic:u32 | payload_len:u64.
type RequestHeader struct {
	Command    Command
	Magic      Magic
	PayloadLen uint64
}

// ParseRequestHeader decodes a RequestHeader from exactly
// RequestPreambleSize bytes. It validates the magic and rejects
// zero-length payloads; both are protocol errors that callers must
// treat as fatal to the connection.
func ParseRequestHeader(b []byte) (RequestHeader, error) {
	if len(b) != RequestPreambleSize {
		return RequestHeader{}, fmt.Errorf("wire: request preamble must be %d bytes, got %d", RequestPreambleSize, len(b))
	}
	buf := &Buffer{data: b}
	commandID, _ := buf.ReadU32()
	magic, _ := buf.ReadU32()
	payloadLen, _ := buf.ReadU64()

	h := RequestHeader{
		Command:    Command(commandID),
		Magic:      Magic(magic),
		PayloadLen: payloadLen,
	}
	if h.Magic != MagicBeginChunkRequest {
		return h, fmt.Errorf("wire: bad request magic %s", h.Magic)
	}
	if h.PayloadLen == 0 {
		return h, fmt.Errorf("wire: zero-length request payload")
	}
	return h, nil
}

// WriteRequestHeader appends a request preamble to buf and returns the
// offset of the payload_len field so it can be poked later if the
// payload is built incrementally.
func WriteRequestHeader(buf *Buffer, cmd Command, payloadLen uint64) (payloadLenOffset int) {
	buf.AddU32(uint32(cmd))
	buf.AddU32(uint32(MagicBeginChunkRequest))
	return buf.AddU64(payloadLen)
}

// ReplyHeader is the fixed preamble of a reply or notification frame:
// magic:u32 | status:u32 | payload_len:u64.
type ReplyHeader struct {
	Magic      Magic
	Status     Status
	PayloadLen uint64
}

// ParseReplyHeader decodes a ReplyHeader from exactly ReplyPreambleSize
// bytes.
func ParseReplyHeader(b []byte) (ReplyHeader, error) {
	if len(b) != ReplyPreambleSize {
		return ReplyHeader{}, fmt.Errorf("wire: reply preamble must be %d bytes, got %d", ReplyPreambleSize, len(b))
	}
	buf := &Buffer{data: b}
	magic, _ := buf.ReadU32()
	status, _ := buf.ReadU32()
	payloadLen, _ := buf.ReadU64()

	return ReplyHeader{
		Magic:      Magic(magic),
		Status:     Status(status),
		PayloadLen: payloadLen,
	}, nil
}

// WriteReplyHeader appends a reply preamble to buf and returns the
// offset of the payload_len field.
func WriteReplyHeader(buf *Buffer, magic Magic, status Status, payloadLen uint64) (payloadLenOffset int) {
	buf.AddU32(uint32(magic))
	buf.AddU32(uint32(status))
	return buf.AddU64(payloadLen)
}

// ErrorReply builds a well-formed ERROR_IO reply frame: magic,
// ERROR_IO, and a zero payload_len, per the protocol's rule that I/O
// errors surfaced to the client always carry an empty payload.
func ErrorReply(buf *Buffer) {
	buf.Begin(0)
	WriteReplyHeader(buf, MagicBeginChunkReply, StatusIO, 0)
}

// BodyPreambleSize is the size in bytes of magic:u32 | payload_len:u64,
// the reduced preamble that precedes a WRITE_FILE request's body (the
// command id is already known from the original request).
const BodyPreambleSize = 4 + 8

// ParseBodyPreamble decodes a write-file body preamble from exactly
// BodyPreambleSize bytes, validating the magic and rejecting a
// zero-length body.
func ParseBodyPreamble(b []byte) (payloadLen uint64, err error) {
	if len(b) != BodyPreambleSize {
		return 0, fmt.Errorf("wire: body preamble must be %d bytes, got %d", BodyPreambleSize, len(b))
	}
	buf := &Buffer{data: b}
	magic, _ := buf.ReadU32()
	payloadLen, _ = buf.ReadU64()

	if Magic(magic) != MagicBeginChunkRequest {
		return payloadLen, fmt.Errorf("wire: bad body preamble magic %s", Magic(magic))
	}
	if payloadLen == 0 {
		return 0, fmt.Errorf("wire: zero-length body payload")
	}
	return payloadLen, nil
}

// NotifyPreambleSize is the size in bytes of command_id:u32 | size:u64,
// the preamble a connection reads inside the notification sub-protocol
// steady state. Unlike every other preamble, it carries no magic field:
// the handshake that entered this state already established the
// framing contract.
const NotifyPreambleSize = 4 + 8

// ParseNotifyPreamble decodes a notification sub-protocol preamble from
// exactly NotifyPreambleSize bytes.
func ParseNotifyPreamble(b []byte) (Command, uint64, error) {
	if len(b) != NotifyPreambleSize {
		return 0, 0, fmt.Errorf("wire: notify preamble must be %d bytes, got %d", NotifyPreambleSize, len(b))
	}
	buf := &Buffer{data: b}
	cmd, _ := buf.ReadU32()
	size, _ := buf.ReadU64()
	return Command(cmd), size, nil
}
