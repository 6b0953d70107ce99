package netfsclient

import (
	"fmt"
	"net"
	"time"

	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// NotificationSession is a long-lived connection in the notification
// sub-protocol, opened by a NOTIFICATION handshake and kept alive for
// REGISTER_NOTIFICATION/UNREGISTER_NOTIFICATION round trips and
// unsolicited change frames.
type NotificationSession struct {
	conn    net.Conn
	timeout time.Duration
}

// OpenNotifications dials addr and performs the NOTIFICATION handshake
// for protocol, returning a session the caller drives with
// Register/Unregister/Next until Close.
func (c *Client) OpenNotifications(protocol string) (*NotificationSession, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	if err := sendRequest(conn, wire.CommandNotification, protocol); err != nil {
		conn.Close()
		return nil, err
	}
	return &NotificationSession{conn: conn, timeout: c.timeout}, nil
}

// Close ends the session.
func (s *NotificationSession) Close() error {
	return s.conn.Close()
}

func (s *NotificationSession) extendDeadline() {
	s.conn.SetDeadline(time.Now().Add(s.timeout))
}

// Frame is one reply or notification frame read from the session.
type Frame struct {
	Magic   wire.Magic
	Status  wire.Status
	Payload []byte
}

// ReadFrame blocks for the next frame on the session, whichever comes
// first: a reply to a pending Register/Unregister, or an unsolicited
// change notification.
func (s *NotificationSession) ReadFrame() (Frame, error) {
	s.extendDeadline()
	header, err := readFull(s.conn, wire.ReplyPreambleSize)
	if err != nil {
		return Frame{}, fmt.Errorf("netfsclient: read frame header: %w", err)
	}
	rh, err := wire.ParseReplyHeader(header)
	if err != nil {
		return Frame{}, err
	}
	body, err := readFull(s.conn, int(rh.PayloadLen))
	if err != nil {
		return Frame{}, fmt.Errorf("netfsclient: read frame body: %w", err)
	}
	return Frame{Magic: rh.Magic, Status: rh.Status, Payload: body}, nil
}

// Register subscribes to change events under path and returns the
// subscription handle. It assumes the next frame on the wire is the
// reply to this request, which holds for a session with no other
// outstanding operation.
func (s *NotificationSession) Register(path string) (uint64, error) {
	if err := s.sendSubCommand(wire.CommandRegisterNotification, path); err != nil {
		return 0, err
	}
	f, err := s.ReadFrame()
	if err != nil {
		return 0, err
	}
	if f.Magic != wire.MagicBeginChunkReply || f.Status != wire.StatusOK {
		return 0, fmt.Errorf("netfsclient: register notification: unexpected frame %s/%s", f.Magic, f.Status)
	}
	return wire.WrapBuffer(f.Payload).ReadU64()
}

// Unregister releases a subscription previously returned by Register.
func (s *NotificationSession) Unregister(handle uint64) error {
	body := wire.NewBuffer()
	body.AddU64(handle)

	preamble := wire.NewBuffer()
	preamble.AddU32(uint32(wire.CommandUnregisterNotification))
	preamble.AddU64(uint64(body.Len()))
	if _, err := s.conn.Write(preamble.Bytes()); err != nil {
		return err
	}
	if _, err := s.conn.Write(body.Bytes()); err != nil {
		return err
	}

	f, err := s.ReadFrame()
	if err != nil {
		return err
	}
	if f.Magic != wire.MagicBeginChunkReply || f.Status != wire.StatusOK {
		return fmt.Errorf("netfsclient: unregister notification: unexpected frame %s/%s", f.Magic, f.Status)
	}
	return nil
}

// NotifyEvent is a decoded change notification.
type NotifyEvent struct {
	Path string
	Kind wire.NotifyKind
}

// Next blocks for the next unsolicited change notification, skipping
// over (and rejecting) any reply frame — callers with a pending
// Register/Unregister should read that reply via ReadFrame directly
// instead of racing it against Next.
func (s *NotificationSession) Next() (NotifyEvent, error) {
	f, err := s.ReadFrame()
	if err != nil {
		return NotifyEvent{}, err
	}
	if f.Magic != wire.MagicBeginChunkNotify {
		return NotifyEvent{}, fmt.Errorf("netfsclient: expected notification frame, got %s", f.Magic)
	}
	payload := wire.WrapBuffer(f.Payload)
	path, err := payload.ReadString()
	if err != nil {
		return NotifyEvent{}, err
	}
	kind, err := payload.ReadU32()
	if err != nil {
		return NotifyEvent{}, err
	}
	return NotifyEvent{Path: path, Kind: wire.NotifyKind(kind)}, nil
}

func (s *NotificationSession) sendSubCommand(cmd wire.Command, path string) error {
	preamble := wire.NewBuffer()
	preamble.AddU32(uint32(cmd))
	preamble.AddU64(uint64(len(path)))
	if _, err := s.conn.Write(preamble.Bytes()); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(path))
	return err
}
