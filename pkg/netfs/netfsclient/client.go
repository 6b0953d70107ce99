// Package netfsclient is a minimal, synchronous client for the netfs
// wire protocol, used by integration tests to drive a real server
// end-to-end without reimplementing the framing by hand in every test.
// It is not a general-purpose client library: each request opens its
// own connection, matching the protocol's rule that every
// non-notification exchange terminates the connection once its reply
// is flushed.
package netfsclient

import (
	"fmt"
	"net"
	"time"

	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// Client dials addr fresh for every request/reply style command.
type Client struct {
	addr    string
	timeout time.Duration
}

// New returns a Client targeting addr, with a default 5s per-call
// timeout.
func New(addr string) *Client {
	return &Client{addr: addr, timeout: 5 * time.Second}
}

// Entry mirrors one backend.Entry as reported over the wire.
type Entry struct {
	Path string
	Type wire.PathType
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("netfsclient: dial %s: %w", c.addr, err)
	}
	conn.SetDeadline(time.Now().Add(c.timeout))
	return conn, nil
}

func sendRequest(conn net.Conn, cmd wire.Command, path string) error {
	buf := wire.NewBuffer()
	offset := wire.WriteRequestHeader(buf, cmd, 0)
	bodyStart := buf.Len()
	buf.AddBytes([]byte(path))
	buf.PokeU64(offset, uint64(buf.Len()-bodyStart))
	_, err := conn.Write(buf.Bytes())
	return err
}

func readFull(conn net.Conn, n int) ([]byte, error) {
	buf := make([]byte, n)
	total := 0
	for total < n {
		got, err := conn.Read(buf[total:])
		total += got
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func readReply(conn net.Conn) (wire.ReplyHeader, []byte, error) {
	header, err := readFull(conn, wire.ReplyPreambleSize)
	if err != nil {
		return wire.ReplyHeader{}, nil, fmt.Errorf("netfsclient: read reply header: %w", err)
	}
	rh, err := wire.ParseReplyHeader(header)
	if err != nil {
		return wire.ReplyHeader{}, nil, err
	}
	if rh.Status != wire.StatusOK {
		return rh, nil, fmt.Errorf("netfsclient: %s", rh.Status)
	}
	body, err := readFull(conn, int(rh.PayloadLen))
	if err != nil {
		return wire.ReplyHeader{}, nil, fmt.Errorf("netfsclient: read reply body: %w", err)
	}
	return rh, body, nil
}

// Stat returns the size and type of path.
func (c *Client) Stat(path string) (size uint64, typ wire.PathType, err error) {
	conn, err := c.dial()
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	if err := sendRequest(conn, wire.CommandStat, path); err != nil {
		return 0, 0, err
	}
	_, body, err := readReply(conn)
	if err != nil {
		return 0, 0, err
	}
	payload := wire.WrapBuffer(body)
	size, _ = payload.ReadU64()
	t, _ := payload.ReadU32()
	return size, wire.PathType(t), nil
}

func listEntries(conn net.Conn, cmd wire.Command, path string) ([]Entry, error) {
	if err := sendRequest(conn, cmd, path); err != nil {
		return nil, err
	}
	_, body, err := readReply(conn)
	if err != nil {
		return nil, err
	}

	payload := wire.WrapBuffer(body)
	count, err := payload.ReadU32()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := payload.ReadString()
		if err != nil {
			return nil, err
		}
		t, err := payload.ReadU32()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: p, Type: wire.PathType(t)})
	}
	return entries, nil
}

// List returns the direct children of path.
func (c *Client) List(path string) ([]Entry, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return listEntries(conn, wire.CommandList, path)
}

// Walk returns every descendant of path, recursively.
func (c *Client) Walk(path string) ([]Entry, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return listEntries(conn, wire.CommandWalk, path)
}

// ReadFile returns the full contents of path.
func (c *Client) ReadFile(path string) ([]byte, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := sendRequest(conn, wire.CommandReadFile, path); err != nil {
		return nil, err
	}
	_, body, err := readReply(conn)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFile writes data to path, following the protocol's ack-then-body
// handshake: an OK/size=0 reply arrives before the body is sent, then a
// second OK reply carries the final size once the write completes.
func (c *Client) WriteFile(path string, data []byte) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := sendRequest(conn, wire.CommandWriteFile, path); err != nil {
		return err
	}
	if _, _, err := readReply(conn); err != nil {
		return fmt.Errorf("netfsclient: write ack: %w", err)
	}

	body := wire.NewBuffer()
	body.AddU32(uint32(wire.MagicBeginChunkRequest))
	offset := body.AddU64(0)
	bodyStart := body.Len()
	body.AddBytes(data)
	body.PokeU64(offset, uint64(body.Len()-bodyStart))
	if _, err := conn.Write(body.Bytes()); err != nil {
		return err
	}

	if _, _, err := readReply(conn); err != nil {
		return fmt.Errorf("netfsclient: write final reply: %w", err)
	}
	return nil
}
