// Package ioloop provides non-blocking, partial-progress-aware transfer
// of bytes to and from a raw file descriptor. Reader and Writer each
// carry a destination/source buffer and a cursor; Process drains or
// fills as much as the kernel will accept without blocking and reports
// ErrWouldBlock when no further progress is currently possible. This is
// the primitive the connection state machine builds its read/write
// states on top of.
package ioloop

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports that the file descriptor has no more data to
// give (Reader) or no more buffer space to accept (Writer) right now.
// It is never a fatal condition; the caller parks in its current state
// until the event loop reports the fd readable/writable again.
var ErrWouldBlock = errors.New("ioloop: would block")

// ErrPeerClosed reports that the remote end closed its side of the
// connection (a zero-length read).
var ErrPeerClosed = io.EOF

// Reader streams bytes from a file descriptor into a caller-owned
// buffer, one non-blocking read at a time.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader with no target buffer. Call Start before
// the first Process.
func NewReader() *Reader {
	return &Reader{}
}

// Start retargets the reader at buf, resetting the cursor to zero. Used
// both for the fixed-size preamble buffers and, for zero-copy file
// ingest, for an externally-owned memory-mapped region.
func (r *Reader) Start(buf []byte) {
	r.buf = buf
	r.pos = 0
}

// Complete reports whether the target buffer has been fully filled.
func (r *Reader) Complete() bool {
	return r.pos >= len(r.buf)
}

// Remaining returns the number of bytes still needed to complete.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Bytes returns the filled portion of the target buffer.
func (r *Reader) Bytes() []byte {
	return r.buf[:r.pos]
}

// Process performs one non-blocking read from fd into the remaining
// target space. It returns the number of bytes read, ErrWouldBlock if
// the descriptor currently has nothing to offer, ErrPeerClosed if the
// remote end has closed its write side, or any other error as fatal.
func (r *Reader) Process(fd int) (int, error) {
	if r.Complete() {
		return 0, nil
	}
	n, err := unix.Read(fd, r.buf[r.pos:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrPeerClosed
	}
	r.pos += n
	return n, nil
}

// Writer streams bytes from a caller-owned buffer out to a file
// descriptor, one non-blocking write at a time.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter returns a Writer with no source buffer. Call Start before
// the first Process.
func NewWriter() *Writer {
	return &Writer{}
}

// Start retargets the writer at buf, resetting the cursor to zero.
func (w *Writer) Start(buf []byte) {
	w.buf = buf
	w.pos = 0
}

// Complete reports whether the entire source buffer has been emitted.
func (w *Writer) Complete() bool {
	return w.pos >= len(w.buf)
}

// Remaining returns the number of bytes still to be written.
func (w *Writer) Remaining() int {
	return len(w.buf) - w.pos
}

// Process performs one non-blocking write of the remaining source
// bytes to fd. Same return contract as Reader.Process.
func (w *Writer) Process(fd int) (int, error) {
	if w.Complete() {
		return 0, nil
	}
	n, err := unix.Write(fd, w.buf[w.pos:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrPeerClosed
	}
	w.pos += n
	return n, nil
}

// SetNonblocking puts fd into non-blocking mode, a precondition for
// Reader/Writer.Process to ever return ErrWouldBlock instead of
// parking the whole event loop inside the syscall.
func SetNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}
