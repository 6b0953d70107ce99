package conn

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/broker"
	"github.com/netfsd/netfsd/pkg/netfs/ioloop"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

// memFile is an in-memory backend.File good enough to exercise the
// connection state machine's READ_FILE/WRITE_FILE paths without a real
// filesystem underneath.
type memFile struct {
	data []byte
}

func (f *memFile) Size() (uint64, error) { return uint64(len(f.data)), nil }
func (f *memFile) Map() ([]byte, error) {
	if len(f.data) == 0 {
		return nil, nil
	}
	return f.data, nil
}
func (f *memFile) MapWrite(n uint64) ([]byte, error) {
	f.data = make([]byte, n)
	return f.data, nil
}
func (f *memFile) Unmap() error { return nil }
func (f *memFile) Close() error { return nil }

type memBackend struct {
	files map[string]*memFile
}

func newMemBackend() *memBackend { return &memBackend{files: make(map[string]*memFile)} }

func (b *memBackend) Open(_ context.Context, path string, mode backend.Mode) (backend.File, error) {
	if mode == backend.ModeWrite {
		f := &memFile{}
		b.files[path] = f
		return f, nil
	}
	f, ok := b.files[path]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return f, nil
}

func (b *memBackend) Stat(_ context.Context, path string) (backend.Entry, uint64, error) {
	f, ok := b.files[path]
	if !ok {
		return backend.Entry{}, 0, backend.ErrNotFound
	}
	return backend.Entry{Path: path, Type: backend.EntryPlain}, uint64(len(f.data)), nil
}

func (b *memBackend) List(_ context.Context, _ string) ([]backend.Entry, error) {
	var out []backend.Entry
	for p := range b.files {
		out = append(out, backend.Entry{Path: p, Type: backend.EntryPlain})
	}
	return out, nil
}

func (b *memBackend) Walk(ctx context.Context, path string) ([]backend.Entry, error) {
	return b.List(ctx, path)
}

func (b *memBackend) NotificationFD() int { return -1 }
func (b *memBackend) InstallNotification(string, backend.NotifyCallback) (backend.SubscriptionID, error) {
	return 0, nil
}
func (b *memBackend) UninstallNotification(backend.SubscriptionID) {}
func (b *memBackend) PollNotifications()                          {}

type harness struct {
	t      *testing.T
	l      *loop.Loop
	client int
	c      *Conn
}

func newHarness(t *testing.T, be backend.Backend) *harness {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	if err := ioloop.SetNonblocking(fds[0]); err != nil {
		t.Fatalf("SetNonblocking() error = %v", err)
	}
	if err := ioloop.SetNonblocking(fds[1]); err != nil {
		t.Fatalf("SetNonblocking() error = %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[0]) })

	l, err := loop.New()
	if err != nil {
		t.Fatalf("loop.New() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })

	reg := backend.NewRegistry()
	reg.Register("home", be)
	brk := broker.New(reg)

	c := New(fds[1], 1, "test", Deps{
		Registry:        reg,
		Broker:          brk,
		DefaultProtocol: "home",
	})
	if err := l.RegisterHandler(loop.In, c); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}

	return &harness{t: t, l: l, client: fds[0], c: c}
}

// pump drives the loop until it goes a few consecutive polls without
// dispatching anything, or the deadline passes.
func (h *harness) pump(deadline time.Time) {
	h.t.Helper()
	idle := 0
	for time.Now().Before(deadline) && idle < 3 {
		n, err := h.l.Wait(20)
		if err != nil {
			h.t.Fatalf("Wait() error = %v", err)
		}
		if n == 0 {
			idle++
		} else {
			idle = 0
		}
	}
}

func request(cmd wire.Command, path string) []byte {
	buf := wire.NewBuffer()
	offset := wire.WriteRequestHeader(buf, cmd, 0)
	bodyStart := buf.Len()
	buf.AddBytes([]byte(path))
	buf.PokeU64(offset, uint64(buf.Len()-bodyStart))
	return buf.Bytes()
}

func readAll(t *testing.T, fd int, n int, deadline time.Time) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	for len(out) < n && time.Now().Before(deadline) {
		buf := make([]byte, n-len(out))
		got, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			t.Fatalf("Read() error = %v", err)
		}
		out = append(out, buf[:got]...)
	}
	if len(out) != n {
		t.Fatalf("readAll() got %d bytes, want %d", len(out), n)
	}
	return out
}

func TestStatRoundTrip(t *testing.T) {
	be := newMemBackend()
	be.files["/a.txt"] = &memFile{data: make([]byte, 1024)}
	h := newHarness(t, be)

	if _, err := unix.Write(h.client, request(wire.CommandStat, "/a.txt")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	h.pump(deadline)

	header := readAll(t, h.client, wire.ReplyPreambleSize, deadline)
	rh, err := wire.ParseReplyHeader(header)
	if err != nil {
		t.Fatalf("ParseReplyHeader() error = %v", err)
	}
	if rh.Status != wire.StatusOK || rh.PayloadLen != 12 {
		t.Fatalf("reply header = %+v, want OK/12", rh)
	}

	body := readAll(t, h.client, 12, deadline)
	payload := wire.WrapBuffer(body)
	size, _ := payload.ReadU64()
	ftype, _ := payload.ReadU32()
	if size != 1024 || wire.PathType(ftype) != wire.PathTypePlain {
		t.Fatalf("stat body = size=%d type=%d, want 1024/PLAIN", size, ftype)
	}
}

func TestReadFileZeroByteClosesWithNoBody(t *testing.T) {
	be := newMemBackend()
	be.files["/empty"] = &memFile{}
	h := newHarness(t, be)

	if _, err := unix.Write(h.client, request(wire.CommandReadFile, "/empty")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	h.pump(deadline)

	header := readAll(t, h.client, wire.ReplyPreambleSize, deadline)
	rh, err := wire.ParseReplyHeader(header)
	if err != nil {
		t.Fatalf("ParseReplyHeader() error = %v", err)
	}
	if rh.Status != wire.StatusOK || rh.PayloadLen != 0 {
		t.Fatalf("reply header = %+v, want OK/0", rh)
	}

	// The connection closes after a zero-byte body; a further read
	// observes EOF (peer closed), never additional bytes.
	time.Sleep(50 * time.Millisecond)
	buf := make([]byte, 1)
	n, err := unix.Read(h.client, buf)
	if err == nil && n != 0 {
		t.Fatalf("expected EOF after zero-byte READ_FILE reply, got n=%d err=%v", n, err)
	}
}

func TestWriteFileAckThenBodyThenFinalReply(t *testing.T) {
	be := newMemBackend()
	h := newHarness(t, be)

	if _, err := unix.Write(h.client, request(wire.CommandWriteFile, "/new.txt")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	h.pump(deadline)

	ack := readAll(t, h.client, wire.ReplyPreambleSize, deadline)
	ah, err := wire.ParseReplyHeader(ack)
	if err != nil {
		t.Fatalf("ParseReplyHeader() error = %v", err)
	}
	if ah.Status != wire.StatusOK || ah.PayloadLen != 0 {
		t.Fatalf("ack header = %+v, want OK/0", ah)
	}

	bodyBuf := wire.NewBuffer()
	off := wire.WriteRequestHeader(bodyBuf, wire.CommandWriteFile, 0)
	bodyStart := bodyBuf.Len()
	bodyBuf.AddBytes([]byte("hola"))
	bodyBuf.PokeU64(off, uint64(bodyBuf.Len()-bodyStart))
	// The body preamble reuses the BEGIN_CHUNK_REQUEST magic and a
	// payload length, without a leading command id.
	preamble := bodyBuf.Bytes()[4:]
	if _, err := unix.Write(h.client, preamble); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	h.pump(time.Now().Add(2 * time.Second))

	finalHeader := readAll(t, h.client, wire.ReplyPreambleSize, time.Now().Add(2*time.Second))
	fh, err := wire.ParseReplyHeader(finalHeader)
	if err != nil {
		t.Fatalf("ParseReplyHeader() error = %v", err)
	}
	if fh.Status != wire.StatusOK || fh.PayloadLen != 4 {
		t.Fatalf("final header = %+v, want OK/4", fh)
	}
	if got := be.files["/new.txt"]; got == nil || string(got.data) != "hola" {
		t.Fatalf("backend file = %+v, want data \"hola\"", got)
	}
}

func TestUnknownCommandClosesWithNoReply(t *testing.T) {
	be := newMemBackend()
	h := newHarness(t, be)

	junk := make([]byte, 4)
	junk[0] = 0xff
	if _, err := unix.Write(h.client, junk); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	h.pump(time.Now().Add(1 * time.Second))

	buf := make([]byte, 1)
	n, err := unix.Read(h.client, buf)
	if err == nil && n != 0 {
		t.Fatalf("expected EOF after protocol error, got n=%d err=%v", n, err)
	}
}
