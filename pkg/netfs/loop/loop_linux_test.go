//go:build linux

package loop

import (
	"testing"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

type recordingHandler struct {
	fd       int
	flags    []Flags
	stayOpen bool
}

func (h *recordingHandler) FD() int { return h.fd }

func (h *recordingHandler) Handle(l *Loop, flags Flags) bool {
	h.flags = append(h.flags, flags)
	return h.stayOpen
}

func TestLoopDispatchesReadableHandler(t *testing.T) {
	a, b := socketPair(t)

	l, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	h := &recordingHandler{fd: b, stayOpen: true}
	if err := l.RegisterHandler(In, h); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}

	if _, err := unix.Write(a, []byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	n, err := l.Wait(1000)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Wait() dispatched %d handlers, want 1", n)
	}
	if len(h.flags) != 1 || h.flags[0]&In == 0 {
		t.Fatalf("handler flags = %v, want at least one In dispatch", h.flags)
	}
}

func TestLoopDestroysHandlerOnFalseReturn(t *testing.T) {
	_, b := socketPair(t)

	l, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	h := &recordingHandler{fd: b, stayOpen: false}
	if err := l.RegisterHandler(Out, h); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}

	if _, err := l.Wait(1000); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if _, stillRegistered := l.handlers[b]; stillRegistered {
		t.Fatal("handler still registered after returning false from Handle")
	}
}

func TestLoopModifyHandlerChangesInterest(t *testing.T) {
	a, b := socketPair(t)

	l, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	h := &recordingHandler{fd: b, stayOpen: true}
	if err := l.RegisterHandler(In, h); err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}
	if err := l.ModifyHandler(In|Out, h); err != nil {
		t.Fatalf("ModifyHandler() error = %v", err)
	}

	unix.Write(a, []byte("y"))
	if _, err := l.Wait(1000); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(h.flags) == 0 {
		t.Fatal("expected at least one dispatch after ModifyHandler")
	}
}
