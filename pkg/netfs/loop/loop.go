// Package loop implements the single-threaded, readiness-based event
// loop every connection handler, backend notification adapter, and the
// listener register with. It is a thin wrapper over epoll: one fd, one
// handler, an interest mask that handlers may change from within their
// own dispatch.
package loop

import "fmt"

// Flags is an interest mask: which readiness events a handler wants to
// be dispatched for.
type Flags uint32

const (
	// In means the fd is ready to be read from.
	In Flags = 1 << iota
	// Out means the fd is ready to be written to.
	Out
)

func (f Flags) String() string {
	switch f {
	case In:
		return "IN"
	case Out:
		return "OUT"
	case In | Out:
		return "IN|OUT"
	default:
		return fmt.Sprintf("Flags(%d)", uint32(f))
	}
}

// Handler is a single registered participant in the loop. Handle is
// invoked once per dispatch with the readiness flags that fired; a
// false return value destroys the handler and deregisters its fd
// before control returns to Wait. Handle must never block — any
// operation that cannot complete immediately must park and rely on
// being redispatched on a later Wait.
type Handler interface {
	// FD returns the file descriptor this handler is registered on.
	FD() int
	// Handle processes one readiness dispatch. A false return
	// destroys the handler.
	Handle(l *Loop, flags Flags) bool
}
