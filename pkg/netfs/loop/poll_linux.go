//go:build linux

package loop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// maxEvents bounds a single EpollWait batch; handlers beyond this many
// ready fds are picked up on the loop's next iteration.
const maxEvents = 256

// Loop is an epoll-backed event loop. It owns one epoll instance and a
// table of registered handlers keyed by fd. Loop is not safe for
// concurrent use — it is meant to be driven by exactly one goroutine,
// matching the specification's single-threaded cooperative model.
type Loop struct {
	epfd     int
	handlers map[int]Handler
	events   []unix.EpollEvent
}

// New creates an epoll instance and returns a ready-to-use Loop.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("loop: epoll_create1: %w", err)
	}
	return &Loop{
		epfd:     epfd,
		handlers: make(map[int]Handler),
		events:   make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Close releases the underlying epoll fd. It does not close or destroy
// any registered handlers.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

func toEpollEvents(mask Flags) uint32 {
	var events uint32
	if mask&In != 0 {
		events |= unix.EPOLLIN
	}
	if mask&Out != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// RegisterHandler adopts h, installing its fd in the epoll set with the
// given interest mask.
func (l *Loop) RegisterHandler(mask Flags, h Handler) error {
	fd := h.FD()
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("loop: epoll_ctl add fd=%d: %w", fd, err)
	}
	l.handlers[fd] = h
	return nil
}

// ModifyHandler updates the interest mask for an already-registered
// handler. Handlers call this from within their own Handle to change
// what they're dispatched for on the next Wait.
func (l *Loop) ModifyHandler(mask Flags, h Handler) error {
	fd := h.FD()
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("loop: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// removeHandler deregisters and drops fd from the handler table. Called
// once a handler's own Handle returns false.
func (l *Loop) removeHandler(fd int) {
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(l.handlers, fd)
}

// Wait blocks up to timeoutMs (negative means forever) for readiness
// events and dispatches each ready handler's Handle once. It returns
// the number of handlers dispatched, or an error on fatal loop failure.
// A handler whose Handle returns false is destroyed (deregistered)
// before Wait returns.
func (l *Loop) Wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(l.epfd, l.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return -1, fmt.Errorf("loop: epoll_wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := l.events[i]
		fd := int(ev.Fd)
		h, ok := l.handlers[fd]
		if !ok {
			continue
		}

		var flags Flags
		if ev.Events&unix.EPOLLIN != 0 {
			flags |= In
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			flags |= Out
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			flags |= In | Out
		}

		dispatched++
		if !h.Handle(l, flags) {
			l.removeHandler(fd)
		}
	}
	return dispatched, nil
}
