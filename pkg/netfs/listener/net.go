package listener

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// bindListen binds and listens on addr via the standard library's
// resolver, then hands the underlying fd to the caller as an
// independent, non-blocking descriptor the event loop drives directly.
// The net.Listener itself is closed immediately after; a duplicated fd
// keeps the bound socket alive without pinning a Go-level listener
// object whose own (unused) accept machinery we never want running.
func bindListen(addr string) (int, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return -1, fmt.Errorf("listener: listen %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return -1, fmt.Errorf("listener: unexpected listener type %T", ln)
	}

	rc, err := tcpLn.SyscallConn()
	if err != nil {
		ln.Close()
		return -1, fmt.Errorf("listener: syscall conn: %w", err)
	}

	var dupFd int
	var dupErr error
	ctrlErr := rc.Control(func(ptr uintptr) {
		dupFd, dupErr = unix.Dup(int(ptr))
	})
	ln.Close()
	if ctrlErr != nil {
		return -1, fmt.Errorf("listener: control: %w", ctrlErr)
	}
	if dupErr != nil {
		return -1, fmt.Errorf("listener: dup listening fd: %w", dupErr)
	}

	if err := unix.SetNonblock(dupFd, true); err != nil {
		unix.Close(dupFd)
		return -1, fmt.Errorf("listener: set nonblocking: %w", err)
	}
	return dupFd, nil
}

// sockaddrForFD returns the local address a bound socket is listening
// on, used in tests to discover the port the kernel assigned for a
// ":0" bind.
func sockaddrForFD(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", fmt.Errorf("listener: getsockname: %w", err)
	}
	return remoteAddrString(sa), nil
}

func remoteAddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return "unknown"
	}
}
