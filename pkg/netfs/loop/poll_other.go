//go:build !linux

package loop

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms without an
// epoll implementation. The specification targets a single production
// platform; this stub exists so the package still compiles elsewhere.
var ErrUnsupportedPlatform = errors.New("loop: epoll event loop is only implemented on linux")

type Loop struct{}

func New() (*Loop, error) {
	return nil, ErrUnsupportedPlatform
}

func (l *Loop) Close() error { return nil }

func (l *Loop) RegisterHandler(mask Flags, h Handler) error { return ErrUnsupportedPlatform }

func (l *Loop) ModifyHandler(mask Flags, h Handler) error { return ErrUnsupportedPlatform }

func (l *Loop) Wait(timeoutMs int) (int, error) { return -1, ErrUnsupportedPlatform }
