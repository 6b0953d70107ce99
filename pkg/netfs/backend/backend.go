// Package backend defines the filesystem backend interface that the
// connection state machine and notification broker operate against,
// plus a registry mapping protocol name to backend implementation.
// Backends are pluggable: local disk, S3-backed assets, or anything
// else that can answer open/stat/list/walk and optionally push change
// notifications.
package backend

import (
	"context"
	"errors"
)

// EntryType classifies a path as reported by Stat, List, or Walk.
type EntryType int

const (
	EntryPlain EntryType = iota
	EntryDirectory
	EntrySpecial
)

// Mode selects the access mode a path is opened with.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Entry describes one path and its type, as returned by Stat/List/Walk.
type Entry struct {
	Path string
	Type EntryType
}

// ErrNotFound is returned by Stat/Open for a path that does not exist.
var ErrNotFound = errors.New("backend: not found")

// File is an open file handle. A connection owns at most one at a time
// and is responsible for calling Unmap and Close when done.
type File interface {
	// Size returns the file's current size in bytes.
	Size() (uint64, error)
	// Map returns a readable view of the whole file, suitable for
	// zero-copy streaming to a socket.
	Map() ([]byte, error)
	// MapWrite returns a writable region of exactly n bytes backing
	// the file, suitable for zero-copy ingest from a socket.
	MapWrite(n uint64) ([]byte, error)
	// Unmap releases any mapping obtained from Map or MapWrite.
	Unmap() error
	// Close releases the file handle.
	Close() error
}

// NotifyKind classifies a change reported through a notification
// callback.
type NotifyKind int

const (
	NotifyCreated NotifyKind = iota
	NotifyDeleted
	NotifyChanged
)

// NotifyEvent describes one filesystem change.
type NotifyEvent struct {
	Path string
	Kind NotifyKind
}

// SubscriptionID is an opaque handle a backend hands back from
// InstallNotification. Backends treat it as meaningless beyond passing
// it back to UninstallNotification.
type SubscriptionID uint64

// NotifyCallback is invoked synchronously, on the event loop's single
// thread, from within PollNotifications.
type NotifyCallback func(NotifyEvent)

// Backend is the interface a filesystem protocol implementation
// exposes to the core. Implementations that cannot produce change
// notifications return -1 from NotificationFD, do nothing in
// PollNotifications, and may return an error from InstallNotification.
type Backend interface {
	// Open opens path in the given mode.
	Open(ctx context.Context, path string, mode Mode) (File, error)
	// Stat returns the type and size of path.
	Stat(ctx context.Context, path string) (Entry, uint64, error)
	// List returns the direct children of path (one level).
	List(ctx context.Context, path string) ([]Entry, error)
	// Walk returns every descendant of path, recursively.
	Walk(ctx context.Context, path string) ([]Entry, error)

	// NotificationFD returns a file descriptor that becomes readable
	// when change events are pending, or -1 if this backend never
	// produces notifications.
	NotificationFD() int
	// InstallNotification subscribes cb to changes under path and
	// returns an opaque id used to cancel later.
	InstallNotification(path string, cb NotifyCallback) (SubscriptionID, error)
	// UninstallNotification cancels a subscription previously
	// returned by InstallNotification.
	UninstallNotification(id SubscriptionID)
	// PollNotifications drains the notification fd and invokes every
	// callback whose subscription matched a pending event.
	PollNotifications()
}
