// Package localfs implements backend.Backend over a directory of the
// local disk. Reads and writes use memory-mapped regions for zero-copy
// transfer to and from the connection's socket buffers; change
// notifications are bridged from fsnotify's goroutine-based watcher to
// the single-threaded event loop through a self-pipe file descriptor.
package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/netfsd/netfsd/pkg/netfs/backend"
)

// Backend serves filesystem operations rooted at a single directory.
// Paths presented to Open/Stat/List/Walk are relative to Root and may
// not escape it.
type Backend struct {
	root string

	watcher  *fsnotify.Watcher
	pipeR    int
	pipeW    int
	watchDir string

	mu     sync.Mutex
	subs   map[backend.SubscriptionID]subscription
	nextID backend.SubscriptionID
	queue  []fsnotify.Event
}

type subscription struct {
	path string
	cb   backend.NotifyCallback
}

// New opens a localfs backend rooted at root. root must already exist
// and be a directory. A single fsnotify watch is installed on root;
// InstallNotification filters events by path prefix rather than
// issuing one watch per subscription. fsnotify watches are not
// recursive, so only changes to entries directly inside root are
// reported; changes inside subdirectories of root are not.
func New(root string) (*Backend, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("localfs: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("localfs: root %q is not a directory", root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("localfs: new watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("localfs: watch root: %w", err)
	}

	pipeFDs := make([]int, 2)
	if err := unix.Pipe2(pipeFDs, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("localfs: pipe: %w", err)
	}

	b := &Backend{
		root:     root,
		watcher:  watcher,
		pipeR:    pipeFDs[0],
		pipeW:    pipeFDs[1],
		watchDir: root,
		subs:     make(map[backend.SubscriptionID]subscription),
	}
	go b.pump()
	return b, nil
}

// pump is the only goroutine that reads fsnotify's Events channel. It
// queues each event and pings the self-pipe so the event loop's single
// thread learns a notification is pending; PollNotifications, running
// on the loop thread, later drains the queue and invokes callbacks
// synchronously there.
func (b *Backend) pump() {
	for ev := range b.watcher.Events {
		b.mu.Lock()
		b.queue = append(b.queue, ev)
		b.mu.Unlock()
		unix.Write(b.pipeW, []byte{0})
	}
}

// Close stops the watcher and closes the self-pipe.
func (b *Backend) Close() error {
	b.watcher.Close()
	unix.Close(b.pipeR)
	unix.Close(b.pipeW)
	return nil
}

func (b *Backend) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	full := filepath.Join(b.root, cleaned)
	if full != b.root && !pathHasPrefix(full, b.root) {
		return "", fmt.Errorf("localfs: path %q escapes root", path)
	}
	return full, nil
}

func pathHasPrefix(full, root string) bool {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

func entryType(info os.FileInfo) backend.EntryType {
	switch {
	case info.IsDir():
		return backend.EntryDirectory
	case info.Mode()&os.ModeType != 0:
		return backend.EntrySpecial
	default:
		return backend.EntryPlain
	}
}

// Open opens path in the given mode.
func (b *Backend) Open(ctx context.Context, path string, mode backend.Mode) (backend.File, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}

	flag := os.O_RDONLY
	if mode == backend.ModeWrite {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(full, flag, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("localfs: open %q: %w", path, err)
	}
	return &file{f: f}, nil
}

// Stat returns the type and size of path.
func (b *Backend) Stat(ctx context.Context, path string) (backend.Entry, uint64, error) {
	full, err := b.resolve(path)
	if err != nil {
		return backend.Entry{}, 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return backend.Entry{}, 0, backend.ErrNotFound
		}
		return backend.Entry{}, 0, fmt.Errorf("localfs: stat %q: %w", path, err)
	}
	return backend.Entry{Path: path, Type: entryType(info)}, uint64(info.Size()), nil
}

// List returns the direct children of path.
func (b *Backend) List(ctx context.Context, path string) ([]backend.Entry, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("localfs: readdir %q: %w", path, err)
	}
	entries := make([]backend.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, backend.Entry{Path: de.Name(), Type: entryType(info)})
	}
	return entries, nil
}

// Walk returns every descendant of path, recursively.
func (b *Backend) Walk(ctx context.Context, path string) ([]backend.Entry, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	var entries []backend.Entry
	err = filepath.Walk(full, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == full {
			return nil
		}
		rel, err := filepath.Rel(full, p)
		if err != nil {
			return err
		}
		entries = append(entries, backend.Entry{Path: rel, Type: entryType(info)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localfs: walk %q: %w", path, err)
	}
	return entries, nil
}

// NotificationFD returns the self-pipe read end.
func (b *Backend) NotificationFD() int {
	return b.pipeR
}

// InstallNotification subscribes cb to changes under path.
func (b *Backend) InstallNotification(path string, cb backend.NotifyCallback) (backend.SubscriptionID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = subscription{path: path, cb: cb}
	return id, nil
}

// UninstallNotification cancels a subscription.
func (b *Backend) UninstallNotification(id backend.SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// PollNotifications drains the self-pipe and the internal event queue
// fed by pump, dispatching each matching subscriber synchronously on
// the calling (loop) goroutine.
func (b *Backend) PollNotifications() {
	drainPipe(b.pipeR)

	b.mu.Lock()
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, ev := range pending {
		b.dispatch(ev)
	}
}

func drainPipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (b *Backend) dispatch(ev fsnotify.Event) {
	rel, err := filepath.Rel(b.root, ev.Name)
	if err != nil {
		return
	}
	kind := eventKind(ev.Op)

	b.mu.Lock()
	matches := make([]backend.NotifyCallback, 0, 1)
	for _, sub := range b.subs {
		if pathHasPrefix(ev.Name, filepath.Join(b.root, sub.path)) || sub.path == "" || sub.path == "/" {
			matches = append(matches, sub.cb)
		}
	}
	b.mu.Unlock()

	for _, cb := range matches {
		cb(backend.NotifyEvent{Path: rel, Kind: kind})
	}
}

func eventKind(op fsnotify.Op) backend.NotifyKind {
	switch {
	case op&fsnotify.Create != 0:
		return backend.NotifyCreated
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return backend.NotifyDeleted
	default:
		return backend.NotifyChanged
	}
}

var _ backend.Backend = (*Backend)(nil)
