package localfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// file is a localfs-backed backend.File: a plain *os.File plus the
// currently active memory mapping, if any.
type file struct {
	f      *os.File
	mapped []byte
}

func (fl *file) Size() (uint64, error) {
	info, err := fl.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("localfs: stat file: %w", err)
	}
	return uint64(info.Size()), nil
}

// Map memory-maps the whole file read-only, for zero-copy transfer to
// a connection's socket writer.
func (fl *file) Map() ([]byte, error) {
	size, err := fl.Size()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		fl.mapped = nil
		return nil, nil
	}
	data, err := unix.Mmap(int(fl.f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("localfs: mmap: %w", err)
	}
	fl.mapped = data
	return data, nil
}

// MapWrite truncates the file to exactly n bytes and returns a
// writable mapping of that region, for zero-copy ingest from a
// connection's socket reader.
func (fl *file) MapWrite(n uint64) ([]byte, error) {
	if err := fl.f.Truncate(int64(n)); err != nil {
		return nil, fmt.Errorf("localfs: truncate: %w", err)
	}
	if n == 0 {
		fl.mapped = nil
		return nil, nil
	}
	data, err := unix.Mmap(int(fl.f.Fd()), 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("localfs: mmap_write: %w", err)
	}
	fl.mapped = data
	return data, nil
}

// Unmap releases the active mapping, if any.
func (fl *file) Unmap() error {
	if fl.mapped == nil {
		return nil
	}
	err := unix.Munmap(fl.mapped)
	fl.mapped = nil
	if err != nil {
		return fmt.Errorf("localfs: munmap: %w", err)
	}
	return nil
}

// Close releases the mapping (if any) and the file descriptor.
func (fl *file) Close() error {
	fl.Unmap()
	return fl.f.Close()
}
