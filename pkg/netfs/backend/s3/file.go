package s3

import "fmt"

// file is an S3-backed backend.File: the object body, already fully
// downloaded by Open. There is no true zero-copy path for an HTTP GET
// response, so Map simply hands back the in-memory buffer.
type file struct {
	data []byte
}

func (f *file) Size() (uint64, error) {
	return uint64(len(f.data)), nil
}

func (f *file) Map() ([]byte, error) {
	return f.data, nil
}

func (f *file) MapWrite(n uint64) ([]byte, error) {
	return nil, fmt.Errorf("s3: backend is read-only")
}

func (f *file) Unmap() error {
	return nil
}

func (f *file) Close() error {
	f.data = nil
	return nil
}
