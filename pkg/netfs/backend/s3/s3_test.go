package s3

import (
	"errors"
	"testing"
)

func TestKeyJoinsPrefix(t *testing.T) {
	b := &Backend{prefix: "assets"}
	if got := b.key("/docs/readme.txt"); got != "assets/docs/readme.txt" {
		t.Fatalf("key() = %q, want %q", got, "assets/docs/readme.txt")
	}
}

func TestKeyWithoutPrefix(t *testing.T) {
	b := &Backend{}
	if got := b.key("docs/readme.txt"); got != "docs/readme.txt" {
		t.Fatalf("key() = %q, want %q", got, "docs/readme.txt")
	}
}

func TestKeyStripsTrailingSlashFromPrefix(t *testing.T) {
	b := &Backend{prefix: "assets/"}
	if got := b.key("x"); got != "assets/x" {
		t.Fatalf("key() = %q, want %q", got, "assets/x")
	}
}

func TestIsNotFoundRecognizesSentinelErrors(t *testing.T) {
	if !isNotFound(errors.New("NoSuchKey: the specified key does not exist")) {
		t.Fatal("isNotFound() = false, want true for NoSuchKey")
	}
	if !isNotFound(errors.New("NotFound")) {
		t.Fatal("isNotFound() = false, want true for NotFound")
	}
	if isNotFound(errors.New("AccessDenied")) {
		t.Fatal("isNotFound() = true, want false for unrelated error")
	}
}

func TestFileMapReturnsDownloadedBytes(t *testing.T) {
	f := &file{data: []byte("hello")}
	data, err := f.Map()
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Map() = %q, want %q", data, "hello")
	}
}

func TestFileMapWriteIsUnsupported(t *testing.T) {
	f := &file{}
	if _, err := f.MapWrite(10); err == nil {
		t.Fatal("MapWrite() = nil error, want error for read-only backend")
	}
}

func TestFileSizeReflectsDataLength(t *testing.T) {
	f := &file{data: make([]byte, 42)}
	size, err := f.Size()
	if err != nil || size != 42 {
		t.Fatalf("Size() = %d, %v, want 42, nil", size, err)
	}
}
