package wire

import (
	"encoding/binary"
	"fmt"
)

// Buffer is an ordered byte sequence with append, poke, and sequential
// read operations over the three primitive field types the protocol
// uses: u32, u64, and length-prefixed string. All multi-byte integers
// are little-endian. Buffer does no I/O; callers fill it from or drain
// it to a socket.
type Buffer struct {
	data   []byte
	reader int
}

// NewBuffer returns an empty Buffer ready for appending.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// WrapBuffer returns a Buffer for sequential reads over b. It does not
// copy b; callers outside this package use it to parse raw bytes they
// already own (a fixed-size header scratch, a fully-read body) without
// reaching into Buffer's internal layout.
func WrapBuffer(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Begin resizes the buffer to exactly n bytes and resets the read
// cursor to the start. Called with no argument (Begin(0)) it empties
// the buffer for fresh appending.
func (b *Buffer) Begin(n int) {
	if cap(b.data) >= n {
		b.data = b.data[:n]
	} else {
		b.data = make([]byte, n)
	}
	b.reader = 0
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes currently in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.reader
}

// Reset empties the buffer and rewinds the read cursor. Equivalent to
// Begin(0).
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.reader = 0
}

// AddU32 appends a little-endian uint32 and returns its byte offset.
func (b *Buffer) AddU32(v uint32) int {
	offset := len(b.data)
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
	return offset
}

// AddU64 appends a little-endian uint64 and returns its byte offset.
func (b *Buffer) AddU64(v uint64) int {
	offset := len(b.data)
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
	return offset
}

// AddString appends a 32-bit length prefix followed by the string's
// bytes, and returns the offset of the length prefix.
func (b *Buffer) AddString(s string) int {
	offset := b.AddU32(uint32(len(s)))
	b.data = append(b.data, s...)
	return offset
}

// AddBytes appends raw bytes with no length prefix.
func (b *Buffer) AddBytes(p []byte) {
	b.data = append(b.data, p...)
}

// PokeU64 overwrites the 8 bytes at offset with v. Used to patch a
// payload length field after the body it describes has been built.
func (b *Buffer) PokeU64(offset int, v uint64) {
	binary.LittleEndian.PutUint64(b.data[offset:offset+8], v)
}

// PokeU32 overwrites the 4 bytes at offset with v.
func (b *Buffer) PokeU32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(b.data[offset:offset+4], v)
}

// ReadU32 consumes and returns the next little-endian uint32.
func (b *Buffer) ReadU32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, fmt.Errorf("wire: short read, want 4 bytes, have %d", b.Remaining())
	}
	v := binary.LittleEndian.Uint32(b.data[b.reader : b.reader+4])
	b.reader += 4
	return v, nil
}

// ReadU64 consumes and returns the next little-endian uint64.
func (b *Buffer) ReadU64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, fmt.Errorf("wire: short read, want 8 bytes, have %d", b.Remaining())
	}
	v := binary.LittleEndian.Uint64(b.data[b.reader : b.reader+8])
	b.reader += 8
	return v, nil
}

// ReadString consumes a 32-bit length prefix followed by that many
// bytes and returns them as a string.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadU32()
	if err != nil {
		return "", err
	}
	if b.Remaining() < int(n) {
		return "", fmt.Errorf("wire: short read, want %d string bytes, have %d", n, b.Remaining())
	}
	s := string(b.data[b.reader : b.reader+int(n)])
	b.reader += int(n)
	return s, nil
}

// ReadStringImplicitCount consumes the rest of the buffer as a string
// with no length prefix. Used where the frame's payload_len already
// bounds the string, e.g. a path that is the entire command payload.
func (b *Buffer) ReadStringImplicitCount() string {
	s := string(b.data[b.reader:])
	b.reader = len(b.data)
	return s
}

// ReadBytes consumes and returns the next n raw bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, fmt.Errorf("wire: short read, want %d bytes, have %d", n, b.Remaining())
	}
	p := b.data[b.reader : b.reader+n]
	b.reader += n
	return p, nil
}
