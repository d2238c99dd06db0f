package glkstream

import (
	"io"
	"strings"
)

// Capability is the set of operations a stream supports. It is fixed when the
// stream is constructed.
type Capability uint8

const (
	// CanRead reports that Read is supported.
	CanRead Capability = 1 << iota
	// CanWrite reports that Write is supported.
	CanWrite
	// CanSeek reports that Seek is supported.
	CanSeek
	// CanFlush reports that Flush reaches a backing resource.
	CanFlush
)

// Has reports whether all capabilities in f are present.
func (c Capability) Has(f Capability) bool {
	return c&f == f
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		c    Capability
		name string
	}{
		{CanRead, "read"},
		{CanWrite, "write"},
		{CanSeek, "seek"},
		{CanFlush, "flush"},
	} {
		if c.Has(f.c) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Stream is the contract every data sink and source satisfies.
//
// Read and Write fail with ErrUnsupported when the stream lacks CanRead or
// CanWrite, Seek fails with ErrUnsupported without CanSeek, and every
// operation fails with ErrClosed after Close. Seek takes io.SeekStart,
// io.SeekCurrent or io.SeekEnd.
type Stream interface {
	io.ReadWriteSeeker
	io.Closer

	// Position returns the current read/write offset in bytes. Streams that
	// cannot seek report the number of bytes transferred so far.
	Position() (int64, error)

	// Flush pushes buffered data to the backing resource. It is a no-op for
	// streams without CanFlush.
	Flush() error

	// Capabilities returns the operations the stream supports.
	Capabilities() Capability
}

// Counter is implemented by streams that keep Glk-style transfer totals.
type Counter interface {
	// Counts returns the number of units read from and written to the
	// stream. Byte streams count bytes; character streams count characters.
	Counts() (read, written int64)
}

// state holds the bookkeeping shared by the stream implementations.
type state struct {
	caps    Capability
	closed  bool
	read    int64
	written int64
}

// check validates that the stream is open and supports need.
func (s *state) check(op string, need Capability) error {
	if s.closed {
		return newError(op, ErrClosed)
	}
	if !s.caps.Has(need) {
		return newError(op, ErrUnsupported)
	}
	return nil
}

func (s *state) Capabilities() Capability { return s.caps }

func (s *state) Counts() (read, written int64) { return s.read, s.written }

// resolveSeek computes the absolute offset for a seek request.
func resolveSeek(op string, offset int64, whence int, cur, size int64) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = cur + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, kindError(op, ErrUnsupported, "invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, kindError(op, ErrUnsupported, "negative position %d", abs)
	}
	return abs, nil
}
