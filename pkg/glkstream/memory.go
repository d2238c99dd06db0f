package glkstream

import "io"

// Memory is a growable in-memory stream supporting reads, writes and seeks.
// Writing past the end extends the buffer; seeking past the end and then
// writing fills the gap with zero bytes.
type Memory struct {
	state
	buf []byte
	pos int64
}

// NewMemory creates a Memory stream positioned at the start of data. The
// stream takes ownership of data.
func NewMemory(data []byte) *Memory {
	return &Memory{
		state: state{caps: CanRead | CanWrite | CanSeek},
		buf:   data,
	}
}

// Read implements io.Reader. It returns io.EOF at the end of the buffer.
func (m *Memory) Read(p []byte) (int, error) {
	if err := m.check("read", CanRead); err != nil {
		return 0, err
	}
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	m.read += int64(n)
	return n, nil
}

// Write implements io.Writer.
func (m *Memory) Write(p []byte) (int, error) {
	if err := m.check("write", CanWrite); err != nil {
		return 0, err
	}
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(m.buf))))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			old := len(m.buf)
			m.buf = m.buf[:end]
			clear(m.buf[old:])
		}
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += int64(n)
	m.written += int64(n)
	return n, nil
}

// Seek implements io.Seeker.
func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	if err := m.check("seek", CanSeek); err != nil {
		return 0, err
	}
	abs, err := resolveSeek("seek", offset, whence, m.pos, int64(len(m.buf)))
	if err != nil {
		return 0, err
	}
	// Seeking past the end does not extend the buffer until the next write.
	m.pos = abs
	return abs, nil
}

// Position returns the current offset.
func (m *Memory) Position() (int64, error) {
	if m.closed {
		return 0, newError("position", ErrClosed)
	}
	return m.pos, nil
}

// Flush is a no-op.
func (m *Memory) Flush() error {
	if m.closed {
		return newError("flush", ErrClosed)
	}
	return nil
}

// Close closes the stream. The contents remain available through Bytes.
func (m *Memory) Close() error {
	if m.closed {
		return newError("close", ErrClosed)
	}
	m.closed = true
	return nil
}

// Bytes returns the stream contents. The slice aliases the internal buffer
// until the next write.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Len returns the size of the stream contents.
func (m *Memory) Len() int {
	return len(m.buf)
}

var (
	_ Stream  = (*Memory)(nil)
	_ Counter = (*Memory)(nil)
)
