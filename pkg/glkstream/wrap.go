package glkstream

import "io"

// IOStream adapts standard io values into a Stream. Its capabilities are
// derived once, at construction, from the interfaces the wrapped value
// implements, and can be narrowed with WithCapabilities.
type IOStream struct {
	state

	name    string
	r       io.Reader
	w       io.Writer
	sk      io.Seeker
	c       io.Closer
	flush   func() error
	pos     int64
	auto    bool
	onClose func()
}

// Option configures an IOStream.
type Option func(*IOStream)

// WithCapabilities restricts the stream to the given capabilities. It never
// adds capabilities the wrapped value lacks.
func WithCapabilities(mask Capability) Option {
	return func(s *IOStream) { s.caps &= mask }
}

// WithAutoFlush flushes the stream after every successful write.
func WithAutoFlush(on bool) Option {
	return func(s *IOStream) { s.auto = on }
}

// WithName sets the name reported in errors, typically a file path.
func WithName(name string) Option {
	return func(s *IOStream) { s.name = name }
}

// WithOnClose registers fn to run once after the stream is closed, whether or
// not closing the wrapped value succeeded.
func WithOnClose(fn func()) Option {
	return func(s *IOStream) { s.onClose = fn }
}

// WithStartPosition sets the initial position reported for streams that
// cannot seek, such as streams opened in append mode on a remote store.
func WithStartPosition(pos int64) Option {
	return func(s *IOStream) { s.pos = pos }
}

// Wrap creates an IOStream over v. The value may implement any combination of
// io.Reader, io.Writer, io.Seeker and io.Closer; a Sync() error or
// Flush() error method enables CanFlush.
func Wrap(v any, opts ...Option) *IOStream {
	s := &IOStream{}
	if r, ok := v.(io.Reader); ok {
		s.r = r
		s.caps |= CanRead
	}
	if w, ok := v.(io.Writer); ok {
		s.w = w
		s.caps |= CanWrite
	}
	if sk, ok := v.(io.Seeker); ok {
		s.sk = sk
		s.caps |= CanSeek
	}
	if c, ok := v.(io.Closer); ok {
		s.c = c
	}
	switch f := v.(type) {
	case interface{ Sync() error }:
		s.flush = f.Sync
		s.caps |= CanFlush
	case interface{ Flush() error }:
		s.flush = f.Flush
		s.caps |= CanFlush
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *IOStream) fail(op string, err error) error {
	return Classify(op, s.name, err)
}

// Read implements io.Reader. io.EOF is returned unwrapped.
func (s *IOStream) Read(p []byte) (int, error) {
	if err := s.check("read", CanRead); err != nil {
		return 0, err
	}
	n, err := s.r.Read(p)
	s.pos += int64(n)
	s.read += int64(n)
	if err != nil && err != io.EOF {
		err = s.fail("read", err)
	}
	return n, err
}

// Write implements io.Writer.
func (s *IOStream) Write(p []byte) (int, error) {
	if err := s.check("write", CanWrite); err != nil {
		return 0, err
	}
	n, err := s.w.Write(p)
	s.pos += int64(n)
	s.written += int64(n)
	if err != nil {
		return n, s.fail("write", err)
	}
	if s.auto && s.caps.Has(CanFlush) {
		if err := s.flush(); err != nil {
			return n, s.fail("flush", err)
		}
	}
	return n, nil
}

// Seek implements io.Seeker.
func (s *IOStream) Seek(offset int64, whence int) (int64, error) {
	if err := s.check("seek", CanSeek); err != nil {
		return 0, err
	}
	abs, err := s.sk.Seek(offset, whence)
	if err != nil {
		return 0, s.fail("seek", err)
	}
	s.pos = abs
	return abs, nil
}

// Position returns the current offset. Seekable streams ask the wrapped
// value; other streams report the bytes transferred since construction.
func (s *IOStream) Position() (int64, error) {
	if s.closed {
		return 0, newError("position", ErrClosed)
	}
	if s.caps.Has(CanSeek) {
		pos, err := s.sk.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, s.fail("position", err)
		}
		s.pos = pos
	}
	return s.pos, nil
}

// Flush flushes the wrapped value when it supports flushing.
func (s *IOStream) Flush() error {
	if s.closed {
		return newError("flush", ErrClosed)
	}
	if !s.caps.Has(CanFlush) {
		return nil
	}
	return s.fail("flush", s.flush())
}

// Close closes the wrapped value if it is an io.Closer. A second Close fails
// with ErrClosed.
func (s *IOStream) Close() error {
	if s.closed {
		return newError("close", ErrClosed)
	}
	s.closed = true
	var err error
	if s.c != nil {
		err = s.fail("close", s.c.Close())
	}
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

var (
	_ Stream  = (*IOStream)(nil)
	_ Counter = (*IOStream)(nil)
)
