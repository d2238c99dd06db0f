package glkstream

import (
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// ByteOrder selects the byte order of 4-byte code points.
type ByteOrder int

const (
	// BigEndian writes the most significant byte first.
	BigEndian ByteOrder = iota
	// LittleEndian writes the least significant byte first.
	LittleEndian
)

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

func (o ByteOrder) binary() binary.ByteOrder {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (o ByteOrder) encoding() encoding.Encoding {
	if o == LittleEndian {
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	}
	return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
}

// UCS4Stream re-encodes characters as fixed-width 4-byte code points on top
// of another Stream.
//
// Write and WriteString take UTF-8 text; WriteLatin1 takes one character per
// byte; WriteRune takes a single character. Each character reaches the
// wrapped stream as four bytes in the configured order. A UTF-8 sequence
// split across two Write calls is held back until it is complete.
//
// Read and ReadRune decode the wrapped stream four bytes at a time. Read
// returns the decoded characters as UTF-8.
//
// Position and Seek operate on the wrapped stream and are expressed in its
// units, that is bytes of the 4-byte form. Divide by four for character
// offsets.
//
// Closing a UCS4Stream flushes pending output but leaves the wrapped stream
// open, since other views may share it. Use WithCloseWrapped to close both.
type UCS4Stream struct {
	s            Stream
	order        ByteOrder
	enc          *transform.Writer
	pending      []byte
	closed       bool
	closeWrapped bool
	read         int64
	written      int64
}

// UCS4Option configures a UCS4Stream.
type UCS4Option func(*UCS4Stream)

// WithCloseWrapped makes Close close the wrapped stream as well.
func WithCloseWrapped() UCS4Option {
	return func(u *UCS4Stream) { u.closeWrapped = true }
}

// NewUCS4Stream creates a UCS4Stream writing to and reading from s.
func NewUCS4Stream(s Stream, order ByteOrder, opts ...UCS4Option) *UCS4Stream {
	u := &UCS4Stream{s: s, order: order}
	for _, opt := range opts {
		opt(u)
	}
	u.resetEncoder()
	return u
}

func (u *UCS4Stream) resetEncoder() {
	u.enc = transform.NewWriter(ucs4Sink{u}, u.order.encoding().NewEncoder())
}

// ucs4Sink forwards encoded output to the wrapped stream and counts the
// characters that reached it.
type ucs4Sink struct{ u *UCS4Stream }

func (k ucs4Sink) Write(p []byte) (int, error) {
	n, err := k.u.s.Write(p)
	k.u.written += int64(n / 4)
	return n, err
}

// Order returns the configured byte order.
func (u *UCS4Stream) Order() ByteOrder { return u.order }

// Unwrap returns the wrapped stream.
func (u *UCS4Stream) Unwrap() Stream { return u.s }

// Capabilities returns the wrapped stream's capabilities.
func (u *UCS4Stream) Capabilities() Capability { return u.s.Capabilities() }

// Counts returns the number of characters read and written.
func (u *UCS4Stream) Counts() (read, written int64) { return u.read, u.written }

func (u *UCS4Stream) check(op string, need Capability) error {
	if u.closed {
		return newError(op, ErrClosed)
	}
	if !u.s.Capabilities().Has(need) {
		return newError(op, ErrUnsupported)
	}
	return nil
}

// Write encodes the UTF-8 text in p. Invalid UTF-8 is written as U+FFFD.
func (u *UCS4Stream) Write(p []byte) (int, error) {
	if err := u.check("write", CanWrite); err != nil {
		return 0, err
	}
	n, err := u.enc.Write(p)
	if err != nil {
		return n, Classify("write", "", err)
	}
	return n, nil
}

// WriteString encodes the UTF-8 text in s.
func (u *UCS4Stream) WriteString(s string) (int, error) {
	return u.Write([]byte(s))
}

// WriteRune encodes a single character. Values that are not Unicode scalar
// values are written as U+FFFD.
func (u *UCS4Stream) WriteRune(r rune) (int, error) {
	return u.Write(utf8.AppendRune(nil, r))
}

// WriteLatin1 encodes each byte of p as the character with that code point.
// It returns the number of bytes of p consumed.
func (u *UCS4Stream) WriteLatin1(p []byte) (int, error) {
	buf := make([]byte, 0, 2*len(p))
	for _, c := range p {
		buf = utf8.AppendRune(buf, rune(c))
	}
	if _, err := u.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadRune decodes the next character. The returned size is the number of
// bytes consumed from the wrapped stream, always 4 on success.
func (u *UCS4Stream) ReadRune() (rune, int, error) {
	if err := u.check("read", CanRead); err != nil {
		return 0, 0, err
	}
	var b [4]byte
	n, err := io.ReadFull(u.s, b[:])
	switch {
	case err == io.EOF:
		return 0, 0, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return 0, n, kindError("read", ErrDecode, "stream ends %d bytes into a code point", n)
	case err != nil:
		return 0, n, Classify("read", "", err)
	}
	cp := u.order.binary().Uint32(b[:])
	if !utf8.ValidRune(rune(cp)) {
		return 0, 4, kindError("read", ErrDecode, "invalid code point %#x", cp)
	}
	u.read++
	return rune(cp), 4, nil
}

// Read decodes characters into p as UTF-8. It fills p as far as whole
// characters fit; a character wider than the remaining space is kept for the
// next call. At the end of the wrapped stream it returns io.EOF.
func (u *UCS4Stream) Read(p []byte) (int, error) {
	if err := u.check("read", CanRead); err != nil {
		return 0, err
	}
	n := copy(p, u.pending)
	u.pending = u.pending[n:]
	for n < len(p) {
		r, _, err := u.ReadRune()
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, nil
			}
			return n, err
		}
		var buf [utf8.UTFMax]byte
		w := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:w])
		n += c
		if c < w {
			u.pending = append(u.pending[:0], buf[c:w]...)
		}
	}
	return n, nil
}

// Seek flushes pending output, discards decoded input that was not yet
// returned, and seeks the wrapped stream. Offsets are in wrapped-stream
// bytes.
func (u *UCS4Stream) Seek(offset int64, whence int) (int64, error) {
	if err := u.check("seek", CanSeek); err != nil {
		return 0, err
	}
	if err := u.enc.Close(); err != nil {
		return 0, Classify("seek", "", err)
	}
	u.resetEncoder()
	u.pending = nil
	return u.s.Seek(offset, whence)
}

// Position returns the wrapped stream's position in bytes.
func (u *UCS4Stream) Position() (int64, error) {
	if u.closed {
		return 0, newError("position", ErrClosed)
	}
	return u.s.Position()
}

// Flush flushes the wrapped stream. A trailing incomplete UTF-8 sequence
// stays pending until more text or Close arrives.
func (u *UCS4Stream) Flush() error {
	if u.closed {
		return newError("flush", ErrClosed)
	}
	return u.s.Flush()
}

// Close writes any pending incomplete sequence as U+FFFD and flushes the
// wrapped stream. The wrapped stream is closed only with WithCloseWrapped.
func (u *UCS4Stream) Close() error {
	if u.closed {
		return newError("close", ErrClosed)
	}
	u.closed = true
	var errs []error
	if u.s.Capabilities().Has(CanWrite) {
		if err := u.enc.Close(); err != nil {
			errs = append(errs, Classify("close", "", err))
		}
	}
	if u.closeWrapped {
		errs = append(errs, u.s.Close())
	} else {
		errs = append(errs, u.s.Flush())
	}
	return errors.Join(errs...)
}

var (
	_ Stream          = (*UCS4Stream)(nil)
	_ Counter         = (*UCS4Stream)(nil)
	_ io.RuneReader   = (*UCS4Stream)(nil)
	_ io.StringWriter = (*UCS4Stream)(nil)
)
