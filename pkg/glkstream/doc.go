// Package glkstream defines the stream contract shared by every data sink and
// source in the interpreter runtime, plus the stream implementations and
// decorators built on top of it.
//
// The package offers:
//
//   - Stream: the minimal read/write/seek/close contract. Every stream reports
//     its Capability set, computed once at construction, and operations the
//     stream cannot perform fail with ErrUnsupported instead of being probed at
//     call time.
//
//   - Memory: a growable, seekable in-memory stream.
//
//   - IOStream: an adapter that turns any io.Reader, io.Writer, io.Seeker and
//     io.Closer combination (for example an *os.File) into a Stream.
//
//   - UCS4Stream: a decorator that re-encodes characters to and from the
//     fixed-width 4-byte code point form, in big- or little-endian order, on
//     top of another Stream.
//
// Streams are single-owner: they are not safe for concurrent use without
// external synchronization. Once closed, every operation fails with ErrClosed.
//
// Example usage:
//
//	mem := glkstream.NewMemory(nil)
//	u := glkstream.NewUCS4Stream(mem, glkstream.BigEndian)
//	u.WriteString("A😀")
//	u.Close()          // flushes, leaves mem open
//	mem.Bytes()        // 00 00 00 41 00 01 F6 00
package glkstream
