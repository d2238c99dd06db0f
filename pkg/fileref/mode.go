package fileref

import (
	"fmt"
	"os"

	"github.com/haivivi/glkbridge/pkg/glkstream"
)

// Mode is the access mode of a stream opened from a reference.
type Mode int

const (
	// ModeRead opens an existing resource for reading.
	ModeRead Mode = iota
	// ModeWrite creates or truncates the resource and opens it for writing.
	ModeWrite
	// ModeReadWrite opens the resource for reading and writing without
	// truncating it, creating it if absent.
	ModeReadWrite
	// ModeAppend opens the resource for writing at its end, creating it if
	// absent.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "read-write"
	case ModeAppend:
		return "append"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// creates reports whether opening in m may create the resource.
func (m Mode) creates() bool { return m != ModeRead }

func (m Mode) flags() int {
	switch m {
	case ModeWrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case ModeReadWrite:
		return os.O_RDWR | os.O_CREATE
	case ModeAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.O_RDONLY
}

// caps is the capability mask a stream opened in m is limited to.
func (m Mode) caps() glkstream.Capability {
	switch m {
	case ModeRead:
		return glkstream.CanRead | glkstream.CanSeek
	case ModeWrite:
		return glkstream.CanWrite | glkstream.CanSeek | glkstream.CanFlush
	case ModeAppend:
		return glkstream.CanWrite | glkstream.CanFlush
	}
	return glkstream.CanRead | glkstream.CanWrite | glkstream.CanSeek | glkstream.CanFlush
}

// Usage describes what a file holds and whether it is text.
type Usage uint32

const (
	UsageData        Usage = 0x00
	UsageSavedGame   Usage = 0x01
	UsageTranscript  Usage = 0x02
	UsageInputRecord Usage = 0x03
	UsageTypeMask    Usage = 0x0f

	UsageTextMode   Usage = 0x100
	UsageBinaryMode Usage = 0x000
)

// Type returns the usage with the text/binary bit cleared.
func (u Usage) Type() Usage { return u & UsageTypeMask }

// Text reports whether the file is opened in text mode.
func (u Usage) Text() bool { return u&UsageTextMode != 0 }

func (u Usage) String() string {
	var t string
	switch u.Type() {
	case UsageData:
		t = "data"
	case UsageSavedGame:
		t = "savedgame"
	case UsageTranscript:
		t = "transcript"
	case UsageInputRecord:
		t = "inputrecord"
	default:
		t = fmt.Sprintf("usage(%#x)", uint32(u.Type()))
	}
	if u.Text() {
		return t + "/text"
	}
	return t + "/binary"
}
