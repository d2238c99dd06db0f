// Package glkwire carries the traffic between an interpreter and its display
// when the two run in separate processes. Each Message is one msgpack value;
// over a WebSocket each message travels in its own binary frame.
//
// The display announces input by sending an event message followed by an
// event_ready message carrying the event's sequence number. The interpreter
// sends window output as stream_data messages.
package glkwire

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrBadMessage is returned for frames that do not decode to a known message.
var ErrBadMessage = errors.New("glkwire: bad message")

// Type identifies a message.
type Type string

const (
	// TypeHello opens a session. Session carries the session ID.
	TypeHello Type = "hello"
	// TypeStreamData carries output bytes for Stream.
	TypeStreamData Type = "stream_data"
	// TypeStreamClose reports that Stream was closed.
	TypeStreamClose Type = "stream_close"
	// TypeEvent carries one input event numbered Seq.
	TypeEvent Type = "event"
	// TypeEventReady announces that events up to Seq are available.
	TypeEventReady Type = "event_ready"
	// TypeBye ends a session. Reason is set when it ends abnormally.
	TypeBye Type = "bye"
)

func (t Type) valid() bool {
	switch t {
	case TypeHello, TypeStreamData, TypeStreamClose, TypeEvent, TypeEventReady, TypeBye:
		return true
	}
	return false
}

// EventType is the kind of an input event.
type EventType uint32

const (
	EventNone EventType = iota
	EventTimer
	EventCharInput
	EventLineInput
	EventMouseInput
	EventArrange
	EventRedraw
	EventSoundNotify
	EventHyperlink
	EventVolumeNotify
)

var eventNames = [...]string{
	"none", "timer", "char", "line", "mouse", "arrange", "redraw", "sound", "hyperlink", "volume",
}

func (e EventType) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("EventType(%d)", uint32(e))
}

// Event is an input event produced by the display.
type Event struct {
	Type   EventType `msgpack:"type"`
	Window uint32    `msgpack:"win,omitempty"`
	Val1   uint32    `msgpack:"val1,omitempty"`
	Val2   uint32    `msgpack:"val2,omitempty"`
	Text   string    `msgpack:"text,omitempty"`
}

// Encoding names the byte form of stream_data payloads.
type Encoding string

const (
	EncodingUTF8   Encoding = ""
	EncodingUCS4BE Encoding = "ucs4be"
	EncodingUCS4LE Encoding = "ucs4le"
)

// Message is one unit of traffic.
type Message struct {
	Type     Type     `msgpack:"t"`
	Session  string   `msgpack:"session,omitempty"`
	Stream   uint32   `msgpack:"stream,omitempty"`
	Seq      uint64   `msgpack:"seq,omitempty"`
	Encoding Encoding `msgpack:"enc,omitempty"`
	Data     []byte   `msgpack:"data,omitempty"`
	Event    *Event   `msgpack:"event,omitempty"`
	Reason   string   `msgpack:"reason,omitempty"`
}

func (m *Message) String() string {
	switch m.Type {
	case TypeStreamData:
		return fmt.Sprintf("%s stream=%d len=%d", m.Type, m.Stream, len(m.Data))
	case TypeStreamClose:
		return fmt.Sprintf("%s stream=%d", m.Type, m.Stream)
	case TypeEvent:
		if m.Event != nil {
			return fmt.Sprintf("%s seq=%d type=%s win=%d", m.Type, m.Seq, m.Event.Type, m.Event.Window)
		}
	case TypeEventReady:
		return fmt.Sprintf("%s seq=%d", m.Type, m.Seq)
	case TypeHello:
		return fmt.Sprintf("%s session=%s", m.Type, m.Session)
	case TypeBye:
		if m.Reason != "" {
			return fmt.Sprintf("%s reason=%q", m.Type, m.Reason)
		}
	}
	return string(m.Type)
}

// Marshal encodes m.
func Marshal(m *Message) ([]byte, error) {
	if !m.Type.valid() {
		return nil, fmt.Errorf("%w: type %q", ErrBadMessage, m.Type)
	}
	return msgpack.Marshal(m)
}

// Unmarshal decodes a message and checks its type and payload.
func Unmarshal(b []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	if !m.Type.valid() {
		return nil, fmt.Errorf("%w: type %q", ErrBadMessage, m.Type)
	}
	if m.Type == TypeEvent && m.Event == nil {
		return nil, fmt.Errorf("%w: event without payload", ErrBadMessage)
	}
	return &m, nil
}
