package glkwire

import (
	"context"
	"errors"
	"iter"
)

// ErrClosed is returned by Send after either end closed the connection.
var ErrClosed = errors.New("glkwire: connection closed")

// Conn is a message connection. Send may be called from several goroutines;
// Messages must be consumed by a single reader.
type Conn interface {
	// Send delivers m to the peer.
	Send(ctx context.Context, m *Message) error

	// Messages yields received messages until the connection closes. A
	// connection closed with an error yields that error last.
	Messages() iter.Seq2[*Message, error]

	// Close closes the connection normally.
	Close() error

	// CloseWithError closes the connection and reports err to the peer.
	CloseWithError(err error) error
}
