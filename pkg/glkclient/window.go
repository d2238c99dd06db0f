package glkclient

import (
	"context"
	"fmt"
	"time"

	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/glkwire"
)

const (
	byeTimeout   = time.Second
	writeTimeout = 10 * time.Second
)

// windowWriter sends bytes written to a window stream as stream_data.
type windowWriter struct {
	c   *Client
	id  uint32
	enc glkwire.Encoding
}

func (w *windowWriter) Write(p []byte) (int, error) {
	if err := w.c.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := w.c.conn.Send(ctx, &glkwire.Message{
		Type:     glkwire.TypeStreamData,
		Stream:   w.id,
		Encoding: w.enc,
		Data:     p,
	})
	if err != nil {
		// Output that cannot reach the display ends the session.
		w.c.fail(fmt.Errorf("glkclient: window %d: %w", w.id, err))
		return 0, err
	}
	return len(p), nil
}

func (w *windowWriter) Close() error {
	if w.c.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return w.c.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeStreamClose, Stream: w.id})
}

// WindowStream returns a write-only stream whose bytes are shown in window
// id as UTF-8 text.
func (c *Client) WindowStream(id uint32) *glkstream.IOStream {
	return c.windowStream(id, glkwire.EncodingUTF8)
}

// UnicodeWindowStream returns a stream for window id that sends text as
// 4-byte code points in order. Closing it closes the window stream.
func (c *Client) UnicodeWindowStream(id uint32, order glkstream.ByteOrder) *glkstream.UCS4Stream {
	enc := glkwire.EncodingUCS4BE
	if order == glkstream.LittleEndian {
		enc = glkwire.EncodingUCS4LE
	}
	return glkstream.NewUCS4Stream(c.windowStream(id, enc), order, glkstream.WithCloseWrapped())
}

func (c *Client) windowStream(id uint32, enc glkwire.Encoding) *glkstream.IOStream {
	return glkstream.Wrap(&windowWriter{c: c, id: id, enc: enc},
		glkstream.WithName(fmt.Sprintf("window %d", id)),
	)
}
