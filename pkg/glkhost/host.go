// Package glkhost is a plain-text display for glkclient sessions. It prints
// window output to a writer and posts input events with increasing sequence
// numbers.
package glkhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/glkwire"
)

// Host serves one session.
type Host struct {
	conn glkwire.Conn
	out  io.Writer
	log  *slog.Logger

	postMu sync.Mutex
	seq    uint64

	mu      sync.Mutex
	session string
	written map[uint32]int64
	partial map[uint32][]byte
	hello   chan struct{}
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. By default slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.log = l }
}

// New returns a Host printing window output to out.
func New(conn glkwire.Conn, out io.Writer, opts ...Option) *Host {
	h := &Host{
		conn:    conn,
		out:     out,
		log:     slog.Default(),
		written: make(map[uint32]int64),
		partial: make(map[uint32][]byte),
		hello:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Session returns the session ID from the client's hello, or "".
func (h *Host) Session() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Hello is closed once the client has said hello.
func (h *Host) Hello() <-chan struct{} { return h.hello }

// Seq returns the sequence number of the last posted event.
func (h *Host) Seq() uint64 {
	h.postMu.Lock()
	defer h.postMu.Unlock()
	return h.seq
}

// Written returns the number of bytes printed for window stream id.
func (h *Host) Written(id uint32) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written[id]
}

// Serve reads the session until the client says bye or the connection
// ends. It returns nil for a normal end.
func (h *Host) Serve(ctx context.Context) error {
	for m, err := range h.conn.Messages() {
		if err != nil {
			return fmt.Errorf("glkhost: receive: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		switch m.Type {
		case glkwire.TypeHello:
			h.mu.Lock()
			first := h.session == ""
			h.session = m.Session
			h.mu.Unlock()
			if first {
				close(h.hello)
			}
			h.log.Info("glkhost: session started", "session", m.Session)
		case glkwire.TypeStreamData:
			if err := h.render(m); err != nil {
				return err
			}
		case glkwire.TypeStreamClose:
			h.log.Debug("glkhost: stream closed", "stream", m.Stream, "bytes", h.Written(m.Stream))
		case glkwire.TypeBye:
			h.log.Info("glkhost: session ended", "session", h.Session())
			return nil
		default:
			h.log.Debug("glkhost: ignoring message", "msg", m.String())
		}
	}
	return nil
}

// render prints stream_data. UCS-4 payloads are decoded to UTF-8; a code
// point split across messages is held until the rest arrives.
func (h *Host) render(m *glkwire.Message) error {
	data := m.Data
	var order glkstream.ByteOrder
	switch m.Encoding {
	case glkwire.EncodingUTF8:
	case glkwire.EncodingUCS4BE:
		order = glkstream.BigEndian
	case glkwire.EncodingUCS4LE:
		order = glkstream.LittleEndian
	default:
		h.log.Warn("glkhost: unknown encoding", "stream", m.Stream, "encoding", m.Encoding)
		return nil
	}
	if m.Encoding != glkwire.EncodingUTF8 {
		var err error
		if data, err = h.decode(m.Stream, data, order); err != nil {
			h.log.Warn("glkhost: undecodable output", "stream", m.Stream, "error", err)
			return nil
		}
	}
	n, err := h.out.Write(data)
	h.mu.Lock()
	h.written[m.Stream] += int64(n)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("glkhost: render stream %d: %w", m.Stream, err)
	}
	return nil
}

func (h *Host) decode(stream uint32, data []byte, order glkstream.ByteOrder) ([]byte, error) {
	h.mu.Lock()
	buf := append(h.partial[stream], data...)
	whole := len(buf) &^ 3
	h.partial[stream] = append([]byte(nil), buf[whole:]...)
	h.mu.Unlock()

	u := glkstream.NewUCS4Stream(glkstream.NewMemory(buf[:whole]), order)
	out := make([]byte, 0, whole)
	for {
		r, _, err := u.ReadRune()
		switch {
		case err == nil:
			out = utf8.AppendRune(out, r)
		case errors.Is(err, io.EOF):
			return out, nil
		case errors.Is(err, glkstream.ErrDecode):
			// The bad group is consumed; mark it and go on.
			out = append(out, "\uFFFD"...)
		default:
			return nil, err
		}
	}
}

// Post sends ev to the client and announces it. Events are numbered from 1.
func (h *Host) Post(ctx context.Context, ev glkwire.Event) (uint64, error) {
	h.postMu.Lock()
	defer h.postMu.Unlock()
	seq := h.seq + 1
	if err := h.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeEvent, Seq: seq, Event: &ev}); err != nil {
		return 0, fmt.Errorf("glkhost: post event %d: %w", seq, err)
	}
	h.seq = seq
	if err := h.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeEventReady, Seq: seq}); err != nil {
		return 0, fmt.Errorf("glkhost: announce event %d: %w", seq, err)
	}
	return seq, nil
}

// Bye ends the session from the display side.
func (h *Host) Bye(ctx context.Context, reason string) error {
	return h.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeBye, Reason: reason})
}
