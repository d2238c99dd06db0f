package glkwire

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol both ends negotiate.
const Subprotocol = "glk.v1"

const closeTimeout = time.Second

// maxCloseReason keeps a close frame within the 125-byte control payload.
const maxCloseReason = 120

// WSConn is a Conn over a WebSocket.
type WSConn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewWSConn wraps an established WebSocket.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws, closeCh: make(chan struct{})}
}

// Dial connects to a display listening at url (ws:// or wss://).
func Dial(ctx context.Context, url string, header http.Header) (*WSConn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("glkwire: dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("glkwire: dial %s: %w", url, err)
	}
	return NewWSConn(ws), nil
}

func (c *WSConn) Send(ctx context.Context, m *Message) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("glkwire: send %s: %w", m.Type, err)
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("glkwire: sent", "msg", m.String(), "bytes", len(b))
	}
	return nil
}

// Messages reads frames until the connection closes. A normal close by the
// peer, or a local Close, ends the sequence without an error.
func (c *WSConn) Messages() iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for {
			kind, b, err := c.ws.ReadMessage()
			if err != nil {
				select {
				case <-c.closeCh:
					return
				default:
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				var ce *websocket.CloseError
				if errors.As(err, &ce) && ce.Text != "" {
					err = fmt.Errorf("glkwire: peer closed: %s", ce.Text)
				}
				yield(nil, err)
				return
			}
			if kind != websocket.BinaryMessage {
				if !yield(nil, fmt.Errorf("%w: text frame", ErrBadMessage)) {
					return
				}
				continue
			}
			m, err := Unmarshal(b)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (c *WSConn) Close() error {
	return c.CloseWithError(nil)
}

// CloseWithError sends a close frame, with err's text when err is non-nil,
// and closes the socket.
func (c *WSConn) CloseWithError(err error) error {
	var cerr error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		code, text := websocket.CloseNormalClosure, ""
		if err != nil {
			code, text = websocket.CloseInternalServerErr, closeReason(err.Error())
		}
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(closeTimeout))
		c.writeMu.Unlock()
		cerr = c.ws.Close()
	})
	return cerr
}

// closeReason cuts text to maxCloseReason bytes without splitting a UTF-8
// sequence.
func closeReason(text string) string {
	if len(text) <= maxCloseReason {
		return text
	}
	i := maxCloseReason
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return text[:i]
}

// Handler upgrades HTTP requests to WebSocket connections and passes each
// to Serve. The connection is closed when Serve returns.
type Handler struct {
	Serve    func(ctx context.Context, c Conn) error
	Upgrader websocket.Upgrader
	Logger   *slog.Logger
}

// NewHandler returns a Handler accepting any origin.
func NewHandler(serve func(ctx context.Context, c Conn) error) *Handler {
	return &Handler{
		Serve: serve,
		Upgrader: websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("glkwire: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := NewWSConn(ws)
	h.logger().Info("glkwire: connection accepted", "remote", r.RemoteAddr)
	err = h.Serve(r.Context(), c)
	if err != nil {
		h.logger().Warn("glkwire: session ended", "remote", r.RemoteAddr, "error", err)
	}
	c.CloseWithError(err)
}

var _ Conn = (*WSConn)(nil)
