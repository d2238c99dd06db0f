// Package glkclient is the interpreter side of a display session. A Client
// turns incoming events into Select results and carries window output to the
// display.
//
// The display sends each input event followed by an event_ready
// notification. The reader goroutine queues the event and then advances the
// client's notify.Notifier, so a Select blocked on the notifier wakes only
// once the event it will return is already queued.
package glkclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/glkbridge/pkg/fileref"
	"github.com/haivivi/glkbridge/pkg/glkwire"
	"github.com/haivivi/glkbridge/pkg/notify"
)

// ErrSessionEnded is the terminal error of a session closed by either side
// without a transport failure.
var ErrSessionEnded = errors.New("glkclient: session ended")

// Option configures a Client.
type Option func(*Client)

// WithSession sets the session ID sent in the hello message. By default a
// random UUID is used.
func WithSession(id string) Option {
	return func(c *Client) { c.session = id }
}

// WithFiles attaches a file reference manager. Close releases every
// reference still registered in it.
func WithFiles(m *fileref.Manager) Option {
	return func(c *Client) { c.files = m }
}

// WithLogger sets the logger. By default slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

type queued struct {
	seq uint64
	ev  glkwire.Event
}

// Client is one interpreter session. Its methods are safe for concurrent
// use, but events are meant to be consumed by a single Select loop.
type Client struct {
	conn     glkwire.Conn
	session  string
	notifier *notify.Notifier
	files    *fileref.Manager
	log      *slog.Logger

	mu        sync.Mutex
	queue     []queued
	delivered uint64
	err       error

	failOnce sync.Once
	done     chan struct{}
	readDone chan struct{}
}

// New starts a session on conn: it sends hello and begins reading.
func New(ctx context.Context, conn glkwire.Conn, opts ...Option) (*Client, error) {
	c := &Client{
		conn:     conn,
		notifier: notify.New(),
		log:      slog.Default(),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == "" {
		c.session = uuid.NewString()
	}
	if err := conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeHello, Session: c.session}); err != nil {
		return nil, fmt.Errorf("glkclient: hello: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// Session returns the session ID.
func (c *Client) Session() string { return c.session }

// Files returns the file reference manager, or nil.
func (c *Client) Files() *fileref.Manager { return c.files }

// Notifier returns the notifier driven by event_ready messages.
func (c *Client) Notifier() *notify.Notifier { return c.notifier }

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the session ended, or nil while it is running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for m, err := range c.conn.Messages() {
		if err != nil {
			c.fail(fmt.Errorf("glkclient: receive: %w", err))
			return
		}
		switch m.Type {
		case glkwire.TypeEvent:
			c.enqueue(m.Seq, *m.Event)
		case glkwire.TypeEventReady:
			c.notifier.Notify(m.Seq)
		case glkwire.TypeBye:
			if m.Reason != "" {
				c.fail(fmt.Errorf("%w: %s", ErrSessionEnded, m.Reason))
			} else {
				c.fail(ErrSessionEnded)
			}
			return
		default:
			c.log.Debug("glkclient: ignoring message", "msg", m.String())
		}
	}
	c.fail(ErrSessionEnded)
}

func (c *Client) enqueue(seq uint64, ev glkwire.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.delivered || (len(c.queue) > 0 && seq <= c.queue[len(c.queue)-1].seq) {
		c.log.Warn("glkclient: dropping out-of-order event", "seq", seq, "delivered", c.delivered)
		return
	}
	c.queue = append(c.queue, queued{seq: seq, ev: ev})
}

// fail ends the session with err. Only the first call has an effect.
func (c *Client) fail(err error) {
	c.failOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		if !errors.Is(err, ErrSessionEnded) {
			c.log.Error("glkclient: session failed", "session", c.session, "error", err)
		}
		c.notifier.Cancel()
		close(c.done)
	})
}

// popLocked returns the oldest queued event announced by the notifier.
func (c *Client) popLocked() (glkwire.Event, bool) {
	ready := c.notifier.Seq()
	if len(c.queue) > 0 && c.queue[0].seq <= ready {
		q := c.queue[0]
		c.queue = c.queue[1:]
		c.delivered = q.seq
		return q.ev, true
	}
	if ready > c.delivered {
		// Announced without a payload; nothing to return for those.
		c.log.Warn("glkclient: event_ready without event", "from", c.delivered+1, "to", ready)
		c.delivered = ready
	}
	return glkwire.Event{}, false
}

// Select blocks until the next event is available and returns it. After
// the session ends it returns an error matching notify.ErrCancelled and the
// session's terminal error; a ctx deadline yields notify.ErrTimedOut.
func (c *Client) Select(ctx context.Context) (glkwire.Event, error) {
	for {
		c.mu.Lock()
		ev, ok := c.popLocked()
		last := c.delivered
		c.mu.Unlock()
		if ok {
			return ev, nil
		}
		if _, err := c.notifier.Wait(ctx, last); err != nil {
			if cause := c.Err(); cause != nil && errors.Is(err, notify.ErrCancelled) {
				return glkwire.Event{}, fmt.Errorf("%w: %w", err, cause)
			}
			return glkwire.Event{}, err
		}
	}
}

// SelectPoll returns the next available event without blocking.
func (c *Client) SelectPoll() (glkwire.Event, bool, error) {
	c.mu.Lock()
	ev, ok := c.popLocked()
	err := c.err
	c.mu.Unlock()
	if ok {
		return ev, true, nil
	}
	return glkwire.Event{}, false, err
}

// Close says bye, closes the connection and releases file references. It
// waits for the reader goroutine to exit.
func (c *Client) Close() error {
	var errs []error
	select {
	case <-c.done:
	default:
		ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
		if err := c.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeBye}); err != nil {
			c.log.Debug("glkclient: bye not sent", "error", err)
		}
		cancel()
	}
	c.fail(ErrSessionEnded)
	errs = append(errs, c.conn.Close())
	<-c.readDone
	if c.files != nil {
		errs = append(errs, c.files.Close())
	}
	return errors.Join(errs...)
}
