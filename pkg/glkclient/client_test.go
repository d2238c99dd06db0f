package glkclient

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/haivivi/glkbridge/pkg/fileref"
	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/glkwire"
	"github.com/haivivi/glkbridge/pkg/notify"
	"github.com/haivivi/glkbridge/pkg/storage"
)

// display is the far end of a client under test.
type display struct {
	t    *testing.T
	conn *glkwire.PipeConn
	recv chan *glkwire.Message
	seq  uint64
}

func newSession(t *testing.T, opts ...Option) (*Client, *display) {
	t.Helper()
	a, b := glkwire.NewPipe()
	c, err := New(context.Background(), a, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	d := &display{t: t, conn: b, recv: make(chan *glkwire.Message, 64)}
	go func() {
		defer close(d.recv)
		for m, err := range b.Messages() {
			if err != nil {
				return
			}
			d.recv <- m
		}
	}()
	if hello := d.next(); hello.Type != glkwire.TypeHello || hello.Session != c.Session() {
		t.Fatalf("first message = %v", hello)
	}
	return c, d
}

func (d *display) next() *glkwire.Message {
	d.t.Helper()
	select {
	case m, ok := <-d.recv:
		if !ok {
			d.t.Fatal("connection closed")
		}
		return m
	case <-time.After(2 * time.Second):
		d.t.Fatal("no message from client")
	}
	return nil
}

func (d *display) post(ev glkwire.Event) {
	d.t.Helper()
	d.seq++
	ctx := context.Background()
	if err := d.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeEvent, Seq: d.seq, Event: &ev}); err != nil {
		d.t.Fatal(err)
	}
	if err := d.conn.Send(ctx, &glkwire.Message{Type: glkwire.TypeEventReady, Seq: d.seq}); err != nil {
		d.t.Fatal(err)
	}
}

func TestSelectWaitsForEvent(t *testing.T) {
	c, d := newSession(t)

	got := make(chan glkwire.Event, 1)
	go func() {
		ev, err := c.Select(context.Background())
		if err != nil {
			t.Errorf("Select: %v", err)
		}
		got <- ev
	}()

	select {
	case ev := <-got:
		t.Fatalf("Select returned %+v before any event", ev)
	case <-time.After(20 * time.Millisecond):
	}

	d.post(glkwire.Event{Type: glkwire.EventLineInput, Window: 1, Text: "look"})
	select {
	case ev := <-got:
		if ev.Type != glkwire.EventLineInput || ev.Text != "look" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Select not woken")
	}
}

func TestSelectDrainsInOrder(t *testing.T) {
	c, d := newSession(t)
	for i := range 3 {
		d.post(glkwire.Event{Type: glkwire.EventCharInput, Val1: uint32('a' + i)})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := range 3 {
		ev, err := c.Select(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Val1 != uint32('a'+i) {
			t.Fatalf("event %d = %c", i, rune(ev.Val1))
		}
	}
	if _, ok, err := c.SelectPoll(); ok || err != nil {
		t.Fatalf("SelectPoll = %v, %v after draining", ok, err)
	}
}

func TestSelectTimeout(t *testing.T) {
	c, _ := newSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Select(ctx); !errors.Is(err, notify.ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestTransportFailureEndsSession(t *testing.T) {
	c, d := newSession(t)
	w := c.WindowStream(1)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background())
		errc <- err
	}()
	waitWaiting(t, c)

	cause := errors.New("display lost")
	d.conn.CloseWithError(cause)

	select {
	case err := <-errc:
		if !errors.Is(err, notify.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		if !errors.Is(err, cause) {
			t.Fatalf("cause not reported: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Select still blocked after transport failure")
	}

	if _, err := io.WriteString(w, "anyone?"); err == nil {
		t.Fatal("write after session failure succeeded")
	}
	if _, _, err := c.SelectPoll(); err == nil {
		t.Fatal("SelectPoll reported no error after failure")
	}
}

func TestByeEndsSession(t *testing.T) {
	c, d := newSession(t)
	d.conn.Send(context.Background(), &glkwire.Message{Type: glkwire.TypeBye, Reason: "window closed"})
	<-c.Done()
	if _, err := c.Select(context.Background()); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func waitWaiting(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Notifier().State() != notify.Waiting {
		if time.Now().After(deadline) {
			t.Fatal("Select never blocked")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWindowStream(t *testing.T) {
	c, d := newSession(t)
	w := c.WindowStream(4)
	if w.Capabilities() != glkstream.CanWrite {
		t.Fatalf("capabilities = %v", w.Capabilities())
	}
	if _, err := io.WriteString(w, "You are in a maze."); err != nil {
		t.Fatal(err)
	}
	m := d.next()
	if m.Type != glkwire.TypeStreamData || m.Stream != 4 || string(m.Data) != "You are in a maze." {
		t.Fatalf("got %v %q", m, m.Data)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if m := d.next(); m.Type != glkwire.TypeStreamClose || m.Stream != 4 {
		t.Fatalf("got %v", m)
	}
}

func TestUnicodeWindowStream(t *testing.T) {
	c, d := newSession(t)
	u := c.UnicodeWindowStream(2, glkstream.LittleEndian)
	if _, err := u.WriteRune('é'); err != nil {
		t.Fatal(err)
	}
	m := d.next()
	if m.Encoding != glkwire.EncodingUCS4LE {
		t.Fatalf("encoding = %q", m.Encoding)
	}
	if string(m.Data) != "\xe9\x00\x00\x00" {
		t.Fatalf("data = % x", m.Data)
	}
	if err := u.Close(); err != nil {
		t.Fatal(err)
	}
	if m := d.next(); m.Type != glkwire.TypeStreamClose {
		t.Fatalf("got %v", m)
	}
}

func TestCloseReleasesFiles(t *testing.T) {
	store := storage.NewMemory()
	files := fileref.NewManager(store)
	c, d := newSession(t, WithFiles(files), WithSession("s-1"))
	if c.Session() != "s-1" {
		t.Fatalf("session = %q", c.Session())
	}

	_, ref, err := files.CreateTemp(fileref.UsageData)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ref.OpenStream(context.Background(), fileref.ModeWrite)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(s, "scratch")
	s.Close()

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if m := d.next(); m.Type != glkwire.TypeBye {
		t.Fatalf("got %v, want bye", m)
	}
	if ok, _ := store.Exists(context.Background(), ref.Locator()); ok {
		t.Fatal("temporary file survived Close")
	}
}
