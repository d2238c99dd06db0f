package glkwire

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

func TestMarshalEvent(t *testing.T) {
	in := &Message{
		Type:  TypeEvent,
		Seq:   7,
		Event: &Event{Type: EventLineInput, Window: 3, Val1: 5, Text: "north"},
	}
	b, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Seq != 7 || out.Event == nil || *out.Event != *in.Event {
		t.Fatalf("decoded %+v", out)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	unknown, _ := msgpack.Marshal(map[string]any{"t": "launch_missiles"})
	noPayload, _ := msgpack.Marshal(map[string]any{"t": "event", "seq": 1})
	tests := map[string][]byte{
		"garbage":    {0xc1},
		"unknown":    unknown,
		"no payload": noPayload,
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal(b); !errors.Is(err, ErrBadMessage) {
				t.Fatalf("expected ErrBadMessage, got %v", err)
			}
		})
	}
	if _, err := Marshal(&Message{Type: "nope"}); !errors.Is(err, ErrBadMessage) {
		t.Fatalf("Marshal: expected ErrBadMessage, got %v", err)
	}
}

func collect(t *testing.T, c Conn, n int) []*Message {
	t.Helper()
	var got []*Message
	for m, err := range c.Messages() {
		if err != nil {
			t.Fatalf("Messages: %v", err)
		}
		got = append(got, m)
		if len(got) == n {
			break
		}
	}
	return got
}

func TestPipe(t *testing.T) {
	ctx := context.Background()
	a, b := NewPipe()

	data := []byte("hello")
	if err := a.Send(ctx, &Message{Type: TypeStreamData, Stream: 1, Data: data}); err != nil {
		t.Fatal(err)
	}
	data[0] = 'J'
	if err := b.Send(ctx, &Message{Type: TypeEventReady, Seq: 1}); err != nil {
		t.Fatal(err)
	}

	got := collect(t, b, 1)
	if string(got[0].Data) != "hello" {
		t.Fatalf("payload shared with sender: %q", got[0].Data)
	}
	got = collect(t, a, 1)
	if got[0].Type != TypeEventReady || got[0].Seq != 1 {
		t.Fatalf("got %v", got[0])
	}
}

func TestPipeCloseDeliversBuffered(t *testing.T) {
	ctx := context.Background()
	a, b := NewPipe()
	for i := range 3 {
		if err := a.Send(ctx, &Message{Type: TypeEventReady, Seq: uint64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}
	cause := errors.New("display crashed")
	a.CloseWithError(cause)

	var seqs []uint64
	var last error
	for m, err := range b.Messages() {
		if err != nil {
			last = err
			break
		}
		seqs = append(seqs, m.Seq)
	}
	if len(seqs) != 3 {
		t.Fatalf("got %v, want 3 buffered messages", seqs)
	}
	if !errors.Is(last, cause) {
		t.Fatalf("final error = %v, want %v", last, cause)
	}

	err := b.Send(ctx, &Message{Type: TypeBye})
	if !errors.Is(err, ErrClosed) || !errors.Is(err, cause) {
		t.Fatalf("Send after close = %v", err)
	}
}

func TestPipeSendHonoursContext(t *testing.T) {
	a, _ := NewPipe()
	ctx := context.Background()
	for range 64 {
		if err := a.Send(ctx, &Message{Type: TypeEventReady}); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := a.Send(ctx, &Message{Type: TypeEventReady}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded on full pipe, got %v", err)
	}
}

func TestWebSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The server echoes stream_data back as event_ready with Seq = len(Data).
	srv := httptest.NewServer(NewHandler(func(ctx context.Context, c Conn) error {
		for m, err := range c.Messages() {
			if err != nil {
				return err
			}
			if m.Type == TypeBye {
				return nil
			}
			if err := c.Send(ctx, &Message{Type: TypeEventReady, Seq: uint64(len(m.Data))}); err != nil {
				return err
			}
		}
		return nil
	}))
	defer srv.Close()

	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Send(ctx, &Message{Type: TypeStreamData, Stream: 2, Data: []byte("abcd")}); err != nil {
		t.Fatal(err)
	}
	got := collect(t, c, 1)
	if got[0].Type != TypeEventReady || got[0].Seq != 4 {
		t.Fatalf("got %v", got[0])
	}

	if err := c.Send(ctx, &Message{Type: TypeBye}); err != nil {
		t.Fatal(err)
	}
	// The handler returns and closes normally, ending the sequence cleanly.
	for _, err := range c.Messages() {
		if err != nil {
			t.Fatalf("expected clean close, got %v", err)
		}
	}
	c.Close()
	if err := c.Send(ctx, &Message{Type: TypeBye}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close: expected ErrClosed, got %v", err)
	}
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"short", "bye", 3},
		{"ascii", strings.Repeat("x", 200), maxCloseReason},
		// 119 ASCII bytes then a 2-byte rune straddling the limit.
		{"split rune", strings.Repeat("x", 119) + "é" + "tail", 119},
		// 4-byte runes from the start: 120 is a rune boundary.
		{"emoji", strings.Repeat("😀", 40), maxCloseReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := closeReason(tt.in)
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("invalid UTF-8: %q", got)
			}
			if !strings.HasPrefix(tt.in, got) {
				t.Fatalf("%q is not a prefix", got)
			}
		})
	}
}

func TestMessageString(t *testing.T) {
	m := &Message{Type: TypeEvent, Seq: 2, Event: &Event{Type: EventCharInput, Window: 1}}
	if got := m.String(); got != "event seq=2 type=char win=1" {
		t.Fatalf("String() = %q", got)
	}
	if got := EventType(42).String(); got != "EventType(42)" {
		t.Fatalf("String() = %q", got)
	}
}
