package commands

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/glkbridge/pkg/fileref"
	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/glkwire"
	"github.com/haivivi/glkbridge/pkg/kv"
	"github.com/haivivi/glkbridge/pkg/storage"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type session struct {
	out, status *syncBuffer
	lines       chan string
	served      chan error
	files       *storage.Memory
	ledger      *kv.Memory
	story       *story
	window      glkstream.Stream
}

func startSession(t *testing.T, ctx context.Context, unicode bool) *session {
	t.Helper()
	a, b := glkwire.NewPipe()
	s := &session{
		out:    &syncBuffer{},
		status: &syncBuffer{},
		lines:  make(chan string, 16),
		served: make(chan error, 1),
		files:  storage.NewMemory(),
		ledger: kv.NewMemory(),
	}
	d := &display{out: s.out, status: s.status, lines: s.lines, busy: make(chan struct{}, 1)}
	go func() { s.served <- d.serve(ctx, b) }()

	c, err := newSession(ctx, a, "story-session", s.files, s.ledger)
	if err != nil {
		t.Fatal(err)
	}
	s.window = c.WindowStream(mainWindow)
	if unicode {
		s.window = c.UnicodeWindowStream(mainWindow, glkstream.LittleEndian)
	}
	s.story = newStory(c, s.window)
	t.Cleanup(func() { c.Close() })
	return s
}

func (s *session) play(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := s.story.run(ctx); err != nil {
		t.Fatalf("story: %v", err)
	}
	s.window.Close()
	s.story.c.Close()
	select {
	case err := <-s.served:
		if err != nil {
			t.Fatalf("display: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("display did not finish")
	}
}

func TestStoryOverDisplay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := startSession(t, ctx, false)

	for _, line := range []string{
		"hello",
		"save one",
		"restore one",
		"restore missing",
		"save ../x",
		"scratch",
		"files",
		"quit",
	} {
		s.lines <- line
	}
	s.play(t, ctx)

	out := s.out.String()
	for _, want := range []string{
		"glkbridge demo.",
		`You said "hello".`,
		"Saved 1 lines to one.",
		"Restored 1 lines from one.\n  hello\n",
		"No such file.",
		"That is not a valid file name.",
		"Wrote 5 bytes to scratch file tmp/glk-",
		"0 file references open.",
		"Bye.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(s.status.String(), "session story-session") {
		t.Errorf("status: %s", s.status.String())
	}

	ok, err := s.files.Exists(ctx, "saves/one")
	if err != nil || !ok {
		t.Fatalf("saves/one exists = %v, %v", ok, err)
	}

	// The scratch file was created and released; only the save remains.
	var locators []string
	for r, err := range fileref.NewLedger(s.ledger, "").Records(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		locators = append(locators, r.Locator)
		if r.Session != "story-session" {
			t.Errorf("record session = %q", r.Session)
		}
	}
	if len(locators) != 1 || locators[0] != "saves/one" {
		t.Fatalf("ledger records = %v", locators)
	}
}

func TestStoryUnicodeWindow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := startSession(t, ctx, true)

	s.lines <- "café 😀"
	s.lines <- "quit"
	s.play(t, ctx)

	if out := s.out.String(); !strings.Contains(out, `You said "café 😀".`) {
		t.Fatalf("output: %s", out)
	}
}

func TestDisplayByeEndsStory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := startSession(t, ctx, false)

	// Output after the bye may never be rendered; the story only has to end
	// without error.
	s.lines <- "hello"
	close(s.lines)
	s.play(t, ctx)

	if !strings.Contains(s.status.String(), "bye") {
		t.Fatalf("status: %s", s.status.String())
	}
}
