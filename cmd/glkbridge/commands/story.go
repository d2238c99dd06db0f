package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/haivivi/glkbridge/pkg/fileref"
	"github.com/haivivi/glkbridge/pkg/glkclient"
	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/glkwire"
)

// mainWindow is the window the story prints to and reads lines from.
const mainWindow = 1

// savesDir holds the files written by the save command.
const savesDir = "saves"

// story is a tiny line-driven interpreter. It exists to exercise a session
// end to end: select, window output, and file references.
type story struct {
	c   *glkclient.Client
	out glkstream.Stream
	log *slog.Logger

	transcript []string
}

func newStory(c *glkclient.Client, out glkstream.Stream) *story {
	return &story{c: c, out: out, log: slog.Default()}
}

func (s *story) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// run plays until the player quits or the session ends. A session closed by
// the display is a normal end.
func (s *story) run(ctx context.Context) error {
	s.printf("glkbridge demo. Commands: save NAME, restore NAME, delete NAME, scratch, files, quit.\n> ")
	for {
		ev, err := s.c.Select(ctx)
		if err != nil {
			if errors.Is(err, glkclient.ErrSessionEnded) {
				return nil
			}
			return err
		}
		if ev.Type != glkwire.EventLineInput {
			s.log.Debug("story: ignoring event", "type", ev.Type, "window", ev.Window)
			continue
		}
		if done := s.handle(ctx, strings.TrimSpace(ev.Text)); done {
			return nil
		}
		s.printf("> ")
	}
}

// handle runs one command line and reports whether the player quit.
func (s *story) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "":
		return false
	case "quit":
		s.printf("Bye.\n")
		return true
	case "save":
		err = s.save(ctx, arg)
	case "restore":
		err = s.restore(ctx, arg)
	case "delete":
		err = s.delete(ctx, arg)
	case "scratch":
		err = s.scratch(ctx)
	case "files":
		s.files()
	default:
		s.transcript = append(s.transcript, line)
		s.printf("You said %q.\n", line)
	}
	if err != nil {
		s.printf("%s\n", describe(err))
	}
	return false
}

func (s *story) locator(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: bad name %q", fs.ErrInvalid, name)
	}
	return savesDir + "/" + name, nil
}

// save writes the transcript so far to saves/NAME.
func (s *story) save(ctx context.Context, name string) error {
	loc, err := s.locator(name)
	if err != nil {
		return err
	}
	files := s.c.Files()
	id, ref, err := files.Create(loc, fileref.UsageSavedGame|fileref.UsageTextMode)
	if err != nil {
		return err
	}
	defer files.Release(id)

	w, err := ref.OpenStream(ctx, fileref.ModeWrite)
	if err != nil {
		return err
	}
	for _, line := range s.transcript {
		if _, err := fmt.Fprintln(w, line); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.printf("Saved %d lines to %s.\n", len(s.transcript), name)
	return nil
}

// restore replaces the transcript with the contents of saves/NAME.
func (s *story) restore(ctx context.Context, name string) error {
	loc, err := s.locator(name)
	if err != nil {
		return err
	}
	files := s.c.Files()
	id, ref, err := files.Create(loc, fileref.UsageSavedGame|fileref.UsageTextMode)
	if err != nil {
		return err
	}
	defer files.Release(id)

	r, err := ref.OpenStream(ctx, fileref.ModeRead)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return err
	}
	s.transcript = strings.FieldsFunc(string(data), func(r rune) bool { return r == '\n' })
	s.printf("Restored %d lines from %s.\n", len(s.transcript), name)
	for _, line := range s.transcript {
		s.printf("  %s\n", line)
	}
	return nil
}

func (s *story) delete(ctx context.Context, name string) error {
	loc, err := s.locator(name)
	if err != nil {
		return err
	}
	files := s.c.Files()
	id, ref, err := files.Create(loc, fileref.UsageSavedGame)
	if err != nil {
		return err
	}
	defer files.Release(id)
	if err := ref.Delete(ctx); err != nil {
		return err
	}
	s.printf("Deleted %s.\n", name)
	return nil
}

// scratch writes the transcript to a temporary file reference and reports
// its size. The file is removed when the reference is released.
func (s *story) scratch(ctx context.Context) error {
	files := s.c.Files()
	id, ref, err := files.CreateTemp(fileref.UsageData | fileref.UsageTextMode)
	if err != nil {
		return err
	}
	defer files.Release(id)

	w, err := ref.OpenStream(ctx, fileref.ModeWrite)
	if err != nil {
		return err
	}
	n, err := io.WriteString(w, strings.Join(s.transcript, "\n"))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	s.printf("Wrote %d bytes to scratch file %s.\n", n, ref.Locator())
	return nil
}

func (s *story) files() {
	files := s.c.Files()
	s.printf("%d file references open.\n", files.Len())
	for _, id := range files.IDs() {
		if ref, ok := files.Lookup(id); ok {
			s.printf("  #%d %s (%s)\n", id, ref.Locator(), ref.Usage())
		}
	}
}

// describe turns a stream or file error into a line for the player.
func describe(err error) string {
	switch {
	case errors.Is(err, glkstream.ErrNotFound):
		return "No such file."
	case errors.Is(err, glkstream.ErrPermission):
		return "Permission denied."
	case errors.Is(err, fs.ErrInvalid):
		return "That is not a valid file name."
	case errors.Is(err, glkstream.ErrUnsupported):
		return "The file store cannot do that."
	}
	return "Error: " + err.Error()
}
