package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/glkbridge/cmd/glkbridge/internal/config"
	"github.com/haivivi/glkbridge/pkg/glkhost"
	"github.com/haivivi/glkbridge/pkg/glkwire"
)

const shutdownTimeout = 5 * time.Second

var (
	flagListen string
	flagPath   string
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve a plain-text display over WebSocket",
	Long: `Serve a plain-text display over WebSocket.

Window output from the connected interpreter is printed to stdout. Each
line read from stdin is sent as a line input event for the main window.
One interpreter is served at a time; end stdin to say bye.

Examples:
  glkbridge host
  glkbridge host --listen 127.0.0.1:9000 --path /play`,
	Args: cobra.NoArgs,
	RunE: runHost,
}

func init() {
	hostCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (default "+config.DefaultListen+")")
	hostCmd.Flags().StringVar(&flagPath, "path", "", "endpoint path (default "+config.DefaultPath+")")
	rootCmd.AddCommand(hostCmd)
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadService[config.HostConfig](config.HostService)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagPath != "" {
		cfg.Path = flagPath
	}
	cfg.Resolve()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	d := &display{
		out:    cmd.OutOrStdout(),
		status: cmd.ErrOrStderr(),
		lines:  readLines(cmd.InOrStdin()),
		busy:   make(chan struct{}, 1),
	}
	h := glkwire.NewHandler(d.serve)
	h.Logger = slog.Default()

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, h)
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	status(d.status, "listening", "ws://%s%s", ln.Addr(), cfg.Path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// display connects stdin and stdout to one session at a time.
type display struct {
	out    io.Writer
	status io.Writer
	lines  <-chan string
	busy   chan struct{}
}

func (d *display) serve(ctx context.Context, conn glkwire.Conn) error {
	select {
	case d.busy <- struct{}{}:
		defer func() { <-d.busy }()
	default:
		return errors.New("display is busy with another session")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := glkhost.New(conn, d.out, glkhost.WithLogger(slog.Default()))
	errc := make(chan error, 1)
	go func() { errc <- h.Serve(ctx) }()

	select {
	case <-h.Hello():
		status(d.status, "connected", "session %s", h.Session())
	case err := <-errc:
		return err
	}

	for {
		select {
		case err := <-errc:
			if err != nil {
				alert(d.status, "disconnected", "%v", err)
			} else {
				status(d.status, "disconnected", "session %s", h.Session())
			}
			return err
		case line, ok := <-d.lines:
			if !ok {
				if err := h.Bye(ctx, "display closed"); err != nil {
					return err
				}
				status(d.status, "bye", "session %s", h.Session())
				return nil
			}
			seq, err := h.Post(ctx, glkwire.Event{
				Type:   glkwire.EventLineInput,
				Window: mainWindow,
				Text:   line,
			})
			if err != nil {
				return err
			}
			slog.Debug("host: posted line", "seq", seq, "len", len(line))
		}
	}
}

// readLines sends each line of r to the returned channel and closes it at
// the end of r.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			slog.Warn("host: read input", "error", err)
		}
	}()
	return lines
}
