package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/glkbridge/cmd/glkbridge/internal/build"
	"github.com/haivivi/glkbridge/cmd/glkbridge/internal/config"
	"github.com/haivivi/glkbridge/pkg/fileref"
	"github.com/haivivi/glkbridge/pkg/glkclient"
	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/glkwire"
	"github.com/haivivi/glkbridge/pkg/kv"
	"github.com/haivivi/glkbridge/pkg/storage"
)

var (
	flagURL      string
	flagFilesDir string
	flagLedger   string
	flagUnicode  bool
)

var interpCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo interpreter against a display",
	Long: `Run the demo interpreter against a display.

The interpreter connects to a display started with 'glkbridge host', prints
a prompt, and waits in select for line input. Saved games go to the files
directory, or to S3 when files.s3.bucket is configured in the context.

File references created by this session are recorded in the ledger. A
persistent ledger lets 'glkbridge files sweep' remove temporary files left
by sessions that did not exit cleanly.

Examples:
  glkbridge run --url ws://localhost:7480/glk --files ./saves
  glkbridge run --unicode --ledger ./ledger`,
	Args: cobra.NoArgs,
	RunE: runInterpreter,
}

func init() {
	interpCmd.Flags().StringVar(&flagURL, "url", "", "display endpoint (default "+config.DefaultURL()+")")
	interpCmd.Flags().StringVar(&flagFilesDir, "files", "", "directory for file references (default: memory)")
	interpCmd.Flags().StringVar(&flagLedger, "ledger", "", "ledger directory (default: memory)")
	interpCmd.Flags().BoolVar(&flagUnicode, "unicode", false, "send window output as 4-byte code points")
	rootCmd.AddCommand(interpCmd)
}

// loadClientConfig merges the context's client.yaml with the flags.
func loadClientConfig() (*config.ClientConfig, error) {
	cfg, err := loadService[config.ClientConfig](config.ClientService)
	if err != nil {
		return nil, err
	}
	if flagURL != "" {
		cfg.URL = flagURL
	}
	if flagFilesDir != "" {
		cfg.Files.Dir = flagFilesDir
		cfg.Files.S3 = nil
	}
	if flagLedger != "" {
		cfg.Ledger = flagLedger
	}
	if flagUnicode {
		cfg.Unicode = true
	}
	cfg.Resolve()
	return cfg, nil
}

func runInterpreter(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, where, err := openFileStore(cfg.Files)
	if err != nil {
		return err
	}
	ledgerStore, err := openLedger(cfg.Ledger)
	if err != nil {
		return err
	}
	defer ledgerStore.Close()

	header := http.Header{}
	header.Set("User-Agent", build.UserAgent())
	conn, err := glkwire.Dial(ctx, cfg.URL, header)
	if err != nil {
		return err
	}

	session := uuid.NewString()
	c, err := newSession(ctx, conn, session, store, ledgerStore)
	if err != nil {
		conn.Close()
		return err
	}
	status(cmd.ErrOrStderr(), "connected", "%s session %s, files in %s", cfg.URL, session, where)

	var out glkstream.Stream = c.WindowStream(mainWindow)
	if cfg.Unicode {
		out = c.UnicodeWindowStream(mainWindow, glkstream.BigEndian)
	}

	// Ctrl-C ends the session through Close.
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	runErr := newStory(c, out).run(context.Background())
	out.Close()
	if err := c.Close(); err != nil {
		slog.Debug("run: close", "error", err)
	}
	if runErr != nil {
		alert(cmd.ErrOrStderr(), "session failed", "%v", runErr)
		return runErr
	}
	status(cmd.ErrOrStderr(), "bye", "session %s", session)
	return nil
}

// newSession starts a client whose file references are recorded in the
// ledger under session.
func newSession(ctx context.Context, conn glkwire.Conn, session string, store storage.FileStore, ledger kv.Store) (*glkclient.Client, error) {
	files := fileref.NewManager(store,
		fileref.WithLedger(fileref.NewLedger(ledger, session)),
		fileref.WithLogger(fileref.SlogLogger(slog.Default())),
	)
	c, err := glkclient.New(ctx, conn,
		glkclient.WithSession(session),
		glkclient.WithFiles(files),
	)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return c, nil
}
