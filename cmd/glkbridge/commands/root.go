package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/glkbridge/cmd/glkbridge/internal/config"
)

var (
	// Global flags
	verbose     bool
	contextName string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "glkbridge",
	Short: "Run Glk interpreters against a remote display",
	Long: `glkbridge - connects a Glk interpreter to a display over WebSocket.

The display side ("host") renders window output and sends input events.
The interpreter side ("run") blocks in select until the display announces
an event, and keeps file references in a local directory or an S3 bucket.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/glkbridge/
  Linux:   ~/.config/glkbridge/
  Windows: %AppData%/glkbridge/

Examples:
  # Create a context and point the interpreter at a display
  glkbridge config add-context dev
  glkbridge config use-context dev
  glkbridge config set dev client url ws://localhost:7480/glk

  # Terminal 1: the display
  glkbridge host --listen :7480

  # Terminal 2: the interpreter
  glkbridge run --files ./saves`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use (default: current context)")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	cfg, err := config.Load()
	if err != nil {
		// Commands that need config report this through GetConfig.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// loadService loads a service config from the --context context, or the
// current one. It returns a zero value when no context is selected or the
// context has no file for the service, so flags alone are enough to run.
func loadService[T any](service string) (*T, error) {
	cfg, err := GetConfig()
	if err != nil {
		return new(T), nil
	}
	if contextName == "" && cfg.CurrentContext == "" {
		return new(T), nil
	}
	dir, err := cfg.Context(contextName)
	if err != nil {
		return nil, err
	}
	v, err := config.LoadService[T](dir, service)
	if errors.Is(err, config.ErrNoService) {
		return new(T), nil
	}
	return v, err
}
