// Package config stores named contexts for the glkbridge CLI.
//
// The root is $GLKBRIDGE_CONFIG_DIR, or glkbridge/ under os.UserConfigDir().
// Each context is a directory of per-service YAML files:
//
//	glkbridge/
//	├── current-context
//	└── contexts/
//	    └── dev/
//	        ├── host.yaml
//	        └── client.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	appDir             = "glkbridge"
	dirEnv             = "GLKBRIDGE_CONFIG_DIR"
	currentContextFile = "current-context"
	contextsDir        = "contexts"
)

var (
	// ErrNoContext is returned when no context is named and none is current.
	ErrNoContext = errors.New("config: no current context")

	// ErrContextNotFound is returned for a context without a directory.
	ErrContextNotFound = errors.New("config: context not found")
)

// Config is the root directory and the name of the current context.
type Config struct {
	Dir            string
	CurrentContext string
}

// Load reads the configuration root from $GLKBRIDGE_CONFIG_DIR or the user
// config directory.
func Load() (*Config, error) {
	dir := os.Getenv(dirEnv)
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: locate user config dir: %w", err)
		}
		dir = filepath.Join(base, appDir)
	}
	return LoadFrom(dir)
}

// LoadFrom reads the configuration rooted at dir. The directory need not
// exist yet.
func LoadFrom(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentContextFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read current context: %w", err)
	}
	return &Config{Dir: dir, CurrentContext: strings.TrimSpace(string(data))}, nil
}

// ValidateContextName rejects names that are not a single plain directory
// name.
func ValidateContextName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("context name cannot be empty")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("context name %q must not contain path separators", name)
	case name[0] == '.':
		return fmt.Errorf("context name %q must not start with '.'", name)
	}
	return nil
}

// ContextDir returns where the named context lives, whether or not it
// exists.
func (c *Config) ContextDir(name string) string {
	return filepath.Join(c.Dir, contextsDir, name)
}

// Context returns the directory of an existing context. An empty name
// selects the current context.
func (c *Config) Context(name string) (string, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return "", fmt.Errorf("%w; use 'glkbridge config use-context <name>'", ErrNoContext)
		}
		name = c.CurrentContext
	}
	if err := ValidateContextName(name); err != nil {
		return "", err
	}
	dir := c.ContextDir(name)
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	return dir, nil
}

// ListContexts returns the context names in directory order.
func (c *Config) ListContexts() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.Dir, contextsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: list contexts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidateContextName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AddContext creates an empty context.
func (c *Config) AddContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(c.Dir, contextsDir), 0755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	err := os.Mkdir(c.ContextDir(name), 0755)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("context %q already exists", name)
	}
	if err != nil {
		return fmt.Errorf("config: add context %q: %w", name, err)
	}
	return nil
}

// DeleteContext removes a context with its service files. Deleting the
// current context leaves none selected.
func (c *Config) DeleteContext(name string) error {
	if name == "" {
		return ValidateContextName(name)
	}
	dir, err := c.Context(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("config: delete context %q: %w", name, err)
	}
	if c.CurrentContext != name {
		return nil
	}
	return c.setCurrent("")
}

// UseContext makes name the current context.
func (c *Config) UseContext(name string) error {
	if name == "" {
		return ValidateContextName(name)
	}
	if _, err := c.Context(name); err != nil {
		return err
	}
	return c.setCurrent(name)
}

// setCurrent replaces the current-context file by rename so a reader never
// sees it half written. An empty name removes the file.
func (c *Config) setCurrent(name string) error {
	path := filepath.Join(c.Dir, currentContextFile)
	if name == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: clear current context: %w", err)
		}
		c.CurrentContext = ""
		return nil
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	tmp, err := os.CreateTemp(c.Dir, currentContextFile+".*")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(name + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write current context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: write current context: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config: write current context: %w", err)
	}
	c.CurrentContext = name
	return nil
}
