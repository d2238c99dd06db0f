package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// ErrNoService is returned by LoadService when the context has no file for
// the service.
var ErrNoService = errors.New("config: service not configured")

// Service names. Each maps to {context}/{name}.yaml.
const (
	HostService   = "host"
	ClientService = "client"
)

// Defaults filled in by Resolve.
const (
	DefaultListen = ":7480"
	DefaultPath   = "/glk"
)

// HostConfig configures the display side.
type HostConfig struct {
	// Listen is the TCP address the WebSocket endpoint listens on.
	Listen string `yaml:"listen"`
	// Path is the HTTP path of the endpoint.
	Path string `yaml:"path,omitempty"`
}

// Resolve fills unset fields with their defaults.
func (h *HostConfig) Resolve() {
	if h.Listen == "" {
		h.Listen = DefaultListen
	}
	if h.Path == "" {
		h.Path = DefaultPath
	}
}

// ClientConfig configures the interpreter side.
type ClientConfig struct {
	// URL is the display's WebSocket endpoint.
	URL string `yaml:"url"`
	// Unicode sends window output as 4-byte code points.
	Unicode bool `yaml:"unicode,omitempty"`
	// Ledger is the directory of the file-reference ledger. Empty keeps the
	// ledger in memory.
	Ledger string `yaml:"ledger,omitempty"`
	// Files selects where file references live.
	Files FilesConfig `yaml:"files"`
}

// DefaultURL is the endpoint of a display started with the host defaults on
// this machine.
func DefaultURL() string {
	return "ws://localhost" + DefaultListen + DefaultPath
}

// Resolve fills an unset URL with DefaultURL. A bucket without a region is
// taken to be in us-east-1.
func (c *ClientConfig) Resolve() {
	if c.URL == "" {
		c.URL = DefaultURL()
	}
	if c.Files.S3 != nil && c.Files.S3.Region == "" {
		c.Files.S3.Region = "us-east-1"
	}
}

// FilesConfig selects a file store. S3 wins over Dir when both are set.
type FilesConfig struct {
	Dir string    `yaml:"dir,omitempty"`
	S3  *S3Config `yaml:"s3,omitempty"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	PathStyle       bool   `yaml:"path_style,omitempty"`
}

// LoadService loads a service configuration from the given context directory.
// A missing file yields an error matching ErrNoService.
func LoadService[T any](contextDir, service string) (*T, error) {
	path := filepath.Join(contextDir, service+".yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q (expected: %s)", ErrNoService, service, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &v, nil
}

// SaveService writes a service configuration to the given context directory.
func SaveService[T any](contextDir, service string, v *T) error {
	if err := os.MkdirAll(contextDir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", service, err)
	}

	path := filepath.Join(contextDir, service+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ListServices returns the service names configured in a context directory.
func ListServices(contextDir string) ([]string, error) {
	entries, err := os.ReadDir(contextDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list services: %w", err)
	}

	var services []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext == ".yaml" || ext == ".yml" {
			services = append(services, name[:len(name)-len(ext)])
		}
	}
	return services, nil
}
