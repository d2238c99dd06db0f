package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores files under a root directory.
type Local struct {
	root string
}

// NewLocal returns a Local store rooted at dir, creating dir if needed.
func NewLocal(dir string) (*Local, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: root}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(op, path string) (string, error) {
	if err := checkPath(op, path); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(path)), nil
}

func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return l.OpenFile(ctx, path, os.O_RDONLY)
}

func (l *Local) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	return l.OpenFile(ctx, path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (l *Local) OpenFile(_ context.Context, path string, flag int) (*os.File, error) {
	full, err := l.resolve("open", path)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(full, flag, 0o644)
}

func (l *Local) Remove(_ context.Context, path string) error {
	full, err := l.resolve("remove", path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve("stat", path)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(full); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

var (
	_ FileStore  = (*Local)(nil)
	_ FileOpener = (*Local)(nil)
)
