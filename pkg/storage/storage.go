// Package storage is the filesystem collaborator behind file references. A
// FileStore names resources by slash-separated paths relative to its root
// and reports failures with the io/fs sentinels, so callers can classify
// them with errors.Is(err, fs.ErrNotExist) and errors.Is(err, fs.ErrPermission).
//
// Local stores files in a directory and also offers random access through
// FileOpener. S3Store and Memory are object stores: whole objects are read
// or replaced, never edited in place.
package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
)

// FileStore is the minimal set of operations a file reference needs.
// Implementations are safe for concurrent use.
type FileStore interface {
	// Open opens path for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create opens path for writing, replacing any existing content. The
	// content becomes visible when the writer is closed.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Remove deletes path. Removing an absent path is not an error.
	Remove(ctx context.Context, path string) error

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// FileOpener is implemented by stores that offer random access.
type FileOpener interface {
	// OpenFile opens path with os.OpenFile flags. O_CREATE also creates
	// missing parent directories.
	OpenFile(ctx context.Context, path string, flag int) (*os.File, error)
}

func pathErr(op, path string, err error) error {
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func checkPath(op, path string) error {
	if !fs.ValidPath(path) || path == "." {
		return pathErr(op, path, fs.ErrInvalid)
	}
	return nil
}
