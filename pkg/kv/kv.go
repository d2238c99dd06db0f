// Package kv is the persistent key-value layer used to record which files a
// client created. Keys are paths of string segments; values are opaque bytes.
//
// Two stores are provided: Badger, backed by an on-disk BadgerDB, and Memory
// for tests and short-lived sessions.
package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys and segments containing NUL.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Key is a hierarchical path such as Key{"files", "session-1", "a.dat"}.
type Key []string

// String joins the segments with '/' for display.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// Append returns a new key with segs added after k.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

// Entry is one key-value pair yielded by Scan.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with hierarchical keys. Implementations are
// safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// Scan yields every entry strictly below prefix in encoded-key order.
	// An empty prefix yields the whole store.
	Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases the store.
	Close() error
}

// sep joins segments on disk. NUL never appears in file locators or
// session IDs, so segments may contain '/' and ':'.
const sep = 0

func encode(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	var buf bytes.Buffer
	for i, seg := range k {
		if strings.IndexByte(seg, sep) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, seg)
		}
		if i > 0 {
			buf.WriteByte(sep)
		}
		buf.WriteString(seg)
	}
	return buf.Bytes(), nil
}

func decode(b []byte) Key {
	parts := bytes.Split(b, []byte{sep})
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}

// scanPrefix encodes prefix with a trailing separator so that {"a"} does not
// match {"ab"}. An empty prefix encodes to nil.
func scanPrefix(prefix Key) ([]byte, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	p, err := encode(prefix)
	if err != nil {
		return nil, err
	}
	return append(p, sep), nil
}

// failed is a Scan result that yields only err.
func failed(err error) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		yield(Entry{}, err)
	}
}
