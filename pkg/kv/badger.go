package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerOption configures OpenBadger.
type BadgerOption func(*badger.Options)

// InMemory keeps the database in memory. The directory argument is ignored.
func InMemory() BadgerOption {
	return func(o *badger.Options) {
		o.Dir, o.ValueDir = "", ""
		o.InMemory = true
	}
}

// WithLogger routes badger's warnings and errors to l. Info and debug
// messages are dropped.
func WithLogger(l *slog.Logger) BadgerOption {
	return func(o *badger.Options) { o.Logger = slogBadger{l} }
}

// OpenBadger opens or creates a database in dir.
func OpenBadger(dir string, opts ...BadgerOption) (*Badger, error) {
	o := badger.DefaultOptions(dir).WithLogger(slogBadger{slog.Default()})
	for _, opt := range opts {
		opt(&o)
	}
	if !o.InMemory && dir == "" {
		return nil, errors.New("kv: badger directory is required")
	}
	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := encode(key)
	if err != nil {
		return nil, err
	}
	var v []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (b *Badger) Set(_ context.Context, key Key, value []byte) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, value)
	})
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	k, err := encode(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// Scan reads inside a single read transaction. Entries are copied out, so
// the caller may write to the store between iterations.
func (b *Badger) Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	p, err := scanPrefix(prefix)
	if err != nil {
		return failed(err)
	}
	return func(yield func(Entry, error) bool) {
		var entries []Entry
		err := b.db.View(func(txn *badger.Txn) error {
			o := badger.DefaultIteratorOptions
			o.Prefix = p
			it := txn.NewIterator(o)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				item := it.Item()
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				entries = append(entries, Entry{Key: decode(item.KeyCopy(nil)), Value: v})
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// slogBadger adapts slog to badger.Logger.
type slogBadger struct{ l *slog.Logger }

func (s slogBadger) Errorf(f string, v ...any) {
	s.l.Error("kv: badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (s slogBadger) Warningf(f string, v ...any) {
	s.l.Warn("kv: badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (slogBadger) Infof(string, ...any)  {}
func (slogBadger) Debugf(string, ...any) {}

var _ Store = (*Badger)(nil)
