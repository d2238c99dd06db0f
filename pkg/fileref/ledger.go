package fileref

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/glkbridge/pkg/kv"
	"github.com/haivivi/glkbridge/pkg/storage"
)

// Record describes a resource a client created.
type Record struct {
	Locator   string    `msgpack:"locator"`
	Session   string    `msgpack:"session"`
	Temporary bool      `msgpack:"temp"`
	Usage     Usage     `msgpack:"usage"`
	CreatedAt time.Time `msgpack:"created_at"`
}

var ledgerPrefix = kv.Key{"fileref", "created"}

// Ledger remembers which resources were created by this client, so a
// temporary reference never deletes a file it merely opened. Records
// outlive the process when the store is persistent, which lets Sweep
// clean up after sessions that exited without releasing their references.
type Ledger struct {
	store   kv.Store
	session string
}

// NewLedger returns a Ledger writing records for session into store.
func NewLedger(store kv.Store, session string) *Ledger {
	return &Ledger{store: store, session: session}
}

// Session returns the session the ledger records for.
func (l *Ledger) Session() string { return l.session }

func (l *Ledger) key(locator string) kv.Key {
	return ledgerPrefix.Append(locator)
}

// Record notes that this session created locator.
func (l *Ledger) Record(ctx context.Context, locator string, temporary bool, usage Usage) error {
	b, err := msgpack.Marshal(&Record{
		Locator:   locator,
		Session:   l.session,
		Temporary: temporary,
		Usage:     usage,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("fileref: encode record: %w", err)
	}
	return l.store.Set(ctx, l.key(locator), b)
}

// Lookup returns the record for locator, or kv.ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, locator string) (*Record, error) {
	b, err := l.store.Get(ctx, l.key(locator))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("fileref: decode record %s: %w", locator, err)
	}
	return &r, nil
}

// Owns reports whether the current session recorded creating locator.
func (l *Ledger) Owns(ctx context.Context, locator string) (bool, error) {
	r, err := l.Lookup(ctx, locator)
	switch {
	case err == nil:
		return r.Session == l.session, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	}
	return false, err
}

// Forget removes the record for locator.
func (l *Ledger) Forget(ctx context.Context, locator string) error {
	return l.store.Delete(ctx, l.key(locator))
}

// Records yields every record in locator order.
func (l *Ledger) Records(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for e, err := range l.store.Scan(ctx, ledgerPrefix) {
			if err != nil {
				yield(nil, err)
				return
			}
			var r Record
			if err := msgpack.Unmarshal(e.Value, &r); err != nil {
				err = fmt.Errorf("fileref: decode record %v: %w", e.Key, err)
			}
			if !yield(&r, err) {
				return
			}
		}
	}
}

// Sweep removes the temporary resources recorded by other sessions from fs
// and forgets them. Records of the current session are left alone. It
// returns the removed locators; a failure to remove one resource does not
// stop the sweep.
func (l *Ledger) Sweep(ctx context.Context, fs storage.FileStore) ([]string, error) {
	var (
		removed []string
		errs    []error
	)
	for r, err := range l.Records(ctx) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !r.Temporary || r.Session == l.session {
			continue
		}
		if err := fs.Remove(ctx, r.Locator); err != nil {
			errs = append(errs, fmt.Errorf("fileref: sweep %s: %w", r.Locator, err))
			continue
		}
		if err := l.Forget(ctx, r.Locator); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, r.Locator)
	}
	return removed, errors.Join(errs...)
}
