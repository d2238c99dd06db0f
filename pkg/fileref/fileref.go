// Package fileref implements file references: named storage locations that
// hand out streams and decide what happens to the backing resource when the
// last user lets go.
//
// A reference is counted. New returns it with one reference held by the
// caller, and every stream opened from it holds another until the stream is
// closed. When the count drops to zero and the reference is temporary, the
// backing resource is removed, but only if this client created it. A file
// that already existed when it was opened is never removed by a temporary
// reference.
package fileref

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/glkbridge/pkg/glkstream"
	"github.com/haivivi/glkbridge/pkg/storage"
)

// ErrInUse is returned by SetTemporary once a stream has been opened.
var ErrInUse = errors.New("fileref: reference already used")

// TempDir is the directory NewTemp places temporary resources in.
const TempDir = "tmp"

// Option configures a FileRef.
type Option func(*FileRef)

// WithUsage sets the usage flags.
func WithUsage(u Usage) Option {
	return func(r *FileRef) { r.usage = u }
}

// WithLedger records created resources in l and consults it before removing
// a temporary resource.
func WithLedger(l *Ledger) Option {
	return func(r *FileRef) { r.ledger = l }
}

// WithLogger sets the logger for release-time failures.
func WithLogger(l Logger) Option {
	return func(r *FileRef) { r.logger = l }
}

// WithAutoFlush makes streams opened from the reference flush after every
// write.
func WithAutoFlush(on bool) Option {
	return func(r *FileRef) { r.autoFlush = on }
}

// FileRef is a reference to a resource in a storage.FileStore. It is safe for
// concurrent use; the streams it opens are single-owner.
type FileRef struct {
	store   storage.FileStore
	locator string
	usage   Usage
	ledger  *Ledger
	logger  Logger

	mu        sync.Mutex
	temporary bool
	autoFlush bool
	used      bool
	created   bool
	refs      int
}

// New returns a reference to locator in store with one reference held by
// the caller. The resource is not touched until a stream is opened.
func New(store storage.FileStore, locator string, opts ...Option) (*FileRef, error) {
	if !fs.ValidPath(locator) || locator == "." {
		return nil, glkstream.Classify("create", locator, fs.ErrInvalid)
	}
	r := &FileRef{
		store:   store,
		locator: locator,
		logger:  DefaultLogger(),
		refs:    1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewTemp returns a temporary reference to a fresh locator under TempDir.
func NewTemp(store storage.FileStore, opts ...Option) (*FileRef, error) {
	r, err := New(store, TempDir+"/glk-"+uuid.NewString(), opts...)
	if err != nil {
		return nil, err
	}
	r.temporary = true
	return r, nil
}

// Locator returns the path of the backing resource.
func (r *FileRef) Locator() string { return r.locator }

// Usage returns the usage flags.
func (r *FileRef) Usage() Usage { return r.usage }

// Temporary reports whether the resource is removed at the last release.
func (r *FileRef) Temporary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.temporary
}

// SetTemporary changes whether the resource is removed at the last release.
// It fails with ErrInUse once a stream has been opened from the reference.
func (r *FileRef) SetTemporary(temporary bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used {
		return fmt.Errorf("%w: %s", ErrInUse, r.locator)
	}
	r.temporary = temporary
	return nil
}

// AutoFlush reports whether streams flush after every write.
func (r *FileRef) AutoFlush() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoFlush
}

// SetAutoFlush changes the auto-flush flag for streams opened afterwards.
func (r *FileRef) SetAutoFlush(on bool) {
	r.mu.Lock()
	r.autoFlush = on
	r.mu.Unlock()
}

// Refs returns the number of references held.
func (r *FileRef) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Retain adds a reference. It returns false if the reference was already
// freed.
func (r *FileRef) Retain() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 {
		return false
	}
	r.refs++
	return true
}

// Release drops a reference. Dropping the last one frees the reference and,
// for a temporary reference to a resource this client created, removes the
// resource. Release never fails; removal errors are logged.
func (r *FileRef) Release() {
	r.mu.Lock()
	if r.refs == 0 {
		r.mu.Unlock()
		r.logger.DebugPrintf("release %s: already freed", r.locator)
		return
	}
	r.refs--
	if r.refs > 0 {
		r.mu.Unlock()
		return
	}
	temporary, created := r.temporary, r.created
	r.mu.Unlock()

	if temporary {
		r.removeOwned(context.Background(), created)
	}
}

func (r *FileRef) removeOwned(ctx context.Context, created bool) {
	if !created && r.ledger != nil {
		owned, err := r.ledger.Owns(ctx, r.locator)
		if err != nil {
			r.logger.WarnPrintf("release %s: ledger lookup: %v", r.locator, err)
			return
		}
		created = owned
	}
	if !created {
		r.logger.DebugPrintf("release %s: keeping resource not created by this client", r.locator)
		return
	}
	if err := r.store.Remove(ctx, r.locator); err != nil {
		r.logger.WarnPrintf("release %s: remove: %v", r.locator, err)
		return
	}
	if r.ledger != nil {
		if err := r.ledger.Forget(ctx, r.locator); err != nil {
			r.logger.WarnPrintf("release %s: forget: %v", r.locator, err)
		}
	}
	r.logger.DebugPrintf("release %s: removed temporary resource", r.locator)
}

// Exists reports whether the backing resource exists.
func (r *FileRef) Exists(ctx context.Context) (bool, error) {
	ok, err := r.store.Exists(ctx, r.locator)
	if err != nil {
		return false, glkstream.Classify("exists", r.locator, err)
	}
	return ok, nil
}

// Delete removes the backing resource now, whoever created it.
func (r *FileRef) Delete(ctx context.Context) error {
	if err := r.store.Remove(ctx, r.locator); err != nil {
		return glkstream.Classify("delete", r.locator, err)
	}
	r.mu.Lock()
	r.created = false
	r.mu.Unlock()
	if r.ledger != nil {
		if err := r.ledger.Forget(ctx, r.locator); err != nil {
			r.logger.WarnPrintf("delete %s: forget: %v", r.locator, err)
		}
	}
	return nil
}

// OpenStream opens a stream on the backing resource. ModeRead fails with
// glkstream.ErrNotFound when the resource is absent; every mode fails with
// glkstream.ErrPermission when it cannot be accessed. The other modes create
// the resource when absent.
//
// Stores without random access support ModeRead and ModeWrite only, and
// their streams cannot seek.
//
// The stream holds a reference until it is closed.
func (r *FileRef) OpenStream(ctx context.Context, mode Mode) (glkstream.Stream, error) {
	if !r.Retain() {
		return nil, &glkstream.Error{Op: "open", Path: r.locator, Kind: glkstream.ErrClosed}
	}
	s, err := r.open(ctx, mode)
	if err != nil {
		r.Release()
		return nil, err
	}
	return s, nil
}

func (r *FileRef) open(ctx context.Context, mode Mode) (glkstream.Stream, error) {
	r.mu.Lock()
	r.used = true
	temporary, autoFlush := r.temporary, r.autoFlush
	r.mu.Unlock()

	existed := true
	if mode.creates() {
		ok, err := r.store.Exists(ctx, r.locator)
		if err != nil {
			return nil, glkstream.Classify("open", r.locator, err)
		}
		existed = ok
	}

	opts := []glkstream.Option{
		glkstream.WithName(r.locator),
		glkstream.WithAutoFlush(autoFlush),
		glkstream.WithOnClose(r.Release),
	}

	var v any
	if fo, ok := r.store.(storage.FileOpener); ok {
		f, err := fo.OpenFile(ctx, r.locator, mode.flags())
		if err != nil {
			return nil, glkstream.Classify("open", r.locator, err)
		}
		if mode == ModeAppend {
			fi, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, glkstream.Classify("open", r.locator, err)
			}
			opts = append(opts, glkstream.WithStartPosition(fi.Size()))
		}
		v = f
	} else {
		var err error
		switch mode {
		case ModeRead:
			v, err = r.store.Open(ctx, r.locator)
		case ModeWrite:
			v, err = r.store.Create(ctx, r.locator)
		default:
			return nil, &glkstream.Error{
				Op:   "open",
				Path: r.locator,
				Kind: glkstream.ErrUnsupported,
				Err:  fmt.Errorf("%s mode needs random access", mode),
			}
		}
		if err != nil {
			return nil, glkstream.Classify("open", r.locator, err)
		}
	}
	opts = append(opts, glkstream.WithCapabilities(mode.caps()))

	if !existed {
		r.mu.Lock()
		r.created = true
		r.mu.Unlock()
		if r.ledger != nil {
			if err := r.ledger.Record(ctx, r.locator, temporary, r.usage); err != nil {
				r.logger.WarnPrintf("open %s: record: %v", r.locator, err)
			}
		}
	}
	return glkstream.Wrap(v, opts...), nil
}
