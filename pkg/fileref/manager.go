package fileref

import (
	"errors"
	"sync"

	"github.com/haivivi/glkbridge/pkg/storage"
)

// ID identifies a reference across the interpreter boundary. Zero is never
// assigned.
type ID uint32

// Manager hands out IDs for references created against one store. Every
// reference it creates shares the manager's options.
type Manager struct {
	store storage.FileStore
	opts  []Option

	mu   sync.Mutex
	next ID
	refs map[ID]*FileRef
}

// NewManager returns a Manager creating references in store.
func NewManager(store storage.FileStore, opts ...Option) *Manager {
	return &Manager{
		store: store,
		opts:  opts,
		refs:  make(map[ID]*FileRef),
	}
}

// Store returns the manager's store.
func (m *Manager) Store() storage.FileStore { return m.store }

// Create registers a reference to locator.
func (m *Manager) Create(locator string, usage Usage) (ID, *FileRef, error) {
	r, err := New(m.store, locator, m.with(usage)...)
	if err != nil {
		return 0, nil, err
	}
	return m.add(r)
}

// CreateTemp registers a temporary reference to a fresh locator.
func (m *Manager) CreateTemp(usage Usage) (ID, *FileRef, error) {
	r, err := NewTemp(m.store, m.with(usage)...)
	if err != nil {
		return 0, nil, err
	}
	return m.add(r)
}

func (m *Manager) with(usage Usage) []Option {
	return append(append([]Option(nil), m.opts...), WithUsage(usage))
}

func (m *Manager) add(r *FileRef) (ID, *FileRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range len(m.refs) + 1 {
		m.next++
		if m.next == 0 {
			m.next++
		}
		if _, taken := m.refs[m.next]; !taken {
			m.refs[m.next] = r
			return m.next, r, nil
		}
	}
	r.Release()
	return 0, nil, errors.New("fileref: no free id")
}

// Lookup returns the reference registered under id.
func (m *Manager) Lookup(id ID) (*FileRef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refs[id]
	return r, ok
}

// Release unregisters id and drops the manager's reference. Streams still
// open on the reference keep it alive until they close. It reports whether
// id was registered.
func (m *Manager) Release(id ID) bool {
	m.mu.Lock()
	r, ok := m.refs[id]
	delete(m.refs, id)
	m.mu.Unlock()
	if ok {
		r.Release()
	}
	return ok
}

// Len returns the number of registered references.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refs)
}

// IDs returns the registered IDs in no particular order.
func (m *Manager) IDs() []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]ID, 0, len(m.refs))
	for id := range m.refs {
		ids = append(ids, id)
	}
	return ids
}

// Close releases every registered reference.
func (m *Manager) Close() error {
	m.mu.Lock()
	refs := m.refs
	m.refs = make(map[ID]*FileRef)
	m.mu.Unlock()
	for _, r := range refs {
		r.Release()
	}
	return nil
}
