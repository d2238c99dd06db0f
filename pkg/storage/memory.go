package storage

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"sync"
)

// Memory is an object store held in memory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if err := checkPath("open", path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, pathErr("open", path, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Create buffers writes and stores the object on Close.
func (m *Memory) Create(_ context.Context, path string) (io.WriteCloser, error) {
	if err := checkPath("create", path); err != nil {
		return nil, err
	}
	return &memWriter{m: m, path: path}, nil
}

func (m *Memory) Remove(_ context.Context, path string) error {
	if err := checkPath("remove", path); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, path)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	if err := checkPath("stat", path); err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.objects[path]
	m.mu.RUnlock()
	return ok, nil
}

type memWriter struct {
	m      *Memory
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, pathErr("write", w.path, fs.ErrClosed)
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.closed {
		return pathErr("close", w.path, fs.ErrClosed)
	}
	w.closed = true
	w.m.mu.Lock()
	w.m.objects[w.path] = bytes.Clone(w.buf.Bytes())
	w.m.mu.Unlock()
	return nil
}

var _ FileStore = (*Memory)(nil)
