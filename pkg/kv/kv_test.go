package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/haivivi/glkbridge/pkg/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.OpenBadger("", kv.InMemory())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return map[string]kv.Store{
		"memory": kv.NewMemory(),
		"badger": b,
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"files", "s1", "/tmp/a:b.dat"}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Set(ctx, key, []byte("one")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, key, []byte("two")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "two" {
				t.Fatalf("Get = %q, want %q", got, "two")
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("second Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after Delete, got %v", err)
			}
		})
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []kv.Key{
				{"files", "b"},
				{"files", "a"},
				{"filesx", "c"},
				{"other", "d"},
			} {
				if err := s.Set(ctx, k, []byte(k.String())); err != nil {
					t.Fatal(err)
				}
			}

			var got []string
			for e, err := range s.Scan(ctx, kv.Key{"files"}) {
				if err != nil {
					t.Fatalf("Scan: %v", err)
				}
				if string(e.Value) != e.Key.String() {
					t.Fatalf("value %q under key %v", e.Value, e.Key)
				}
				got = append(got, e.Key.String())
			}
			want := []string{"files/a", "files/b"}
			if !slices.Equal(got, want) {
				t.Fatalf("Scan = %v, want %v", got, want)
			}

			n := 0
			for _, err := range s.Scan(ctx, nil) {
				if err != nil {
					t.Fatal(err)
				}
				n++
			}
			if n != 4 {
				t.Fatalf("full scan yielded %d entries, want 4", n)
			}
		})
	}
}

func TestScanAllowsWrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, seg := range []string{"a", "b", "c"} {
				if err := s.Set(ctx, kv.Key{"tmp", seg}, nil); err != nil {
					t.Fatal(err)
				}
			}
			for e, err := range s.Scan(ctx, kv.Key{"tmp"}) {
				if err != nil {
					t.Fatal(err)
				}
				if err := s.Delete(ctx, e.Key); err != nil {
					t.Fatalf("Delete during scan: %v", err)
				}
			}
			for range s.Scan(ctx, kv.Key{"tmp"}) {
				t.Fatal("entries left after deleting during scan")
			}
		})
	}
}

func TestInvalidKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, nil, []byte("x")); !errors.Is(err, kv.ErrInvalidKey) {
				t.Fatalf("empty key: expected ErrInvalidKey, got %v", err)
			}
			if _, err := s.Get(ctx, kv.Key{"a\x00b"}); !errors.Is(err, kv.ErrInvalidKey) {
				t.Fatalf("NUL segment: expected ErrInvalidKey, got %v", err)
			}
			for _, err := range s.Scan(ctx, kv.Key{"\x00"}) {
				if !errors.Is(err, kv.ErrInvalidKey) {
					t.Fatalf("Scan: expected ErrInvalidKey, got %v", err)
				}
			}
		})
	}
}

func TestBadgerPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := kv.OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := b.Set(ctx, kv.Key{"k"}, []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = kv.OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	got, err := b.Get(ctx, kv.Key{"k"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("Get = %q, want %q", got, "v")
	}
}

func TestOpenBadgerRequiresDir(t *testing.T) {
	if _, err := kv.OpenBadger(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestKeyAppend(t *testing.T) {
	base := kv.Key{"files"}
	a := base.Append("x")
	b := base.Append("y")
	if a.String() != "files/x" || b.String() != "files/y" {
		t.Fatalf("Append shares storage: %v %v", a, b)
	}
}
