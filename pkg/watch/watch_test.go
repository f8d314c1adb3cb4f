package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startWatcher(t *testing.T, paths ...string) <-chan []string {
	t.Helper()

	w, err := New(zerolog.Nop(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			t.Fatalf("Add(%s) error = %v", p, err)
		}
	}

	calls := make(chan []string, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) error {
			calls <- changed
			return nil
		})
	}()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
		_ = w.Close()
	})
	return calls
}

func waitCall(t *testing.T, calls <-chan []string) []string {
	t.Helper()
	select {
	case changed := <-calls:
		return changed
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
		return nil
	}
}

func expectNoCall(t *testing.T, calls <-chan []string, d time.Duration) {
	t.Helper()
	select {
	case changed := <-calls:
		t.Fatalf("unexpected handler call with %v", changed)
	case <-time.After(d):
	}
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "fftwprov.yaml")
	if err := os.WriteFile(cfg, []byte("version: a\n"), 0644); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "notes.txt")

	calls := startWatcher(t, cfg)

	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	expectNoCall(t, calls, 300*time.Millisecond)

	if err := os.WriteFile(cfg, []byte("version: b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	changed := waitCall(t, calls)
	abs, _ := filepath.Abs(cfg)
	if len(changed) != 1 || changed[0] != abs {
		t.Errorf("changed = %v, want [%s]", changed, abs)
	}
}

func TestWatchDirectoryDebounce(t *testing.T) {
	dir := t.TempDir()
	calls := startWatcher(t, dir)

	for _, name := range []string{"a.rego", "b.rego", "a.rego"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("package x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	changed := waitCall(t, calls)
	if len(changed) != 2 {
		t.Errorf("expected both files in one batch, got %v", changed)
	}
	expectNoCall(t, calls, 300*time.Millisecond)
}

func TestWatchNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	calls := startWatcher(t, dir)

	sub := filepath.Join(dir, "team")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	waitCall(t, calls)

	if err := os.WriteFile(filepath.Join(sub, "mirror.rego"), []byte("package x"), 0644); err != nil {
		t.Fatal(err)
	}
	changed := waitCall(t, calls)
	if len(changed) != 1 || filepath.Base(changed[0]) != "mirror.rego" {
		t.Errorf("changed = %v", changed)
	}
}

func TestAddMissingPath(t *testing.T) {
	w, err := New(zerolog.Nop(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}
	if err := w.Add(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing path")
	}
}
