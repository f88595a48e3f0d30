package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew_NoFiles(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for empty path list")
	}
}

func TestNew_MissingDir(t *testing.T) {
	if _, err := New([]string{filepath.Join(t.TempDir(), "gone", "t.yaml")}, nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatcher_ReportsDebouncedChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tutorial.yaml")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(target, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 8)
	w, err := New([]string{target}, func(p string) { changed <- p },
		WithDebounce(50*time.Millisecond),
		WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(target, []byte{byte('b' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case p := <-changed:
		want, _ := filepath.Abs(target)
		if p != want {
			t.Errorf("changed %q, want %q", p, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	// The burst collapses into one report.
	select {
	case p := <-changed:
		t.Errorf("extra report for %q", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{filepath.Join(dir, "t.yaml")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
}

func TestWatcher_Files(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{filepath.Join(dir, "b.yaml"), filepath.Join(dir, "a.yaml")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	files := w.Files()
	if len(files) != 2 || filepath.Base(files[0]) != "a.yaml" {
		t.Errorf("files = %v", files)
	}
}
