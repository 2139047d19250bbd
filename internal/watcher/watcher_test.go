package watcher

import (
	"path/filepath"
	"testing"
	"time"
)

func waitForPath(t *testing.T, ch <-chan Event, path string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Path == path {
				return
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestUpdateDirectoryKeepsDelivering(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	got := make(chan Event, 16)
	w, err := New(func(ev Event) { got <- ev })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.AddDirectory(dirA, true); err != nil {
		t.Fatal(err)
	}
	w.Start()

	waitForPath(t, got, touch(t, dirA, "before.epub"))

	// The swap retires the old fsnotify instance; events from the new
	// directory must still reach the handler.
	if err := w.UpdateDirectory(dirB, true); err != nil {
		t.Fatal(err)
	}
	waitForPath(t, got, touch(t, dirB, "after.epub"))
}

func TestUpdateDirectoryFailureKeepsOldWatch(t *testing.T) {
	dirA := t.TempDir()

	got := make(chan Event, 16)
	w, err := New(func(ev Event) { got <- ev })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.AddDirectory(dirA, true); err != nil {
		t.Fatal(err)
	}
	w.Start()

	if err := w.UpdateDirectory(filepath.Join(dirA, "does-not-exist"), true); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
	waitForPath(t, got, touch(t, dirA, "still-watched.epub"))
}
