package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

func receive(t *testing.T, q *DebounceQueue, timeout time.Duration) Candidate {
	t.Helper()
	select {
	case c := <-q.Candidates():
		return c
	case <-time.After(timeout):
		t.Fatal("no candidate emitted")
		return Candidate{}
	}
}

func TestSettleEmitsOneCandidatePerBurst(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "book.epub")

	q := NewDebounceQueue(50 * time.Millisecond)
	defer q.Close()

	// A burst of writes to the same path coalesces into one candidate.
	for i := 0; i < 5; i++ {
		q.Offer(Event{Path: path, Kind: Modified, OccurredAt: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}

	c := receive(t, q, 2*time.Second)
	if c.Path != path || c.Kind != Modified {
		t.Errorf("candidate = %+v", c)
	}
	if c.IsFailed {
		t.Errorf("probe failed for a readable file: %s", c.Reason)
	}
	if c.ReadyAt.Before(c.DetectedAt) {
		t.Error("ReadyAt before DetectedAt")
	}

	select {
	case extra := <-q.Candidates():
		t.Errorf("burst emitted a second candidate: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestEventResetsSettleTimer(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "slow.epub")

	settle := 80 * time.Millisecond
	q := NewDebounceQueue(settle)
	defer q.Close()

	start := time.Now()
	q.Offer(Event{Path: path, Kind: Created, OccurredAt: start})
	time.Sleep(settle / 2)
	q.Offer(Event{Path: path, Kind: Modified, OccurredAt: time.Now()})

	c := receive(t, q, 2*time.Second)
	if elapsed := c.ReadyAt.Sub(start); elapsed < settle+settle/2-10*time.Millisecond {
		t.Errorf("emitted after %v, want the timer reset by the second event", elapsed)
	}
}

func TestDeletedShortCircuits(t *testing.T) {
	q := NewDebounceQueue(time.Hour)
	defer q.Close()

	q.Offer(Event{Path: "/gone/file.epub", Kind: Deleted, OccurredAt: time.Now()})
	c := receive(t, q, time.Second)
	if c.Kind != Deleted {
		t.Errorf("kind = %s, want deleted", c.Kind)
	}
}

func TestRenamedShortCircuits(t *testing.T) {
	q := NewDebounceQueue(time.Hour)
	defer q.Close()

	q.Offer(Event{Path: "/moved/file.epub", Kind: Renamed, OccurredAt: time.Now()})
	c := receive(t, q, time.Second)
	if c.Kind != Renamed {
		t.Errorf("kind = %s, want renamed", c.Kind)
	}
}

func TestUnreadablePathEmitsFailedCandidate(t *testing.T) {
	q := NewDebounceQueue(10 * time.Millisecond)
	defer q.Close()

	// Swap the probe so the backoff cap is reached instantly.
	q.probe = func(string) error {
		return backoff.Permanent(errors.New("locked"))
	}

	q.Offer(Event{Path: "/locked/file.epub", Kind: Created, OccurredAt: time.Now()})
	c := receive(t, q, 2*time.Second)
	if !c.IsFailed {
		t.Fatal("expected a failed candidate")
	}
	if c.Reason == "" {
		t.Error("failed candidate carries no reason")
	}
}

func TestCloseCancelsPending(t *testing.T) {
	q := NewDebounceQueue(50 * time.Millisecond)
	q.Offer(Event{Path: "/pending/file.epub", Kind: Created, OccurredAt: time.Now()})
	q.Close()

	select {
	case c, ok := <-q.Candidates():
		if ok {
			t.Errorf("candidate emitted after Close: %+v", c)
		}
	case <-time.After(200 * time.Millisecond):
	}
}
