package watcher

import (
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tanaste/tanaste/internal/debug"
)

// DefaultSettle is how long a path must stay quiet before its candidate is
// emitted.
const DefaultSettle = 500 * time.Millisecond

// Candidate is a settled file event ready for the ingestion pipeline.
type Candidate struct {
	Path       string
	Kind       EventKind
	DetectedAt time.Time
	ReadyAt    time.Time
	IsFailed   bool
	Reason     string
}

type pendingEvent struct {
	kind       EventKind
	detectedAt time.Time
	timer      *time.Timer
}

// DebounceQueue coalesces per-path event bursts into one candidate each.
// Producers call Offer from any goroutine; a single settler goroutine
// probes and emits, so the consumer sees one ordered stream.
type DebounceQueue struct {
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	closed  bool

	settled chan settledPath
	out     chan Candidate
	done    chan struct{}
	wg      sync.WaitGroup

	// probe is swapped in tests.
	probe func(path string) error
}

type settledPath struct {
	path string
	ev   pendingEvent
}

// NewDebounceQueue creates a queue with the given settle interval
// (DefaultSettle when zero).
func NewDebounceQueue(settle time.Duration) *DebounceQueue {
	if settle <= 0 {
		settle = DefaultSettle
	}
	q := &DebounceQueue{
		settle:  settle,
		pending: map[string]*pendingEvent{},
		settled: make(chan settledPath, 256),
		out:     make(chan Candidate, 256),
		done:    make(chan struct{}),
		probe:   probeOpenForRead,
	}
	q.wg.Add(1)
	go q.settleLoop()
	return q
}

// Candidates is the single-reader output stream.
func (q *DebounceQueue) Candidates() <-chan Candidate {
	return q.out
}

// Offer feeds one normalised event into the queue. Every event resets the
// path's settle timer; a Deleted or Renamed event short-circuits and emits
// immediately, since there is no file left to settle.
func (q *DebounceQueue) Offer(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if p, ok := q.pending[ev.Path]; ok {
		p.timer.Stop()
		delete(q.pending, ev.Path)
	}

	if ev.Kind == Deleted || ev.Kind == Renamed {
		q.mu.Unlock()
		q.emit(Candidate{
			Path:       ev.Path,
			Kind:       ev.Kind,
			DetectedAt: ev.OccurredAt,
			ReadyAt:    time.Now(),
		})
		return
	}

	p := &pendingEvent{kind: ev.Kind, detectedAt: ev.OccurredAt}
	p.timer = time.AfterFunc(q.settle, func() { q.onSettled(ev.Path) })
	q.pending[ev.Path] = p
	q.mu.Unlock()
}

func (q *DebounceQueue) onSettled(path string) {
	q.mu.Lock()
	p, ok := q.pending[path]
	if ok {
		delete(q.pending, path)
	}
	closed := q.closed
	q.mu.Unlock()
	if !ok || closed {
		return
	}
	select {
	case q.settled <- settledPath{path: path, ev: *p}:
	case <-q.done:
	}
}

// settleLoop is the single settler: it lock-probes each settled path and
// emits the candidate. Probing may block; that is fine here and never on
// the watcher callbacks.
func (q *DebounceQueue) settleLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case s := <-q.settled:
			c := Candidate{
				Path:       s.path,
				Kind:       s.ev.kind,
				DetectedAt: s.ev.detectedAt,
				ReadyAt:    time.Now(),
			}
			if err := q.lockProbe(s.path); err != nil {
				c.IsFailed = true
				c.Reason = err.Error()
			}
			q.emit(c)
		}
	}
}

// lockProbe attempts a non-destructive open-for-read, retrying with
// exponential backoff up to a cap. Files still being written by another
// process fail the open on platforms with mandatory locks.
func (q *DebounceQueue) lockProbe(path string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 10 * time.Second
	return backoff.Retry(func() error {
		return q.probe(path)
	}, policy)
}

func probeOpenForRead(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

func (q *DebounceQueue) emit(c Candidate) {
	select {
	case q.out <- c:
	case <-q.done:
	default:
		// Consumer stalled with a full buffer; drop and log rather than
		// blocking the watcher side.
		debug.Logf("debounce: dropping candidate for %s (output full)\n", c.Path)
	}
}

// Close stops the settler and cancels pending timers. Pending paths never
// emit.
func (q *DebounceQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for path, p := range q.pending {
		p.timer.Stop()
		delete(q.pending, path)
	}
	q.mu.Unlock()
	close(q.done)
	q.wg.Wait()
}
