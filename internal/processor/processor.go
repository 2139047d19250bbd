// Package processor routes dropped files to per-format metadata extractors.
package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ExtractedClaim is a single field assertion pulled from a file before it
// is tagged with an entity and provider.
type ExtractedClaim struct {
	Key        string
	Value      string
	Confidence float64
}

// Result is the outcome of processing one file.
//
// Processors signal corruption through IsCorrupt instead of returning an
// error; corrupted files are quarantined by the pipeline, not inserted.
type Result struct {
	DetectedType  string // Format enum name, e.g. "Epub"
	Claims        []ExtractedClaim
	Cover         []byte
	IsCorrupt     bool
	CorruptReason string
}

// Processor is the capability set for one format family.
type Processor interface {
	Name() string
	CanHandle(path string) bool
	Process(ctx context.Context, path string) (*Result, error)
}

type registration struct {
	proc     Processor
	priority int
	order    int
}

// Registry dispatches a path to the first processor willing to handle it,
// in descending priority order.
type Registry struct {
	mu    sync.RWMutex
	procs []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a processor. Higher priority is attempted first;
// registration order breaks ties.
func (r *Registry) Register(p Processor, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = append(r.procs, registration{proc: p, priority: priority, order: len(r.procs)})
	sort.SliceStable(r.procs, func(i, j int) bool {
		if r.procs[i].priority != r.procs[j].priority {
			return r.procs[i].priority > r.procs[j].priority
		}
		return r.procs[i].order < r.procs[j].order
	})
}

// Process runs the first willing processor against the path.
func (r *Registry) Process(ctx context.Context, path string) (*Result, error) {
	r.mu.RLock()
	procs := make([]registration, len(r.procs))
	copy(procs, r.procs)
	r.mu.RUnlock()

	for _, reg := range procs {
		if !reg.proc.CanHandle(path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return reg.proc.Process(ctx, path)
	}
	return nil, fmt.Errorf("processor: no processor for %s", path)
}

// DefaultRegistry returns a registry with the stock processors installed:
// ebook archive, comic archive, video, and the generic fallback.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewEpubProcessor(), 100)
	r.Register(NewComicProcessor(), 90)
	r.Register(NewVideoProcessor(), 80)
	r.Register(NewGenericProcessor(), 0)
	return r
}
