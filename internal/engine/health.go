package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/tanaste/tanaste/internal/config"
	"github.com/tanaste/tanaste/internal/events"
)

// healthInterval is how often the watch and library roots are probed.
const healthInterval = 30 * time.Second

// healthChecker periodically probes the watch and library roots and
// broadcasts transitions. WatchFolderActive fires once when the watch
// folder is first seen healthy; FolderHealthChanged fires on every
// transition after that.
type healthChecker struct {
	manifest  *config.Manifest
	publisher events.Publisher
	interval  time.Duration

	known map[string]bool
}

func newHealthChecker(manifest *config.Manifest, publisher events.Publisher) *healthChecker {
	return &healthChecker{
		manifest:  manifest,
		publisher: publisher,
		interval:  healthInterval,
		known:     make(map[string]bool),
	}
}

func (h *healthChecker) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.check(ctx)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.check(ctx)
			}
		}
	}()
}

func (h *healthChecker) check(ctx context.Context) {
	h.probe(ctx, h.manifest.Ingestion.WatchDirectory, true)
	h.probe(ctx, h.manifest.Ingestion.LibraryRoot, false)
}

func (h *healthChecker) probe(ctx context.Context, path string, isWatch bool) {
	if path == "" {
		return
	}
	healthy, detail := probeDir(path)
	previous, seen := h.known[path]
	h.known[path] = healthy

	if !seen {
		if isWatch && healthy {
			h.publisher.Publish(ctx, events.WatchFolderActive, events.FolderHealthPayload{Path: path, Healthy: true})
		}
		if !healthy {
			h.publisher.Publish(ctx, events.FolderHealthChanged, events.FolderHealthPayload{Path: path, Healthy: false, Detail: detail})
		}
		return
	}
	if previous != healthy {
		h.publisher.Publish(ctx, events.FolderHealthChanged, events.FolderHealthPayload{Path: path, Healthy: healthy, Detail: detail})
	}
}

func probeDir(path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err.Error()
	}
	if !info.IsDir() {
		return false, "not a directory"
	}
	return true, ""
}
