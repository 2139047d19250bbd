package organizer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tanaste/tanaste/internal/debug"
)

// Organizer renders destination paths and moves files into place.
type Organizer struct {
	LibraryRoot string
	Template    string
}

// New creates an organizer for the library root with the configured
// template.
func New(libraryRoot, template string) *Organizer {
	return &Organizer{LibraryRoot: libraryRoot, Template: template}
}

// DestinationFor computes the organised path for a file: the rendered
// template forms the directory, the Title token plus original extension
// forms the filename. Collisions are resolved with numbered suffixes.
func (o *Organizer) DestinationFor(sourcePath string, values TokenValues) string {
	dir := Render(o.Template, values)

	name := strings.TrimSpace(values["Title"])
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	}
	name = SanitizeSegment(name)
	if name == "" {
		name = "Unknown"
	}

	dest := filepath.Join(o.LibraryRoot, dir, name+strings.ToLower(filepath.Ext(sourcePath)))
	return ResolveCollision(dest)
}

// ExecuteMove moves source to dest, creating directories as needed and
// retrying transient failures with exponential backoff up to 5 attempts.
// The returned error is informational; callers log and continue.
func (o *Organizer) ExecuteMove(source, dest string) error {
	if source == dest {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("organizer: mkdir for %s: %w", dest, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	attempts := uint64(5)

	err := backoff.Retry(func() error {
		if err := os.Rename(source, dest); err != nil {
			// Cross-device renames fail permanently; fall back to
			// copy-then-remove inside the same attempt.
			if copyErr := copyAndRemove(source, dest); copyErr != nil {
				return copyErr
			}
		}
		return nil
	}, backoff.WithMaxRetries(policy, attempts-1))
	if err != nil {
		return fmt.Errorf("organizer: move %s -> %s: %w", source, dest, err)
	}
	debug.Logf("organizer: moved %s -> %s\n", source, dest)
	return nil
}

func copyAndRemove(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dest + ".tanaste-tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Remove(source)
}
