package engine

import "context"

// Tagger writes canonical metadata back into a media file's own tags.
// Implementations are format-specific and optional; when no registered
// tagger handles a file, write-back is silently skipped for it.
type Tagger interface {
	Name() string
	CanHandle(path string) bool
	WriteTags(ctx context.Context, path string, fields map[string]string, cover []byte) error
}

// taggerFor returns the first registered tagger that handles the path.
func (e *Engine) taggerFor(path string) Tagger {
	for _, t := range e.taggers {
		if t.CanHandle(path) {
			return t
		}
	}
	return nil
}
