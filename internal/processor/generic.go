package processor

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tanaste/tanaste/internal/types"
)

// titleYearPattern matches "Some Title (1999)" style names.
var titleYearPattern = regexp.MustCompile(`^(.*?)\s*[(\[](\d{4})[)\]]`)

// filenameResult derives best-effort claims from the file name alone.
func filenameResult(filePath string) *Result {
	base := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	// Common separator cleanup before guessing a title.
	cleaned := strings.NewReplacer("_", " ", ".", " ").Replace(base)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	res := &Result{}
	if m := titleYearPattern.FindStringSubmatch(cleaned); m != nil {
		title := strings.TrimSpace(m[1])
		if title != "" {
			res.Claims = append(res.Claims,
				ExtractedClaim{Key: types.KeyTitle, Value: title, Confidence: 0.5},
				ExtractedClaim{Key: types.KeyYear, Value: m[2], Confidence: 0.5})
			return res
		}
	}
	if cleaned != "" {
		res.Claims = append(res.Claims,
			ExtractedClaim{Key: types.KeyTitle, Value: cleaned, Confidence: 0.4})
	}
	return res
}

// VideoProcessor handles video containers with filename-derived claims.
// Embedded container tags are a tagger concern, not an extraction one.
type VideoProcessor struct{}

// NewVideoProcessor returns the video processor.
func NewVideoProcessor() *VideoProcessor {
	return &VideoProcessor{}
}

// Name implements Processor.
func (p *VideoProcessor) Name() string { return "video" }

// CanHandle implements Processor.
func (p *VideoProcessor) CanHandle(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mkv", ".mp4", ".m4v":
		return true
	}
	return false
}

// Process implements Processor.
func (p *VideoProcessor) Process(ctx context.Context, filePath string) (*Result, error) {
	res := filenameResult(filePath)
	res.DetectedType = string(types.FormatForExtension(
		strings.TrimPrefix(filepath.Ext(filePath), ".")))
	return res, nil
}

// GenericProcessor accepts anything. It is registered at the lowest
// priority so unsupported formats still produce filename-derived claims.
type GenericProcessor struct{}

// NewGenericProcessor returns the fallback processor.
func NewGenericProcessor() *GenericProcessor {
	return &GenericProcessor{}
}

// Name implements Processor.
func (p *GenericProcessor) Name() string { return "generic" }

// CanHandle implements Processor.
func (p *GenericProcessor) CanHandle(string) bool { return true }

// Process implements Processor.
func (p *GenericProcessor) Process(ctx context.Context, filePath string) (*Result, error) {
	res := filenameResult(filePath)
	res.DetectedType = string(types.FormatForExtension(
		strings.TrimPrefix(filepath.Ext(filePath), ".")))
	return res, nil
}
