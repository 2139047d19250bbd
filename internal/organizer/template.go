// Package organizer computes template-driven destination paths and
// executes retrying moves into the library tree.
package organizer

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// TokenValues maps template token names (without braces) to resolved
// values. Missing and empty entries render as "Unknown".
type TokenValues map[string]string

var (
	// conditionalGroup matches ` ({Token})` — the whole group collapses
	// when the token resolves empty.
	conditionalGroup = regexp.MustCompile(`\s*\(\{([A-Za-z]+)\}\)`)
	bareToken        = regexp.MustCompile(`\{([A-Za-z]+)\}`)
	multiSpace       = regexp.MustCompile(`\s{2,}`)
	illegalChars     = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// SanitizeSegment replaces illegal filename characters with underscores
// and trims surrounding whitespace and dots.
func SanitizeSegment(s string) string {
	s = illegalChars.ReplaceAllString(s, "_")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.Trim(s, " .")
}

// Render resolves a path template in three passes: conditional groups
// collapse on empty tokens, remaining tokens substitute with "Unknown"
// fallbacks, then whitespace is collapsed and each segment sanitised.
func Render(template string, values TokenValues) string {
	// Pass 1: conditional groups.
	rendered := conditionalGroup.ReplaceAllStringFunc(template, func(group string) string {
		m := conditionalGroup.FindStringSubmatch(group)
		v := strings.TrimSpace(values[m[1]])
		if v == "" {
			return ""
		}
		return " (" + v + ")"
	})

	// Pass 2: bare tokens.
	rendered = bareToken.ReplaceAllStringFunc(rendered, func(token string) string {
		m := bareToken.FindStringSubmatch(token)
		v := strings.TrimSpace(values[m[1]])
		if v == "" {
			return "Unknown"
		}
		return v
	})

	// Pass 3: per-segment cleanup.
	segments := strings.Split(rendered, "/")
	cleaned := segments[:0]
	for _, seg := range segments {
		seg = SanitizeSegment(seg)
		if seg != "" {
			cleaned = append(cleaned, seg)
		}
	}
	return strings.Join(cleaned, string(filepath.Separator))
}

// collisionLimit caps numbered suffixes before falling back to a random
// one.
const collisionLimit = 1000

// ResolveCollision returns a destination that does not exist yet,
// appending " (2)", " (3)", ... before the extension, then a random suffix
// past the limit.
func ResolveCollision(dest string) string {
	if !pathExists(dest) {
		return dest
	}
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for i := 2; i <= collisionLimit; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !pathExists(candidate) {
			return candidate
		}
	}
	return fmt.Sprintf("%s (%08x)%s", stem, rand.Uint32(), ext)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
