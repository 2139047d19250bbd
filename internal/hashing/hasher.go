// Package hashing produces stable content fingerprints for media assets.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// Result describes one computed fingerprint.
type Result struct {
	Hex      string
	FileSize int64
	Elapsed  time.Duration
}

// Compute streams the file through SHA-256 and returns the lowercase hex
// digest. The file is never buffered whole; cancellation is checked
// between read chunks.
func Compute(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hashing: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, 1<<20)
	var size int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Read(buf)
		if n > 0 {
			size += int64(n)
			_, _ = h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("hashing: read %s: %w", path, err)
		}
	}

	return &Result{
		Hex:      hex.EncodeToString(h.Sum(nil)),
		FileSize: size,
		Elapsed:  time.Since(start),
	}, nil
}
