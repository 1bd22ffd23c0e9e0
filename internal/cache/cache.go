// Package cache implements the content-addressed audio cache.
//
// A synthesis request maps to a deterministic file path derived from a digest
// of its semantically relevant fields; the presence of that file is the cache
// hit signal. The package keeps no in-memory state.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/speech-service/internal/core"
)

const dirPermissions = 0o750

// ContentCache maps synthesis requests to file paths under a base directory,
// scoped per video.
type ContentCache struct {
	baseDir string
}

// New creates a ContentCache rooted at baseDir.
func New(baseDir string) *ContentCache {
	return &ContentCache{baseDir: baseDir}
}

// Key returns the deterministic fingerprint of a request: the hex SHA-256 of
// the ordered tuple (videoId, text, lang, voice, speed, format). Identical
// requests always produce the same key; any field change changes it.
func Key(req core.SynthesisRequest) string {
	fields := []string{
		req.VideoID,
		req.Text,
		req.Language,
		req.Voice,
		formatSpeed(req.Speed),
		req.Format,
	}

	digest := sha256.Sum256([]byte(strings.Join(fields, "|")))

	return hex.EncodeToString(digest[:])
}

// Path returns the on-disk location for a request: the key forms the file
// name, scoped under a per-video directory.
func (c *ContentCache) Path(req core.SynthesisRequest) string {
	return filepath.Join(c.baseDir, req.VideoID, Key(req)+"."+req.Format)
}

// Exists reports whether the cached audio file for a request is on disk.
func (c *ContentCache) Exists(req core.SynthesisRequest) bool {
	info, err := os.Stat(c.Path(req))

	return err == nil && !info.IsDir()
}

// EnsureDir creates the per-video cache directory for a request.
func (c *ContentCache) EnsureDir(req core.SynthesisRequest) error {
	dir := filepath.Join(c.baseDir, req.VideoID)

	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return nil
}

// formatSpeed renders the speed field the way it participates in the digest.
// Integral speeds render without a fraction so 1 and 1.0 share a key.
func formatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', -1, 64)
}
