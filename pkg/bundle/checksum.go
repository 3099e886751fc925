package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lokan/updater/pkg/errors"
)

// fileSHA256 streams the file through SHA-256 and returns the lowercase
// hex digest. io.Copy keeps the read bounded; component images can be
// large.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open component file")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "failed to hash component file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// parseChecksumFile parses sha256sum-style content: one
// "<64-hex-digest>  <relative-path>" entry per line. Blank lines are
// skipped; duplicate paths and malformed lines are rejected.
func parseChecksumFile(raw []byte) (map[string]string, error) {
	entries := make(map[string]string)
	for i, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d: expected '<sha256>  <path>'", ErrChecksumFileCorrupt, i+1)
		}

		digest := strings.ToLower(fields[0])
		if len(digest) != 64 || !isHex(digest) {
			return nil, fmt.Errorf("%w: line %d: invalid sha256 digest", ErrChecksumFileCorrupt, i+1)
		}

		path := fields[1]
		if _, ok := entries[path]; ok {
			return nil, &DuplicateChecksumEntryError{Path: path, Line: i + 1}
		}
		entries[path] = digest
	}
	return entries, nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// formatChecksumFile renders components into sha256sum format, in manifest
// order so that signing is deterministic.
func formatChecksumFile(components []Component) []byte {
	var b strings.Builder
	for _, c := range components {
		fmt.Fprintf(&b, "%s  %s\n", strings.ToLower(c.SHA256), c.Path)
	}
	return []byte(b.String())
}
