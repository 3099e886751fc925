package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lokan/updater/pkg/errors"
	"github.com/lokan/updater/pkg/slot"
)

// Bundle layout, relative to the bundle directory.
const (
	ManifestFile  = "manifest.json"
	ChecksumFile  = "sig/sha256sum"
	SignatureFile = "sig/signature.pem"
)

// Component is one payload file declared by the manifest.
type Component struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Manifest describes an update bundle.
type Manifest struct {
	Version    string      `json:"version"`
	BuildSHA   string      `json:"build_sha"`
	CreatedAt  time.Time   `json:"created_at"`
	TargetSlot slot.Slot   `json:"target_slot"`
	Components []Component `json:"components"`
}

// VerifiedManifest is a manifest that passed full verification. Only the
// version and target slot survive into engine state; the component list is
// carried for reporting.
type VerifiedManifest struct {
	Version    string      `json:"version"`
	BuildSHA   string      `json:"build_sha"`
	CreatedAt  time.Time   `json:"created_at"`
	TargetSlot slot.Slot   `json:"target_slot"`
	Components []Component `json:"components"`
}

func loadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s missing", ErrManifestInvalid, ManifestFile)
		}
		return nil, errors.Wrap(err, "failed to read manifest")
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Version == "" {
		return fmt.Errorf("%w: version is required", ErrManifestInvalid)
	}
	if m.BuildSHA == "" {
		return fmt.Errorf("%w: build_sha is required", ErrManifestInvalid)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrManifestInvalid)
	}
	if _, err := slot.Parse(string(m.TargetSlot)); err != nil {
		return fmt.Errorf("%w: target_slot %q", ErrManifestInvalid, m.TargetSlot)
	}
	if len(m.Components) == 0 {
		return fmt.Errorf("%w: components must not be empty", ErrManifestInvalid)
	}
	for _, c := range m.Components {
		if c.Name == "" || c.Path == "" {
			return fmt.Errorf("%w: component name and path are required", ErrManifestInvalid)
		}
	}
	return nil
}

// validateComponentPaths rejects absolute paths and any path containing a
// ".." segment. Runs over the full component list before a single digest
// is computed.
func validateComponentPaths(components []Component) error {
	for _, c := range components {
		if filepath.IsAbs(c.Path) {
			return &PathEscapeError{Path: c.Path}
		}
		for _, segment := range strings.Split(filepath.ToSlash(c.Path), "/") {
			if segment == ".." {
				return &PathEscapeError{Path: c.Path}
			}
		}
	}
	return nil
}
