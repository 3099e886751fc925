// Package bundle validates and signs on-disk update bundles. A bundle is a
// directory holding manifest.json, the component payload files it
// declares, and a sig/ directory with a sha256sum file plus an Ed25519
// signature over the checksum file's raw bytes. Checksums are verified in
// both directions (manifest against files, manifest against the checksum
// file) so neither the manifest nor the sidecar can be tampered with
// alone; the signature only needs to cover the checksum file because every
// other artifact is transitively pinned to it.
package bundle

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lokan/updater/pkg/errors"
)

const (
	signaturePEMLabel = "ED25519 SIGNATURE"
	publicKeyPEMLabel = "PUBLIC KEY"
)

// Verifier checks bundle authenticity and integrity against a trusted
// public key. It is stateless; concurrent verifications of different
// bundles need no coordination.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier wraps a raw Ed25519 public key.
func NewVerifier(key ed25519.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// NewVerifierFromPEM loads a PKIX "PUBLIC KEY" PEM file.
func NewVerifierFromPEM(path string) (*Verifier, error) {
	key, err := LoadPublicKey(path)
	if err != nil {
		return nil, err
	}
	return NewVerifier(key), nil
}

// LoadPublicKey reads an Ed25519 public key from a PEM file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read public key")
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != publicKeyPEMLabel {
		return nil, fmt.Errorf("public key must be a PEM %q block", publicKeyPEMLabel)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, expected Ed25519", parsed)
	}
	return key, nil
}

// Verify validates the bundle at dir and returns its manifest on success.
// It fails fast with the first error encountered: manifest structure,
// component path safety, per-file digests, checksum file syntax, symmetric
// manifest/checksum-file set equality, then the signature.
func (v *Verifier) Verify(dir string) (*VerifiedManifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "bundle directory unreadable")
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle path %s is not a directory", dir)
	}

	manifest, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}
	if err := validateComponentPaths(manifest.Components); err != nil {
		return nil, err
	}

	for _, c := range manifest.Components {
		declared := strings.ToLower(c.SHA256)
		actual, err := fileSHA256(filepath.Join(dir, c.Path))
		if err != nil {
			return nil, err
		}
		if actual != declared {
			return nil, &ChecksumMismatchError{Path: c.Path, Expected: declared, Actual: actual}
		}
	}

	checksumBytes, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checksum file")
	}
	entries, err := parseChecksumFile(checksumBytes)
	if err != nil {
		return nil, err
	}
	if err := crossCheck(manifest.Components, entries); err != nil {
		return nil, err
	}

	if err := v.verifySignature(dir, checksumBytes); err != nil {
		return nil, err
	}

	slog.Info("bundle_verified",
		"bundle_dir", dir,
		"version", manifest.Version,
		"target_slot", manifest.TargetSlot,
		"components", len(manifest.Components))

	return &VerifiedManifest{
		Version:    manifest.Version,
		BuildSHA:   manifest.BuildSHA,
		CreatedAt:  manifest.CreatedAt,
		TargetSlot: manifest.TargetSlot,
		Components: manifest.Components,
	}, nil
}

// crossCheck enforces symmetric set equality between manifest components
// and checksum-file entries, with matching digests.
func crossCheck(components []Component, entries map[string]string) error {
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		digest, ok := entries[c.Path]
		if !ok {
			return &ChecksumSetMismatchError{Path: c.Path, Detail: "missing from checksum file"}
		}
		if digest != strings.ToLower(c.SHA256) {
			return &ChecksumSetMismatchError{Path: c.Path, Detail: "digest differs from manifest"}
		}
		seen[c.Path] = true
	}
	for path := range entries {
		if !seen[path] {
			return &ChecksumSetMismatchError{Path: path, Detail: "not declared in manifest"}
		}
	}
	return nil
}

func (v *Verifier) verifySignature(dir string, signed []byte) error {
	raw, err := os.ReadFile(filepath.Join(dir, SignatureFile))
	if err != nil {
		return errors.Wrap(err, "failed to read signature file")
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != signaturePEMLabel {
		return fmt.Errorf("%w: expected PEM %q block", ErrSignatureInvalid, signaturePEMLabel)
	}
	if len(block.Bytes) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes", ErrSignatureInvalid, ed25519.SignatureSize)
	}
	if !ed25519.Verify(v.key, signed, block.Bytes) {
		return ErrSignatureInvalid
	}
	return nil
}
