package bundle

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lokan/updater/pkg/errors"
)

const privateKeyPEMLabel = "PRIVATE KEY"

// Signer produces the checksum file and signature for a bundle. It is a
// build-time tool, outside the runtime trust boundary, but shares the
// manifest and digest code with the verifier.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner wraps a raw Ed25519 private key.
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

// NewSignerFromPEM loads a PKCS#8 "PRIVATE KEY" PEM file.
func NewSignerFromPEM(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read private key")
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != privateKeyPEMLabel {
		return nil, fmt.Errorf("private key must be a PEM %q block", privateKeyPEMLabel)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, expected Ed25519", parsed)
	}
	return NewSigner(key), nil
}

// Sign recomputes every component digest, rewrites the manifest and the
// checksum file with the fresh digests, signs the checksum file, and then
// re-verifies the whole bundle with the signing key's public half as a
// self-check before declaring success.
func (s *Signer) Sign(dir string) error {
	manifest, err := loadManifest(dir)
	if err != nil {
		return err
	}
	if err := validateComponentPaths(manifest.Components); err != nil {
		return err
	}

	for i, c := range manifest.Components {
		digest, err := fileSHA256(filepath.Join(dir, c.Path))
		if err != nil {
			return err
		}
		manifest.Components[i].SHA256 = digest
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append(manifestJSON, '\n'), 0o644); err != nil {
		return errors.Wrap(err, "failed to write manifest")
	}

	checksumBytes := formatChecksumFile(manifest.Components)
	sigDir := filepath.Join(dir, filepath.Dir(ChecksumFile))
	if err := os.MkdirAll(sigDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create sig directory")
	}
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), checksumBytes, 0o644); err != nil {
		return errors.Wrap(err, "failed to write checksum file")
	}

	signature := ed25519.Sign(s.key, checksumBytes)
	sigPEM := pem.EncodeToMemory(&pem.Block{Type: signaturePEMLabel, Bytes: signature})
	if err := os.WriteFile(filepath.Join(dir, SignatureFile), sigPEM, 0o644); err != nil {
		return errors.Wrap(err, "failed to write signature file")
	}

	// Self-check: a bundle we cannot verify ourselves is not signed.
	verifier := NewVerifier(s.key.Public().(ed25519.PublicKey))
	if _, err := verifier.Verify(dir); err != nil {
		return errors.Wrap(err, "self-verification after signing failed")
	}

	slog.Info("bundle_signed",
		"bundle_dir", dir,
		"version", manifest.Version,
		"components", len(manifest.Components))
	return nil
}
