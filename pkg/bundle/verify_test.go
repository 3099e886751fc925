package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lokan/updater/pkg/slot"
)

func testKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return pub, priv
}

// writeBundle lays out a bundle directory with the given payload files and
// a manifest declaring them (digests left empty for the signer to fill).
func writeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	var components []Component
	for path, content := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("failed to create component dir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write component: %v", err)
		}
		components = append(components, Component{
			Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:   path,
			SHA256: strings.Repeat("0", 64), // placeholder, rewritten by Sign
		})
	}

	writeManifest(t, dir, &Manifest{
		Version:    "2.0.0",
		BuildSHA:   "deadbeef",
		CreatedAt:  time.Now().UTC(),
		TargetSlot: slot.SlotB,
		Components: components,
	})
	return dir
}

func writeManifest(t *testing.T, dir string, m *Manifest) {
	t.Helper()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to encode manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
}

func signedBundle(t *testing.T, priv ed25519.PrivateKey) string {
	t.Helper()
	dir := writeBundle(t, map[string]string{
		"images/kernel.img": "kernel payload",
		"images/rootfs.img": "rootfs payload",
	})
	if err := NewSigner(priv).Sign(dir); err != nil {
		t.Fatalf("failed to sign bundle: %v", err)
	}
	return dir
}

func TestSignVerify_RoundTrip(t *testing.T) {
	pub, priv := testKey(t)
	dir := signedBundle(t, priv)

	manifest, err := NewVerifier(pub).Verify(dir)
	if err != nil {
		t.Fatalf("verify failed on freshly signed bundle: %v", err)
	}

	if manifest.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", manifest.Version)
	}
	if manifest.TargetSlot != slot.SlotB {
		t.Errorf("target slot: got %s, want B", manifest.TargetSlot)
	}
	if len(manifest.Components) != 2 {
		t.Errorf("components: got %d, want 2", len(manifest.Components))
	}
}

func TestSign_RewritesManifestDigests(t *testing.T) {
	_, priv := testKey(t)
	dir := signedBundle(t, priv)

	m, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("failed to reload manifest: %v", err)
	}
	for _, c := range m.Components {
		if c.SHA256 == strings.Repeat("0", 64) {
			t.Errorf("component %s still has the placeholder digest", c.Path)
		}
	}
}

func TestVerify_TamperedComponent(t *testing.T) {
	pub, priv := testKey(t)
	dir := signedBundle(t, priv)

	path := filepath.Join(dir, "images/kernel.img")
	raw, _ := os.ReadFile(path)
	raw[0] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("failed to tamper component: %v", err)
	}

	_, err := NewVerifier(pub).Verify(dir)
	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumMismatchError, got %v", err)
	}
	if mismatch.Path != "images/kernel.img" {
		t.Errorf("mismatch path: got %s", mismatch.Path)
	}
}

func TestVerify_TamperedChecksumFile(t *testing.T) {
	pub, priv := testKey(t)

	flipDigestChar := func(line string) string {
		if line[0] == 'a' {
			return "b" + line[1:]
		}
		return "a" + line[1:]
	}

	tests := []struct {
		name   string
		mutate func(lines []string) []string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "digest flipped",
			mutate: func(lines []string) []string { lines[0] = flipDigestChar(lines[0]); return lines },
			check: func(t *testing.T, err error) {
				var setErr *ChecksumSetMismatchError
				if !errors.As(err, &setErr) {
					t.Fatalf("expected ChecksumSetMismatchError, got %v", err)
				}
			},
		},
		{
			name:   "extra entry",
			mutate: func(lines []string) []string { return append(lines, strings.Repeat("ab", 32)+"  images/extra.img") },
			check: func(t *testing.T, err error) {
				var setErr *ChecksumSetMismatchError
				if !errors.As(err, &setErr) {
					t.Fatalf("expected ChecksumSetMismatchError, got %v", err)
				}
			},
		},
		{
			name:   "duplicate entry",
			mutate: func(lines []string) []string { return append(lines, lines[0]) },
			check: func(t *testing.T, err error) {
				var dupErr *DuplicateChecksumEntryError
				if !errors.As(err, &dupErr) {
					t.Fatalf("expected DuplicateChecksumEntryError, got %v", err)
				}
			},
		},
		{
			name:   "malformed line",
			mutate: func(lines []string) []string { return append(lines, "not a checksum line at all") },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrChecksumFileCorrupt) {
					t.Fatalf("expected ErrChecksumFileCorrupt, got %v", err)
				}
			},
		},
		{
			name:   "truncated digest",
			mutate: func(lines []string) []string { lines[0] = lines[0][4:]; return lines },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrChecksumFileCorrupt) {
					t.Fatalf("expected ErrChecksumFileCorrupt, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := signedBundle(t, priv)
			sumPath := filepath.Join(dir, ChecksumFile)
			raw, _ := os.ReadFile(sumPath)
			lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
			lines = tt.mutate(lines)
			if err := os.WriteFile(sumPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
				t.Fatalf("failed to rewrite checksum file: %v", err)
			}

			_, err := NewVerifier(pub).Verify(dir)
			if err == nil {
				t.Fatal("expected verification to fail")
			}
			tt.check(t, err)
		})
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	pub, priv := testKey(t)
	dir := signedBundle(t, priv)

	// Re-sign the checksum file with a different key but keep the trusted
	// verifier key: everything checks out except the signature.
	_, otherPriv := testKey(t)
	sum, _ := os.ReadFile(filepath.Join(dir, ChecksumFile))
	forged := pem.EncodeToMemory(&pem.Block{
		Type:  "ED25519 SIGNATURE",
		Bytes: ed25519.Sign(otherPriv, sum),
	})
	if err := os.WriteFile(filepath.Join(dir, SignatureFile), forged, 0o644); err != nil {
		t.Fatalf("failed to forge signature: %v", err)
	}

	_, err := NewVerifier(pub).Verify(dir)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerify_WrongPublicKey(t *testing.T) {
	_, priv := testKey(t)
	otherPub, _ := testKey(t)
	dir := signedBundle(t, priv)

	_, err := NewVerifier(otherPub).Verify(dir)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

// Scenario: traversal paths are rejected before any digest is computed,
// even when the referenced file does not exist.
func TestVerify_PathEscape(t *testing.T) {
	pub, priv := testKey(t)
	dir := signedBundle(t, priv)

	tests := []string{
		"../../etc/passwd",
		"/etc/passwd",
		"images/../../escape.img",
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			writeManifest(t, dir, &Manifest{
				Version:    "2.0.0",
				BuildSHA:   "deadbeef",
				CreatedAt:  time.Now().UTC(),
				TargetSlot: slot.SlotB,
				Components: []Component{{Name: "evil", Path: path, SHA256: strings.Repeat("0", 64)}},
			})

			_, err := NewVerifier(pub).Verify(dir)
			var escape *PathEscapeError
			if !errors.As(err, &escape) {
				t.Fatalf("expected PathEscapeError for %q, got %v", path, err)
			}
		})
	}
}

func TestVerify_ManifestInvalid(t *testing.T) {
	pub, priv := testKey(t)

	tests := []struct {
		name   string
		mutate func(m *Manifest)
	}{
		{"empty components", func(m *Manifest) { m.Components = nil }},
		{"missing version", func(m *Manifest) { m.Version = "" }},
		{"missing build sha", func(m *Manifest) { m.BuildSHA = "" }},
		{"bad target slot", func(m *Manifest) { m.TargetSlot = "C" }},
		{"component without path", func(m *Manifest) { m.Components[0].Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := signedBundle(t, priv)
			m, err := loadManifest(dir)
			if err != nil {
				t.Fatalf("failed to reload manifest: %v", err)
			}
			tt.mutate(m)
			writeManifest(t, dir, m)

			_, err = NewVerifier(pub).Verify(dir)
			if !errors.Is(err, ErrManifestInvalid) {
				t.Fatalf("expected ErrManifestInvalid, got %v", err)
			}
		})
	}
}

func TestVerify_MissingManifest(t *testing.T) {
	pub, _ := testKey(t)
	_, err := NewVerifier(pub).Verify(t.TempDir())
	if !errors.Is(err, ErrManifestInvalid) {
		t.Fatalf("expected ErrManifestInvalid, got %v", err)
	}
}

func TestVerify_UppercaseManifestDigestAccepted(t *testing.T) {
	pub, priv := testKey(t)
	dir := signedBundle(t, priv)

	m, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("failed to reload manifest: %v", err)
	}
	for i := range m.Components {
		m.Components[i].SHA256 = strings.ToUpper(m.Components[i].SHA256)
	}
	writeManifest(t, dir, m)

	if _, err := NewVerifier(pub).Verify(dir); err != nil {
		t.Fatalf("uppercase manifest digests must verify: %v", err)
	}
}
