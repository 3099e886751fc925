package bundle

import (
	"errors"
	"fmt"
)

// Verification errors. All are fatal to a stage attempt; the verifier
// fails fast on the first one encountered.
var (
	ErrManifestInvalid     = errors.New("manifest invalid")
	ErrChecksumFileCorrupt = errors.New("checksum file corrupt")
	ErrSignatureInvalid    = errors.New("signature invalid")
)

// PathEscapeError reports a component path that is absolute or escapes the
// bundle directory. Rejected before any digest is computed.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("component path escapes bundle: %q", e.Path)
}

// ChecksumMismatchError reports a component whose recomputed digest does
// not match a declared one.
type ChecksumMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// DuplicateChecksumEntryError reports a path listed more than once in the
// checksum file.
type DuplicateChecksumEntryError struct {
	Path string
	Line int
}

func (e *DuplicateChecksumEntryError) Error() string {
	return fmt.Sprintf("duplicate checksum entry for %s on line %d", e.Path, e.Line)
}

// ChecksumSetMismatchError reports an asymmetry between the manifest's
// component set and the checksum file's entry set.
type ChecksumSetMismatchError struct {
	Path   string
	Detail string
}

func (e *ChecksumSetMismatchError) Error() string {
	return fmt.Sprintf("checksum set mismatch for %s: %s", e.Path, e.Detail)
}
