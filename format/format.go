// CLAUDE:SUMMARY Format taxonomy, accepted input files and the error kinds every stage reports.
// Package format defines the shared vocabulary of the polyglot engine: the
// supported file types, the descriptor each adapter publishes, the patch
// model used to relocate offsets, and the Adapter contract implemented by
// the per-format subpackages.
package format

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Type identifies a supported file format.
type Type string

const (
	PDF   Type = "pdf"
	Image Type = "image"
	MP4   Type = "mp4"
	ZIP   Type = "zip"
	HTML  Type = "html"
)

// Types lists every supported format in declaration order.
var Types = []Type{PDF, Image, MP4, ZIP, HTML}

// Label returns the human label used by clients ("PDF", "Video", ...).
func (t Type) Label() string {
	switch t {
	case PDF:
		return "PDF"
	case Image:
		return "Image"
	case MP4:
		return "Video"
	case ZIP:
		return "ZIP"
	case HTML:
		return "HTML"
	}
	return strings.ToUpper(string(t))
}

// ParseType maps a client token to a Type. It accepts the canonical names,
// the client labels and a few common aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return PDF, nil
	case "image", "img", "png", "jpg", "jpeg":
		return Image, nil
	case "mp4", "video", "m4v", "mov":
		return MP4, nil
	case "zip", "archive", "jar", "docx", "epub":
		return ZIP, nil
	case "html", "htm":
		return HTML, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", ErrInvalidInput, s)
}

// InputFile is one uploaded file and its declared type. Data is never
// modified by any stage.
type InputFile struct {
	Type Type
	Name string
	Data []byte
}

// Fingerprint returns a short blake2b digest of the input, used in logs and
// plan summaries.
func (f InputFile) Fingerprint() string {
	sum := blake2b.Sum256(f.Data)
	return hex.EncodeToString(sum[:8])
}

var (
	// ErrInvalidInput reports a malformed request: wrong input count,
	// duplicate types, unknown combination.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedStructure reports an input whose structure the adapter
	// cannot safely relocate or does not recognize.
	ErrUnsupportedStructure = errors.New("unsupported structure")

	// ErrNoEmbedRegion reports that a format lacks the region a layout needs
	// or that the region is too small.
	ErrNoEmbedRegion = errors.New("no embed region")

	// ErrNoValidOrdering reports that no candidate layout satisfies every
	// format's constraints.
	ErrNoValidOrdering = errors.New("no valid ordering")

	// ErrValidationFailed reports that the assembled output does not
	// satisfy a format's conformance check.
	ErrValidationFailed = errors.New("validation failed")
)

// Unsupported wraps ErrUnsupportedStructure with the format and a reason.
func Unsupported(t Type, msg string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", t, ErrUnsupportedStructure, fmt.Sprintf(msg, args...))
}

// NoRegion wraps ErrNoEmbedRegion with the format and a reason.
func NoRegion(t Type, msg string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", t, ErrNoEmbedRegion, fmt.Sprintf(msg, args...))
}

// ValidationError names the format whose conformance check failed.
type ValidationError struct {
	Format Type
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Format, ErrValidationFailed, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidationFailed, e.Err}
}
