// Package safeio provides the bounded I/O and name-sanitizing helpers used
// at the HTTP boundary.
package safeio

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTooLarge is returned when a read exceeds its limit.
var ErrTooLarge = errors.New("safeio: input exceeds limit")

// ReadAtMost reads r fully as long as it holds at most maxBytes. A longer
// stream fails with an error wrapping ErrTooLarge after reading maxBytes+1
// bytes, never more.
func ReadAtMost(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// ValidateIdentifier rejects identifiers with characters unsuitable for
// file names or header values. Allows alphanumeric, underscore, hyphen and
// dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("safeio: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("safeio: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("safeio: invalid character %q in identifier", r)
		}
	}
	return nil
}

// BaseName strips directories from a client-supplied file name and maps
// every character ValidateIdentifier refuses to '_'. Empty input, or input
// that reduces to dots, yields "".
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if isIdentChar(r) {
			return r
		}
		return '_'
	}, name)
	if strings.Trim(name, ".") == "" {
		return ""
	}
	if len(name) > 128 {
		name = name[:128]
	}
	return name
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
