// Package idgen provides pluggable ID generation. Constructors that mint
// identifiers (the engine's output ids, the generation log) accept a
// Generator, so the strategy is a startup-time decision.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a Generator of base-36 IDs of the given length. Short and
// safe in file names; used for the id part of polyglot filenames.
func NanoID(length int) Generator {
	// Largest multiple of 36 below 256; bytes above it are redrawn so every
	// character is equally likely.
	const limit = 256 - 256%len(alphabet)
	return func() string {
		b := make([]byte, 0, length)
		buf := make([]byte, length)
		for len(b) < length {
			if _, err := rand.Read(buf); err != nil {
				panic("idgen: crypto/rand failed: " + err.Error())
			}
			for _, c := range buf {
				if int(c) >= limit {
					continue
				}
				b = append(b, alphabet[int(c)%len(alphabet)])
				if len(b) == length {
					break
				}
			}
		}
		return string(b)
	}
}

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. Time-sortable,
// so log rows keyed by them sort by creation.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID
// (e.g. "gen_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns it in canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
