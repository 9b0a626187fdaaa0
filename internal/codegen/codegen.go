// Package codegen produces printable resolve-code values and QR images for them.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Charset is what generated codes are drawn from. Upper-case only: codes are
// read off cards and typed in by hand.
const Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	MinLength     = 4
	MaxLength     = 32
	DefaultLength = 8
)

// Generate returns prefix followed by length random characters from Charset.
func Generate(prefix string, length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("codegen: length must be between %d and %d, got %d", MinLength, MaxLength, length)
	}

	space := big.NewInt(int64(len(Charset)))
	var b strings.Builder
	b.Grow(len(prefix) + length)
	b.WriteString(prefix)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, space)
		if err != nil {
			return "", fmt.Errorf("codegen: reading random bytes: %w", err)
		}
		b.WriteByte(Charset[n.Int64()])
	}
	return b.String(), nil
}

// GenerateN returns n distinct codes. Collisions inside the set are simply
// redrawn; collisions with stored codes are the caller's problem.
func GenerateN(prefix string, length, n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("codegen: count must be positive")
	}

	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	// Short codes can run out of space; give up rather than spin.
	for attempts := 0; len(out) < n; attempts++ {
		if attempts > n*10 {
			return nil, fmt.Errorf("codegen: could not draw %d distinct codes of length %d", n, length)
		}
		code, err := Generate(prefix, length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}
