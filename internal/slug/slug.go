// Package slug generates and validates public room slugs of the form
// xxxx-xxxxx drawn from [a-z0-9].
package slug

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// Size is the number of random characters, excluding the hyphen.
	Size = 9
	// hyphenAt is the index the hyphen is inserted at.
	hyphenAt = 4
)

// Generator produces room slugs.
type Generator interface {
	Generate() (string, error)
}

// NanoIDGenerator draws slugs from a cryptographically random source.
type NanoIDGenerator struct{}

func NewNanoIDGenerator() *NanoIDGenerator {
	return &NanoIDGenerator{}
}

func (g *NanoIDGenerator) Generate() (string, error) {
	id, err := gonanoid.Generate(Alphabet, Size)
	if err != nil {
		return "", fmt.Errorf("failed to generate slug: %w", err)
	}
	return id[:hyphenAt] + "-" + id[hyphenAt:], nil
}

// Validate reports whether s is a well-formed slug and, if not, why.
func Validate(s string) (bool, string) {
	if len(s) != Size+1 {
		return false, fmt.Sprintf("expected length %d, got %d", Size+1, len(s))
	}
	for i, c := range s {
		if i == hyphenAt {
			if c != '-' {
				return false, fmt.Sprintf("expected '-' at position %d", hyphenAt)
			}
			continue
		}
		if !strings.ContainsRune(Alphabet, c) {
			return false, fmt.Sprintf("character '%c' not in alphabet", c)
		}
	}
	return true, ""
}
