package utils

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

// ErrInvalidAlphabet is returned for empty alphabets or alphabets with
// repeated characters (repeats would bias the distribution).
var ErrInvalidAlphabet = errors.New("activation alphabet must be non-empty with unique characters")

// CodeGenerator draws fixed-length activation codes uniformly from an
// alphabet using a cryptographically secure source.
type CodeGenerator struct {
	length   int
	alphabet []rune
	rand     io.Reader
}

// NewCodeGenerator validates the alphabet and returns a generator.
func NewCodeGenerator(length int, alphabet string) (*CodeGenerator, error) {
	if length <= 0 {
		return nil, errors.New("activation code length must be positive")
	}
	runes := []rune(alphabet)
	if len(runes) == 0 {
		return nil, ErrInvalidAlphabet
	}
	seen := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		if _, dup := seen[r]; dup {
			return nil, ErrInvalidAlphabet
		}
		seen[r] = struct{}{}
	}
	return &CodeGenerator{length: length, alphabet: runes, rand: rand.Reader}, nil
}

// Generate returns a new code.
func (g *CodeGenerator) Generate() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(g.alphabet)))
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(g.rand, max)
		if err != nil {
			return "", err
		}
		b.WriteRune(g.alphabet[n.Int64()])
	}
	return b.String(), nil
}
