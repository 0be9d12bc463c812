// Package sequence normalizes raw nucleotide input and decomposes canonical
// sequences into k-mer sets.
package sequence

import (
	"fmt"
	"strings"

	apperrors "github.com/marinedata/edna-platform/pkg/errors"
)

// validBase marks the accepted IUPAC nucleotide codes: the four bases, the
// ambiguity codes, and the gap character.
var validBase [256]bool

func init() {
	for _, c := range []byte("ATGCNRYSWKMBDHV-") {
		validBase[c] = true
	}
}

// Canonicalize normalizes a raw input string into a canonical sequence:
// an optional FASTA header line (starting with '>') is discarded, all
// whitespace is stripped, and bases are uppercased. It fails with
// ErrInvalidAlphabet if any remaining character is outside the IUPAC
// nucleotide alphabet, and with ErrSequenceTooShort if the result is
// shorter than minLen.
func Canonicalize(raw string, minLen int) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, ">") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = ""
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if !validBase[c] {
			return "", fmt.Errorf("%w: %q at position %d", apperrors.ErrInvalidAlphabet, rune(c), i)
		}
		b.WriteByte(c)
	}

	seq := b.String()
	if len(seq) < minLen {
		return "", fmt.Errorf("%w: length %d, minimum %d", apperrors.ErrSequenceTooShort, len(seq), minLen)
	}
	return seq, nil
}
