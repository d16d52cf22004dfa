package util

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
)

// NormalizeStatement folds runs of whitespace to one space and upper-cases
// everything outside quoted strings and delimited identifiers, so texts
// that differ only in layout or keyword case normalize alike.
func NormalizeStatement(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var quote rune
	space := false
	for _, r := range strings.TrimSpace(text) {
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Fingerprint hashes the normalized statement text.
func Fingerprint(text string) uint64 {
	return murmur3.Sum64([]byte(NormalizeStatement(text)))
}

func FingerprintString(text string) string {
	return strconv.FormatUint(Fingerprint(text), 16)
}
