package kg

import (
	"strings"
	"unicode"
)

// NormalizeName canonicalises an entity name for uniqueness and alias
// matching: Unicode-aware lowercasing, trimming, collapsing of internal
// whitespace, and removal of punctuation other than hyphens, dots and
// plus signs (so "GPT-4", "v2.0" and "C++" keep their identity).
//
// The graph store adapter and the ingestion merge step must both use this
// function; if they diverge the (type, name) uniqueness invariant breaks.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastSpace := true // leading whitespace is dropped
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		case r == '-' || r == '.' || r == '+' || r == '_':
			b.WriteRune(r)
			lastSpace = false
		default:
			// Other punctuation is dropped without inserting a space so
			// "AlphaGo (Zero)" and "AlphaGo Zero" stay distinct from
			// "AlphaGoZero" only through their original spacing.
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// TypeNameKey builds the uniqueness key for an entity.
func TypeNameKey(t EntityType, name string) string {
	return string(t) + ":" + NormalizeName(name)
}

// NormalizeQuery canonicalises a free-text query for cache keying: lowercase,
// trimmed, internal whitespace collapsed.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
