// Package textutil holds the token and hashing primitives shared by the
// extractor, the ledger, and the orchestrator. Every overlap score in the
// system is computed from Tokenize so the components agree on what a
// "shared token" is.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// MinTokenLength is the shortest run that counts as a token
const MinTokenLength = 4

// ShortHashLength is the width of content-addressed identifiers
const ShortHashLength = 12

var (
	tokenPattern      = regexp.MustCompile(`[a-zA-Z0-9_]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// TokenSet is a set of case-folded tokens
type TokenSet map[string]struct{}

// Tokenize returns the case-folded alphanumeric runs of text with at least
// MinTokenLength characters.
func Tokenize(text string) TokenSet {
	tokens := make(TokenSet)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) >= MinTokenLength {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// Overlap counts the tokens present in both sets
func Overlap(a, b TokenSet) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

// Normalize lowercases s, trims it, and collapses internal whitespace
func Normalize(s string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// ShortHash hashes the normalized parts joined by "|" and returns the first
// ShortHashLength hex characters of the SHA-256 digest.
func ShortHash(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = Normalize(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])[:ShortHashLength]
}

// Truncate shortens s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Round4 rounds a ratio to four decimal places
func Round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}
