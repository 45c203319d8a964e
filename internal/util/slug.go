// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches spaces, underscores, and slashes (for replacement with dashes).
	wordSeparatorRe = regexp.MustCompile(`[\s_/]+`)
	// Matches non-alphanumeric characters (except dashes).
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches multiple consecutive dashes.
	multipleDashRe = regexp.MustCompile(`-+`)
	// Matches runs of whitespace.
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Slugify converts a display name to a canonical slug.
//
// Rules:
//  1. Unicode-normalize (NFC), trim, lowercase
//  2. Replace spaces, underscores and slashes with dashes
//  3. Drop everything that is not alphanumeric or a dash
//  4. Collapse and trim dashes
//
// Examples:
//
//	"Picture Book"    → "picture-book"
//	"Sub-genre / SEL" → "sub-genre-sel"
//	"  Ni-Vanuatu  "  → "ni-vanuatu"
func Slugify(input string) string {
	s := norm.NFC.String(input)
	s = strings.ToLower(strings.TrimSpace(s))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NaturalKey canonicalizes a human-entered name for lookup purposes:
// Unicode NFC, collapsed inner whitespace, trimmed, lowercased.
// Two spellings of the same creator name ("Jane  Doe", "jane doe")
// produce the same key.
func NaturalKey(input string) string {
	s := norm.NFC.String(input)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
