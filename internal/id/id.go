// Package id generates prefixed unique identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Well-known prefixes used across the catalog.
const (
	PrefixBook           = "bk"
	PrefixCreator        = "cr"
	PrefixImport         = "imp"
	PrefixClassification = "cls"
	PrefixFile           = "bf"
	PrefixQualityIssue   = "dq"
	PrefixLanguage       = "lang"
	PrefixPhysicalType   = "pt"
	PrefixCollection     = "col"
	PrefixPublisher      = "pub"
	PrefixClassType      = "ct"
	PrefixLocation       = "geo"
	PrefixLibrary        = "lib"
	PrefixLibraryRef     = "lr"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "bk-V1StGXR8_Z5jdHi6B-myT").
//
// NanoIDs are URL-friendly and shorter than UUIDs (21 characters vs 36)
// while keeping comparable entropy.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics on failure. Use during
// initialization or where entropy exhaustion should crash the program.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
