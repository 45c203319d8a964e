package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksapp/stacks-server/internal/domain"
)

func TestNormalizeAccessLevel(t *testing.T) {
	cases := map[string]domain.AccessLevel{
		"Y":       domain.AccessFull,
		"t":       domain.AccessFull,
		"yes":     domain.AccessFull,
		"full":    domain.AccessFull,
		"R":       domain.AccessLimited,
		"L":       domain.AccessLimited,
		"Limited": domain.AccessLimited,
		"N":       domain.AccessUnavailable,
		"no":      domain.AccessUnavailable,
		" y ":     domain.AccessFull,
	}
	for raw, want := range cases {
		got, err := NormalizeAccessLevel(raw)
		require.NoError(t, err, "code %q", raw)
		assert.Equal(t, want, got, "code %q", raw)
	}

	_, err := NormalizeAccessLevel("maybe")
	assert.Error(t, err)
}

func TestSplitMulti(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitMulti("a | b |c"))
	assert.Equal(t, []string{"a", "b"}, SplitMulti("a; b"))
	// A pipe anywhere makes pipe the separator, so semicolons survive.
	assert.Equal(t, []string{"a; b", "c"}, SplitMulti("a; b | c"))
	assert.Empty(t, SplitMulti(" | | "))
	assert.Equal(t, []string{"solo"}, SplitMulti("solo"))
}

func TestNormalizeRowMinimal(t *testing.T) {
	n, rerr := normalizeRow(2, Row{FieldTitle: "Nā Pua"})
	require.Nil(t, rerr)
	assert.Equal(t, 2, n.num)
	assert.Equal(t, "Nā Pua", n.title)
	assert.False(t, n.hasAccessLevel)
	assert.False(t, n.hasFeatured)
}

func TestNormalizeRowTitleRequired(t *testing.T) {
	_, rerr := normalizeRow(2, Row{FieldAuthor: "Someone"})
	require.NotNil(t, rerr)
	assert.Equal(t, "Title", rerr.Column)
}

func TestNormalizeRowTitleTooLong(t *testing.T) {
	_, rerr := normalizeRow(2, Row{FieldTitle: strings.Repeat("ā", maxTitleLength+1)})
	require.NotNil(t, rerr)
	assert.Equal(t, "Title", rerr.Column)

	// Exactly at the limit is fine; the bound counts runes, not bytes.
	_, rerr = normalizeRow(2, Row{FieldTitle: strings.Repeat("ā", maxTitleLength)})
	assert.Nil(t, rerr)
}

func TestNormalizeRowYearAndPagesBounds(t *testing.T) {
	for _, tc := range []struct {
		field  Field
		value  string
		column string
	}{
		{FieldPublicationYear, "1899", "Publication year"},
		{FieldPublicationYear, "2101", "Publication year"},
		{FieldPublicationYear, "soon", "Publication year"},
		{FieldPages, "0", "Pages"},
		{FieldPages, "10001", "Pages"},
		{FieldPages, "many", "Pages"},
	} {
		_, rerr := normalizeRow(2, Row{FieldTitle: "T", tc.field: tc.value})
		require.NotNil(t, rerr, "%s=%q", tc.field, tc.value)
		assert.Equal(t, tc.column, rerr.Column)
	}

	n, rerr := normalizeRow(2, Row{FieldTitle: "T", FieldPublicationYear: "1972", FieldPages: "128"})
	require.Nil(t, rerr)
	assert.Equal(t, 1972, n.publicationYear)
	assert.Equal(t, 128, n.pages)
}

func TestNormalizeRowInvalidAccessLevel(t *testing.T) {
	_, rerr := normalizeRow(2, Row{FieldTitle: "T", FieldAccessLevel: "maybe"})
	require.NotNil(t, rerr)
	assert.Equal(t, "Access level", rerr.Column)
}

func TestNormalizeRowCreators(t *testing.T) {
	n, rerr := normalizeRow(2, Row{
		FieldTitle:         "T",
		FieldAuthor:        "Mary Kawena Pukui | Samuel Elbert",
		FieldEditor:        "Esther Mookini",
		FieldIllustrator1:  "Dietrich Varez",
		FieldIllustrator3:  "Marilyn Kahalewai",
		FieldOtherCreator1: "Kimo Armitage (narrator)",
		FieldOtherCreator2: "Anonymous Helper",
	})
	require.Nil(t, rerr)
	require.Len(t, n.creators, 7)

	assert.Equal(t, creatorInput{Name: "Mary Kawena Pukui", Type: domain.CreatorAuthor, SortOrder: 0}, n.creators[0])
	assert.Equal(t, creatorInput{Name: "Samuel Elbert", Type: domain.CreatorAuthor, SortOrder: 1}, n.creators[1])
	assert.Equal(t, domain.CreatorEditor, n.creators[2].Type)

	// Illustrator slots keep their column order even with gaps.
	assert.Equal(t, creatorInput{Name: "Dietrich Varez", Type: domain.CreatorIllustrator, SortOrder: 0}, n.creators[3])
	assert.Equal(t, creatorInput{Name: "Marilyn Kahalewai", Type: domain.CreatorIllustrator, SortOrder: 1}, n.creators[4])

	assert.Equal(t, creatorInput{Name: "Kimo Armitage", Type: domain.CreatorContributor, RoleDescription: "narrator", SortOrder: 0}, n.creators[5])
	assert.Equal(t, creatorInput{Name: "Anonymous Helper", Type: domain.CreatorContributor, SortOrder: 1}, n.creators[6])
}

func TestNormalizeRowLanguagesAndClassifications(t *testing.T) {
	n, rerr := normalizeRow(2, Row{
		FieldTitle:     "T",
		FieldLanguage1: "Hawaiian",
		FieldLanguage2: "English",
		FieldGenre:     "Legends | Poetry",
		FieldSubject:   "Canoes; Voyaging",
	})
	require.Nil(t, rerr)

	require.Len(t, n.languages, 2)
	assert.True(t, n.languages[0].IsPrimary)
	assert.Equal(t, "Hawaiian", n.languages[0].Name)
	assert.False(t, n.languages[1].IsPrimary)

	require.Len(t, n.classifications, 2)
	assert.Equal(t, domain.ClassGenre, n.classifications[0].TypeSlug)
	assert.Equal(t, []string{"Legends", "Poetry"}, n.classifications[0].Values)
	assert.Equal(t, []string{"Canoes", "Voyaging"}, n.classifications[1].Values)
}

func TestNormalizeRowRelationshipsAndFiles(t *testing.T) {
	n, rerr := normalizeRow(2, Row{
		FieldTitle:          "T",
		FieldRelSameVersion: "B-1001 | B-1002",
		FieldRelTranslated:  "B-2000",
		FieldPDFFile:        "books/t.pdf",
		FieldVideoURL:       "https://vimeo.com/123",
	})
	require.Nil(t, rerr)

	require.Len(t, n.relationships, 3)
	assert.Equal(t, relationshipInput{Type: domain.RelSameVersion, TargetKey: "B-1001"}, n.relationships[0])
	assert.Equal(t, relationshipInput{Type: domain.RelSameVersion, TargetKey: "B-1002"}, n.relationships[1])
	assert.Equal(t, domain.RelTranslated, n.relationships[2].Type)

	require.Len(t, n.files, 2)
	assert.Equal(t, domain.FilePDF, n.files[0].Type)
	assert.True(t, n.files[0].IsPrimary)
	assert.False(t, n.files[0].IsExternal)
	assert.Equal(t, domain.FileVideo, n.files[1].Type)
	assert.True(t, n.files[1].IsExternal)
}

func TestNormalizeRowIdentifiers(t *testing.T) {
	n, rerr := normalizeRow(2, Row{
		FieldTitle: "T",
		FieldOCLC:  "12345678",
		FieldISBN:  "978-0-8248-0000-0",
	})
	require.Nil(t, rerr)
	require.Len(t, n.identifiers, 2)
	assert.Equal(t, domain.IdentOCLC, n.identifiers[0].Type)
	assert.Equal(t, domain.IdentISBN13, n.identifiers[1].Type)

	n, rerr = normalizeRow(2, Row{FieldTitle: "T", FieldISBN: "0-8248-0000-1"})
	require.Nil(t, rerr)
	assert.Equal(t, domain.IdentISBN, n.identifiers[0].Type)
}

func TestNormalizeRowLibraryRefs(t *testing.T) {
	n, rerr := normalizeRow(2, Row{
		FieldTitle:                  "T",
		FieldLibraryUHLink:          "https://uh.example/cat/1",
		FieldLibraryUHCallNumber:    "PL795.H3",
		FieldLibraryHSPLSCallNumber: "HAW 899.4",
	})
	require.Nil(t, rerr)
	require.Len(t, n.libraryRefs, 2)

	assert.Equal(t, "UH", n.libraryRefs[0].Code)
	assert.Equal(t, "https://uh.example/cat/1", n.libraryRefs[0].CatalogLink)
	assert.Equal(t, "PL795.H3", n.libraryRefs[0].CallNumber)

	assert.Equal(t, "HSPLS", n.libraryRefs[1].Code)
	assert.Equal(t, "HAW 899.4", n.libraryRefs[1].CallNumber)
	assert.Empty(t, n.libraryRefs[1].CatalogLink)
}

func TestCleanTextConvertsHTML(t *testing.T) {
	got := cleanText("<p>He moʻolelo <strong>kaulana</strong>.</p>")
	assert.Equal(t, "He moʻolelo **kaulana**.", got)

	plain := "No markup here, 100 < 200 even."
	assert.Equal(t, plain, cleanText(plain))
}

func TestParseFlag(t *testing.T) {
	for _, v := range []string{"y", "Yes", "TRUE", "1", "x", " Y "} {
		assert.True(t, parseFlag(v), "%q", v)
	}
	for _, v := range []string{"", "n", "no", "0", "false"} {
		assert.False(t, parseFlag(v), "%q", v)
	}
}
