package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHeadersKnownAndUnknown(t *testing.T) {
	m := NewMapper()
	rm, warnings := m.MapHeaders([]string{"Internal ID", "Title", "Author", "Mystery Column", "Verified"})

	assert.Empty(t, warnings)
	assert.True(t, rm.Has(FieldInternalID))
	assert.True(t, rm.Has(FieldTitle))
	assert.True(t, rm.Has(FieldAuthor))
	assert.Equal(t, []string{"Mystery Column"}, rm.Unknown)
	assert.Equal(t, []string{"Verified"}, rm.Ignored)
}

func TestMapHeadersTrimsWhitespace(t *testing.T) {
	rm, _ := NewMapper().MapHeaders([]string{"  Title  ", " PALM Code "})
	assert.True(t, rm.Has(FieldTitle))
	assert.True(t, rm.Has(FieldPalmCode))
}

func TestMapHeadersAliasPrecedence(t *testing.T) {
	// Legacy and current header variants of the same field in one file:
	// the current-format variant wins regardless of column order.
	rm, warnings := NewMapper().MapHeaders([]string{"Library link UH", "Title", "Library UH link"})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"Library UH link"`)
	assert.Contains(t, warnings[0], `using "Library link UH"`)

	row := rm.Row([]string{"current-link", "Some Title", "legacy-link"})
	assert.Equal(t, "current-link", row.Get(FieldLibraryUHLink))
}

func TestMapHeadersAliasPrecedenceReversedOrder(t *testing.T) {
	rm, warnings := NewMapper().MapHeaders([]string{"Library UH link", "Library link UH"})
	require.Len(t, warnings, 1)

	row := rm.Row([]string{"legacy-link", "current-link"})
	assert.Equal(t, "current-link", row.Get(FieldLibraryUHLink))
}

func TestMapHeadersRepeatedHeaderLastColumnWins(t *testing.T) {
	rm, warnings := NewMapper().MapHeaders([]string{"Title", "Title"})
	assert.Empty(t, warnings)

	row := rm.Row([]string{"first", "second"})
	assert.Equal(t, "second", row.Get(FieldTitle))
}

func TestRowProjection(t *testing.T) {
	rm, _ := NewMapper().MapHeaders([]string{"Title", "Pages", "Author"})

	row := rm.Row([]string{"  Nā Mele  ", "", "Kawena Pukui"})
	assert.Equal(t, "Nā Mele", row.Get(FieldTitle))
	assert.Equal(t, "", row.Get(FieldPages), "empty cells are absent")
	assert.Equal(t, "Kawena Pukui", row.Get(FieldAuthor))

	// Short records must not panic on trailing mapped columns.
	short := rm.Row([]string{"Only Title"})
	assert.Equal(t, "Only Title", short.Get(FieldTitle))
	assert.Equal(t, "", short.Get(FieldAuthor))
}
