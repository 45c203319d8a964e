package importer

import (
	"fmt"
	"strings"
)

// Field is a canonical field key produced by the header mapper.
type Field string

const (
	FieldInternalID      Field = "internal_id"
	FieldPalmCode        Field = "palm_code"
	FieldTitle           Field = "title"
	FieldSubtitle        Field = "subtitle"
	FieldTranslatedTitle Field = "translated_title"
	FieldPhysicalType    Field = "physical_type"
	FieldCollection      Field = "collection"
	FieldPublisher       Field = "publisher"
	FieldProgramPartner  Field = "program_partner"
	FieldPublicationYear Field = "publication_year"
	FieldPages           Field = "pages"
	FieldDescription     Field = "description"
	FieldAbstract        Field = "abstract"
	FieldTableOfContents Field = "table_of_contents"
	FieldAccessLevel     Field = "access_level"
	FieldFeatured        Field = "featured"

	FieldAuthor        Field = "author"
	FieldEditor        Field = "editor"
	FieldTranslator    Field = "translator"
	FieldIllustrator1  Field = "illustrator_1"
	FieldIllustrator2  Field = "illustrator_2"
	FieldIllustrator3  Field = "illustrator_3"
	FieldIllustrator4  Field = "illustrator_4"
	FieldIllustrator5  Field = "illustrator_5"
	FieldOtherCreator1 Field = "other_creator_1"
	FieldOtherCreator2 Field = "other_creator_2"
	FieldOtherCreator3 Field = "other_creator_3"

	FieldLanguage1 Field = "language_1"
	FieldLanguage2 Field = "language_2"

	FieldPurpose      Field = "purpose"
	FieldGenre        Field = "genre"
	FieldSubGenre     Field = "sub_genre"
	FieldSubject      Field = "subject"
	FieldType         Field = "type"
	FieldArea         Field = "area"
	FieldThemesUses   Field = "themes_uses"
	FieldLearnerLevel Field = "learner_level"

	FieldState  Field = "state"
	FieldIsland Field = "island"

	FieldRelSameVersion   Field = "rel_same_version"
	FieldRelSameLanguage  Field = "rel_same_language"
	FieldRelSupporting    Field = "rel_supporting"
	FieldRelOtherLanguage Field = "rel_other_language"
	FieldRelTranslated    Field = "rel_translated"
	FieldRelOmnibus       Field = "rel_omnibus"

	FieldPDFFile       Field = "pdf_file"
	FieldPDFAltFile    Field = "pdf_alt_file"
	FieldThumbnailFile Field = "thumbnail_file"
	FieldAudioFile     Field = "audio_file"
	FieldVideoURL      Field = "video_url"

	FieldOCLC Field = "oclc"
	FieldISBN Field = "isbn"

	FieldLibraryUHLink          Field = "library_uh_link"
	FieldLibraryUHAltLink       Field = "library_uh_alt_link"
	FieldLibraryUHCallNumber    Field = "library_uh_call_number"
	FieldLibraryUHNotes         Field = "library_uh_notes"
	FieldLibraryHSPLSLink       Field = "library_hspls_link"
	FieldLibraryHSPLSCallNumber Field = "library_hspls_call_number"

	// fieldIgnored marks headers that are recognized but deliberately
	// dropped, as opposed to unknown headers.
	fieldIgnored Field = ""
)

// MappingEntry binds one exact header string to a canonical field.
type MappingEntry struct {
	Header string
	Field  Field
}

// defaultMapping is the ordered header table. Order is the precedence
// rule: when two headers bind the same field, the later entry wins.
// Legacy spreadsheet headers are listed before their current-format
// equivalents so the current format always takes priority.
var defaultMapping = []MappingEntry{
	{"Internal ID", FieldInternalID},
	{"PALM Code", FieldPalmCode},
	{"Palm code", FieldPalmCode},
	{"Title", FieldTitle},
	{"Subtitle", FieldSubtitle},
	{"Translated title", FieldTranslatedTitle},
	{"Physical type", FieldPhysicalType},
	{"Collection", FieldCollection},
	{"Publisher", FieldPublisher},
	{"Program partner", FieldProgramPartner},
	{"Year of publication", FieldPublicationYear},
	{"Publication year", FieldPublicationYear},
	{"Pages", FieldPages},
	{"Description", FieldDescription},
	{"Abstract", FieldAbstract},
	{"Table of contents", FieldTableOfContents},
	{"Access", FieldAccessLevel},
	{"Access level", FieldAccessLevel},
	{"Featured", FieldFeatured},

	{"Author", FieldAuthor},
	{"Editor", FieldEditor},
	{"Translator", FieldTranslator},
	{"Illustrator1", FieldIllustrator1},
	{"Illustrator2", FieldIllustrator2},
	{"Illustrator3", FieldIllustrator3},
	{"Illustrator4", FieldIllustrator4},
	{"Illustrator5", FieldIllustrator5},
	{"Other creator1", FieldOtherCreator1},
	{"Other creator2", FieldOtherCreator2},
	{"Other creator3", FieldOtherCreator3},

	{"Language 1", FieldLanguage1},
	{"Language 2", FieldLanguage2},

	{"Purpose", FieldPurpose},
	{"Genre", FieldGenre},
	{"Sub-genre", FieldSubGenre},
	{"Subject", FieldSubject},
	{"Type", FieldType},
	{"Area", FieldArea},
	{"Themes/Uses", FieldThemesUses},
	{"Learner level", FieldLearnerLevel},

	{"State", FieldState},
	{"Island", FieldIsland},

	{"Same version", FieldRelSameVersion},
	{"Same language", FieldRelSameLanguage},
	{"Supporting materials", FieldRelSupporting},
	{"Other language version", FieldRelOtherLanguage},
	{"Translated from", FieldRelTranslated},
	{"Omnibus", FieldRelOmnibus},

	{"PDF file", FieldPDFFile},
	{"PDF alternative", FieldPDFAltFile},
	{"Thumbnail", FieldThumbnailFile},
	{"Audio file", FieldAudioFile},
	{"Video URL", FieldVideoURL},

	{"OCLC number", FieldOCLC},
	{"ISBN", FieldISBN},

	// Library reference columns carry both a legacy and a current
	// header form; the current form is registered last and wins.
	{"Library UH link", FieldLibraryUHLink},
	{"Library link UH", FieldLibraryUHLink},
	{"Library UH alt link", FieldLibraryUHAltLink},
	{"Library alt link UH", FieldLibraryUHAltLink},
	{"UH call number", FieldLibraryUHCallNumber},
	{"Call number UH", FieldLibraryUHCallNumber},
	{"UH notes", FieldLibraryUHNotes},
	{"Library HSPLS link", FieldLibraryHSPLSLink},
	{"Library link HSPLS", FieldLibraryHSPLSLink},
	{"Call number HSPLS", FieldLibraryHSPLSCallNumber},

	// Recognized but deliberately unmapped.
	{"Verified", fieldIgnored},
	{"Notes", fieldIgnored},
	{"Status", fieldIgnored},
}

// Mapper translates raw CSV headers into canonical fields. Matching is
// exact (after trimming); unknown headers are dropped without error so
// spreadsheet drift does not break imports.
type Mapper struct {
	entries  []MappingEntry
	byHeader map[string]int
}

// NewMapper builds a mapper over the default header table.
func NewMapper() *Mapper {
	return newMapper(defaultMapping)
}

func newMapper(entries []MappingEntry) *Mapper {
	m := &Mapper{entries: entries, byHeader: make(map[string]int, len(entries))}
	for i, e := range entries {
		m.byHeader[e.Header] = i
	}
	return m
}

// RowMapping is the result of mapping one file's header row: which CSV
// column feeds each canonical field.
type RowMapping struct {
	fields map[Field]int // field -> winning column index

	// Unknown lists headers not present in the mapping table.
	Unknown []string
	// Ignored lists headers explicitly mapped to nothing.
	Ignored []string
}

type headerBinding struct {
	column   int
	priority int
	header   string
}

// MapHeaders resolves a header row against the mapping table. When two
// different header variants bind the same field, the higher-priority
// variant wins and a warning names both; a header repeated verbatim
// keeps its last column.
func (m *Mapper) MapHeaders(headers []string) (*RowMapping, []string) {
	rm := &RowMapping{fields: make(map[Field]int)}
	var warnings []string
	chosen := make(map[Field]headerBinding)

	for col, raw := range headers {
		header := strings.TrimSpace(raw)
		if header == "" {
			continue
		}
		idx, ok := m.byHeader[header]
		if !ok {
			rm.Unknown = append(rm.Unknown, header)
			continue
		}
		entry := m.entries[idx]
		if entry.Field == fieldIgnored {
			rm.Ignored = append(rm.Ignored, header)
			continue
		}

		prev, exists := chosen[entry.Field]
		if !exists {
			chosen[entry.Field] = headerBinding{column: col, priority: idx, header: header}
			continue
		}
		if prev.header != header {
			winner, loser := header, prev.header
			if prev.priority > idx {
				winner, loser = prev.header, header
			}
			warnings = append(warnings, fmt.Sprintf(
				"columns %q and %q both map to %s; using %q", loser, winner, entry.Field, winner))
		}
		// Higher table priority wins; a tie means the same header
		// repeated, where the later column wins.
		if idx >= prev.priority {
			chosen[entry.Field] = headerBinding{column: col, priority: idx, header: header}
		}
	}

	for f, b := range chosen {
		rm.fields[f] = b.column
	}
	return rm, warnings
}

// Has reports whether the file carries a column for the field.
func (rm *RowMapping) Has(f Field) bool {
	_, ok := rm.fields[f]
	return ok
}

// Row is one record keyed by canonical field. Empty cells are absent.
type Row map[Field]string

// Get returns the trimmed cell value for a field, or "".
func (r Row) Get(f Field) string { return r[f] }

// Row projects a CSV record through the mapping. Values are trimmed;
// empty cells and columns past the record's end are dropped.
func (rm *RowMapping) Row(record []string) Row {
	row := make(Row, len(rm.fields))
	for f, col := range rm.fields {
		if col >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[col])
		if v == "" {
			continue
		}
		row[f] = v
	}
	return row
}
