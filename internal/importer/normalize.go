package importer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/spf13/cast"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// Validation bounds. Out-of-range values are row errors, never clamped.
const (
	minPublicationYear = 1900
	maxPublicationYear = 2100
	minPages           = 1
	maxPages           = 10000
	maxTitleLength     = 500
	maxTextLength      = 65535
)

// accessLevelCodes maps spreadsheet access codes, lowercased, to the
// canonical levels. Single letters come from the legacy export format.
var accessLevelCodes = map[string]domain.AccessLevel{
	"y":           domain.AccessFull,
	"t":           domain.AccessFull,
	"yes":         domain.AccessFull,
	"full":        domain.AccessFull,
	"r":           domain.AccessLimited,
	"l":           domain.AccessLimited,
	"limited":     domain.AccessLimited,
	"n":           domain.AccessUnavailable,
	"no":          domain.AccessUnavailable,
	"unavailable": domain.AccessUnavailable,
}

// NormalizeAccessLevel maps a raw access code to its level.
// Unrecognized codes are an error, not a silent default.
func NormalizeAccessLevel(raw string) (domain.AccessLevel, error) {
	level, ok := accessLevelCodes[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unrecognized access level code %q", raw)
	}
	return level, nil
}

// SplitMulti splits a multi-valued cell on "|", falling back to ";"
// when no pipe is present. Segments are trimmed and empties dropped.
func SplitMulti(raw string) []string {
	sep := "|"
	if !strings.Contains(raw, "|") {
		sep = ";"
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var truthyValues = map[string]bool{
	"y": true, "yes": true, "true": true, "1": true, "x": true,
}

func parseFlag(raw string) bool {
	return truthyValues[strings.ToLower(strings.TrimSpace(raw))]
}

// htmlTagPattern detects common HTML tags in free-text cells.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// cleanText converts HTML in a free-text cell to Markdown. Cells
// without markup pass through unchanged, as does anything the
// converter cannot handle.
func cleanText(s string) string {
	if s == "" || !htmlTagPattern.MatchString(strings.ToLower(s)) {
		return s
	}
	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}

// creatorInput is one creator reference parsed from a row.
type creatorInput struct {
	Name            string
	Type            domain.CreatorType
	RoleDescription string
	SortOrder       int
}

type languageInput struct {
	Name      string
	IsPrimary bool
}

type classificationInput struct {
	TypeSlug string
	TypeName string
	Values   []string
}

type locationInput struct {
	Name string
	Kind string // "state" or "island"
}

type relationshipInput struct {
	Type      domain.RelationshipType
	TargetKey string
}

type fileInput struct {
	Type       domain.BookFileType
	Column     string
	Value      string
	IsPrimary  bool
	IsExternal bool
}

type identifierInput struct {
	Type  domain.IdentifierType
	Value string
}

type libraryRefInput struct {
	Code        string
	Name        string
	CatalogLink string
	AltLink     string
	CallNumber  string
	Notes       string
}

// normalizedRow is a fully typed row, ready for reconciliation.
type normalizedRow struct {
	num int // 1-based data row number (header is row 1)

	internalID      string
	palmCode        string
	title           string
	subtitle        string
	translatedTitle string
	physicalType    string
	collection      string
	publisher       string
	programPartner  string
	description     string
	abstract        string
	tableOfContents string

	publicationYear int
	pages           int

	accessLevel    domain.AccessLevel
	hasAccessLevel bool
	featured       bool
	hasFeatured    bool

	creators        []creatorInput
	languages       []languageInput
	classifications []classificationInput
	locations       []locationInput
	relationships   []relationshipInput
	files           []fileInput
	identifiers     []identifierInput
	libraryRefs     []libraryRefInput
}

// classificationFields pairs multi-value classification columns with
// their taxonomy type.
var classificationFields = []struct {
	Field    Field
	TypeSlug string
	TypeName string
}{
	{FieldPurpose, domain.ClassPurpose, "Purpose"},
	{FieldGenre, domain.ClassGenre, "Genre"},
	{FieldSubGenre, domain.ClassSubGenre, "Sub-genre"},
	{FieldSubject, domain.ClassSubject, "Subject"},
	{FieldType, domain.ClassType, "Type"},
	{FieldArea, domain.ClassArea, "Area"},
	{FieldThemesUses, domain.ClassThemesUses, "Themes/Uses"},
	{FieldLearnerLevel, domain.ClassLearnerLevel, "Learner level"},
}

var relationshipFields = []struct {
	Field Field
	Type  domain.RelationshipType
}{
	{FieldRelSameVersion, domain.RelSameVersion},
	{FieldRelSameLanguage, domain.RelSameLanguage},
	{FieldRelSupporting, domain.RelSupporting},
	{FieldRelOtherLanguage, domain.RelOtherLanguage},
	{FieldRelTranslated, domain.RelTranslated},
	{FieldRelOmnibus, domain.RelOmnibus},
}

// libraryColumns groups the per-library reference fields.
var libraryColumns = []struct {
	Code       string
	Name       string
	Link       Field
	AltLink    Field
	CallNumber Field
	Notes      Field
}{
	{"UH", "University of Hawaiʻi", FieldLibraryUHLink, FieldLibraryUHAltLink, FieldLibraryUHCallNumber, FieldLibraryUHNotes},
	{"HSPLS", "Hawaiʻi State Public Library System", FieldLibraryHSPLSLink, "", FieldLibraryHSPLSCallNumber, ""},
}

// otherCreatorRolePattern extracts a trailing parenthesized role from
// "Other creator" cells, e.g. "Kimo Armitage (narrator)".
var otherCreatorRolePattern = regexp.MustCompile(`^(.*?)\s*\(([^)]+)\)\s*$`)

// normalizeRow validates and types one mapped row. The first
// validation failure stops processing of the row; a nil rowError means
// the row is clean.
func normalizeRow(num int, row Row) (*normalizedRow, *rowError) {
	n := &normalizedRow{num: num}

	n.internalID = row.Get(FieldInternalID)
	n.palmCode = row.Get(FieldPalmCode)

	n.title = row.Get(FieldTitle)
	if n.title == "" {
		return nil, rowErrorf("Title", "title is required")
	}
	if utf8.RuneCountInString(n.title) > maxTitleLength {
		return nil, rowErrorf("Title", fmt.Sprintf("title exceeds %d characters", maxTitleLength))
	}
	n.subtitle = row.Get(FieldSubtitle)
	n.translatedTitle = row.Get(FieldTranslatedTitle)
	n.physicalType = row.Get(FieldPhysicalType)
	n.collection = row.Get(FieldCollection)
	n.publisher = row.Get(FieldPublisher)
	n.programPartner = row.Get(FieldProgramPartner)

	for _, tf := range []struct {
		field  Field
		column string
		dst    *string
	}{
		{FieldDescription, "Description", &n.description},
		{FieldAbstract, "Abstract", &n.abstract},
		{FieldTableOfContents, "Table of contents", &n.tableOfContents},
	} {
		v := cleanText(row.Get(tf.field))
		if utf8.RuneCountInString(v) > maxTextLength {
			return nil, rowErrorf(tf.column, fmt.Sprintf("value exceeds %d characters", maxTextLength))
		}
		*tf.dst = v
	}

	if raw := row.Get(FieldPublicationYear); raw != "" {
		year, err := cast.ToIntE(raw)
		if err != nil {
			return nil, rowErrorf("Publication year", fmt.Sprintf("not a number: %q", raw))
		}
		if year < minPublicationYear || year > maxPublicationYear {
			return nil, rowErrorf("Publication year",
				fmt.Sprintf("%d outside allowed range [%d, %d]", year, minPublicationYear, maxPublicationYear))
		}
		n.publicationYear = year
	}
	if raw := row.Get(FieldPages); raw != "" {
		pages, err := cast.ToIntE(raw)
		if err != nil {
			return nil, rowErrorf("Pages", fmt.Sprintf("not a number: %q", raw))
		}
		if pages < minPages || pages > maxPages {
			return nil, rowErrorf("Pages",
				fmt.Sprintf("%d outside allowed range [%d, %d]", pages, minPages, maxPages))
		}
		n.pages = pages
	}

	if raw := row.Get(FieldAccessLevel); raw != "" {
		level, err := NormalizeAccessLevel(raw)
		if err != nil {
			return nil, rowErrorf("Access level", err.Error())
		}
		n.accessLevel = level
		n.hasAccessLevel = true
	}
	if raw := row.Get(FieldFeatured); raw != "" {
		n.featured = parseFlag(raw)
		n.hasFeatured = true
	}

	n.creators = parseCreators(row)
	if lang := row.Get(FieldLanguage1); lang != "" {
		n.languages = append(n.languages, languageInput{Name: lang, IsPrimary: true})
	}
	if lang := row.Get(FieldLanguage2); lang != "" {
		n.languages = append(n.languages, languageInput{Name: lang})
	}

	for _, cf := range classificationFields {
		if raw := row.Get(cf.Field); raw != "" {
			n.classifications = append(n.classifications, classificationInput{
				TypeSlug: cf.TypeSlug,
				TypeName: cf.TypeName,
				Values:   SplitMulti(raw),
			})
		}
	}

	if state := row.Get(FieldState); state != "" {
		n.locations = append(n.locations, locationInput{Name: state, Kind: "state"})
	}
	if island := row.Get(FieldIsland); island != "" {
		n.locations = append(n.locations, locationInput{Name: island, Kind: "island"})
	}

	for _, rf := range relationshipFields {
		for _, target := range SplitMulti(row.Get(rf.Field)) {
			n.relationships = append(n.relationships, relationshipInput{Type: rf.Type, TargetKey: target})
		}
	}

	n.files = parseFiles(row)
	if v := row.Get(FieldOCLC); v != "" {
		n.identifiers = append(n.identifiers, identifierInput{Type: domain.IdentOCLC, Value: v})
	}
	if v := row.Get(FieldISBN); v != "" {
		n.identifiers = append(n.identifiers, identifierInput{Type: identifierTypeForISBN(v), Value: v})
	}

	for _, lc := range libraryColumns {
		ref := libraryRefInput{
			Code:        lc.Code,
			Name:        lc.Name,
			CatalogLink: row.Get(lc.Link),
			AltLink:     row.Get(lc.AltLink),
			CallNumber:  row.Get(lc.CallNumber),
			Notes:       row.Get(lc.Notes),
		}
		if ref.CatalogLink != "" || ref.AltLink != "" || ref.CallNumber != "" || ref.Notes != "" {
			n.libraryRefs = append(n.libraryRefs, ref)
		}
	}

	return n, nil
}

// parseCreators flattens the creator columns into an ordered list.
// Sort order runs per creator type across the row.
func parseCreators(row Row) []creatorInput {
	var out []creatorInput
	order := make(map[domain.CreatorType]int)

	add := func(name string, typ domain.CreatorType, role string) {
		out = append(out, creatorInput{
			Name:            name,
			Type:            typ,
			RoleDescription: role,
			SortOrder:       order[typ],
		})
		order[typ]++
	}

	for _, name := range SplitMulti(row.Get(FieldAuthor)) {
		add(name, domain.CreatorAuthor, "")
	}
	for _, name := range SplitMulti(row.Get(FieldEditor)) {
		add(name, domain.CreatorEditor, "")
	}
	for _, name := range SplitMulti(row.Get(FieldTranslator)) {
		add(name, domain.CreatorTranslator, "")
	}
	for _, f := range []Field{FieldIllustrator1, FieldIllustrator2, FieldIllustrator3, FieldIllustrator4, FieldIllustrator5} {
		if name := row.Get(f); name != "" {
			add(name, domain.CreatorIllustrator, "")
		}
	}
	for _, f := range []Field{FieldOtherCreator1, FieldOtherCreator2, FieldOtherCreator3} {
		raw := row.Get(f)
		if raw == "" {
			continue
		}
		name, role := raw, ""
		if m := otherCreatorRolePattern.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
			name, role = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
		add(name, domain.CreatorContributor, role)
	}
	return out
}

func parseFiles(row Row) []fileInput {
	var out []fileInput
	if v := row.Get(FieldPDFFile); v != "" {
		out = append(out, fileInput{Type: domain.FilePDF, Column: "PDF file", Value: v, IsPrimary: true})
	}
	if v := row.Get(FieldPDFAltFile); v != "" {
		out = append(out, fileInput{Type: domain.FilePDF, Column: "PDF alternative", Value: v})
	}
	if v := row.Get(FieldThumbnailFile); v != "" {
		out = append(out, fileInput{Type: domain.FileThumbnail, Column: "Thumbnail", Value: v, IsPrimary: true})
	}
	if v := row.Get(FieldAudioFile); v != "" {
		out = append(out, fileInput{Type: domain.FileAudio, Column: "Audio file", Value: v, IsPrimary: true})
	}
	if v := row.Get(FieldVideoURL); v != "" {
		out = append(out, fileInput{Type: domain.FileVideo, Column: "Video URL", Value: v, IsPrimary: true, IsExternal: true})
	}
	return out
}

func identifierTypeForISBN(v string) domain.IdentifierType {
	digits := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits == 13 {
		return domain.IdentISBN13
	}
	return domain.IdentISBN
}
