package domain

// AccessLevel is a book's availability tier. It governs whether full
// content can be served to readers.
type AccessLevel string

const (
	AccessFull        AccessLevel = "full"
	AccessLimited     AccessLevel = "limited"
	AccessUnavailable AccessLevel = "unavailable"
)

// IsValid checks if the access level is a recognized value.
func (a AccessLevel) IsValid() bool {
	switch a {
	case AccessFull, AccessLimited, AccessUnavailable:
		return true
	default:
		return false
	}
}

func (a AccessLevel) String() string { return string(a) }

// Book is a catalog record for a single edition of a work.
//
// InternalID is the authoritative unique identifier used for import
// matching. PalmCode is deliberately NOT unique: multiple editions of
// the same underlying work share one PALM code and are told apart by
// their InternalIDs.
type Book struct {
	Record
	InternalID         string      `json:"internal_id,omitempty"`
	PalmCode           string      `json:"palm_code,omitempty"`
	Title              string      `json:"title"`
	Subtitle           string      `json:"subtitle,omitempty"`
	TranslatedTitle    string      `json:"translated_title,omitempty"`
	PhysicalTypeID     string      `json:"physical_type_id,omitempty"`
	CollectionID       string      `json:"collection_id,omitempty"`
	PublisherID        string      `json:"publisher_id,omitempty"`
	ProgramPartnerName string      `json:"program_partner_name,omitempty"`
	PublicationYear    int         `json:"publication_year,omitempty"`
	Pages              int         `json:"pages,omitempty"`
	Description        string      `json:"description,omitempty"`
	Abstract           string      `json:"abstract,omitempty"`
	TableOfContents    string      `json:"table_of_contents,omitempty"`
	Notes              string      `json:"notes,omitempty"`
	AccessLevel        AccessLevel `json:"access_level"`
	Featured           bool        `json:"featured"`
	Active             bool        `json:"active"`
	ViewCount          int64       `json:"view_count"`
	DownloadCount      int64       `json:"download_count"`
	// DuplicatedFromBookID tracks provenance when a book was created as a
	// copy of another record (create_duplicates import mode).
	DuplicatedFromBookID string `json:"duplicated_from_book_id,omitempty"`

	Creators        []BookCreator        `json:"creators,omitempty"`
	Languages       []BookLanguage       `json:"languages,omitempty"`
	Classifications []BookClassification `json:"classifications,omitempty"`
	Locations       []BookLocation       `json:"locations,omitempty"`
	Relationships   []BookRelationship   `json:"relationships,omitempty"`
	Files           []BookFile           `json:"files,omitempty"`
	Identifiers     []BookIdentifier     `json:"identifiers,omitempty"`
	LibraryRefs     []LibraryReference   `json:"library_refs,omitempty"`
}

// PrimaryLanguageID returns the language marked primary, or empty.
func (b *Book) PrimaryLanguageID() string {
	for i := range b.Languages {
		if b.Languages[i].IsPrimary {
			return b.Languages[i].LanguageID
		}
	}
	return ""
}

// HasIdentifier reports whether the book carries the given identifier tuple.
func (b *Book) HasIdentifier(idType IdentifierType, value string) bool {
	for i := range b.Identifiers {
		if b.Identifiers[i].Type == idType && b.Identifiers[i].Value == value {
			return true
		}
	}
	return false
}
