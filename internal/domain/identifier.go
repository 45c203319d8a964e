package domain

// IdentifierType is the scheme of a bibliographic identifier.
type IdentifierType string

const (
	IdentOCLC   IdentifierType = "oclc"
	IdentISBN   IdentifierType = "isbn"
	IdentISBN13 IdentifierType = "isbn13"
	IdentISSN   IdentifierType = "issn"
	IdentDOI    IdentifierType = "doi"
	IdentLCCN   IdentifierType = "lccn"
	IdentOther  IdentifierType = "other"
)

// IsValid checks if the identifier type is a recognized value.
func (t IdentifierType) IsValid() bool {
	switch t {
	case IdentOCLC, IdentISBN, IdentISBN13, IdentISSN, IdentDOI, IdentLCCN, IdentOther:
		return true
	default:
		return false
	}
}

func (t IdentifierType) String() string { return string(t) }

// BookIdentifier is an external identifier attached to a book.
// Unique per (book, type, value).
type BookIdentifier struct {
	BookID string         `json:"book_id"`
	Type   IdentifierType `json:"type"`
	Value  string         `json:"value"`
}
