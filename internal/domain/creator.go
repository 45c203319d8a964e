package domain

// Creator represents a person who contributed to a book in any capacity.
type Creator struct {
	Record
	Name        string `json:"name"`
	Biography   string `json:"biography,omitempty"`
	Lifespan    string `json:"lifespan,omitempty"` // e.g. "1920-1989", free-form
	Nationality string `json:"nationality,omitempty"`
}

// CreatorType defines the kind of contribution.
type CreatorType string

const (
	CreatorAuthor      CreatorType = "author"
	CreatorIllustrator CreatorType = "illustrator"
	CreatorEditor      CreatorType = "editor"
	CreatorTranslator  CreatorType = "translator"
	CreatorContributor CreatorType = "contributor"
)

// IsValid checks if the creator type is a recognized value.
func (t CreatorType) IsValid() bool {
	switch t {
	case CreatorAuthor, CreatorIllustrator, CreatorEditor, CreatorTranslator, CreatorContributor:
		return true
	default:
		return false
	}
}

func (t CreatorType) String() string { return string(t) }

// BookCreator links a book to a creator with a typed role.
// Unique per (book, creator, type, role description).
type BookCreator struct {
	BookID          string      `json:"book_id"`
	CreatorID       string      `json:"creator_id"`
	Type            CreatorType `json:"type"`
	RoleDescription string      `json:"role_description,omitempty"`
	SortOrder       int         `json:"sort_order"`
}
