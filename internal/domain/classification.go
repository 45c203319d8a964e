package domain

// Well-known classification type slugs. The set is seed data, not a
// closed enum: new types can be created from the admin side and values
// are always created lazily during import.
const (
	ClassPurpose      = "purpose"
	ClassGenre        = "genre"
	ClassSubject      = "subject"
	ClassSubGenre     = "sub-genre"
	ClassType         = "type"
	ClassArea         = "area"
	ClassThemesUses   = "themes-uses"
	ClassLearnerLevel = "learner-level"
)

// ClassificationType is a taxonomy axis (genre, subject, learner level...).
type ClassificationType struct {
	Record
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

// ClassificationValue is a value within a classification type.
// Values are optionally hierarchical via ParentID.
type ClassificationValue struct {
	Record
	TypeID    string `json:"type_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsActive  bool   `json:"is_active"`
	SortOrder int    `json:"sort_order"`
}

// BookClassification links a book to a classification value.
// Unique per (book, value).
type BookClassification struct {
	BookID  string `json:"book_id"`
	ValueID string `json:"value_id"`
}

// BookLocation links a book to a geographic location.
// Unique per (book, location).
type BookLocation struct {
	BookID     string `json:"book_id"`
	LocationID string `json:"location_id"`
}

// GeographicLocation is a hierarchical place record (island under state).
type GeographicLocation struct {
	Record
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
	Kind     string `json:"kind,omitempty"` // "state" or "island"
	IsActive bool   `json:"is_active"`
}
