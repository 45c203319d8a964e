package domain

// Lookup entities resolved or created by natural key during import.
// None of these are closed enums: the set of valid values grows from data.

// PhysicalType describes the physical form of a book (picture book,
// big book, flashcards...). Created dynamically when an import meets an
// unknown name.
type PhysicalType struct {
	Record
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsActive  bool   `json:"is_active"`
	SortOrder int    `json:"sort_order"`
}

// Collection groups books under a named program collection.
type Collection struct {
	Record
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

// Publisher is the publishing organization of a book.
type Publisher struct {
	Record
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}
