package domain

// Library is a partner library whose catalog references our books.
type Library struct {
	Record
	Code     string `json:"code"` // short code, e.g. "UH"
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// LibraryReference is a per-library catalog entry for a book: the
// partner library's catalog link, call number and notes.
type LibraryReference struct {
	Record
	BookID      string `json:"book_id"`
	LibraryID   string `json:"library_id"`
	CatalogLink string `json:"catalog_link,omitempty"`
	AltLink     string `json:"alt_link,omitempty"`
	CallNumber  string `json:"call_number,omitempty"`
	Notes       string `json:"notes,omitempty"`
}
