package domain

// Language is a lookup entity for the languages books are written in.
// Pacific-language names frequently have no ISO code, so Code is optional.
type Language struct {
	Record
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	IsActive bool   `json:"is_active"`
}

// BookLanguage links a book to a language. Unique per (book, language).
// IsPrimary distinguishes the main language ("Language 1") from a
// secondary one ("Language 2").
type BookLanguage struct {
	BookID     string `json:"book_id"`
	LanguageID string `json:"language_id"`
	IsPrimary  bool   `json:"is_primary"`
}
