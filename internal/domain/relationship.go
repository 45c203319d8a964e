package domain

// RelationshipType classifies an edge between two books.
type RelationshipType string

const (
	RelSameVersion   RelationshipType = "same_version"
	RelSameLanguage  RelationshipType = "same_language"
	RelSupporting    RelationshipType = "supporting"
	RelOtherLanguage RelationshipType = "other_language"
	RelTranslated    RelationshipType = "translated"
	RelOmnibus       RelationshipType = "omnibus"
	RelCustom        RelationshipType = "custom"
)

// IsValid checks if the relationship type is a recognized value.
func (t RelationshipType) IsValid() bool {
	switch t {
	case RelSameVersion, RelSameLanguage, RelSupporting, RelOtherLanguage,
		RelTranslated, RelOmnibus, RelCustom:
		return true
	default:
		return false
	}
}

func (t RelationshipType) String() string { return string(t) }

// BookRelationship is a self-referential edge between books.
// Unique per (book, target key, type), which subsumes uniqueness per
// (book, related book, type) since a target key resolves to one book.
//
// TargetKey records the natural key of the intended target at queue
// time, normally its internal_id. RelatedBookID stays
// empty when the target has not been imported yet; a later pass (or a
// later import run) resolves the edge. Pending edges are never
// silently dropped.
type BookRelationship struct {
	BookID        string           `json:"book_id"`
	RelatedBookID string           `json:"related_book_id,omitempty"`
	Type          RelationshipType `json:"type"`
	TargetKey     string           `json:"target_key"`
}

// IsResolved reports whether the edge points at a concrete book.
func (r *BookRelationship) IsResolved() bool {
	return r.RelatedBookID != ""
}
