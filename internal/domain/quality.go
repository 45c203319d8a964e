package domain

import "time"

// IssueSeverity grades a data quality finding.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityWarning  IssueSeverity = "warning"
	SeverityInfo     IssueSeverity = "info"
)

// IsValid checks if the severity is a recognized value.
func (s IssueSeverity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// IssueStatus tracks the resolution workflow of a finding.
type IssueStatus string

const (
	IssueOpen      IssueStatus = "open"
	IssueResolved  IssueStatus = "resolved"
	IssueDismissed IssueStatus = "dismissed"
)

// DataQualityIssue is a post-import finding attached to a book and the
// run that produced it.
type DataQualityIssue struct {
	Record
	BookID         string        `json:"book_id"`
	ImportID       string        `json:"import_id,omitempty"`
	Check          string        `json:"check"` // machine name, e.g. "missing_description"
	Severity       IssueSeverity `json:"severity"`
	Message        string        `json:"message"`
	Status         IssueStatus   `json:"status"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy     string        `json:"resolved_by,omitempty"`
	ResolutionNote string        `json:"resolution_note,omitempty"`
}

// Resolve marks the issue resolved.
func (i *DataQualityIssue) Resolve(by, note string) {
	now := time.Now()
	i.Status = IssueResolved
	i.ResolvedAt = &now
	i.ResolvedBy = by
	i.ResolutionNote = note
	i.Touch()
}
