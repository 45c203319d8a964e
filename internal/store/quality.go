package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
)

const qualityColumns = `id, created_at, updated_at, book_id, import_id,
	check_name, severity, message, status, resolved_at, resolved_by, resolution_note`

func scanQualityIssue(scanner interface{ Scan(dest ...any) error }) (*domain.DataQualityIssue, error) {
	var issue domain.DataQualityIssue
	var createdAt, updatedAt, severity, status string
	var importID, resolvedAt, resolvedBy, note sql.NullString

	err := scanner.Scan(
		&issue.ID, &createdAt, &updatedAt, &issue.BookID, &importID,
		&issue.Check, &severity, &issue.Message, &status,
		&resolvedAt, &resolvedBy, &note,
	)
	if err != nil {
		return nil, err
	}
	if issue.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	issue.ImportID = importID.String
	issue.Severity = domain.IssueSeverity(severity)
	issue.Status = domain.IssueStatus(status)
	if issue.ResolvedAt, err = parseNullableTime(resolvedAt); err != nil {
		return nil, err
	}
	issue.ResolvedBy = resolvedBy.String
	issue.ResolutionNote = note.String
	return &issue, nil
}

// CreateQualityIssue records a finding. Re-running the same check for
// the same book and run refreshes the message instead of duplicating.
func (s *Store) CreateQualityIssue(ctx context.Context, issue *domain.DataQualityIssue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_quality_issues (`+qualityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id, import_id, check_name) DO UPDATE SET
			updated_at = excluded.updated_at,
			severity = excluded.severity,
			message = excluded.message`,
		issue.ID, formatTime(issue.CreatedAt), formatTime(issue.UpdatedAt),
		issue.BookID, nullString(issue.ImportID),
		issue.Check, string(issue.Severity), issue.Message, string(issue.Status),
		nullTimeString(issue.ResolvedAt), nullString(issue.ResolvedBy), nullString(issue.ResolutionNote),
	)
	if err != nil {
		return fmt.Errorf("create quality issue: %w", err)
	}
	return nil
}

// UpdateQualityIssue persists a status change (resolve / dismiss).
func (s *Store) UpdateQualityIssue(ctx context.Context, issue *domain.DataQualityIssue) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE data_quality_issues SET
			updated_at = ?, status = ?, resolved_at = ?, resolved_by = ?, resolution_note = ?
		WHERE id = ?`,
		formatTime(issue.UpdatedAt), string(issue.Status),
		nullTimeString(issue.ResolvedAt), nullString(issue.ResolvedBy), nullString(issue.ResolutionNote),
		issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update quality issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetQualityIssue fetches one finding by ID.
func (s *Store) GetQualityIssue(ctx context.Context, id string) (*domain.DataQualityIssue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+qualityColumns+` FROM data_quality_issues WHERE id = ?`, id)
	issue, err := scanQualityIssue(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quality issue %s: %w", id, err)
	}
	return issue, nil
}

// QualityIssueFilter narrows ListQualityIssues. Zero values match all.
type QualityIssueFilter struct {
	BookID   string
	ImportID string
	Status   domain.IssueStatus
	Severity domain.IssueSeverity
}

// ListQualityIssues returns findings matching the filter, most severe
// and newest first.
func (s *Store) ListQualityIssues(ctx context.Context, f QualityIssueFilter) ([]*domain.DataQualityIssue, error) {
	query := `SELECT ` + qualityColumns + ` FROM data_quality_issues WHERE 1=1`
	var args []any
	if f.BookID != "" {
		query += ` AND book_id = ?`
		args = append(args, f.BookID)
	}
	if f.ImportID != "" {
		query += ` AND import_id = ?`
		args = append(args, f.ImportID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(f.Severity))
	}
	query += ` ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quality issues: %w", err)
	}
	defer rows.Close()

	var out []*domain.DataQualityIssue
	for rows.Next() {
		issue, err := scanQualityIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}
