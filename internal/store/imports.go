package store

import (
	"context"
	"database/sql"
	"encoding/json/v2"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
)

const importColumns = `id, created_at, updated_at, filename, stored_path, file_size,
	mode, options_json, status,
	total_rows, processed_rows, successful_rows, failed_rows, skipped_rows,
	created_count, updated_count,
	created_log, updated_log, skipped_log, error_log,
	metrics_json, error_message, started_at, finished_at`

func scanImport(scanner interface{ Scan(dest ...any) error }) (*domain.CsvImport, error) {
	var imp domain.CsvImport
	var createdAt, updatedAt, mode, status string
	var storedPath, metricsJSON, errorMessage, startedAt, finishedAt sql.NullString
	var createdLog, updatedLog, skippedLog, errorLog string

	err := scanner.Scan(
		&imp.ID, &createdAt, &updatedAt, &imp.Filename, &storedPath, &imp.FileSize,
		&mode, &imp.OptionsJSON, &status,
		&imp.TotalRows, &imp.ProcessedRows, &imp.SuccessfulRows, &imp.FailedRows, &imp.SkippedRows,
		&imp.CreatedCount, &imp.UpdatedCount,
		&createdLog, &updatedLog, &skippedLog, &errorLog,
		&metricsJSON, &errorMessage, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if imp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if imp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	imp.StoredPath = storedPath.String
	imp.Mode = domain.ImportMode(mode)
	imp.Status = domain.ImportStatus(status)
	imp.ErrorMessage = errorMessage.String

	if err := json.Unmarshal([]byte(createdLog), &imp.CreatedLog); err != nil {
		return nil, fmt.Errorf("decode created log: %w", err)
	}
	if err := json.Unmarshal([]byte(updatedLog), &imp.UpdatedLog); err != nil {
		return nil, fmt.Errorf("decode updated log: %w", err)
	}
	if err := json.Unmarshal([]byte(skippedLog), &imp.SkippedLog); err != nil {
		return nil, fmt.Errorf("decode skipped log: %w", err)
	}
	if err := json.Unmarshal([]byte(errorLog), &imp.ErrorLog); err != nil {
		return nil, fmt.Errorf("decode error log: %w", err)
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		imp.Metrics = &domain.PerformanceMetrics{}
		if err := json.Unmarshal([]byte(metricsJSON.String), imp.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	if imp.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, err
	}
	if imp.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
		return nil, err
	}
	return &imp, nil
}

func marshalLog(entries []domain.RowLogEntry) (string, error) {
	if entries == nil {
		entries = []domain.RowLogEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func importLogColumns(imp *domain.CsvImport) (created, updated, skipped, errored string, metrics sql.NullString, err error) {
	if created, err = marshalLog(imp.CreatedLog); err != nil {
		return
	}
	if updated, err = marshalLog(imp.UpdatedLog); err != nil {
		return
	}
	if skipped, err = marshalLog(imp.SkippedLog); err != nil {
		return
	}
	if errored, err = marshalLog(imp.ErrorLog); err != nil {
		return
	}
	if imp.Metrics != nil {
		var data []byte
		if data, err = json.Marshal(imp.Metrics); err != nil {
			return
		}
		metrics = sql.NullString{String: string(data), Valid: true}
	}
	return
}

// CreateImport persists a new import run record.
func (s *Store) CreateImport(ctx context.Context, imp *domain.CsvImport) error {
	created, updated, skipped, errored, metrics, err := importLogColumns(imp)
	if err != nil {
		return fmt.Errorf("encode import logs: %w", err)
	}
	options := imp.OptionsJSON
	if options == "" {
		options = "{}"
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO csv_imports (`+importColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		imp.ID, formatTime(imp.CreatedAt), formatTime(imp.UpdatedAt),
		imp.Filename, nullString(imp.StoredPath), imp.FileSize,
		string(imp.Mode), options, string(imp.Status),
		imp.TotalRows, imp.ProcessedRows, imp.SuccessfulRows, imp.FailedRows, imp.SkippedRows,
		imp.CreatedCount, imp.UpdatedCount,
		created, updated, skipped, errored,
		metrics, nullString(imp.ErrorMessage),
		nullTimeString(imp.StartedAt), nullTimeString(imp.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create import: %w", err)
	}
	return nil
}

// UpdateImport rewrites the full run record. The orchestrator calls
// this on status transitions and at the end of every batch, so
// progress survives a crash.
func (s *Store) UpdateImport(ctx context.Context, imp *domain.CsvImport) error {
	created, updated, skipped, errored, metrics, err := importLogColumns(imp)
	if err != nil {
		return fmt.Errorf("encode import logs: %w", err)
	}
	imp.Touch()
	res, err := s.db.ExecContext(ctx, `
		UPDATE csv_imports SET
			updated_at = ?, filename = ?, stored_path = ?, file_size = ?,
			mode = ?, options_json = ?, status = ?,
			total_rows = ?, processed_rows = ?, successful_rows = ?, failed_rows = ?, skipped_rows = ?,
			created_count = ?, updated_count = ?,
			created_log = ?, updated_log = ?, skipped_log = ?, error_log = ?,
			metrics_json = ?, error_message = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		formatTime(imp.UpdatedAt), imp.Filename, nullString(imp.StoredPath), imp.FileSize,
		string(imp.Mode), imp.OptionsJSON, string(imp.Status),
		imp.TotalRows, imp.ProcessedRows, imp.SuccessfulRows, imp.FailedRows, imp.SkippedRows,
		imp.CreatedCount, imp.UpdatedCount,
		created, updated, skipped, errored,
		metrics, nullString(imp.ErrorMessage),
		nullTimeString(imp.StartedAt), nullTimeString(imp.FinishedAt),
		imp.ID,
	)
	if err != nil {
		return fmt.Errorf("update import: %w", err)
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

// GetImport fetches one run by ID.
func (s *Store) GetImport(ctx context.Context, id string) (*domain.CsvImport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+importColumns+` FROM csv_imports WHERE id = ?`, id)
	imp, err := scanImport(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import %s: %w", id, err)
	}
	return imp, nil
}

// ListImports returns runs newest first. A zero limit means no limit.
func (s *Store) ListImports(ctx context.Context, limit, offset int) ([]*domain.CsvImport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+importColumns+` FROM csv_imports
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var out []*domain.CsvImport
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// CountImports returns the number of import runs.
func (s *Store) CountImports(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM csv_imports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count imports: %w", err)
	}
	return n, nil
}

// DeleteImport removes a run record. Terminal runs only; the caller
// enforces that rule.
func (s *Store) DeleteImport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM csv_imports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete import %s: %w", id, err)
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
