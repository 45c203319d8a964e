package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// Association writes are idempotent: the unique constraints from the
// schema are the source of truth, and every insert treats a unique
// violation as "already satisfied".

// AddBookCreator attaches a creator with a typed role.
// Returns (false, nil) if the tuple already existed.
func (t *Tx) AddBookCreator(ctx context.Context, bc *domain.BookCreator) (bool, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO book_creators (book_id, creator_id, type, role_description, sort_order)
		VALUES (?, ?, ?, ?, ?)`,
		bc.BookID, bc.CreatorID, string(bc.Type), bc.RoleDescription, bc.SortOrder,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("add book creator: %w", err)
	}
	return true, nil
}

// ClearBookCreators removes all creator links for a book. Used when an
// update replaces the creator set wholesale.
func (t *Tx) ClearBookCreators(ctx context.Context, bookID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM book_creators WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("clear book creators: %w", err)
	}
	return nil
}

// UpsertBookLanguage attaches a language, updating the primary flag if
// the pair already exists.
func (t *Tx) UpsertBookLanguage(ctx context.Context, bl *domain.BookLanguage) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO book_languages (book_id, language_id, is_primary)
		VALUES (?, ?, ?)
		ON CONFLICT(book_id, language_id) DO UPDATE SET is_primary = excluded.is_primary`,
		bl.BookID, bl.LanguageID, boolInt(bl.IsPrimary),
	)
	if err != nil {
		return fmt.Errorf("upsert book language: %w", err)
	}
	return nil
}

// AddBookClassification attaches a classification value.
// Returns (false, nil) if the pair already existed.
func (t *Tx) AddBookClassification(ctx context.Context, bc *domain.BookClassification) (bool, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO book_classifications (book_id, value_id) VALUES (?, ?)`,
		bc.BookID, bc.ValueID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("add book classification: %w", err)
	}
	return true, nil
}

// AddBookLocation attaches a geographic location.
// Returns (false, nil) if the pair already existed.
func (t *Tx) AddBookLocation(ctx context.Context, bl *domain.BookLocation) (bool, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO book_locations (book_id, location_id) VALUES (?, ?)`,
		bl.BookID, bl.LocationID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("add book location: %w", err)
	}
	return true, nil
}

// AddBookRelationship records an edge keyed by the target's natural key.
// Resolved and pending edges share the same uniqueness rule, so
// re-importing a row never duplicates an edge.
func (t *Tx) AddBookRelationship(ctx context.Context, r *domain.BookRelationship) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO book_relationships (book_id, related_book_id, type, target_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(book_id, target_key, type) DO UPDATE SET
			related_book_id = COALESCE(excluded.related_book_id, book_relationships.related_book_id)`,
		r.BookID, nullString(r.RelatedBookID), string(r.Type), r.TargetKey,
	)
	if err != nil {
		return fmt.Errorf("add book relationship: %w", err)
	}
	return nil
}

// ResolvePendingRelationships points every pending edge whose target
// key matches at the given book. Returns the number of edges resolved.
func (t *Tx) ResolvePendingRelationships(ctx context.Context, targetKey, bookID string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE book_relationships SET related_book_id = ?
		WHERE target_key = ? AND related_book_id IS NULL`,
		bookID, targetKey,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve pending relationships: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PendingRelationshipKeys lists distinct target keys of unresolved
// edges. The orchestrator retries these in a second pass.
func (s *Store) PendingRelationshipKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT target_key FROM book_relationships WHERE related_book_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("pending relationship keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ReplaceBookFiles swaps the full file set of a book.
func (t *Tx) ReplaceBookFiles(ctx context.Context, bookID string, files []domain.BookFile) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM book_files WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("clear book files: %w", err)
	}
	for i := range files {
		f := &files[i]
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO book_files (id, created_at, updated_at, book_id, type, path, filename, external_url, is_primary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, formatTime(f.CreatedAt), formatTime(f.UpdatedAt),
			bookID, string(f.Type),
			nullString(f.Path), nullString(f.Filename), nullString(f.ExternalURL),
			boolInt(f.IsPrimary),
		)
		if err != nil {
			return fmt.Errorf("insert book file %s: %w", f.ID, err)
		}
	}
	return nil
}

// AddBookIdentifier attaches an identifier tuple.
// Returns (false, nil) if it already existed.
func (t *Tx) AddBookIdentifier(ctx context.Context, bi *domain.BookIdentifier) (bool, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO book_identifiers (book_id, type, value) VALUES (?, ?, ?)`,
		bi.BookID, string(bi.Type), bi.Value,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("add book identifier: %w", err)
	}
	return true, nil
}

// UpsertLibraryReference writes the per-library catalog entry for a
// book, replacing link/call-number fields on conflict.
func (t *Tx) UpsertLibraryReference(ctx context.Context, ref *domain.LibraryReference) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO library_references (id, created_at, updated_at, book_id, library_id, catalog_link, alt_link, call_number, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id, library_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			catalog_link = excluded.catalog_link,
			alt_link = excluded.alt_link,
			call_number = excluded.call_number,
			notes = excluded.notes`,
		ref.ID, formatTime(ref.CreatedAt), formatTime(ref.UpdatedAt),
		ref.BookID, ref.LibraryID,
		nullString(ref.CatalogLink), nullString(ref.AltLink),
		nullString(ref.CallNumber), nullString(ref.Notes),
	)
	if err != nil {
		return fmt.Errorf("upsert library reference: %w", err)
	}
	return nil
}

// Loaders.

func loadBookCreators(ctx context.Context, q querier, bookID string) ([]domain.BookCreator, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, creator_id, type, role_description, sort_order
		FROM book_creators WHERE book_id = ? ORDER BY type, sort_order ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookCreator
	for rows.Next() {
		var bc domain.BookCreator
		var typ string
		if err := rows.Scan(&bc.BookID, &bc.CreatorID, &typ, &bc.RoleDescription, &bc.SortOrder); err != nil {
			return nil, err
		}
		bc.Type = domain.CreatorType(typ)
		out = append(out, bc)
	}
	return out, rows.Err()
}

func loadBookLanguages(ctx context.Context, q querier, bookID string) ([]domain.BookLanguage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, language_id, is_primary
		FROM book_languages WHERE book_id = ? ORDER BY is_primary DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookLanguage
	for rows.Next() {
		var bl domain.BookLanguage
		var primary int
		if err := rows.Scan(&bl.BookID, &bl.LanguageID, &primary); err != nil {
			return nil, err
		}
		bl.IsPrimary = primary != 0
		out = append(out, bl)
	}
	return out, rows.Err()
}

func loadBookClassifications(ctx context.Context, q querier, bookID string) ([]domain.BookClassification, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, value_id FROM book_classifications WHERE book_id = ?`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookClassification
	for rows.Next() {
		var bc domain.BookClassification
		if err := rows.Scan(&bc.BookID, &bc.ValueID); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func loadBookLocations(ctx context.Context, q querier, bookID string) ([]domain.BookLocation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, location_id FROM book_locations WHERE book_id = ?`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookLocation
	for rows.Next() {
		var bl domain.BookLocation
		if err := rows.Scan(&bl.BookID, &bl.LocationID); err != nil {
			return nil, err
		}
		out = append(out, bl)
	}
	return out, rows.Err()
}

func loadBookRelationships(ctx context.Context, q querier, bookID string) ([]domain.BookRelationship, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, related_book_id, type, target_key
		FROM book_relationships WHERE book_id = ?`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookRelationship
	for rows.Next() {
		var r domain.BookRelationship
		var related sql.NullString
		var typ string
		if err := rows.Scan(&r.BookID, &related, &typ, &r.TargetKey); err != nil {
			return nil, err
		}
		r.RelatedBookID = related.String
		r.Type = domain.RelationshipType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadBookFiles(ctx context.Context, q querier, bookID string) ([]domain.BookFile, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, created_at, updated_at, book_id, type, path, filename, external_url, is_primary
		FROM book_files WHERE book_id = ? ORDER BY type, is_primary DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookFile
	for rows.Next() {
		var f domain.BookFile
		var createdAt, updatedAt, typ string
		var path, filename, external sql.NullString
		var primary int
		if err := rows.Scan(&f.ID, &createdAt, &updatedAt, &f.BookID, &typ, &path, &filename, &external, &primary); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		f.Type = domain.BookFileType(typ)
		f.Path = path.String
		f.Filename = filename.String
		f.ExternalURL = external.String
		f.IsPrimary = primary != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

func loadBookIdentifiers(ctx context.Context, q querier, bookID string) ([]domain.BookIdentifier, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, type, value FROM book_identifiers WHERE book_id = ? ORDER BY type`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookIdentifier
	for rows.Next() {
		var bi domain.BookIdentifier
		var typ string
		if err := rows.Scan(&bi.BookID, &typ, &bi.Value); err != nil {
			return nil, err
		}
		bi.Type = domain.IdentifierType(typ)
		out = append(out, bi)
	}
	return out, rows.Err()
}

func loadLibraryReferences(ctx context.Context, q querier, bookID string) ([]domain.LibraryReference, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, created_at, updated_at, book_id, library_id, catalog_link, alt_link, call_number, notes
		FROM library_references WHERE book_id = ?`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LibraryReference
	for rows.Next() {
		var ref domain.LibraryReference
		var createdAt, updatedAt string
		var link, alt, call, notes sql.NullString
		if err := rows.Scan(&ref.ID, &createdAt, &updatedAt, &ref.BookID, &ref.LibraryID, &link, &alt, &call, &notes); err != nil {
			return nil, err
		}
		if ref.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if ref.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		ref.CatalogLink = link.String
		ref.AltLink = alt.String
		ref.CallNumber = call.String
		ref.Notes = notes.String
		out = append(out, ref)
	}
	return out, rows.Err()
}
