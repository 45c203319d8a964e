package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// bookColumns is the ordered list of columns selected in book queries.
// Must match the scan order in scanBook.
const bookColumns = `id, created_at, updated_at, internal_id, palm_code,
	title, subtitle, translated_title,
	physical_type_id, collection_id, publisher_id, program_partner_name,
	publication_year, pages,
	description, abstract, table_of_contents, notes,
	access_level, featured, active, view_count, download_count,
	duplicated_from_book_id`

// scanBook scans a sql.Row (or sql.Rows via its Scan method) into a domain.Book.
func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var b domain.Book

	var (
		createdAt  string
		updatedAt  string
		internalID sql.NullString
		palmCode   sql.NullString
		subtitle   sql.NullString
		translated sql.NullString
		physType   sql.NullString
		collection sql.NullString
		publisher  sql.NullString
		partner    sql.NullString
		pubYear    sql.NullInt64
		pages      sql.NullInt64
		desc       sql.NullString
		abstract   sql.NullString
		toc        sql.NullString
		notes      sql.NullString
		access     string
		featured   int
		active     int
		dupFrom    sql.NullString
	)

	err := scanner.Scan(
		&b.ID,
		&createdAt,
		&updatedAt,
		&internalID,
		&palmCode,
		&b.Title,
		&subtitle,
		&translated,
		&physType,
		&collection,
		&publisher,
		&partner,
		&pubYear,
		&pages,
		&desc,
		&abstract,
		&toc,
		&notes,
		&access,
		&featured,
		&active,
		&b.ViewCount,
		&b.DownloadCount,
		&dupFrom,
	)
	if err != nil {
		return nil, err
	}

	b.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	b.InternalID = internalID.String
	b.PalmCode = palmCode.String
	b.Subtitle = subtitle.String
	b.TranslatedTitle = translated.String
	b.PhysicalTypeID = physType.String
	b.CollectionID = collection.String
	b.PublisherID = publisher.String
	b.ProgramPartnerName = partner.String
	b.PublicationYear = int(pubYear.Int64)
	b.Pages = int(pages.Int64)
	b.Description = desc.String
	b.Abstract = abstract.String
	b.TableOfContents = toc.String
	b.Notes = notes.String
	b.AccessLevel = domain.AccessLevel(access)
	b.Featured = featured != 0
	b.Active = active != 0
	b.DuplicatedFromBookID = dupFrom.String

	return &b, nil
}

func insertBook(ctx context.Context, q querier, b *domain.Book) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO books (
			id, created_at, updated_at, internal_id, palm_code,
			title, subtitle, translated_title,
			physical_type_id, collection_id, publisher_id, program_partner_name,
			publication_year, pages,
			description, abstract, table_of_contents, notes,
			access_level, featured, active, view_count, download_count,
			duplicated_from_book_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		nullString(b.InternalID), nullString(b.PalmCode),
		b.Title, nullString(b.Subtitle), nullString(b.TranslatedTitle),
		nullString(b.PhysicalTypeID), nullString(b.CollectionID),
		nullString(b.PublisherID), nullString(b.ProgramPartnerName),
		nullInt(b.PublicationYear), nullInt(b.Pages),
		nullString(b.Description), nullString(b.Abstract),
		nullString(b.TableOfContents), nullString(b.Notes),
		string(b.AccessLevel), boolInt(b.Featured), boolInt(b.Active),
		b.ViewCount, b.DownloadCount,
		nullString(b.DuplicatedFromBookID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert book %s: %w", b.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert book %s: %w", b.ID, err)
	}
	return nil
}

func updateBook(ctx context.Context, q querier, b *domain.Book) error {
	res, err := q.ExecContext(ctx, `
		UPDATE books SET
			updated_at = ?, internal_id = ?, palm_code = ?,
			title = ?, subtitle = ?, translated_title = ?,
			physical_type_id = ?, collection_id = ?, publisher_id = ?, program_partner_name = ?,
			publication_year = ?, pages = ?,
			description = ?, abstract = ?, table_of_contents = ?, notes = ?,
			access_level = ?, featured = ?, active = ?,
			duplicated_from_book_id = ?
		WHERE id = ?`,
		formatTime(b.UpdatedAt),
		nullString(b.InternalID), nullString(b.PalmCode),
		b.Title, nullString(b.Subtitle), nullString(b.TranslatedTitle),
		nullString(b.PhysicalTypeID), nullString(b.CollectionID),
		nullString(b.PublisherID), nullString(b.ProgramPartnerName),
		nullInt(b.PublicationYear), nullInt(b.Pages),
		nullString(b.Description), nullString(b.Abstract),
		nullString(b.TableOfContents), nullString(b.Notes),
		string(b.AccessLevel), boolInt(b.Featured), boolInt(b.Active),
		nullString(b.DuplicatedFromBookID),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("update book %s: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update book %s: %w", b.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func getBook(ctx context.Context, q querier, id string) (*domain.Book, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %s: %w", id, err)
	}
	return b, nil
}

func getBookByInternalID(ctx context.Context, q querier, internalID string) (*domain.Book, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE internal_id = ?`, internalID)
	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book by internal_id %s: %w", internalID, err)
	}
	return b, nil
}

func findBooksByPalmCode(ctx context.Context, q querier, palmCode string) ([]*domain.Book, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+bookColumns+` FROM books WHERE palm_code = ? ORDER BY created_at ASC`, palmCode)
	if err != nil {
		return nil, fmt.Errorf("find books by palm_code %s: %w", palmCode, err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// CreateBook inserts a new book record outside a batch transaction.
func (s *Store) CreateBook(ctx context.Context, b *domain.Book) error {
	return insertBook(ctx, s.db, b)
}

// UpdateBook updates an existing book record.
// Returns ErrNotFound if the book does not exist.
func (s *Store) UpdateBook(ctx context.Context, b *domain.Book) error {
	return updateBook(ctx, s.db, b)
}

// GetBook loads a book with all its associations.
// Returns ErrNotFound if the book does not exist.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	b, err := getBook(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadAssociations(ctx, s.db, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookByInternalID loads a bare book by its internal identifier.
func (s *Store) GetBookByInternalID(ctx context.Context, internalID string) (*domain.Book, error) {
	return getBookByInternalID(ctx, s.db, internalID)
}

// FindBooksByPalmCode returns all books sharing a PALM code, oldest first.
// PALM codes are not unique; callers must handle multiple results.
func (s *Store) FindBooksByPalmCode(ctx context.Context, palmCode string) ([]*domain.Book, error) {
	return findBooksByPalmCode(ctx, s.db, palmCode)
}

// CountBooks returns the number of book records.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

// Tx variants used inside import batches.

// CreateBook inserts a book within the transaction.
func (t *Tx) CreateBook(ctx context.Context, b *domain.Book) error {
	return insertBook(ctx, t.tx, b)
}

// UpdateBook updates a book within the transaction.
func (t *Tx) UpdateBook(ctx context.Context, b *domain.Book) error {
	return updateBook(ctx, t.tx, b)
}

// GetBookByInternalID reads a book within the transaction, seeing rows
// written earlier in the same batch.
func (t *Tx) GetBookByInternalID(ctx context.Context, internalID string) (*domain.Book, error) {
	return getBookByInternalID(ctx, t.tx, internalID)
}

// FindBooksByPalmCode reads within the transaction.
func (t *Tx) FindBooksByPalmCode(ctx context.Context, palmCode string) ([]*domain.Book, error) {
	return findBooksByPalmCode(ctx, t.tx, palmCode)
}

// loadAssociations populates a book's relation slices.
func (s *Store) loadAssociations(ctx context.Context, q querier, b *domain.Book) error {
	var err error
	if b.Creators, err = loadBookCreators(ctx, q, b.ID); err != nil {
		return err
	}
	if b.Languages, err = loadBookLanguages(ctx, q, b.ID); err != nil {
		return err
	}
	if b.Classifications, err = loadBookClassifications(ctx, q, b.ID); err != nil {
		return err
	}
	if b.Locations, err = loadBookLocations(ctx, q, b.ID); err != nil {
		return err
	}
	if b.Relationships, err = loadBookRelationships(ctx, q, b.ID); err != nil {
		return err
	}
	if b.Files, err = loadBookFiles(ctx, q, b.ID); err != nil {
		return err
	}
	if b.Identifiers, err = loadBookIdentifiers(ctx, q, b.ID); err != nil {
		return err
	}
	if b.LibraryRefs, err = loadLibraryReferences(ctx, q, b.ID); err != nil {
		return err
	}
	return nil
}
