package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// Lookup entities share a get-or-create shape: find by natural key, and
// if absent insert with defaults. A concurrent run may win the insert
// race; unique violations are answered with a re-fetch, relying on the
// unique index as the true guard.

func findCreatorByKey(ctx context.Context, q querier, nameKey string) (*domain.Creator, error) {
	var c domain.Creator
	var createdAt, updatedAt string
	var bio, lifespan, nationality sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, name, biography, lifespan, nationality
		FROM creators WHERE name_key = ?`, nameKey).
		Scan(&c.ID, &createdAt, &updatedAt, &c.Name, &bio, &lifespan, &nationality)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find creator %q: %w", nameKey, err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	c.Biography = bio.String
	c.Lifespan = lifespan.String
	c.Nationality = nationality.String
	return &c, nil
}

func insertCreator(ctx context.Context, q querier, c *domain.Creator, nameKey string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO creators (id, created_at, updated_at, name, name_key, biography, lifespan, nationality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
		c.Name, nameKey,
		nullString(c.Biography), nullString(c.Lifespan), nullString(c.Nationality),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert creator %q: %w", c.Name, err)
	}
	return nil
}

// FindCreatorByKey looks up a creator by normalized name key.
func (t *Tx) FindCreatorByKey(ctx context.Context, nameKey string) (*domain.Creator, error) {
	return findCreatorByKey(ctx, t.tx, nameKey)
}

// CreateCreator inserts a creator. Returns ErrAlreadyExists on a
// natural-key collision; callers should re-fetch.
func (t *Tx) CreateCreator(ctx context.Context, c *domain.Creator, nameKey string) error {
	return insertCreator(ctx, t.tx, c, nameKey)
}

// GetCreator retrieves a creator by ID.
func (s *Store) GetCreator(ctx context.Context, id string) (*domain.Creator, error) {
	var c domain.Creator
	var createdAt, updatedAt string
	var bio, lifespan, nationality sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, name, biography, lifespan, nationality
		FROM creators WHERE id = ?`, id).
		Scan(&c.ID, &createdAt, &updatedAt, &c.Name, &bio, &lifespan, &nationality)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get creator %s: %w", id, err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	c.Biography = bio.String
	c.Lifespan = lifespan.String
	c.Nationality = nationality.String
	return &c, nil
}

// lookupRow is the common shape of the simple slug-keyed lookup tables.
type lookupRow struct {
	ID   string
	Name string
	Slug string
}

func findLookupBySlug(ctx context.Context, q querier, table, slug string) (*lookupRow, error) {
	var r lookupRow
	err := q.QueryRowContext(ctx,
		`SELECT id, name, slug FROM `+table+` WHERE slug = ?`, slug).
		Scan(&r.ID, &r.Name, &r.Slug)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", table, slug, err)
	}
	return &r, nil
}

func insertLookup(ctx context.Context, q querier, table string, r *domain.Record, name, slug string, extraCols string, extraVals []any) error {
	cols := "id, created_at, updated_at, name, slug"
	placeholders := "?, ?, ?, ?, ?"
	args := []any{r.ID, formatTime(r.CreatedAt), formatTime(r.UpdatedAt), name, slug}
	if extraCols != "" {
		cols += ", " + extraCols
		for range extraVals {
			placeholders += ", ?"
		}
		args = append(args, extraVals...)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+table+` (`+cols+`) VALUES (`+placeholders+`)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert %s %q: %w", table, name, err)
	}
	return nil
}

// FindPhysicalType looks up a physical type by slug.
func (t *Tx) FindPhysicalType(ctx context.Context, slug string) (string, error) {
	r, err := findLookupBySlug(ctx, t.tx, "physical_types", slug)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreatePhysicalType inserts a physical type with defaults.
func (t *Tx) CreatePhysicalType(ctx context.Context, pt *domain.PhysicalType) error {
	return insertLookup(ctx, t.tx, "physical_types", &pt.Record, pt.Name, pt.Slug,
		"is_active, sort_order", []any{boolInt(pt.IsActive), pt.SortOrder})
}

// FindCollection looks up a collection by slug.
func (t *Tx) FindCollection(ctx context.Context, slug string) (string, error) {
	r, err := findLookupBySlug(ctx, t.tx, "collections", slug)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreateCollection inserts a collection.
func (t *Tx) CreateCollection(ctx context.Context, c *domain.Collection) error {
	return insertLookup(ctx, t.tx, "collections", &c.Record, c.Name, c.Slug,
		"is_active", []any{boolInt(c.IsActive)})
}

// FindPublisher looks up a publisher by slug.
func (t *Tx) FindPublisher(ctx context.Context, slug string) (string, error) {
	r, err := findLookupBySlug(ctx, t.tx, "publishers", slug)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreatePublisher inserts a publisher.
func (t *Tx) CreatePublisher(ctx context.Context, p *domain.Publisher) error {
	return insertLookup(ctx, t.tx, "publishers", &p.Record, p.Name, p.Slug,
		"is_active", []any{boolInt(p.IsActive)})
}

// FindLanguageByKey looks up a language by normalized name key.
func (t *Tx) FindLanguageByKey(ctx context.Context, nameKey string) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM languages WHERE name_key = ?`, nameKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find language %q: %w", nameKey, err)
	}
	return id, nil
}

// CreateLanguage inserts a language.
func (t *Tx) CreateLanguage(ctx context.Context, l *domain.Language, nameKey string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO languages (id, created_at, updated_at, name, name_key, code, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
		l.Name, nameKey, nullString(l.Code), boolInt(l.IsActive),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert language %q: %w", l.Name, err)
	}
	return nil
}

// FindClassificationType looks up a classification type by slug.
func (t *Tx) FindClassificationType(ctx context.Context, slug string) (string, error) {
	r, err := findLookupBySlug(ctx, t.tx, "classification_types", slug)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreateClassificationType inserts a classification type.
func (t *Tx) CreateClassificationType(ctx context.Context, ct *domain.ClassificationType) error {
	return insertLookup(ctx, t.tx, "classification_types", &ct.Record, ct.Name, ct.Slug,
		"is_active", []any{boolInt(ct.IsActive)})
}

// FindClassificationValue looks up a value by (type, slug).
func (t *Tx) FindClassificationValue(ctx context.Context, typeID, slug string) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM classification_values WHERE type_id = ? AND slug = ?`, typeID, slug).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find classification value %q: %w", slug, err)
	}
	return id, nil
}

// CreateClassificationValue inserts a classification value.
func (t *Tx) CreateClassificationValue(ctx context.Context, v *domain.ClassificationValue) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO classification_values (id, created_at, updated_at, type_id, parent_id, name, slug, is_active, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, formatTime(v.CreatedAt), formatTime(v.UpdatedAt),
		v.TypeID, nullString(v.ParentID), v.Name, v.Slug,
		boolInt(v.IsActive), v.SortOrder,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert classification value %q: %w", v.Name, err)
	}
	return nil
}

// FindGeographicLocation looks up a location by (slug, parent).
func (t *Tx) FindGeographicLocation(ctx context.Context, slug, parentID string) (string, error) {
	var id string
	var err error
	if parentID == "" {
		err = t.tx.QueryRowContext(ctx,
			`SELECT id FROM geographic_locations WHERE slug = ? AND parent_id IS NULL`, slug).Scan(&id)
	} else {
		err = t.tx.QueryRowContext(ctx,
			`SELECT id FROM geographic_locations WHERE slug = ? AND parent_id = ?`, slug, parentID).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find location %q: %w", slug, err)
	}
	return id, nil
}

// CreateGeographicLocation inserts a location.
func (t *Tx) CreateGeographicLocation(ctx context.Context, l *domain.GeographicLocation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO geographic_locations (id, created_at, updated_at, name, slug, parent_id, kind, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
		l.Name, l.Slug, nullString(l.ParentID), nullString(l.Kind), boolInt(l.IsActive),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert location %q: %w", l.Name, err)
	}
	return nil
}

// FindLibraryByCode looks up a library by its short code.
func (t *Tx) FindLibraryByCode(ctx context.Context, code string) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM libraries WHERE code = ?`, code).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find library %q: %w", code, err)
	}
	return id, nil
}

// CreateLibrary inserts a library.
func (t *Tx) CreateLibrary(ctx context.Context, l *domain.Library) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO libraries (id, created_at, updated_at, code, name, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
		l.Code, l.Name, boolInt(l.IsActive),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert library %q: %w", l.Code, err)
	}
	return nil
}
