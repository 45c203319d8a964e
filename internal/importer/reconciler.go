package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
)

// rowOutcome is the terminal state of one processed row.
type rowOutcome int

const (
	outcomeCreated rowOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

// matchExisting finds the book a row refers to. Internal ID is
// authoritative; PALM code is the fallback and, being non-unique, only
// matches when exactly one book carries it. An ambiguous PALM match is
// treated as no match with a warning rather than guessing.
func matchExisting(ctx context.Context, tx *store.Tx, n *normalizedRow) (*domain.Book, string, error) {
	if n.internalID != "" {
		book, err := tx.GetBookByInternalID(ctx, n.internalID)
		if err == nil {
			return book, "", nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", err
		}
	}
	if n.palmCode != "" {
		books, err := tx.FindBooksByPalmCode(ctx, n.palmCode)
		if err != nil {
			return nil, "", err
		}
		switch len(books) {
		case 0:
		case 1:
			return books[0], "", nil
		default:
			return nil, fmt.Sprintf(
				"PALM code %q matches %d books; treated as no match", n.palmCode, len(books)), nil
		}
	}
	return nil, "", nil
}

// reconcileRow applies the mode table to one normalized row, returning
// the outcome, the affected book (nil on skip) and a skip reason.
func (r *run) reconcileRow(ctx context.Context, tx *store.Tx, n *normalizedRow) (rowOutcome, *domain.Book, string, error) {
	match, warning, err := matchExisting(ctx, tx, n)
	if err != nil {
		return outcomeSkipped, nil, "", err
	}
	if warning != "" {
		r.log.Warn("ambiguous match", "row", n.num, "warning", warning)
	}

	switch r.opts.Mode {
	case domain.ModeCreateOnly:
		if match != nil {
			return outcomeSkipped, nil, "book already exists (create_only mode)", nil
		}
		book, err := r.createBook(ctx, tx, n, "")
		return outcomeCreated, book, "", err

	case domain.ModeUpdateOnly:
		if match == nil {
			return outcomeSkipped, nil, "no matching book (update_only mode)", nil
		}
		err := r.updateBook(ctx, tx, match, n)
		return outcomeUpdated, match, "", err

	case domain.ModeCreateDuplicates:
		provenance := ""
		if match != nil {
			provenance = match.ID
		}
		book, err := r.createBook(ctx, tx, n, provenance)
		return outcomeCreated, book, "", err

	default: // upsert
		if match != nil {
			err := r.updateBook(ctx, tx, match, n)
			return outcomeUpdated, match, "", err
		}
		book, err := r.createBook(ctx, tx, n, "")
		return outcomeCreated, book, "", err
	}
}

// createBook builds and inserts a new book from the row. A non-empty
// duplicatedFrom marks the record as a deliberate copy: it gets a fresh
// identity and no internal_id, since the source internal_id belongs to
// the matched original.
func (r *run) createBook(ctx context.Context, tx *store.Tx, n *normalizedRow, duplicatedFrom string) (*domain.Book, error) {
	book := &domain.Book{
		Title:       n.title,
		AccessLevel: domain.AccessUnavailable,
		Active:      true,
	}
	book.ID = id.MustGenerate(id.PrefixBook)
	book.InitTimestamps()
	book.InternalID = n.internalID
	book.PalmCode = n.palmCode
	if duplicatedFrom != "" {
		book.InternalID = ""
		book.DuplicatedFromBookID = duplicatedFrom
	}

	if err := r.applyScalars(ctx, tx, book, n); err != nil {
		return nil, err
	}
	if err := tx.CreateBook(ctx, book); err != nil {
		return nil, err
	}
	if err := r.buildAssociations(ctx, tx, book, n); err != nil {
		return nil, err
	}
	return book, nil
}

// updateBook overlays the row's present fields onto the matched book.
// Columns absent from the file leave existing values untouched.
func (r *run) updateBook(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	if n.palmCode != "" {
		book.PalmCode = n.palmCode
	}
	if err := r.applyScalars(ctx, tx, book, n); err != nil {
		return err
	}
	book.Touch()
	if err := tx.UpdateBook(ctx, book); err != nil {
		return err
	}
	return r.buildAssociations(ctx, tx, book, n)
}

// applyScalars writes the row's scalar fields onto the book, resolving
// lookup references as it goes. Empty row values never erase data.
func (r *run) applyScalars(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	book.Title = n.title
	if n.subtitle != "" {
		book.Subtitle = n.subtitle
	}
	if n.translatedTitle != "" {
		book.TranslatedTitle = n.translatedTitle
	}
	if n.programPartner != "" {
		book.ProgramPartnerName = n.programPartner
	}
	if n.publicationYear != 0 {
		book.PublicationYear = n.publicationYear
	}
	if n.pages != 0 {
		book.Pages = n.pages
	}
	if n.description != "" {
		book.Description = n.description
	}
	if n.abstract != "" {
		book.Abstract = n.abstract
	}
	if n.tableOfContents != "" {
		book.TableOfContents = n.tableOfContents
	}
	if n.hasAccessLevel {
		book.AccessLevel = n.accessLevel
	}
	if n.hasFeatured {
		book.Featured = n.featured
	}

	if n.physicalType != "" {
		ptID, err := r.resolver.PhysicalType(ctx, tx, n.physicalType)
		if err != nil {
			return err
		}
		book.PhysicalTypeID = ptID
	}
	if n.collection != "" {
		colID, err := r.resolver.Collection(ctx, tx, n.collection)
		if err != nil {
			return err
		}
		book.CollectionID = colID
	}
	if n.publisher != "" {
		pubID, err := r.resolver.Publisher(ctx, tx, n.publisher)
		if err != nil {
			return err
		}
		book.PublisherID = pubID
	}
	return nil
}
