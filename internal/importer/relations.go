package importer

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
)

// buildAssociations attaches everything a row carries beyond book
// scalars. Every write is idempotent, so re-importing a file never
// duplicates association rows: creators and files are replaced as a
// set, everything else is insert-or-ignore behind unique constraints.
func (r *run) buildAssociations(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	if err := r.attachCreators(ctx, tx, book, n); err != nil {
		return err
	}
	if err := r.attachLanguages(ctx, tx, book, n); err != nil {
		return err
	}
	if err := r.attachClassifications(ctx, tx, book, n); err != nil {
		return err
	}
	if err := r.attachLocations(ctx, tx, book, n); err != nil {
		return err
	}
	if err := r.attachRelationships(ctx, tx, book, n); err != nil {
		return err
	}
	if err := r.attachFiles(ctx, tx, book, n); err != nil {
		return err
	}
	for _, ident := range n.identifiers {
		_, err := tx.AddBookIdentifier(ctx, &domain.BookIdentifier{
			BookID: book.ID, Type: ident.Type, Value: ident.Value,
		})
		if err != nil {
			return err
		}
	}
	if err := r.attachLibraryRefs(ctx, tx, book, n); err != nil {
		return err
	}

	// A book just given an internal_id may be the missing target of
	// edges queued by earlier rows or earlier runs.
	if book.InternalID != "" {
		resolved, err := tx.ResolvePendingRelationships(ctx, book.InternalID, book.ID)
		if err != nil {
			return err
		}
		if resolved > 0 {
			r.log.Debug("resolved pending relationships", "book_id", book.ID, "count", resolved)
		}
	}
	return nil
}

// attachCreators replaces the book's creator set with the row's,
// preserving per-type ordering from the source columns.
func (r *run) attachCreators(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	if len(n.creators) == 0 {
		return nil
	}
	if err := tx.ClearBookCreators(ctx, book.ID); err != nil {
		return err
	}
	for _, c := range n.creators {
		creatorID, err := r.resolver.Creator(ctx, tx, c.Name)
		if err != nil {
			return err
		}
		_, err = tx.AddBookCreator(ctx, &domain.BookCreator{
			BookID:          book.ID,
			CreatorID:       creatorID,
			Type:            c.Type,
			RoleDescription: c.RoleDescription,
			SortOrder:       c.SortOrder,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) attachLanguages(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	for _, l := range n.languages {
		langID, err := r.resolver.Language(ctx, tx, l.Name)
		if err != nil {
			return err
		}
		err = tx.UpsertBookLanguage(ctx, &domain.BookLanguage{
			BookID: book.ID, LanguageID: langID, IsPrimary: l.IsPrimary,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) attachClassifications(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	for _, ci := range n.classifications {
		typeID, err := r.resolver.ClassificationType(ctx, tx, ci.TypeSlug, ci.TypeName)
		if err != nil {
			return err
		}
		for _, value := range ci.Values {
			valueID, err := r.resolver.ClassificationValue(ctx, tx, typeID, value)
			if err != nil {
				return err
			}
			_, err = tx.AddBookClassification(ctx, &domain.BookClassification{
				BookID: book.ID, ValueID: valueID,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// attachLocations resolves the state/island pair hierarchically: the
// island is created (or found) under the row's state.
func (r *run) attachLocations(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	parentID := ""
	for _, loc := range n.locations {
		locID, err := r.resolver.GeographicLocation(ctx, tx, loc.Name, loc.Kind, parentID)
		if err != nil {
			return err
		}
		if loc.Kind == "state" {
			parentID = locID
		}
		_, err = tx.AddBookLocation(ctx, &domain.BookLocation{BookID: book.ID, LocationID: locID})
		if err != nil {
			return err
		}
	}
	return nil
}

// attachRelationships queues edges by the target's internal_id. When
// the target already exists the edge resolves immediately; otherwise it
// stays pending for the end-of-run pass or a later import.
func (r *run) attachRelationships(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	for _, rel := range n.relationships {
		edge := &domain.BookRelationship{
			BookID:    book.ID,
			Type:      rel.Type,
			TargetKey: rel.TargetKey,
		}
		target, err := tx.GetBookByInternalID(ctx, rel.TargetKey)
		if err == nil {
			edge.RelatedBookID = target.ID
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.AddBookRelationship(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

// attachFiles replaces the book's file set when the row carries any
// file column. Video entries keep only an external URL.
func (r *run) attachFiles(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	if len(n.files) == 0 {
		return nil
	}
	files := make([]domain.BookFile, 0, len(n.files))
	for _, f := range n.files {
		bf := domain.BookFile{
			BookID:    book.ID,
			Type:      f.Type,
			IsPrimary: f.IsPrimary,
		}
		bf.ID = id.MustGenerate(id.PrefixFile)
		bf.InitTimestamps()
		if f.IsExternal {
			bf.ExternalURL = f.Value
		} else {
			bf.Path = f.Value
			bf.Filename = filepath.Base(f.Value)
		}
		files = append(files, bf)
	}
	return tx.ReplaceBookFiles(ctx, book.ID, files)
}

func (r *run) attachLibraryRefs(ctx context.Context, tx *store.Tx, book *domain.Book, n *normalizedRow) error {
	for _, lr := range n.libraryRefs {
		libID, err := r.resolver.Library(ctx, tx, lr.Code, lr.Name)
		if err != nil {
			return err
		}
		ref := &domain.LibraryReference{
			BookID:      book.ID,
			LibraryID:   libID,
			CatalogLink: lr.CatalogLink,
			AltLink:     lr.AltLink,
			CallNumber:  lr.CallNumber,
			Notes:       lr.Notes,
		}
		ref.ID = id.MustGenerate(id.PrefixLibraryRef)
		ref.InitTimestamps()
		if err := tx.UpsertLibraryReference(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
