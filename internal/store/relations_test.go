package store

import (
	"context"
	"testing"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
)

func createBooks(t *testing.T, s *Store, books ...*domain.Book) {
	t.Helper()
	ctx := context.Background()
	for _, b := range books {
		if err := s.CreateBook(ctx, b); err != nil {
			t.Fatalf("create book %s: %v", b.ID, err)
		}
	}
}

func beginTx(t *testing.T, s *Store) *Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func TestAddBookCreatorIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s, makeTestBook("bk_1", "B0001", "With Creators"))

	tx := beginTx(t, s)
	creator := &domain.Creator{Name: "Mary Kawena Pukui"}
	creator.ID = "cr_1"
	creator.InitTimestamps()
	if err := tx.CreateCreator(ctx, creator, "mary kawena pukui"); err != nil {
		t.Fatalf("create creator: %v", err)
	}

	link := &domain.BookCreator{BookID: "bk_1", CreatorID: "cr_1", Type: domain.CreatorAuthor, SortOrder: 1}
	added, err := tx.AddBookCreator(ctx, link)
	if err != nil {
		t.Fatalf("add creator link: %v", err)
	}
	if !added {
		t.Error("first add should report added=true")
	}

	// Same tuple again is a no-op.
	added, err = tx.AddBookCreator(ctx, link)
	if err != nil {
		t.Fatalf("re-add creator link: %v", err)
	}
	if added {
		t.Error("duplicate add should report added=false")
	}

	// Same creator in a different role is a distinct link.
	illus := &domain.BookCreator{BookID: "bk_1", CreatorID: "cr_1", Type: domain.CreatorIllustrator}
	if added, err = tx.AddBookCreator(ctx, illus); err != nil || !added {
		t.Fatalf("add illustrator link: added=%v err=%v", added, err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Creators) != 2 {
		t.Errorf("expected 2 creator links, got %d", len(got.Creators))
	}
}

func TestUpsertBookLanguagePrimaryFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s, makeTestBook("bk_1", "B0001", "Bilingual"))

	tx := beginTx(t, s)
	lang := &domain.Language{Name: "Hawaiian", Code: "haw", IsActive: true}
	lang.ID = "lang_1"
	lang.InitTimestamps()
	if err := tx.CreateLanguage(ctx, lang, "hawaiian"); err != nil {
		t.Fatalf("create language: %v", err)
	}

	if err := tx.UpsertBookLanguage(ctx, &domain.BookLanguage{BookID: "bk_1", LanguageID: "lang_1"}); err != nil {
		t.Fatalf("upsert language: %v", err)
	}
	// Re-importing with the primary flag flips it, no duplicate row.
	if err := tx.UpsertBookLanguage(ctx, &domain.BookLanguage{BookID: "bk_1", LanguageID: "lang_1", IsPrimary: true}); err != nil {
		t.Fatalf("upsert language again: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Languages) != 1 {
		t.Fatalf("expected 1 language link, got %d", len(got.Languages))
	}
	if !got.Languages[0].IsPrimary {
		t.Error("expected is_primary=true after upsert")
	}
}

func TestAddBookRelationshipDeferredResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s, makeTestBook("bk_1", "B0001", "The Translation"))

	// Queue an edge to a book that has not been imported yet.
	tx := beginTx(t, s)
	err := tx.AddBookRelationship(ctx, &domain.BookRelationship{
		BookID:    "bk_1",
		Type:      domain.RelTranslated,
		TargetKey: "B0002",
	})
	if err != nil {
		t.Fatalf("queue pending edge: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	keys, err := s.PendingRelationshipKeys(ctx)
	if err != nil {
		t.Fatalf("pending keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "B0002" {
		t.Fatalf("pending keys = %v, want [B0002]", keys)
	}

	// Target arrives in a later batch; the edge resolves.
	createBooks(t, s, makeTestBook("bk_2", "B0002", "The Original"))
	tx = beginTx(t, s)
	n, err := tx.ResolvePendingRelationships(ctx, "B0002", "bk_2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n != 1 {
		t.Errorf("resolved %d edges, want 1", n)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(got.Relationships))
	}
	rel := got.Relationships[0]
	if !rel.IsResolved() || rel.RelatedBookID != "bk_2" {
		t.Errorf("edge not resolved to bk_2: %+v", rel)
	}

	keys, err = s.PendingRelationshipKeys(ctx)
	if err != nil {
		t.Fatalf("pending keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no pending keys, got %v", keys)
	}
}

func TestAddBookRelationshipIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s,
		makeTestBook("bk_1", "B0001", "Source"),
		makeTestBook("bk_2", "B0002", "Target"),
	)

	tx := beginTx(t, s)
	edge := &domain.BookRelationship{
		BookID:        "bk_1",
		RelatedBookID: "bk_2",
		Type:          domain.RelSameVersion,
		TargetKey:     "B0002",
	}
	if err := tx.AddBookRelationship(ctx, edge); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	// Re-importing the same row must not duplicate the edge, and must
	// not clear the resolved target.
	pending := &domain.BookRelationship{BookID: "bk_1", Type: domain.RelSameVersion, TargetKey: "B0002"}
	if err := tx.AddBookRelationship(ctx, pending); err != nil {
		t.Fatalf("re-add edge: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Relationships) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(got.Relationships))
	}
	if got.Relationships[0].RelatedBookID != "bk_2" {
		t.Errorf("resolved target was lost: %+v", got.Relationships[0])
	}
}

func TestAddBookIdentifierIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s, makeTestBook("bk_1", "B0001", "Identified"))

	tx := beginTx(t, s)
	id := &domain.BookIdentifier{BookID: "bk_1", Type: domain.IdentOCLC, Value: "1234567"}
	if added, err := tx.AddBookIdentifier(ctx, id); err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	if added, err := tx.AddBookIdentifier(ctx, id); err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v", added, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Identifiers) != 1 {
		t.Errorf("expected 1 identifier, got %d", len(got.Identifiers))
	}
}

func TestReplaceBookFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s, makeTestBook("bk_1", "B0001", "With Files"))

	now := time.Now()
	mk := func(id string, typ domain.BookFileType, primary bool) domain.BookFile {
		return domain.BookFile{
			Record:    domain.Record{ID: id, CreatedAt: now, UpdatedAt: now},
			BookID:    "bk_1",
			Type:      typ,
			Filename:  id + ".dat",
			Path:      "/uploads/" + id + ".dat",
			IsPrimary: primary,
		}
	}

	tx := beginTx(t, s)
	files := []domain.BookFile{mk("bf_1", domain.FilePDF, true), mk("bf_2", domain.FileThumbnail, true)}
	if err := tx.ReplaceBookFiles(ctx, "bk_1", files); err != nil {
		t.Fatalf("replace files: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Replacing again swaps the set entirely.
	tx = beginTx(t, s)
	if err := tx.ReplaceBookFiles(ctx, "bk_1", []domain.BookFile{mk("bf_3", domain.FilePDF, true)}); err != nil {
		t.Fatalf("replace files again: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0].ID != "bf_3" {
		t.Errorf("files after replace = %+v", got.Files)
	}
}

func TestUpsertLibraryReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createBooks(t, s, makeTestBook("bk_1", "B0001", "Cataloged"))

	tx := beginTx(t, s)
	lib := &domain.Library{Code: "UH", Name: "University of Hawaiʻi", IsActive: true}
	lib.ID = "lib_1"
	lib.InitTimestamps()
	if err := tx.CreateLibrary(ctx, lib); err != nil {
		t.Fatalf("create library: %v", err)
	}

	ref := &domain.LibraryReference{BookID: "bk_1", LibraryID: "lib_1", CallNumber: "PL6448 .B55"}
	ref.ID = "lr_1"
	ref.InitTimestamps()
	if err := tx.UpsertLibraryReference(ctx, ref); err != nil {
		t.Fatalf("upsert reference: %v", err)
	}

	// Re-import with a new call number updates in place.
	ref2 := &domain.LibraryReference{BookID: "bk_1", LibraryID: "lib_1", CallNumber: "PL6448 .B55 1998", CatalogLink: "https://catalog.example/123"}
	ref2.ID = "lr_2"
	ref2.InitTimestamps()
	if err := tx.UpsertLibraryReference(ctx, ref2); err != nil {
		t.Fatalf("upsert reference again: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(got.LibraryRefs) != 1 {
		t.Fatalf("expected 1 library reference, got %d", len(got.LibraryRefs))
	}
	if got.LibraryRefs[0].CallNumber != "PL6448 .B55 1998" {
		t.Errorf("call number = %q, want updated value", got.LibraryRefs[0].CallNumber)
	}
	if got.LibraryRefs[0].CatalogLink == "" {
		t.Error("catalog link missing after upsert")
	}
}
