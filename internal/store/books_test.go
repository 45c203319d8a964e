package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stacksapp/stacks-server/internal/domain"
)

func TestCreateAndGetBook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := makeTestBook("bk_1", "B0001", "Nā Manu o Hawaiʻi")
	book.PalmCode = "PALM-100"
	book.Subtitle = "The Birds of Hawaiʻi"
	book.TranslatedTitle = "The Birds of Hawaiʻi"
	book.ProgramPartnerName = "Pacific Resources"
	book.PublicationYear = 1998
	book.Pages = 32
	book.Description = "A picture book about native birds."
	book.AccessLevel = domain.AccessLimited
	book.Featured = true

	if err := s.CreateBook(ctx, book); err != nil {
		t.Fatalf("create book: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if got.InternalID != "B0001" {
		t.Errorf("internal_id = %q, want B0001", got.InternalID)
	}
	if got.PalmCode != "PALM-100" {
		t.Errorf("palm_code = %q, want PALM-100", got.PalmCode)
	}
	if got.Title != "Nā Manu o Hawaiʻi" {
		t.Errorf("title = %q", got.Title)
	}
	if got.PublicationYear != 1998 || got.Pages != 32 {
		t.Errorf("year/pages = %d/%d, want 1998/32", got.PublicationYear, got.Pages)
	}
	if got.AccessLevel != domain.AccessLimited {
		t.Errorf("access_level = %q, want limited", got.AccessLevel)
	}
	if !got.Featured || !got.Active {
		t.Errorf("featured/active = %v/%v, want true/true", got.Featured, got.Active)
	}
}

func TestGetBookNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetBook(context.Background(), "bk_missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateBookDuplicateInternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBook(ctx, makeTestBook("bk_1", "B0001", "First")); err != nil {
		t.Fatalf("create first: %v", err)
	}

	err := s.CreateBook(ctx, makeTestBook("bk_2", "B0001", "Second"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate internal_id, got %v", err)
	}
}

func TestCreateBooksWithoutInternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// NULL internal_ids must not collide with each other.
	if err := s.CreateBook(ctx, makeTestBook("bk_1", "", "No ID One")); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := s.CreateBook(ctx, makeTestBook("bk_2", "", "No ID Two")); err != nil {
		t.Fatalf("create second: %v", err)
	}
}

func TestUpdateBook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := makeTestBook("bk_1", "B0001", "Original Title")
	if err := s.CreateBook(ctx, book); err != nil {
		t.Fatalf("create: %v", err)
	}

	book.Title = "Revised Title"
	book.Pages = 48
	book.AccessLevel = domain.AccessUnavailable
	book.Touch()
	if err := s.UpdateBook(ctx, book); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetBook(ctx, "bk_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Revised Title" || got.Pages != 48 {
		t.Errorf("title/pages = %q/%d after update", got.Title, got.Pages)
	}
	if got.AccessLevel != domain.AccessUnavailable {
		t.Errorf("access_level = %q, want unavailable", got.AccessLevel)
	}
}

func TestUpdateBookNotFound(t *testing.T) {
	s := newTestStore(t)

	book := makeTestBook("bk_ghost", "B9999", "Ghost")
	if err := s.UpdateBook(context.Background(), book); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetBookByInternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBook(ctx, makeTestBook("bk_1", "B0001", "Findable")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetBookByInternalID(ctx, "B0001")
	if err != nil {
		t.Fatalf("get by internal_id: %v", err)
	}
	if got.ID != "bk_1" {
		t.Errorf("id = %q, want bk_1", got.ID)
	}

	if _, err := s.GetBookByInternalID(ctx, "B0404"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindBooksByPalmCodeSharedCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two editions of the same work share a PALM code.
	b1 := makeTestBook("bk_1", "B0001", "Edition One")
	b1.PalmCode = "PALM-100"
	b2 := makeTestBook("bk_2", "B0002", "Edition Two")
	b2.PalmCode = "PALM-100"
	b3 := makeTestBook("bk_3", "B0003", "Unrelated")
	b3.PalmCode = "PALM-200"
	for _, b := range []*domain.Book{b1, b2, b3} {
		if err := s.CreateBook(ctx, b); err != nil {
			t.Fatalf("create %s: %v", b.ID, err)
		}
	}

	books, err := s.FindBooksByPalmCode(ctx, "PALM-100")
	if err != nil {
		t.Fatalf("find by palm_code: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("expected 2 books sharing PALM-100, got %d", len(books))
	}

	books, err = s.FindBooksByPalmCode(ctx, "PALM-404")
	if err != nil {
		t.Fatalf("find missing palm_code: %v", err)
	}
	if len(books) != 0 {
		t.Errorf("expected no books, got %d", len(books))
	}
}

func TestTxSeesEarlierWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	if err := tx.CreateBook(ctx, makeTestBook("bk_1", "B0001", "In Batch")); err != nil {
		t.Fatalf("create in tx: %v", err)
	}

	// A row created earlier in the batch must be visible to later
	// matches in the same batch.
	got, err := tx.GetBookByInternalID(ctx, "B0001")
	if err != nil {
		t.Fatalf("get in same tx: %v", err)
	}
	if got.Title != "In Batch" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestCountBooks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.CountBooks(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 books, got %d", n)
	}

	for i, id := range []string{"bk_1", "bk_2", "bk_3"} {
		if err := s.CreateBook(ctx, makeTestBook(id, "", "Book")); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	n, err = s.CountBooks(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 books, got %d", n)
	}
}
