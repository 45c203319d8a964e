// Package service provides the business logic layer for the catalog
// and its CSV import pipeline.
package service

import (
	"context"
	"log/slog"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/store"
)

// BookService exposes catalog reads so import results are inspectable.
type BookService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBookService creates a new book service.
func NewBookService(s *store.Store, logger *slog.Logger) *BookService {
	return &BookService{store: s, logger: logger}
}

// GetBook returns a book with all associations.
func (s *BookService) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.store.GetBook(ctx, bookID)
}

// GetBookByInternalID resolves a catalog internal ID to the full book.
func (s *BookService) GetBookByInternalID(ctx context.Context, internalID string) (*domain.Book, error) {
	bare, err := s.store.GetBookByInternalID(ctx, internalID)
	if err != nil {
		return nil, err
	}
	return s.store.GetBook(ctx, bare.ID)
}

// FindBooksByPalmCode returns every book sharing a PALM code, oldest
// first. PALM codes are not unique.
func (s *BookService) FindBooksByPalmCode(ctx context.Context, palmCode string) ([]*domain.Book, error) {
	if palmCode == "" {
		return nil, errors.Validation("palm code is required")
	}
	return s.store.FindBooksByPalmCode(ctx, palmCode)
}

// CountBooks returns the catalog size.
func (s *BookService) CountBooks(ctx context.Context) (int, error) {
	return s.store.CountBooks(ctx)
}

// QualityIssuesForBook lists quality findings for one book.
func (s *BookService) QualityIssuesForBook(ctx context.Context, bookID string) ([]*domain.DataQualityIssue, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListQualityIssues(ctx, store.QualityIssueFilter{BookID: bookID})
}

// ResolveQualityIssue marks a finding resolved.
func (s *BookService) ResolveQualityIssue(ctx context.Context, issueID, by, note string) (*domain.DataQualityIssue, error) {
	issue, err := s.store.GetQualityIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	issue.Resolve(by, note)
	if err := s.store.UpdateQualityIssue(ctx, issue); err != nil {
		return nil, err
	}
	s.logger.Info("quality issue resolved", "issue_id", issueID, "check", issue.Check)
	return issue, nil
}
