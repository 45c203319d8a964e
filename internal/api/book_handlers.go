package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stacksapp/stacks-server/internal/domain"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "lookupBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "Look up books",
		Description: "Finds books by internal ID or PALM code",
		Tags:        []string{"Books"},
	}, s.handleLookupBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/stats",
		Summary:     "Get catalog stats",
		Description: "Returns catalog-wide book counts",
		Tags:        []string{"Books"},
	}, s.handleGetBookStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Description: "Returns a book with all its catalog associations",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBookIssues",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/issues",
		Summary:     "List book quality issues",
		Description: "Returns open and resolved data quality findings for a book",
		Tags:        []string{"Books", "Quality"},
	}, s.handleListBookIssues)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolveQualityIssue",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/issues/{id}/resolve",
		Summary:     "Resolve quality issue",
		Description: "Marks a data quality finding as resolved",
		Tags:        []string{"Quality"},
	}, s.handleResolveQualityIssue)
}

// === DTOs ===

type GetBookInput struct {
	ID string `path:"id" doc:"Book ID"`
}

type BookOutput struct {
	Body *domain.Book
}

type LookupBooksInput struct {
	InternalID string `query:"internal_id" doc:"Internal accession ID (exact match)"`
	PalmCode   string `query:"palm_code" doc:"PALM project code (may match several books)"`
}

type LookupBooksOutput struct {
	Body struct {
		Books []*domain.Book `json:"books" doc:"Matching books"`
	}
}

type BookStatsOutput struct {
	Body struct {
		TotalBooks int `json:"total_books" doc:"Books in the catalog"`
	}
}

type ListBookIssuesOutput struct {
	Body struct {
		Issues []*domain.DataQualityIssue `json:"issues" doc:"Data quality findings"`
	}
}

type ResolveQualityIssueInput struct {
	ID   string `path:"id" doc:"Quality issue ID"`
	Body struct {
		ResolvedBy string `json:"resolved_by" doc:"Who resolved the finding"`
		Note       string `json:"note,omitempty" doc:"Optional resolution note"`
	}
}

type QualityIssueOutput struct {
	Body *domain.DataQualityIssue
}

// === Handlers ===

func (s *Server) handleGetBook(ctx context.Context, input *GetBookInput) (*BookOutput, error) {
	book, err := s.bookService.GetBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &BookOutput{Body: book}, nil
}

func (s *Server) handleLookupBooks(ctx context.Context, input *LookupBooksInput) (*LookupBooksOutput, error) {
	out := &LookupBooksOutput{}
	out.Body.Books = []*domain.Book{}

	switch {
	case input.InternalID != "":
		book, err := s.bookService.GetBookByInternalID(ctx, input.InternalID)
		if err != nil {
			return nil, err
		}
		out.Body.Books = append(out.Body.Books, book)
	case input.PalmCode != "":
		books, err := s.bookService.FindBooksByPalmCode(ctx, input.PalmCode)
		if err != nil {
			return nil, err
		}
		out.Body.Books = books
	default:
		return nil, huma.Error400BadRequest("provide internal_id or palm_code")
	}

	return out, nil
}

func (s *Server) handleGetBookStats(ctx context.Context, _ *struct{}) (*BookStatsOutput, error) {
	total, err := s.bookService.CountBooks(ctx)
	if err != nil {
		return nil, err
	}

	out := &BookStatsOutput{}
	out.Body.TotalBooks = total

	return out, nil
}

func (s *Server) handleListBookIssues(ctx context.Context, input *GetBookInput) (*ListBookIssuesOutput, error) {
	issues, err := s.bookService.QualityIssuesForBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	out := &ListBookIssuesOutput{}
	out.Body.Issues = issues

	return out, nil
}

func (s *Server) handleResolveQualityIssue(ctx context.Context, input *ResolveQualityIssueInput) (*QualityIssueOutput, error) {
	issue, err := s.bookService.ResolveQualityIssue(ctx, input.ID, input.Body.ResolvedBy, input.Body.Note)
	if err != nil {
		return nil, err
	}

	return &QualityIssueOutput{Body: issue}, nil
}
