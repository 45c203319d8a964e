package importer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
)

// Quality check names. Stored in data_quality_issues.check; the
// (book, import, check) tuple is the upsert key, so re-running a file
// refreshes findings instead of duplicating them.
const (
	checkMissingDescription = "missing_description"
	checkNoCreators         = "no_creators"
	checkImplausibleYear    = "implausible_publication_year"
	checkDuplicatePalmCode  = "duplicate_palm_code"
)

// lifespanPattern matches free-form creator lifespans like "1920-1989"
// or "1931-" for the living.
var lifespanPattern = regexp.MustCompile(`^(\d{4})\s*-\s*(\d{4})?`)

// runQualityChecks inspects every book this run created or updated and
// records findings. Checks never mutate books; they only attach issues.
func (r *run) runQualityChecks(ctx context.Context) error {
	ids := r.touchedBookIDs()
	total := len(ids)
	for i, bookID := range ids {
		r.progress.Update(PhaseQuality, i, total)
		book, err := r.store.GetBook(ctx, bookID)
		if err != nil {
			// The book can be gone if an operator removed it mid-run.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		if err := r.checkBook(ctx, book); err != nil {
			return err
		}
	}
	r.progress.Update(PhaseQuality, total, total)
	return nil
}

// touchedBookIDs collects the distinct book IDs from the created and
// updated logs.
func (r *run) touchedBookIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, log := range [][]domain.RowLogEntry{r.imp.CreatedLog, r.imp.UpdatedLog} {
		for i := range log {
			bookID := log[i].BookID
			if bookID == "" {
				continue
			}
			if _, ok := seen[bookID]; ok {
				continue
			}
			seen[bookID] = struct{}{}
			ids = append(ids, bookID)
		}
	}
	return ids
}

func (r *run) checkBook(ctx context.Context, book *domain.Book) error {
	if book.Description == "" && book.Abstract == "" {
		if err := r.reportIssue(ctx, book.ID, checkMissingDescription, domain.SeverityWarning,
			"book has neither a description nor an abstract"); err != nil {
			return err
		}
	}

	if len(book.Creators) == 0 {
		if err := r.reportIssue(ctx, book.ID, checkNoCreators, domain.SeverityWarning,
			"book has no creators attached"); err != nil {
			return err
		}
	}

	if book.PublicationYear > 0 {
		if err := r.checkPublicationYear(ctx, book); err != nil {
			return err
		}
	}

	if book.PalmCode != "" && book.InternalID == "" {
		if err := r.checkDuplicatePalm(ctx, book); err != nil {
			return err
		}
	}
	return nil
}

// checkPublicationYear flags books published before their author was
// born. Posthumous publication is common and stays unflagged.
func (r *run) checkPublicationYear(ctx context.Context, book *domain.Book) error {
	for i := range book.Creators {
		if book.Creators[i].Type != domain.CreatorAuthor {
			continue
		}
		creator, err := r.store.GetCreator(ctx, book.Creators[i].CreatorID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		m := lifespanPattern.FindStringSubmatch(creator.Lifespan)
		if m == nil {
			continue
		}
		born, err := strconv.Atoi(m[1])
		if err != nil || born == 0 {
			continue
		}
		if book.PublicationYear < born {
			return r.reportIssue(ctx, book.ID, checkImplausibleYear, domain.SeverityWarning,
				fmt.Sprintf("publication year %d predates author %s (born %d)",
					book.PublicationYear, creator.Name, born))
		}
	}
	return nil
}

// checkDuplicatePalm flags books that share a PALM code without
// carrying an internal ID of their own. Such books are unreachable for
// relationship targeting and are likely unreconciled duplicates.
func (r *run) checkDuplicatePalm(ctx context.Context, book *domain.Book) error {
	books, err := r.store.FindBooksByPalmCode(ctx, book.PalmCode)
	if err != nil {
		return err
	}
	if len(books) < 2 {
		return nil
	}
	return r.reportIssue(ctx, book.ID, checkDuplicatePalmCode, domain.SeverityCritical,
		fmt.Sprintf("PALM code %q is shared by %d books and this one has no internal ID",
			book.PalmCode, len(books)))
}

func (r *run) reportIssue(ctx context.Context, bookID, check string, severity domain.IssueSeverity, message string) error {
	issue := &domain.DataQualityIssue{
		BookID:   bookID,
		ImportID: r.imp.ID,
		Check:    check,
		Severity: severity,
		Message:  message,
		Status:   domain.IssueOpen,
	}
	issue.ID = id.MustGenerate(id.PrefixQualityIssue)
	issue.InitTimestamps()
	return r.store.CreateQualityIssue(ctx, issue)
}
