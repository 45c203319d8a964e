package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// ReportKind selects which outcome log a report covers.
type ReportKind string

const (
	ReportCreated ReportKind = "created"
	ReportUpdated ReportKind = "updated"
	ReportSkipped ReportKind = "skipped"
	ReportErrors  ReportKind = "errors"
)

// IsValid checks if the report kind is a recognized value.
func (k ReportKind) IsValid() bool {
	switch k {
	case ReportCreated, ReportUpdated, ReportSkipped, ReportErrors:
		return true
	default:
		return false
	}
}

// ReportFilename is the suggested download name for a report.
func ReportFilename(imp *domain.CsvImport, kind ReportKind) string {
	return fmt.Sprintf("import-%s-%s.csv", imp.ID, kind)
}

// WriteReport streams one outcome log as CSV, sorted by source row
// number. Created and updated reports identify the book each row
// produced; skipped rows carry the skip reason; error rows add the
// offending column when one was identified.
func WriteReport(w io.Writer, imp *domain.CsvImport, kind ReportKind) error {
	var entries []domain.RowLogEntry
	var header []string
	switch kind {
	case ReportCreated:
		entries = imp.CreatedLog
		header = []string{"Row Number", "Title", "Internal ID", "PALM Code", "Book ID"}
	case ReportUpdated:
		entries = imp.UpdatedLog
		header = []string{"Row Number", "Title", "Internal ID", "PALM Code", "Book ID"}
	case ReportSkipped:
		entries = imp.SkippedLog
		header = []string{"Row Number", "Title", "Internal ID", "PALM Code", "Reason"}
	case ReportErrors:
		entries = imp.ErrorLog
		header = []string{"Row Number", "Title", "Internal ID", "PALM Code", "Column", "Error Message"}
	default:
		return fmt.Errorf("unknown report kind %q", kind)
	}

	sorted := make([]domain.RowLogEntry, len(entries))
	copy(sorted, entries)
	SortLog(sorted)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range sorted {
		e := &sorted[i]
		row := []string{strconv.Itoa(e.Row), e.Title, e.InternalID, e.PalmCode}
		switch kind {
		case ReportCreated, ReportUpdated:
			row = append(row, e.BookID)
		case ReportSkipped:
			row = append(row, e.Reason)
		case ReportErrors:
			row = append(row, e.Column, e.Reason)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
