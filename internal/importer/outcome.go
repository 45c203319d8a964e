package importer

import (
	"sort"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// outcomeLog accumulates per-row outcomes onto the run record. All
// counter invariants (total = successful + failed + skipped) are
// maintained here and nowhere else.
type outcomeLog struct {
	imp *domain.CsvImport
}

func newOutcomeLog(imp *domain.CsvImport) *outcomeLog {
	return &outcomeLog{imp: imp}
}

func (o *outcomeLog) entry(n *normalizedRow) domain.RowLogEntry {
	return domain.RowLogEntry{
		Row:        n.num,
		Title:      n.title,
		InternalID: n.internalID,
		PalmCode:   n.palmCode,
		Timestamp:  time.Now(),
	}
}

func (o *outcomeLog) created(n *normalizedRow, bookID string) {
	e := o.entry(n)
	e.BookID = bookID
	o.imp.CreatedLog = append(o.imp.CreatedLog, e)
	o.imp.CreatedCount++
	o.imp.SuccessfulRows++
	o.imp.ProcessedRows++
}

func (o *outcomeLog) updated(n *normalizedRow, bookID string) {
	e := o.entry(n)
	e.BookID = bookID
	o.imp.UpdatedLog = append(o.imp.UpdatedLog, e)
	o.imp.UpdatedCount++
	o.imp.SuccessfulRows++
	o.imp.ProcessedRows++
}

func (o *outcomeLog) skipped(n *normalizedRow, reason string) {
	e := o.entry(n)
	e.Reason = reason
	o.imp.SkippedLog = append(o.imp.SkippedLog, e)
	o.imp.SkippedRows++
	o.imp.ProcessedRows++
}

func (o *outcomeLog) failed(n *normalizedRow, column, reason string) {
	e := o.entry(n)
	e.Column = column
	e.Reason = reason
	o.imp.ErrorLog = append(o.imp.ErrorLog, e)
	o.imp.FailedRows++
	o.imp.ProcessedRows++
}

// failedRaw records a failure for a row that never made it through
// normalization, so only the row number is known.
func (o *outcomeLog) failedRaw(rowNum int, column, reason string) {
	o.imp.ErrorLog = append(o.imp.ErrorLog, domain.RowLogEntry{
		Row:       rowNum,
		Column:    column,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	o.imp.FailedRows++
	o.imp.ProcessedRows++
}

// skippedRaw is failedRaw's counterpart for the skipped log.
func (o *outcomeLog) skippedRaw(rowNum int, reason string) {
	o.imp.SkippedLog = append(o.imp.SkippedLog, domain.RowLogEntry{
		Row:       rowNum,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	o.imp.SkippedRows++
	o.imp.ProcessedRows++
}

// sortLogs orders every log by row number, the order report consumers
// expect regardless of append order.
func (o *outcomeLog) sortLogs() {
	SortLog(o.imp.CreatedLog)
	SortLog(o.imp.UpdatedLog)
	SortLog(o.imp.SkippedLog)
	SortLog(o.imp.ErrorLog)
}

// SortLog orders log entries by row number in place.
func SortLog(entries []domain.RowLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Row < entries[j].Row
	})
}
