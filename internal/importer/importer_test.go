package importer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	importer *Importer
	store    *store.Store
	dir      string
	uploads  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()

	s, err := store.Open(filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))

	cfg := config.ImportConfig{
		BatchSize:           10,
		MaxExecutionTime:    time.Minute,
		SlowImportThreshold: time.Minute,
		MemoryWarningBytes:  1 << 30,
	}
	return &testEnv{
		importer: New(s, cfg, uploads, logger),
		store:    s,
		dir:      dir,
		uploads:  uploads,
	}
}

// newImport writes the CSV to disk and persists a pending run record,
// the state an upload handler leaves behind.
func (e *testEnv) newImport(t *testing.T, csvContent string) *domain.CsvImport {
	t.Helper()
	imp := &domain.CsvImport{
		Filename: "catalog.csv",
		FileSize: int64(len(csvContent)),
		Mode:     domain.ModeUpsert,
		Status:   domain.ImportStatusPending,
	}
	imp.ID = id.MustGenerate(id.PrefixImport)
	imp.InitTimestamps()

	path := filepath.Join(e.dir, imp.ID+".csv")
	require.NoError(t, os.WriteFile(path, []byte(csvContent), 0o644))
	imp.StoredPath = path

	require.NoError(t, e.store.CreateImport(context.Background(), imp))
	return imp
}

func (e *testEnv) run(t *testing.T, csvContent string, opts Options) *domain.CsvImport {
	t.Helper()
	imp := e.newImport(t, csvContent)
	require.NoError(t, e.importer.Run(context.Background(), imp, opts))
	return imp
}

const basicCatalog = `Internal ID,Title,Author,Access,Language 1,Genre,Publication year
B-1,Ka Moʻolelo o Hiʻiaka,Mary Kawena Pukui,Y,Hawaiian,Legends,1972
B-2,Nā Mele o Hawaiʻi Nei,Samuel Elbert | Noelani Mahoe,L,Hawaiian,Poetry | Music,1970
`

func TestRunCreatesBooks(t *testing.T) {
	e := newTestEnv(t)
	imp := e.run(t, basicCatalog, DefaultOptions())

	assert.Equal(t, domain.ImportStatusCompleted, imp.Status)
	assert.Equal(t, 2, imp.TotalRows)
	assert.Equal(t, 2, imp.CreatedCount)
	assert.Equal(t, 2, imp.SuccessfulRows)
	assert.Zero(t, imp.FailedRows)
	assert.True(t, imp.CountersConsistent())
	require.NotNil(t, imp.Metrics)
	assert.Equal(t, 1, imp.Metrics.BatchesTotal)
	require.NotNil(t, imp.StartedAt)
	require.NotNil(t, imp.FinishedAt)

	ctx := context.Background()
	bare, err := e.store.GetBookByInternalID(ctx, "B-1")
	require.NoError(t, err)
	book, err := e.store.GetBook(ctx, bare.ID)
	require.NoError(t, err)

	assert.Equal(t, "Ka Moʻolelo o Hiʻiaka", book.Title)
	assert.Equal(t, domain.AccessFull, book.AccessLevel)
	assert.Equal(t, 1972, book.PublicationYear)
	require.Len(t, book.Creators, 1)
	require.Len(t, book.Languages, 1)
	assert.True(t, book.Languages[0].IsPrimary)
	require.Len(t, book.Classifications, 1)

	bare2, err := e.store.GetBookByInternalID(ctx, "B-2")
	require.NoError(t, err)
	book2, err := e.store.GetBook(ctx, bare2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessLimited, book2.AccessLevel)
	require.Len(t, book2.Creators, 2)
	require.Len(t, book2.Classifications, 2)

	// The terminal state is persisted, not just returned.
	stored, err := e.store.GetImport(ctx, imp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.CreatedCount)
	require.Len(t, stored.CreatedLog, 2)
	assert.Equal(t, 2, stored.CreatedLog[0].Row)
}

func TestRunIdempotentReimport(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.run(t, basicCatalog, DefaultOptions())
	second := e.run(t, basicCatalog, DefaultOptions())

	assert.Equal(t, domain.ImportStatusCompleted, second.Status)
	assert.Zero(t, second.CreatedCount)
	assert.Equal(t, 2, second.UpdatedCount)

	count, err := e.store.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Creator sets are replaced, not appended.
	bare, err := e.store.GetBookByInternalID(ctx, "B-2")
	require.NoError(t, err)
	book, err := e.store.GetBook(ctx, bare.ID)
	require.NoError(t, err)
	assert.Len(t, book.Creators, 2)
	assert.Len(t, book.Languages, 1)
}

func TestRunCreateOnlySkipsMatches(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, basicCatalog, DefaultOptions())

	opts := DefaultOptions()
	opts.Mode = domain.ModeCreateOnly
	imp := e.run(t, basicCatalog, opts)

	assert.Zero(t, imp.CreatedCount)
	assert.Zero(t, imp.UpdatedCount)
	assert.Equal(t, 2, imp.SkippedRows)
	require.Len(t, imp.SkippedLog, 2)
	assert.Contains(t, imp.SkippedLog[0].Reason, "create_only")
}

func TestRunUpdateOnlySkipsMissing(t *testing.T) {
	e := newTestEnv(t)

	opts := DefaultOptions()
	opts.Mode = domain.ModeUpdateOnly
	imp := e.run(t, basicCatalog, opts)

	assert.Zero(t, imp.CreatedCount)
	assert.Equal(t, 2, imp.SkippedRows)

	count, err := e.store.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunCreateDuplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.run(t, basicCatalog, DefaultOptions())
	original, err := e.store.GetBookByInternalID(ctx, "B-1")
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Mode = domain.ModeCreateDuplicates
	imp := e.run(t, basicCatalog, opts)
	assert.Equal(t, 2, imp.CreatedCount)

	count, err := e.store.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// The copy carries provenance but not the original's internal_id.
	require.Len(t, imp.CreatedLog, 2)
	for _, entry := range imp.CreatedLog {
		if entry.Title != original.Title {
			continue
		}
		dup, err := e.store.GetBook(ctx, entry.BookID)
		require.NoError(t, err)
		assert.Equal(t, original.ID, dup.DuplicatedFromBookID)
		assert.Empty(t, dup.InternalID)
	}
}

func TestRunInvalidRowSkippedOrFailed(t *testing.T) {
	const catalog = `Internal ID,Title,Publication year
B-1,Good Book,1972
B-2,Bad Year,1492
B-3,,1980
`
	t.Run("skip invalid rows", func(t *testing.T) {
		e := newTestEnv(t)
		opts := DefaultOptions()
		opts.SkipInvalidRows = true
		imp := e.run(t, catalog, opts)

		assert.Equal(t, domain.ImportStatusCompleted, imp.Status)
		assert.Equal(t, 1, imp.CreatedCount)
		assert.Equal(t, 2, imp.SkippedRows)
		assert.Zero(t, imp.FailedRows)
		assert.True(t, imp.CountersConsistent())
	})

	t.Run("fail invalid rows", func(t *testing.T) {
		e := newTestEnv(t)
		opts := DefaultOptions()
		opts.SkipInvalidRows = false
		imp := e.run(t, catalog, opts)

		assert.Equal(t, domain.ImportStatusCompleted, imp.Status)
		assert.Equal(t, 1, imp.CreatedCount)
		assert.Equal(t, 2, imp.FailedRows)
		require.Len(t, imp.ErrorLog, 2)
		assert.Equal(t, "Publication year", imp.ErrorLog[0].Column)
		assert.Equal(t, 3, imp.ErrorLog[0].Row)
		assert.Equal(t, "Title", imp.ErrorLog[1].Column)
		assert.Equal(t, 4, imp.ErrorLog[1].Row)
	})
}

func TestRunMissingReferenceFailsRow(t *testing.T) {
	const catalog = `Internal ID,Title,Collection
B-1,Lonely Book,Rare Editions
`
	e := newTestEnv(t)
	opts := DefaultOptions()
	opts.CreateMissingRelations = false
	imp := e.run(t, catalog, opts)

	assert.Equal(t, domain.ImportStatusCompleted, imp.Status)
	assert.Zero(t, imp.CreatedCount)
	assert.Equal(t, 1, imp.FailedRows)
	require.Len(t, imp.ErrorLog, 1)
	assert.Contains(t, imp.ErrorLog[0].Reason, "missing reference")
}

func TestRunResolvesForwardRelationships(t *testing.T) {
	// Row 2 references B-11 before row 3 defines it.
	const catalog = `Internal ID,Title,Same version
B-10,First Edition,B-11
B-11,Second Edition,
`
	e := newTestEnv(t)
	ctx := context.Background()
	e.run(t, catalog, DefaultOptions())

	bare, err := e.store.GetBookByInternalID(ctx, "B-10")
	require.NoError(t, err)
	book, err := e.store.GetBook(ctx, bare.ID)
	require.NoError(t, err)

	target, err := e.store.GetBookByInternalID(ctx, "B-11")
	require.NoError(t, err)

	require.Len(t, book.Relationships, 1)
	assert.Equal(t, domain.RelSameVersion, book.Relationships[0].Type)
	assert.Equal(t, "B-11", book.Relationships[0].TargetKey)
	assert.Equal(t, target.ID, book.Relationships[0].RelatedBookID)

	pending, err := e.store.PendingRelationshipKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunResolvesRelationshipsAcrossRuns(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first := e.run(t, "Internal ID,Title,Same version\nB-20,Waiting Book,B-99\n", DefaultOptions())
	assert.Equal(t, domain.ImportStatusCompleted, first.Status)

	pending, err := e.store.PendingRelationshipKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B-99"}, pending)

	e.run(t, "Internal ID,Title\nB-99,Late Arrival\n", DefaultOptions())

	bare, err := e.store.GetBookByInternalID(ctx, "B-20")
	require.NoError(t, err)
	book, err := e.store.GetBook(ctx, bare.ID)
	require.NoError(t, err)
	target, err := e.store.GetBookByInternalID(ctx, "B-99")
	require.NoError(t, err)

	require.Len(t, book.Relationships, 1)
	assert.Equal(t, target.ID, book.Relationships[0].RelatedBookID)

	pending, err = e.store.PendingRelationshipKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunFileReferenceValidation(t *testing.T) {
	const catalog = `Internal ID,Title,PDF file
B-1,Has File,books/real.pdf
B-2,No File,books/ghost.pdf
`
	e := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(e.uploads, "books"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.uploads, "books", "real.pdf"), []byte("%PDF"), 0o644))

	opts := DefaultOptions()
	opts.ValidateFileReferences = true
	opts.SkipInvalidRows = false
	imp := e.run(t, catalog, opts)

	assert.Equal(t, 1, imp.CreatedCount)
	assert.Equal(t, 1, imp.FailedRows)
	require.Len(t, imp.ErrorLog, 1)
	assert.Equal(t, "PDF file", imp.ErrorLog[0].Column)
	assert.Contains(t, imp.ErrorLog[0].Reason, "ghost.pdf")
}

func TestRunQualityChecksFlagBooks(t *testing.T) {
	const catalog = `Internal ID,Title,Author,Description
B-1,Documented,Mary Kawena Pukui,A fine description.
B-2,Bare Record,,
`
	e := newTestEnv(t)
	opts := DefaultOptions()
	opts.RunQualityChecks = true
	imp := e.run(t, catalog, opts)

	issues, err := e.store.ListQualityIssues(context.Background(), store.QualityIssueFilter{ImportID: imp.ID})
	require.NoError(t, err)

	checks := make(map[string]int)
	for _, issue := range issues {
		checks[issue.Check]++
	}
	assert.Equal(t, 1, checks[checkMissingDescription])
	assert.Equal(t, 1, checks[checkNoCreators])
}

func TestRunPerRowCommits(t *testing.T) {
	e := newTestEnv(t)
	opts := DefaultOptions()
	opts.EnableTransactions = false
	imp := e.run(t, basicCatalog, opts)

	assert.Equal(t, domain.ImportStatusCompleted, imp.Status)
	assert.Equal(t, 2, imp.CreatedCount)
}

// A row whose own transaction does not reach commit must leave no
// trace in the outcome report, same as a rolled-back batch.
func TestRowOutcomeRewind(t *testing.T) {
	imp := &domain.CsvImport{TotalRows: 1}
	r := &run{imp: imp, outcome: newOutcomeLog(imp)}

	landed := &normalizedRow{num: 2, title: "Landed", internalID: "B-1"}
	r.outcome.created(landed, "bk_1")

	snapshot := r.snapshotOutcome()
	lost := &normalizedRow{num: 3, title: "Lost", internalID: "B-2"}
	r.outcome.created(lost, "bk_2")
	r.outcome.failed(lost, "Title", "never committed")
	r.restoreOutcome(snapshot)

	assert.Equal(t, 1, imp.CreatedCount)
	assert.Equal(t, 1, imp.SuccessfulRows)
	assert.Equal(t, 1, imp.ProcessedRows)
	assert.Zero(t, imp.FailedRows)
	assert.Empty(t, imp.ErrorLog)
	require.Len(t, imp.CreatedLog, 1)
	assert.Equal(t, "B-1", imp.CreatedLog[0].InternalID)
	assert.True(t, imp.CountersConsistent())
}

func TestRunSmallBatches(t *testing.T) {
	e := newTestEnv(t)
	opts := DefaultOptions()
	opts.BatchSize = 1
	imp := e.run(t, basicCatalog, opts)

	assert.Equal(t, 2, imp.CreatedCount)
	require.NotNil(t, imp.Metrics)
	assert.Equal(t, 2, imp.Metrics.BatchesTotal)
}

func TestRunEmptyFileFails(t *testing.T) {
	e := newTestEnv(t)
	imp := e.newImport(t, "")
	err := e.importer.Run(context.Background(), imp, DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, domain.ImportStatusFailed, imp.Status)
	assert.NotEmpty(t, imp.ErrorMessage)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	e := newTestEnv(t)
	imp := e.newImport(t, basicCatalog)
	err := e.importer.Run(context.Background(), imp, Options{Mode: "sideways"})
	require.Error(t, err)
}

func TestRunTabSeparatedFile(t *testing.T) {
	catalog := "Internal ID\tTitle\tAuthor\n" +
		"B-1\tTab Book\tSomeone\n"
	e := newTestEnv(t)
	imp := e.run(t, catalog, DefaultOptions())
	assert.Equal(t, 1, imp.CreatedCount)
}

func TestRunBOMPrefixedFile(t *testing.T) {
	e := newTestEnv(t)
	imp := e.run(t, "\uFEFF"+basicCatalog, DefaultOptions())
	assert.Equal(t, 2, imp.CreatedCount)
}

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	assert.Nil(t, tr.Get("missing"))
	assert.False(t, tr.Cancel("missing"))

	cancelled := false
	p := tr.Start("imp_1", func() { cancelled = true })
	p.Update(PhaseImporting, 5, 10)

	snap := tr.Get("imp_1").Snapshot()
	assert.Equal(t, PhaseImporting, snap.Phase)
	assert.Equal(t, 5, snap.Current)
	assert.Equal(t, 10, snap.Total)

	assert.True(t, tr.Cancel("imp_1"))
	assert.True(t, cancelled)

	tr.Finish("imp_1")
	assert.Nil(t, tr.Get("imp_1"))
}

func TestWriteReport(t *testing.T) {
	imp := &domain.CsvImport{
		CreatedLog: []domain.RowLogEntry{
			{Row: 5, Title: "Later", InternalID: "B-2", BookID: "bk_2"},
			{Row: 2, Title: "Earlier, with comma", InternalID: "B-1", PalmCode: "P-9", BookID: "bk_1"},
		},
		ErrorLog: []domain.RowLogEntry{
			{Row: 3, Title: "Broken", Column: "Pages", Reason: "not a number"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, imp, ReportCreated))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Row Number,Title,Internal ID,PALM Code,Book ID", lines[0])
	assert.Equal(t, `2,"Earlier, with comma",B-1,P-9,bk_1`, lines[1])
	assert.Equal(t, "5,Later,B-2,,bk_2", lines[2])

	buf.Reset()
	require.NoError(t, WriteReport(&buf, imp, ReportErrors))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Row Number,Title,Internal ID,PALM Code,Column,Error Message", lines[0])
	assert.Equal(t, "3,Broken,,,Pages,not a number", lines[1])

	assert.Error(t, WriteReport(&buf, imp, ReportKind("bogus")))
}
