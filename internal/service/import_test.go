package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/importer"
	"github.com/stacksapp/stacks-server/internal/store"
)

const sampleCatalog = `Internal ID,Title,Author,Access
B-1,Ka Moʻolelo,Mary Kawena Pukui,Y
B-2,Nā Mele,Samuel Elbert,L
`

func newTestService(t *testing.T) (*ImportService, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.Open(filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.ImportConfig{
		BatchSize:           10,
		MaxFileSize:         1024,
		MaxExecutionTime:    time.Minute,
		SlowImportThreshold: time.Minute,
		MemoryWarningBytes:  1 << 30,
	}
	uploads := filepath.Join(dir, "uploads")
	imp := importer.New(s, cfg, uploads, logger)

	svc, err := NewImportService(s, imp, cfg, uploads, logger)
	require.NoError(t, err)
	return svc, s
}

func createSample(t *testing.T, svc *ImportService) *domain.CsvImport {
	t.Helper()
	imp, err := svc.Create(context.Background(),
		CreateRequest{Filename: "catalog.csv", Options: importer.DefaultOptions()},
		strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	return imp
}

func waitTerminal(t *testing.T, s *store.Store, importID string) *domain.CsvImport {
	t.Helper()
	var imp *domain.CsvImport
	require.Eventually(t, func() bool {
		got, err := s.GetImport(context.Background(), importID)
		if err != nil {
			return false
		}
		imp = got
		return imp.Status.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)
	return imp
}

func TestCreateStoresFileAndRecord(t *testing.T) {
	svc, s := newTestService(t)
	imp := createSample(t, svc)

	assert.Equal(t, "catalog.csv", imp.Filename)
	assert.Equal(t, domain.ImportStatusPending, imp.Status)
	assert.Equal(t, int64(len(sampleCatalog)), imp.FileSize)
	assert.NotEmpty(t, imp.StoredPath)
	assert.NotEmpty(t, imp.OptionsJSON)

	stored, err := s.GetImport(context.Background(), imp.ID)
	require.NoError(t, err)
	assert.Equal(t, imp.StoredPath, stored.StoredPath)
}

func TestCreateRejectsBadUploads(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Filename: "books.xlsx"}, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = svc.Create(ctx, CreateRequest{Filename: "books.csv"}, strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	big := strings.Repeat("a", 2048)
	_, err = svc.Create(ctx, CreateRequest{Filename: "books.csv"}, strings.NewReader(big))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTooLarge))
}

func TestStartRunsToCompletion(t *testing.T) {
	svc, s := newTestService(t)
	imp := createSample(t, svc)

	_, err := svc.Start(context.Background(), imp.ID)
	require.NoError(t, err)

	final := waitTerminal(t, s, imp.ID)
	assert.Equal(t, domain.ImportStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CreatedCount)
}

func TestStartRejectsCompletedRun(t *testing.T) {
	svc, s := newTestService(t)
	imp := createSample(t, svc)

	_, err := svc.Start(context.Background(), imp.ID)
	require.NoError(t, err)
	waitTerminal(t, s, imp.ID)

	_, err = svc.Start(context.Background(), imp.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestCancelNotRunning(t *testing.T) {
	svc, _ := newTestService(t)
	imp := createSample(t, svc)

	err := svc.Cancel(context.Background(), imp.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestDeleteRemovesRecordAndFile(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	imp := createSample(t, svc)

	require.NoError(t, svc.Delete(ctx, imp.ID))

	_, err := s.GetImport(ctx, imp.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestWriteReportAfterRun(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	imp := createSample(t, svc)

	_, err := svc.Start(ctx, imp.ID)
	require.NoError(t, err)
	waitTerminal(t, s, imp.ID)

	var buf bytes.Buffer
	name, err := svc.WriteReport(ctx, &buf, imp.ID, importer.ReportCreated)
	require.NoError(t, err)
	assert.Contains(t, name, imp.ID)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "B-1")

	_, err = svc.WriteReport(ctx, &buf, imp.ID, importer.ReportKind("bogus"))
	require.Error(t, err)
}

func TestListImports(t *testing.T) {
	svc, _ := newTestService(t)
	createSample(t, svc)
	createSample(t, svc)

	imports, total, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, imports, 2)
}
