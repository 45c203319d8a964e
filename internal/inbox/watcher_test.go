package inbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/importer"
	"github.com/stacksapp/stacks-server/internal/service"
	"github.com/stacksapp/stacks-server/internal/store"
)

const sampleCatalog = `Internal ID,Title,Author,Access
B-1,Ka Moʻolelo,Mary Kawena Pukui,Y
B-2,Nā Mele,Samuel Elbert,L
`

func newTestWatcher(t *testing.T) (*Watcher, *service.ImportService, string) {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.ImportConfig{
		BatchSize:           10,
		MaxFileSize:         1 << 20,
		MaxExecutionTime:    time.Minute,
		SlowImportThreshold: time.Minute,
		MemoryWarningBytes:  1 << 30,
	}
	uploads := filepath.Join(dir, "uploads")
	imp := importer.New(st, cfg, uploads, logger)

	svc, err := service.NewImportService(st, imp, cfg, uploads, logger)
	require.NoError(t, err)

	inboxDir := filepath.Join(dir, "inbox")
	w, err := New(svc, config.InboxConfig{Path: inboxDir, SettleDelay: 50 * time.Millisecond}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	return w, svc, inboxDir
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx) }()
}

// waitForCompletedImport polls until one import run exists and has
// finished.
func waitForCompletedImport(t *testing.T, svc *service.ImportService) *domain.CsvImport {
	t.Helper()

	var found *domain.CsvImport
	require.Eventually(t, func() bool {
		imports, _, err := svc.List(context.Background(), 10, 0)
		if err != nil || len(imports) == 0 {
			return false
		}
		if !imports[0].Status.IsTerminal() {
			return false
		}
		found = imports[0]
		return true
	}, 10*time.Second, 25*time.Millisecond)
	return found
}

func TestEligible(t *testing.T) {
	for _, tt := range []struct {
		path string
		want bool
	}{
		{"catalog.csv", true},
		{"catalog.TSV", true},
		{"notes.txt", true},
		{"cover.jpg", false},
		{".catalog.csv.swp", false},
		{"archive.csv.gz", false},
	} {
		assert.Equal(t, tt.want, eligible(tt.path), tt.path)
	}
}

func TestWatcherImportsDroppedFile(t *testing.T) {
	w, svc, inboxDir := newTestWatcher(t)
	startWatcher(t, w)

	path := filepath.Join(inboxDir, "drop.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	imp := waitForCompletedImport(t, svc)
	assert.Equal(t, domain.ImportStatusCompleted, imp.Status)
	assert.Equal(t, "drop.csv", imp.Filename)
	assert.Equal(t, 2, imp.CreatedCount)

	// The original is removed once the run is handed off.
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWatcherSweepsExistingFiles(t *testing.T) {
	w, svc, inboxDir := newTestWatcher(t)

	// File placed before the watcher starts.
	path := filepath.Join(inboxDir, "backlog.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	startWatcher(t, w)

	imp := waitForCompletedImport(t, svc)
	assert.Equal(t, "backlog.csv", imp.Filename)
}

func TestWatcherQuarantinesRejectedFile(t *testing.T) {
	w, _, inboxDir := newTestWatcher(t)
	startWatcher(t, w)

	// Empty uploads are rejected by the import service.
	path := filepath.Join(inboxDir, "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path + ".failed")
		return err == nil
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	w, svc, inboxDir := newTestWatcher(t)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(inboxDir, "cover.jpg"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	imports, total, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, imports)
}
