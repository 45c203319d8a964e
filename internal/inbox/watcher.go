// Package inbox watches a drop folder and imports catalog files placed
// into it. A file is picked up once its size and mtime stop changing,
// so partially copied files are never read.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/importer"
	"github.com/stacksapp/stacks-server/internal/service"
)

var watchedExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
}

// Watcher monitors the inbox directory and turns settled files into
// import runs.
type Watcher struct {
	imports *service.ImportService
	cfg     config.InboxConfig
	fs      *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingFile
}

// pendingFile tracks a file that may still be copying in.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a watcher for cfg.Path. The directory is created if it
// does not exist.
func New(imports *service.ImportService, cfg config.InboxConfig, logger *slog.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("inbox path not configured")
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox directory: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fs.Add(cfg.Path); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Path, err)
	}

	return &Watcher{
		imports: imports,
		cfg:     cfg,
		fs:      fs,
		logger:  logger.With("component", "inbox"),
		pending: make(map[string]*pendingFile),
	}, nil
}

// Start processes events until ctx is cancelled. Files already sitting
// in the inbox when Start is called are picked up too.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("inbox watcher started", "path", w.cfg.Path, "settle_delay", w.cfg.SettleDelay)

	w.sweepExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.startSettling(ctx, event.Name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.drop(event.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox watch error", "error", err)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.cancelPending()
	return w.fs.Close()
}

// sweepExisting queues files left in the inbox from before startup.
func (w *Watcher) sweepExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Path)
	if err != nil {
		w.logger.Error("inbox scan failed", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.startSettling(ctx, filepath.Join(w.cfg.Path, entry.Name()))
	}
}

func eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return watchedExtensions[strings.ToLower(filepath.Ext(name))]
}

// startSettling re-arms the settle timer for path each time it changes.
func (w *Watcher) startSettling(ctx context.Context, path string) {
	if !eligible(path) {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		w.drop(path)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}

	p := &pendingFile{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(w.cfg.SettleDelay, func() {
		w.checkSettled(ctx, path)
	})
	w.pending[path] = p
}

// checkSettled ingests the file if it stopped changing, otherwise
// re-arms the timer.
func (w *Watcher) checkSettled(ctx context.Context, path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.cfg.SettleDelay, func() {
			w.checkSettled(ctx, path)
		})
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()

	w.ingest(ctx, path)
}

// ingest uploads the settled file as a new import run and starts it.
// The original is removed on success and renamed on failure so it is
// not picked up again.
func (w *Watcher) ingest(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		w.logger.Error("inbox open failed", "path", path, "error", err)
		return
	}

	imp, err := w.imports.Create(ctx, service.CreateRequest{
		Filename: filepath.Base(path),
		Options:  importer.DefaultOptions(),
	}, f)
	f.Close()
	if err != nil {
		w.logger.Error("inbox import create failed", "path", path, "error", err)
		w.quarantine(path)
		return
	}

	if _, err := w.imports.Start(ctx, imp.ID); err != nil {
		w.logger.Error("inbox import start failed", "import_id", imp.ID, "error", err)
		w.quarantine(path)
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("inbox cleanup failed", "path", path, "error", err)
	}
	w.logger.Info("inbox file imported", "path", path, "import_id", imp.ID)
}

func (w *Watcher) quarantine(path string) {
	if err := os.Rename(path, path+".failed"); err != nil {
		w.logger.Warn("inbox quarantine failed", "path", path, "error", err)
	}
}

func (w *Watcher) drop(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}
