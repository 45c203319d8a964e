package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
)

// Importer executes CSV import runs against the store. One Importer
// serves the whole process; each run carries its own state.
type Importer struct {
	store      *store.Store
	cfg        config.ImportConfig
	uploadPath string
	log        *slog.Logger
	tracker    *Tracker
}

// New creates an importer.
func New(s *store.Store, cfg config.ImportConfig, uploadPath string, log *slog.Logger) *Importer {
	return &Importer{
		store:      s,
		cfg:        cfg,
		uploadPath: uploadPath,
		log:        log.With("component", "importer"),
		tracker:    NewTracker(),
	}
}

// Tracker exposes the in-flight run registry for polling and
// cancellation.
func (im *Importer) Tracker() *Tracker { return im.tracker }

// run is the per-run state shared by the pipeline stages.
type run struct {
	store    *store.Store
	session  *store.BulkSession
	log      *slog.Logger
	opts     Options
	imp      *domain.CsvImport
	outcome  *outcomeLog
	resolver *resolver
	progress *RunProgress

	uploadPath string
	batchSize  int
	startedAt  time.Time
	deadline   time.Time
	peakAlloc  uint64
	batches    int
}

// Run processes the run's stored file to completion. The CsvImport
// record must already be persisted with StoredPath set; Run owns its
// status from processing through a terminal state. Progress survives
// crashes because the record is re-persisted after every batch.
func (im *Importer) Run(ctx context.Context, imp *domain.CsvImport, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	progress := im.tracker.Start(imp.ID, cancel)
	defer im.tracker.Finish(imp.ID)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = im.cfg.BatchSize
	}

	now := time.Now()
	r := &run{
		store:      im.store,
		log:        im.log.With("import_id", imp.ID),
		opts:       opts,
		imp:        imp,
		outcome:    newOutcomeLog(imp),
		resolver:   newResolver(opts.CreateMissingRelations),
		progress:   progress,
		uploadPath: im.uploadPath,
		batchSize:  batchSize,
		startedAt:  now,
		deadline:   now.Add(im.cfg.MaxExecutionTime),
	}

	imp.Status = domain.ImportStatusProcessing
	imp.StartedAt = &now
	if err := im.store.UpdateImport(ctx, imp); err != nil {
		return fmt.Errorf("mark import processing: %w", err)
	}

	err := r.execute(ctx)
	r.finalize(ctx, err, im.cfg)
	return err
}

func (r *run) execute(ctx context.Context) error {
	total, err := countDataRows(r.imp.StoredPath)
	if err != nil {
		return err
	}
	r.imp.TotalRows = total
	r.progress.Update(PhaseImporting, 0, total)

	f, err := os.Open(r.imp.StoredPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.imp.StoredPath, err)
	}
	defer f.Close()

	reader, err := newFileReader(f)
	if err != nil {
		return err
	}

	mapping, warnings := NewMapper().MapHeaders(reader.Headers())
	for _, w := range warnings {
		r.log.Warn("header mapping conflict", "warning", w)
	}
	if len(mapping.Unknown) > 0 {
		r.log.Info("ignoring unknown columns", "columns", mapping.Unknown)
	}
	if !mapping.Has(FieldTitle) {
		return fmt.Errorf("no Title column recognized in header")
	}

	// Foreign-key checks stay off for the whole run. The suspension is
	// scoped to the session's pinned connection, so every run
	// transaction must go through it; the deferred Close restores
	// enforcement on every exit path, panics included.
	session, err := r.store.SuspendForeignKeys(ctx)
	if err != nil {
		return err
	}
	defer session.Close()
	r.session = session

	r.store.SetBulkMode(true)
	defer r.store.SetBulkMode(false)

	type numberedRecord struct {
		record []string
		num    int
	}
	batch := make([]numberedRecord, 0, r.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return ErrCancelled
		}
		if time.Now().After(r.deadline) {
			return ErrTimeLimit
		}
		if err := r.processBatch(ctx, mapping, func(yield func([]string, int) error) error {
			for _, nr := range batch {
				if err := yield(nr.record, nr.num); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		batch = batch[:0]
		r.sampleMemory()
		r.progress.Update(PhaseImporting, r.imp.ProcessedRows, r.imp.TotalRows)
		if err := r.store.UpdateImport(ctx, r.imp); err != nil {
			return fmt.Errorf("persist progress: %w", err)
		}
		return nil
	}

	for {
		record, num, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		batch = append(batch, numberedRecord{record: record, num: num})
		if len(batch) >= r.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	r.progress.Update(PhaseResolving, 0, 0)
	if err := r.resolvePendingPass(ctx); err != nil {
		return err
	}

	if r.opts.RunQualityChecks {
		r.progress.Update(PhaseQuality, 0, 0)
		if err := r.runQualityChecks(ctx); err != nil {
			return err
		}
	}
	return nil
}

// processBatch runs a set of rows inside transaction scope. With
// transactions enabled the batch is atomic: a fatal error rolls the
// whole batch back and the outcome log is rewound to match, so
// reported counters never exceed what was committed. With transactions
// disabled every row commits on its own, and a failed row rewinds just
// that row's outcome.
func (r *run) processBatch(ctx context.Context, mapping *RowMapping, each func(func([]string, int) error) error) error {
	r.batches++

	if !r.opts.EnableTransactions {
		return each(func(record []string, num int) error {
			snapshot := r.snapshotOutcome()
			tx, err := r.session.Begin(ctx)
			if err != nil {
				return err
			}
			if err := r.processRow(ctx, tx, mapping, record, num); err != nil {
				tx.Rollback()
				r.restoreOutcome(snapshot)
				return err
			}
			if err := tx.Commit(); err != nil {
				r.restoreOutcome(snapshot)
				return fmt.Errorf("commit row %d: %w", num, err)
			}
			return nil
		})
	}

	snapshot := r.snapshotOutcome()
	tx, err := r.session.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := each(func(record []string, num int) error {
		return r.processRow(ctx, tx, mapping, record, num)
	}); err != nil {
		r.restoreOutcome(snapshot)
		return err
	}
	if err := tx.Commit(); err != nil {
		r.restoreOutcome(snapshot)
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// processRow drives one record through normalize, reconcile and build.
// Row-level problems are logged and swallowed; only storage faults
// propagate (they are fatal for the run).
func (r *run) processRow(ctx context.Context, tx *store.Tx, mapping *RowMapping, record []string, num int) error {
	row := mapping.Row(record)
	n, rerr := normalizeRow(num, row)
	if rerr != nil {
		r.rejectRaw(num, rerr)
		return nil
	}
	if r.opts.ValidateFileReferences {
		if rerr := r.validateFileRefs(n); rerr != nil {
			r.reject(n, rerr)
			return nil
		}
	}

	outcome, book, reason, err := r.reconcileRow(ctx, tx, n)
	if err != nil {
		var re *rowError
		if errors.As(err, &re) {
			r.reject(n, re)
			return nil
		}
		if errors.Is(err, ErrMissingReference) {
			r.outcome.failed(n, "", err.Error())
			return nil
		}
		return err
	}

	switch outcome {
	case outcomeCreated:
		r.outcome.created(n, book.ID)
	case outcomeUpdated:
		r.outcome.updated(n, book.ID)
	case outcomeSkipped:
		r.outcome.skipped(n, reason)
	}
	return nil
}

// reject routes a validation failure per the skip-invalid-rows policy.
func (r *run) reject(n *normalizedRow, rerr *rowError) {
	if r.opts.SkipInvalidRows {
		r.outcome.skipped(n, rerr.Error())
	} else {
		r.outcome.failed(n, rerr.Column, rerr.Message)
	}
}

func (r *run) rejectRaw(num int, rerr *rowError) {
	if r.opts.SkipInvalidRows {
		r.outcome.skippedRaw(num, rerr.Error())
	} else {
		r.outcome.failedRaw(num, rerr.Column, rerr.Message)
	}
}

func (r *run) validateFileRefs(n *normalizedRow) *rowError {
	for _, f := range n.files {
		if f.IsExternal {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.uploadPath, f.Value)); err != nil {
			return rowErrorf(f.Column, fmt.Sprintf("referenced file %q not found", f.Value))
		}
	}
	return nil
}

// outcomeSnapshot captures counters and log lengths so a rolled-back
// batch can be rewound out of the report.
type outcomeSnapshot struct {
	processed, successful, failed, skipped int
	created, updated                       int
	createdLen, updatedLen                 int
	skippedLen, errorLen                   int
}

func (r *run) snapshotOutcome() outcomeSnapshot {
	imp := r.imp
	return outcomeSnapshot{
		processed: imp.ProcessedRows, successful: imp.SuccessfulRows,
		failed: imp.FailedRows, skipped: imp.SkippedRows,
		created: imp.CreatedCount, updated: imp.UpdatedCount,
		createdLen: len(imp.CreatedLog), updatedLen: len(imp.UpdatedLog),
		skippedLen: len(imp.SkippedLog), errorLen: len(imp.ErrorLog),
	}
}

func (r *run) restoreOutcome(s outcomeSnapshot) {
	imp := r.imp
	imp.ProcessedRows, imp.SuccessfulRows = s.processed, s.successful
	imp.FailedRows, imp.SkippedRows = s.failed, s.skipped
	imp.CreatedCount, imp.UpdatedCount = s.created, s.updated
	imp.CreatedLog = imp.CreatedLog[:s.createdLen]
	imp.UpdatedLog = imp.UpdatedLog[:s.updatedLen]
	imp.SkippedLog = imp.SkippedLog[:s.skippedLen]
	imp.ErrorLog = imp.ErrorLog[:s.errorLen]
}

// resolvePendingPass retries every dangling relationship edge, in this
// run or left over from earlier ones. Targets are matched by
// internal_id first, then by an unambiguous PALM code. Whatever still
// cannot be resolved stays queued; edges are never dropped.
func (r *run) resolvePendingPass(ctx context.Context) error {
	keys, err := r.store.PendingRelationshipKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := r.session.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	resolved := 0
	for _, key := range keys {
		target, err := tx.GetBookByInternalID(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			books, ferr := tx.FindBooksByPalmCode(ctx, key)
			if ferr != nil {
				return ferr
			}
			if len(books) != 1 {
				continue
			}
			target = books[0]
		} else if err != nil {
			return err
		}
		n, err := tx.ResolvePendingRelationships(ctx, key, target.ID)
		if err != nil {
			return err
		}
		resolved += n
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if resolved > 0 || len(keys) > resolved {
		r.log.Info("relationship resolution pass",
			"resolved", resolved, "still_pending", len(keys)-resolved)
	}
	return nil
}

// sampleMemory tracks the peak live allocation across the run.
func (r *run) sampleMemory() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.Alloc > r.peakAlloc {
		r.peakAlloc = ms.Alloc
	}
}

// finalize moves the run to its terminal status and persists the final
// record. It runs even when the context was cancelled, so the record
// never sticks in "processing".
func (r *run) finalize(ctx context.Context, runErr error, cfg config.ImportConfig) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now()
	elapsed := now.Sub(r.startedAt)

	r.sampleMemory()
	rowsPerSecond := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rowsPerSecond = float64(r.imp.ProcessedRows) / secs
	}
	r.imp.Metrics = &domain.PerformanceMetrics{
		ElapsedMs:       elapsed.Milliseconds(),
		RowsPerSecond:   rowsPerSecond,
		PeakAllocBytes:  r.peakAlloc,
		BatchesTotal:    r.batches,
		SlowImport:      elapsed > cfg.SlowImportThreshold,
		HighMemoryUsage: r.peakAlloc > cfg.MemoryWarningBytes,
	}
	r.outcome.sortLogs()
	r.imp.FinishedAt = &now

	switch {
	case runErr == nil:
		r.imp.Status = domain.ImportStatusCompleted
	case errors.Is(runErr, ErrCancelled) || errors.Is(runErr, context.Canceled):
		r.imp.Status = domain.ImportStatusCancelled
		r.imp.ErrorMessage = ErrCancelled.Error()
	default:
		r.imp.Status = domain.ImportStatusFailed
		r.imp.ErrorMessage = runErr.Error()
	}
	r.progress.Update(PhaseDone, r.imp.ProcessedRows, r.imp.TotalRows)

	if err := r.store.UpdateImport(ctx, r.imp); err != nil {
		r.log.Error("persist final import state", "error", err)
	}
	r.log.Info("import finished",
		"status", r.imp.Status,
		"total", r.imp.TotalRows,
		"created", r.imp.CreatedCount,
		"updated", r.imp.UpdatedCount,
		"skipped", r.imp.SkippedRows,
		"failed", r.imp.FailedRows,
		"elapsed", elapsed)
}
