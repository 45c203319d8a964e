package service

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/importer"
	"github.com/stacksapp/stacks-server/internal/store"
	"github.com/stacksapp/stacks-server/internal/validation"
)

// allowedImportExtensions are the file types the importer accepts.
var allowedImportExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
}

// ImportService manages the CSV import run lifecycle: upload, start,
// progress, cancellation, reports and cleanup. Runs execute
// asynchronously; the persisted CsvImport record is the source of
// truth, the tracker only adds live progress for runs in flight.
type ImportService struct {
	store     *store.Store
	importer  *importer.Importer
	cfg       config.ImportConfig
	uploadDir string
	logger    *slog.Logger
	validator *validation.Validator
}

// NewImportService creates a new import service. uploadDir is created
// if missing.
func NewImportService(s *store.Store, imp *importer.Importer, cfg config.ImportConfig, uploadDir string, logger *slog.Logger) (*ImportService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImportService{
		store:     s,
		importer:  imp,
		cfg:       cfg,
		uploadDir: uploadDir,
		logger:    logger,
		validator: validation.New(),
	}, nil
}

// CreateRequest describes a new import run.
type CreateRequest struct {
	Filename string           `json:"filename" validate:"required,max=255"`
	Options  importer.Options `json:"options"`
}

// Create stores the uploaded file and persists a pending run record.
// The run does not start until Start is called.
func (s *ImportService) Create(ctx context.Context, req CreateRequest, file io.Reader) (*domain.CsvImport, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !allowedImportExtensions[ext] {
		return nil, errors.Validationf("unsupported file type %q (want .csv, .tsv or .txt)", ext)
	}
	if req.Options.Mode == "" {
		req.Options = importer.DefaultOptions()
	}
	if err := req.Options.Validate(); err != nil {
		return nil, errors.Validation(err.Error())
	}

	// Stored under a random name so uploads cannot collide or traverse
	// out of the upload directory.
	storedPath := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	size, err := s.saveUpload(storedPath, file)
	if err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(req.Options)
	if err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	imp := &domain.CsvImport{
		Filename:    filepath.Base(req.Filename),
		StoredPath:  storedPath,
		FileSize:    size,
		Mode:        req.Options.Mode,
		OptionsJSON: string(optionsJSON),
		Status:      domain.ImportStatusPending,
	}
	imp.ID = id.MustGenerate(id.PrefixImport)
	imp.InitTimestamps()

	if err := s.store.CreateImport(ctx, imp); err != nil {
		os.Remove(storedPath)
		return nil, err
	}
	s.logger.Info("import created", "import_id", imp.ID, "filename", imp.Filename, "size", size, "mode", imp.Mode)
	return imp, nil
}

// saveUpload copies the upload to disk, enforcing the size limit while
// streaming so an oversized body never lands fully on disk.
func (s *ImportService) saveUpload(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path) //#nosec G304 -- path is built from a generated UUID
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, io.LimitReader(r, s.cfg.MaxFileSize+1))
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("write upload: %w", err)
	}
	if size > s.cfg.MaxFileSize {
		os.Remove(path)
		return 0, errors.TooLarge(fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
	}
	if size == 0 {
		os.Remove(path)
		return 0, errors.Validation("uploaded file is empty")
	}
	return size, nil
}

// Start launches a pending run asynchronously. Failed and cancelled
// runs can be started again; a processing run cannot.
func (s *ImportService) Start(ctx context.Context, importID string) (*domain.CsvImport, error) {
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status == domain.ImportStatusProcessing {
		return nil, errors.Conflict("import is already running")
	}
	if imp.Status == domain.ImportStatusCompleted {
		return nil, errors.Conflict("import has already completed")
	}

	var opts importer.Options
	if imp.OptionsJSON != "" {
		if err := json.Unmarshal([]byte(imp.OptionsJSON), &opts); err != nil {
			return nil, fmt.Errorf("unmarshal stored options: %w", err)
		}
	} else {
		opts = importer.DefaultOptions()
	}

	// A restart begins from a clean slate.
	imp.ResetCounters()

	// The goroutine owns imp from here; callers get a detached snapshot
	// reflecting the accepted state.
	accepted := *imp
	accepted.Status = domain.ImportStatusProcessing

	go func() {
		// The run outlives the HTTP request that started it.
		if err := s.importer.Run(context.Background(), imp, opts); err != nil {
			s.logger.Error("import run ended with error", "import_id", imp.ID, "error", err)
		}
	}()

	s.logger.Info("import started", "import_id", imp.ID, "mode", opts.Mode)
	return &accepted, nil
}

// Get returns a run record with live progress when one is in flight.
func (s *ImportService) Get(ctx context.Context, importID string) (*domain.CsvImport, *importer.ProgressSnapshot, error) {
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return nil, nil, err
	}
	var snapshot *importer.ProgressSnapshot
	if p := s.importer.Tracker().Get(importID); p != nil {
		snap := p.Snapshot()
		snapshot = &snap
	}
	return imp, snapshot, nil
}

// List returns runs newest first plus the total count.
func (s *ImportService) List(ctx context.Context, limit, offset int) ([]*domain.CsvImport, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	imports, err := s.store.ListImports(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountImports(ctx)
	if err != nil {
		return nil, 0, err
	}
	return imports, total, nil
}

// Cancel requests cooperative cancellation of a running import. The
// run stops at the next batch boundary; committed batches stay.
func (s *ImportService) Cancel(ctx context.Context, importID string) error {
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return err
	}
	if imp.Status != domain.ImportStatusProcessing {
		return errors.Conflict("import is not running")
	}
	if !s.importer.Tracker().Cancel(importID) {
		// Status says processing but no tracker entry: the process
		// restarted mid-run. Mark the record failed so it is not stuck.
		imp.Status = domain.ImportStatusFailed
		imp.ErrorMessage = "run interrupted by server restart"
		imp.Touch()
		return s.store.UpdateImport(ctx, imp)
	}
	s.logger.Info("import cancellation requested", "import_id", importID)
	return nil
}

// Delete removes a terminal run record and its stored file.
func (s *ImportService) Delete(ctx context.Context, importID string) error {
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return err
	}
	if imp.Status == domain.ImportStatusProcessing {
		return errors.Conflict("cannot delete a running import")
	}
	if err := s.store.DeleteImport(ctx, importID); err != nil {
		return err
	}
	if imp.StoredPath != "" {
		if err := os.Remove(imp.StoredPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove stored import file", "path", imp.StoredPath, "error", err)
		}
	}
	s.logger.Info("import deleted", "import_id", importID)
	return nil
}

// WriteReport streams one of a run's outcome reports as CSV.
func (s *ImportService) WriteReport(ctx context.Context, w io.Writer, importID string, kind importer.ReportKind) (string, error) {
	if !kind.IsValid() {
		return "", errors.Validationf("unknown report kind %q", kind)
	}
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		return "", err
	}
	if err := importer.WriteReport(w, imp, kind); err != nil {
		return "", err
	}
	return importer.ReportFilename(imp, kind), nil
}

// QualityIssues lists the data quality findings attached to a run.
func (s *ImportService) QualityIssues(ctx context.Context, importID string) ([]*domain.DataQualityIssue, error) {
	if _, err := s.store.GetImport(ctx, importID); err != nil {
		return nil, err
	}
	return s.store.ListQualityIssues(ctx, store.QualityIssueFilter{ImportID: importID})
}
