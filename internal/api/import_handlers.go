package api

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/importer"
	"github.com/stacksapp/stacks-server/internal/service"
)

func (s *Server) registerImportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listImports",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/imports",
		Summary:     "List imports",
		Description: "Lists import runs, newest first",
		Tags:        []string{"Imports"},
	}, s.handleListImports)

	huma.Register(s.api, huma.Operation{
		OperationID: "getImport",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/imports/{id}",
		Summary:     "Get import",
		Description: "Returns one import run with live progress and row logs",
		Tags:        []string{"Imports"},
	}, s.handleGetImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "startImport",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/imports/{id}/start",
		Summary:     "Start import",
		Description: "Starts processing an uploaded import asynchronously",
		Tags:        []string{"Imports"},
	}, s.handleStartImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelImport",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/imports/{id}/cancel",
		Summary:     "Cancel import",
		Description: "Requests cancellation of a running import",
		Tags:        []string{"Imports"},
	}, s.handleCancelImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteImport",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/imports/{id}",
		Summary:     "Delete import",
		Description: "Deletes a finished import run and its stored file",
		Tags:        []string{"Imports"},
	}, s.handleDeleteImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "listImportIssues",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/imports/{id}/issues",
		Summary:     "List import quality issues",
		Description: "Returns data quality findings produced by an import run",
		Tags:        []string{"Imports", "Quality"},
	}, s.handleListImportIssues)
}

// === DTOs ===

// ImportResponse is the API shape of one import run.
type ImportResponse struct {
	ID           string                      `json:"id" doc:"Import run ID"`
	Filename     string                      `json:"filename" doc:"Original upload filename"`
	FileSize     int64                       `json:"file_size" doc:"Upload size in bytes"`
	Mode         string                      `json:"mode" doc:"Import mode"`
	Status       string                      `json:"status" doc:"Run status"`
	TotalRows    int                         `json:"total_rows" doc:"Data rows in the file"`
	Processed    int                         `json:"processed_rows" doc:"Rows processed so far"`
	Successful   int                         `json:"successful_rows" doc:"Rows created or updated"`
	Failed       int                         `json:"failed_rows" doc:"Rows that failed"`
	Skipped      int                         `json:"skipped_rows" doc:"Rows skipped"`
	Created      int                         `json:"created_count" doc:"Books created"`
	Updated      int                         `json:"updated_count" doc:"Books updated"`
	ErrorMessage string                      `json:"error_message,omitempty" doc:"Fatal error, if the run failed"`
	Metrics      *domain.PerformanceMetrics  `json:"performance_metrics,omitempty" doc:"Run timing and resource usage"`
	Progress     *importer.ProgressSnapshot  `json:"progress,omitempty" doc:"Live phase and row counts while running"`
	CreatedAt    time.Time                   `json:"created_at" doc:"When the upload was created"`
	StartedAt    *time.Time                  `json:"started_at,omitempty" doc:"When processing began"`
	FinishedAt   *time.Time                  `json:"finished_at,omitempty" doc:"When processing finished"`
}

// ImportDetailResponse adds the per-row outcome logs.
type ImportDetailResponse struct {
	ImportResponse
	CreatedLog []domain.RowLogEntry `json:"created_log,omitempty" doc:"Rows that created books"`
	UpdatedLog []domain.RowLogEntry `json:"updated_log,omitempty" doc:"Rows that updated books"`
	SkippedLog []domain.RowLogEntry `json:"skipped_log,omitempty" doc:"Rows skipped with reasons"`
	ErrorLog   []domain.RowLogEntry `json:"error_log,omitempty" doc:"Rows that failed with errors"`
}

func mapImportResponse(imp *domain.CsvImport, progress *importer.ProgressSnapshot) ImportResponse {
	return ImportResponse{
		ID:           imp.ID,
		Filename:     imp.Filename,
		FileSize:     imp.FileSize,
		Mode:         string(imp.Mode),
		Status:       string(imp.Status),
		TotalRows:    imp.TotalRows,
		Processed:    imp.ProcessedRows,
		Successful:   imp.SuccessfulRows,
		Failed:       imp.FailedRows,
		Skipped:      imp.SkippedRows,
		Created:      imp.CreatedCount,
		Updated:      imp.UpdatedCount,
		ErrorMessage: imp.ErrorMessage,
		Metrics:      imp.Metrics,
		Progress:     progress,
		CreatedAt:    imp.CreatedAt,
		StartedAt:    imp.StartedAt,
		FinishedAt:   imp.FinishedAt,
	}
}

type ListImportsInput struct {
	Limit  int `query:"limit" doc:"Page size (max 100)" default:"20"`
	Offset int `query:"offset" doc:"Rows to skip" default:"0"`
}

type ListImportsOutput struct {
	Body struct {
		Imports []ImportResponse `json:"imports" doc:"Import runs"`
		Total   int              `json:"total" doc:"Total number of runs"`
	}
}

type GetImportInput struct {
	ID string `path:"id" doc:"Import run ID"`
}

type ImportDetailOutput struct {
	Body ImportDetailResponse
}

type ImportOutput struct {
	Body ImportResponse
}

type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}

type MessageOutput struct {
	Body MessageResponse
}

type ListImportIssuesOutput struct {
	Body struct {
		Issues []*domain.DataQualityIssue `json:"issues" doc:"Data quality findings"`
	}
}

// === Handlers ===

func (s *Server) handleListImports(ctx context.Context, input *ListImportsInput) (*ListImportsOutput, error) {
	imports, total, err := s.importService.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	out := &ListImportsOutput{}
	out.Body.Imports = make([]ImportResponse, len(imports))
	out.Body.Total = total
	for i, imp := range imports {
		out.Body.Imports[i] = mapImportResponse(imp, nil)
	}

	return out, nil
}

func (s *Server) handleGetImport(ctx context.Context, input *GetImportInput) (*ImportDetailOutput, error) {
	imp, progress, err := s.importService.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &ImportDetailOutput{Body: ImportDetailResponse{
		ImportResponse: mapImportResponse(imp, progress),
		CreatedLog:     imp.CreatedLog,
		UpdatedLog:     imp.UpdatedLog,
		SkippedLog:     imp.SkippedLog,
		ErrorLog:       imp.ErrorLog,
	}}, nil
}

func (s *Server) handleStartImport(ctx context.Context, input *GetImportInput) (*ImportOutput, error) {
	imp, err := s.importService.Start(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &ImportOutput{Body: mapImportResponse(imp, nil)}, nil
}

func (s *Server) handleCancelImport(ctx context.Context, input *GetImportInput) (*MessageOutput, error) {
	if err := s.importService.Cancel(ctx, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Cancellation requested"}}, nil
}

func (s *Server) handleDeleteImport(ctx context.Context, input *GetImportInput) (*MessageOutput, error) {
	if err := s.importService.Delete(ctx, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Import deleted"}}, nil
}

func (s *Server) handleListImportIssues(ctx context.Context, input *GetImportInput) (*ListImportIssuesOutput, error) {
	issues, err := s.importService.QualityIssues(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	out := &ListImportIssuesOutput{}
	out.Body.Issues = issues

	return out, nil
}

// handleCreateImport accepts a CSV upload and creates a pending import run.
// POST /api/v1/admin/imports
// Content-Type: multipart/form-data with a "file" field. An optional
// "options" field carries run options as JSON; an optional "mode" field
// overrides just the mode.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Memory threshold only; the service enforces the real size limit
	// while streaming to disk.
	const maxMemory = 32 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		response.BadRequest(w, "Failed to parse form data", s.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "No file uploaded. Use 'file' field in multipart form", s.logger)
		return
	}
	defer file.Close()

	// The options field is a complete Options document, not a patch;
	// json/v2 zeroes absent fields.
	opts := importer.DefaultOptions()
	if raw := r.FormValue("options"); raw != "" {
		parsed := importer.Options{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			response.BadRequest(w, "Invalid options JSON", s.logger)
			return
		}
		if parsed.Mode == "" {
			parsed.Mode = opts.Mode
		}
		opts = parsed
	}
	if mode := r.FormValue("mode"); mode != "" {
		opts.Mode = domain.ImportMode(mode)
	}

	imp, err := s.importService.Create(ctx, service.CreateRequest{
		Filename: header.Filename,
		Options:  opts,
	}, file)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, mapImportResponse(imp, nil), s.logger)
}

// handleDownloadReport streams one of the per-run CSV reports.
// GET /api/v1/admin/imports/{id}/reports/{kind}
// kind is one of created, updated, skipped, errors.
func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	importID := chi.URLParam(r, "id")
	kind := importer.ReportKind(chi.URLParam(r, "kind"))

	// Rendered into a buffer so headers can still change on error.
	var buf bytes.Buffer
	filename, err := s.importService.WriteReport(ctx, &buf, importID, kind)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error("Failed to write report response", "error", err, "import_id", importID)
	}
}
