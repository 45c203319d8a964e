// Package importer implements the CSV bulk import pipeline: header
// mapping, value normalization, natural-key entity resolution,
// mode-driven row reconciliation, association building and batch
// orchestration with per-row outcome logging.
package importer

import (
	"errors"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// ErrMissingReference is returned when a row references an entity that
// does not exist and creating missing relations is disabled.
var ErrMissingReference = errors.New("missing reference")

// ErrCancelled is returned when a run is cancelled between batches.
var ErrCancelled = errors.New("import cancelled")

// ErrTimeLimit is returned when a run exceeds the execution time limit.
var ErrTimeLimit = errors.New("execution time limit exceeded")

// Options controls a single import run.
type Options struct {
	Mode domain.ImportMode `json:"mode"`
	// CreateMissingRelations creates unknown creators, languages,
	// classification values and other lookups on the fly. When false,
	// rows referencing unknown entities fail.
	CreateMissingRelations bool `json:"create_missing_relations"`
	// SkipInvalidRows logs validation failures as skipped instead of
	// failed and keeps going.
	SkipInvalidRows bool `json:"skip_invalid_rows"`
	// EnableTransactions wraps each batch in one transaction. When
	// false every row commits on its own.
	EnableTransactions bool `json:"enable_transactions"`
	// RunQualityChecks runs the data quality pass after the import.
	RunQualityChecks bool `json:"run_quality_checks"`
	// ValidateFileReferences fails rows whose file columns reference
	// paths that do not exist under the upload directory.
	ValidateFileReferences bool `json:"validate_file_references"`
	// BatchSize overrides the configured rows-per-batch when positive.
	BatchSize int `json:"batch_size,omitempty"`
}

// DefaultOptions returns the standard upsert configuration.
func DefaultOptions() Options {
	return Options{
		Mode:                   domain.ModeUpsert,
		CreateMissingRelations: true,
		SkipInvalidRows:        true,
		EnableTransactions:     true,
		RunQualityChecks:       false,
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	if !o.Mode.IsValid() {
		return errors.New("unknown import mode: " + string(o.Mode))
	}
	if o.BatchSize < 0 {
		return errors.New("batch size must not be negative")
	}
	return nil
}

// rowError is a row-level validation failure. Column names the CSV
// column at fault when one can be identified.
type rowError struct {
	Column  string
	Message string
}

func (e *rowError) Error() string {
	if e.Column == "" {
		return e.Message
	}
	return e.Column + ": " + e.Message
}

func rowErrorf(column, message string) *rowError {
	return &rowError{Column: column, Message: message}
}
