package domain

import "time"

// ImportMode decides how a row that matches an existing book is handled.
type ImportMode string

const (
	// ModeCreateOnly creates missing books and skips matches.
	ModeCreateOnly ImportMode = "create_only"
	// ModeUpdateOnly updates matches and skips missing books.
	ModeUpdateOnly ImportMode = "update_only"
	// ModeUpsert updates matches and creates missing books. The default.
	ModeUpsert ImportMode = "upsert"
	// ModeCreateDuplicates always creates a new book, ignoring matches.
	// The new record keeps a provenance pointer to the matched book.
	ModeCreateDuplicates ImportMode = "create_duplicates"
)

// IsValid checks if the import mode is a recognized value.
func (m ImportMode) IsValid() bool {
	switch m {
	case ModeCreateOnly, ModeUpdateOnly, ModeUpsert, ModeCreateDuplicates:
		return true
	default:
		return false
	}
}

func (m ImportMode) String() string { return string(m) }

// ImportStatus is the lifecycle state of an import run.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
	ImportStatusCancelled  ImportStatus = "cancelled"
)

// IsTerminal reports whether the run has finished (successfully or not).
func (s ImportStatus) IsTerminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled:
		return true
	default:
		return false
	}
}

// RowLogEntry is one per-row outcome record. The report renderer sorts
// entries by Row and streams them as CSV.
type RowLogEntry struct {
	Row        int       `json:"row"`
	Title      string    `json:"title,omitempty"`
	InternalID string    `json:"internal_id,omitempty"`
	PalmCode   string    `json:"palm_code,omitempty"`
	BookID     string    `json:"book_id,omitempty"`
	Column     string    `json:"column,omitempty"` // set for validation errors
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PerformanceMetrics captures run timing and resource usage for
// operator visibility.
type PerformanceMetrics struct {
	ElapsedMs       int64   `json:"elapsed_ms"`
	RowsPerSecond   float64 `json:"rows_per_second"`
	PeakAllocBytes  uint64  `json:"peak_alloc_bytes"`
	BatchesTotal    int     `json:"batches_total"`
	SlowImport      bool    `json:"slow_import"`
	HighMemoryUsage bool    `json:"high_memory_usage"`
}

// CsvImport is the persisted record of one import run: configuration,
// status, counters and the four outcome logs.
type CsvImport struct {
	Record
	Filename    string       `json:"filename"`
	StoredPath  string       `json:"stored_path,omitempty"`
	FileSize    int64        `json:"file_size"`
	Mode        ImportMode   `json:"mode"`
	OptionsJSON string       `json:"options_json,omitempty"`
	Status      ImportStatus `json:"status"`

	TotalRows      int `json:"total_rows"`
	ProcessedRows  int `json:"processed_rows"`
	SuccessfulRows int `json:"successful_rows"`
	FailedRows     int `json:"failed_rows"`
	SkippedRows    int `json:"skipped_rows"`
	CreatedCount   int `json:"created_count"`
	UpdatedCount   int `json:"updated_count"`

	CreatedLog []RowLogEntry `json:"created_log,omitempty"`
	UpdatedLog []RowLogEntry `json:"updated_log,omitempty"`
	SkippedLog []RowLogEntry `json:"skipped_log,omitempty"`
	ErrorLog   []RowLogEntry `json:"error_log,omitempty"`

	Metrics      *PerformanceMetrics `json:"performance_metrics,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// ResetCounters clears progress state so a run can start over.
func (c *CsvImport) ResetCounters() {
	c.Status = ImportStatusPending
	c.TotalRows, c.ProcessedRows = 0, 0
	c.SuccessfulRows, c.FailedRows, c.SkippedRows = 0, 0, 0
	c.CreatedCount, c.UpdatedCount = 0, 0
	c.CreatedLog, c.UpdatedLog = nil, nil
	c.SkippedLog, c.ErrorLog = nil, nil
	c.Metrics = nil
	c.ErrorMessage = ""
	c.StartedAt, c.FinishedAt = nil, nil
	c.Touch()
}

// CountersConsistent verifies the counter invariant:
// total = successful + failed + skipped once a run is terminal.
func (c *CsvImport) CountersConsistent() bool {
	return c.TotalRows-c.SuccessfulRows-c.FailedRows-c.SkippedRows == 0
}
