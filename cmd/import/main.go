// Package main provides a one-shot CSV import tool.
//
// It runs a catalog import synchronously against the server database and
// prints the run summary, which is useful for initial loads and scripted
// migrations where the HTTP API is overkill.
//
// Usage:
//
//	go run ./cmd/import --file catalog.csv
//	go run ./cmd/import --file catalog.csv --mode update_only --quality-checks
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/importer"
	"github.com/stacksapp/stacks-server/internal/logger"
	"github.com/stacksapp/stacks-server/internal/service"
	"github.com/stacksapp/stacks-server/internal/store"
)

var (
	filePath      = flag.String("file", "", "CSV file to import (required)")
	dataPath      = flag.String("data-path", "", "Base path for database and uploads (default: ~/Stacks/data)")
	mode          = flag.String("mode", string(domain.ModeUpsert), "Import mode (create_only, update_only, upsert, create_duplicates)")
	batchSize     = flag.Int("batch-size", 50, "Rows per transaction")
	skipInvalid   = flag.Bool("skip-invalid", false, "Skip rows that fail validation instead of failing them")
	qualityChecks = flag.Bool("quality-checks", false, "Run data quality checks after the import")
	verbose       = flag.Bool("verbose", false, "Log row-level progress")
)

func main() {
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: import --file catalog.csv [--mode upsert] [--quality-checks]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	base := *dataPath
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		base = filepath.Join(home, "Stacks", "data")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	appLog := logger.New(logger.Config{Level: level})

	dbPath := filepath.Join(base, "stacks.db")
	fmt.Printf("Opening database at: %s\n", dbPath)

	st, err := store.Open(dbPath, appLog.Logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	importCfg := config.ImportConfig{
		BatchSize:           *batchSize,
		MaxFileSize:         1 << 30,
		MaxExecutionTime:    24 * time.Hour,
		SlowImportThreshold: 5 * time.Minute,
		MemoryWarningBytes:  256 << 20,
	}
	uploadDir := filepath.Join(base, "uploads")

	pipeline := importer.New(st, importCfg, uploadDir, appLog.Logger)
	imports, err := service.NewImportService(st, pipeline, importCfg, uploadDir, appLog.Logger)
	if err != nil {
		log.Fatalf("Failed to create import service: %v", err)
	}

	opts := importer.DefaultOptions()
	opts.Mode = domain.ImportMode(*mode)
	opts.BatchSize = *batchSize
	opts.SkipInvalidRows = *skipInvalid
	opts.RunQualityChecks = *qualityChecks

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *filePath, err)
	}
	defer f.Close()

	ctx := context.Background()

	run, err := imports.Create(ctx, service.CreateRequest{
		Filename: filepath.Base(*filePath),
		Options:  opts,
	}, f)
	if err != nil {
		log.Fatalf("Failed to create import: %v", err)
	}

	fmt.Printf("Importing %s (run %s, mode %s)...\n", run.Filename, run.ID, run.Mode)

	if err := pipeline.Run(ctx, run, opts); err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("Status:     %s\n", run.Status)
	fmt.Printf("Total rows: %d\n", run.TotalRows)
	fmt.Printf("Created:    %d\n", run.CreatedCount)
	fmt.Printf("Updated:    %d\n", run.UpdatedCount)
	fmt.Printf("Skipped:    %d\n", run.SkippedRows)
	fmt.Printf("Failed:     %d\n", run.FailedRows)
	if run.Metrics != nil {
		fmt.Printf("Duration:   %s (%.1f rows/sec)\n", time.Duration(run.Metrics.ElapsedMs)*time.Millisecond, run.Metrics.RowsPerSecond)
	}
	if run.ErrorMessage != "" {
		fmt.Printf("Error:      %s\n", run.ErrorMessage)
	}

	if len(run.ErrorLog) > 0 {
		fmt.Println("\nFailed rows:")
		for _, entry := range run.ErrorLog {
			fmt.Printf("  row %d: %s\n", entry.Row, entry.Reason)
		}
	}

	if run.Status != domain.ImportStatusCompleted {
		os.Exit(1)
	}
}
