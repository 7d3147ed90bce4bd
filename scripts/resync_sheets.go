// Command resync_sheets rewrites the bookings spreadsheet from the database and
// requeues sync tasks that exhausted their retries.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/google"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		requeue    = flag.Bool("requeue", true, "reset failed sync tasks to pending")
		dryRun     = flag.Bool("dry-run", false, "count bookings without touching the sheet")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Google.Enabled {
		return fmt.Errorf("google sync is disabled in %s", *configPath)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bookings, err := db.ListAllBookings(ctx)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}

	failed, err := db.GetFailedSyncTasks(ctx)
	if err != nil {
		return fmt.Errorf("list failed tasks: %w", err)
	}

	if *dryRun {
		fmt.Printf("dry run: bookings=%d failed_tasks=%d\n", len(bookings), len(failed))
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, cfg.Google.SheetName)
	if err != nil {
		return fmt.Errorf("connect sheets: %w", err)
	}
	if err := sheetsService.ReplaceBookingsSheet(ctx, bookings); err != nil {
		return fmt.Errorf("replace sheet: %w", err)
	}

	var requeued int64
	if *requeue {
		// the sheet now matches the database, so retried tasks only reapply current state
		if requeued, err = db.ResetFailedSyncTasks(ctx); err != nil {
			return fmt.Errorf("requeue: %w", err)
		}
	}

	fmt.Printf("done: rows=%d failed_tasks=%d requeued=%d\n", len(bookings), len(failed), requeued)
	return nil
}
