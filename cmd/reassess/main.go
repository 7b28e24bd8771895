// Command reassess runs one reassessment sweep and prints a risk report.
//
// Intended for cron or one-off operational use against the shared database:
//
//	DATABASE_URL=postgres://... go run ./cmd/reassess
//	DATABASE_URL=postgres://... go run ./cmd/reassess -report-days 30
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/logging"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/notify"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/risk"
)

func main() {
	reportDays := flag.Int("report-days", 7, "timeframe for the printed risk report")
	skipSweep := flag.Bool("report-only", false, "print the report without reassessing")
	flag.Parse()

	logger := logging.New("info", "text")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	users := directory.NewPostgresStore(db)
	investments := ledger.NewPostgresStore(db)
	assessments := risk.NewPostgresStore(db)
	sink := notify.NewMemorySink()

	assessor := risk.NewAssessor(investments, users, assessments, sink, logger)
	// Interval is irrelevant for a one-shot run
	scheduler := risk.NewScheduler(assessor, assessments, investments, sink, time.Hour, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if !*skipSweep {
		if err := scheduler.RunOnce(ctx); err != nil {
			logger.Error("reassessment sweep failed", "error", err)
			os.Exit(1)
		}
	}

	report, err := scheduler.BuildReport(ctx, *reportDays)
	if err != nil {
		logger.Error("failed to build report", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
