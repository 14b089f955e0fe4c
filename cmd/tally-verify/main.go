// tally-verify recomputes every account's totals from its transaction
// history and repairs any stored aggregate that diverges. It runs once and
// exits, making it usable from cron or as a manual consistency check.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"tally/internal/config"
	applog "tally/internal/log"
	"tally/internal/storage"
	"tally/internal/worker"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "", "verify a single account instead of all")
	flag.Parse()

	cfg := config.Load()
	logger := applog.Setup(cfg.LogLevel, "tally-verify")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	verifier := worker.NewVerifyWorker(repo, nil)
	ctx := context.Background()

	if *userID != "" {
		if err := verifier.VerifyUser(ctx, *userID); err != nil {
			logger.Error("Verification failed", "user_id", *userID, "error", err)
			os.Exit(1)
		}
		logger.Info("Account verified", "user_id", *userID)
		return
	}

	if err := verifier.SweepAll(ctx); err != nil {
		logger.Error("Verification sweep failed", "error", err)
		os.Exit(1)
	}
	logger.Info("All accounts verified")
}
