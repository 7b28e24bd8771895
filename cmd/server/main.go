// Blockvest risk engine - risk and reputation scoring for social lending
package main

import (
	"context"
	"os"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/config"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/logging"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting blockvest risk engine",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"reassess_interval", cfg.ReassessInterval,
		"fail_closed", cfg.ThresholdFailClosed,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
