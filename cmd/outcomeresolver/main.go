package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/app"
	"github.com/vncsmyrnk/tally/internal/config"
)

// outcomeresolver runs one sweep and exits: pending votes are reconciled,
// due drafts are activated, and expired elections and proposals resolved.
// Meant for cron when the server's own sweeper is disabled.
func main() {
	cfg, err := config.Load("outcomeresolver", os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tally, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start ledger")
	}
	defer tally.Close()

	log.Info("starting outcome resolution")

	report, err := tally.Sweeper.RunOnce(ctx)
	entry := log.WithFields(logrus.Fields{
		"reconciled": report.Reconciled,
		"resolved":   report.Resolved,
	})
	if err != nil {
		entry.WithError(err).Error("outcome resolution finished with errors")
		tally.Close()
		os.Exit(1)
	}
	entry.Info("outcome resolution completed")
}
