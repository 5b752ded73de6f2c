package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/adapters/repository/bolt"
	"github.com/vncsmyrnk/tally/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/tally/internal/config"
	"github.com/vncsmyrnk/tally/internal/core/ports"
	"github.com/vncsmyrnk/tally/internal/core/services"
)

// App holds the wired core services for one process.
type App struct {
	Ledger   ports.LedgerRepository
	Tallying ports.TallyingService
	Sweeper  *services.Sweeper

	close func() error
}

func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	ledger, closeLedger, err := OpenLedger(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	signer := services.NewAuditSigner(cfg.AuditSecret)
	admission := services.NewAdmissionService(ledger, nil)
	tally := services.NewTallyService(ledger, signer, nil, services.TallyConfig{
		IncrementBudget: cfg.IncrementRetryBudget,
	}, log)
	outcomes := services.NewOutcomeService(ledger, nil, log)

	return &App{
		Ledger: ledger,
		Tallying: services.NewTallyingService(ledger, admission, tally, outcomes, nil, services.TallyingConfig{
			ClaimRetries:            cfg.ClaimRetries,
			DefaultMaxVotesPerVoter: cfg.MaxVotesPerVoter,
		}, log),
		Sweeper: services.NewSweeper(tally, outcomes, nil, cfg.ReconcileAfter, log),
		close:   closeLedger,
	}, nil
}

func (a *App) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// OpenLedger opens the configured backend. Postgres is retried until it
// accepts connections or ctx ends, then migrated.
func OpenLedger(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (ports.LedgerRepository, func() error, error) {
	switch cfg.LedgerDriver {
	case config.DriverBolt:
		store, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.BoltPath).Info("bolt ledger opened")
		return store, store.Close, nil

	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = time.Minute
		ping := func() error { return db.PingContext(ctx) }
		notify := func(err error, wait time.Duration) {
			log.WithError(err).WithField("retry_in", wait).Warn("database not reachable yet")
		}
		if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to reach database: %w", err)
		}

		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("postgres ledger ready")
		return postgres.NewLedgerRepository(db), db.Close, nil
	}

	return nil, nil, errors.New("unknown ledger driver " + cfg.LedgerDriver)
}
