package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/tally/internal/config"
)

// migrations applies one embedded migration by name, e.g. "create_ledger.down",
// or every up migration when no name is given.
func main() {
	log := logrus.New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Fatal("failed to load .env file")
	}

	dsn := config.PostgresURL()
	if dsn == "" {
		log.Fatal("DATABASE_URL or POSTGRES_HOST is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if len(os.Args) < 2 {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		log.Info("all up migrations applied")
		return
	}

	file, err := postgres.FindMigration(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("unknown migration")
	}
	if err := postgres.ApplyMigration(ctx, db, file); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	log.WithField("file", file).Info("migration file executed successfully")
}
