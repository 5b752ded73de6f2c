package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations lists the embedded migration files in apply order.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// FindMigration returns the file whose name ends with name + ".sql", so
// "create_ledger.up" finds "0001_create_ledger.up.sql".
func FindMigration(name string) (string, error) {
	pattern, err := regexp.Compile(fmt.Sprintf(`^.*%s\.sql$`, regexp.QuoteMeta(name)))
	if err != nil {
		return "", fmt.Errorf("invalid migration name %q: %w", name, err)
	}

	names, err := Migrations()
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if pattern.MatchString(n) {
			return n, nil
		}
	}
	return "", fmt.Errorf("migration %q not found", name)
}

// ApplyMigration executes one embedded migration file.
func ApplyMigration(ctx context.Context, db *sql.DB, file string) error {
	content, err := migrationFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", file, err)
	}

	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return mapErr(fmt.Errorf("failed to execute migration %s: %w", file, err))
	}
	return nil
}

// Migrate applies every up migration. The schema statements are idempotent,
// so running it against an up-to-date database changes nothing.
func Migrate(ctx context.Context, db *sql.DB) error {
	names, err := Migrations()
	if err != nil {
		return err
	}

	for _, name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		if err := ApplyMigration(ctx, db, name); err != nil {
			return err
		}
	}
	return nil
}
