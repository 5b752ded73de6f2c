package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) ports.LedgerRepository {
	return &ledgerRepository{
		db: db,
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn in a read-committed transaction and commits it when fn
// returns nil.
func (r *ledgerRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// mapErr translates driver failures into domain errors. Connection loss,
// resource exhaustion and serialization conflicts are transient.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == "23505" && isBallotConstraint(pqErr.Constraint):
			return fmt.Errorf("%w: %s", domain.ErrDuplicateVote, pqErr.Constraint)
		case code == "23505":
			return fmt.Errorf("%w: %s", domain.ErrTargetExists, pqErr.Constraint)
		case strings.HasPrefix(code, "08"),
			strings.HasPrefix(code, "53"),
			strings.HasPrefix(code, "57P0"),
			code == "40001",
			code == "40P01":
			return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	return err
}

func isBallotConstraint(name string) bool {
	return strings.HasPrefix(name, "election_votes_") || strings.HasPrefix(name, "votes_")
}
