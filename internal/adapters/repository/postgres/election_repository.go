package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

const electionColumns = `
	id, title, description, position, country, region, start_time, end_time,
	status, max_votes_per_voter, total_votes, total_voters, winner_candidate_id, created_at
`

func (r *ledgerRepository) SaveElection(ctx context.Context, election *domain.Election) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		queryElection := `
			INSERT INTO elections (id, title, description, position, country, region,
				start_time, end_time, status, max_votes_per_voter, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err := tx.ExecContext(ctx, queryElection,
			election.ID, election.Title, election.Description, election.Position,
			election.Country, election.Region, election.StartTime, election.EndTime,
			election.Status, election.MaxVotes(), election.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert election: %w", err)
		}

		queryCandidate := `
			INSERT INTO candidates (id, election_id, display_name, affiliation, position)
			VALUES ($1, $2, $3, $4, $5)
		`
		stmt, err := tx.PrepareContext(ctx, queryCandidate)
		if err != nil {
			return fmt.Errorf("failed to prepare candidate statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range election.Candidates {
			_, err = stmt.ExecContext(ctx, c.ID, election.ID, c.DisplayName, c.Affiliation, c.Position)
			if err != nil {
				return fmt.Errorf("failed to insert candidate: %w", err)
			}
		}
		return nil
	})
}

func (r *ledgerRepository) GetElection(ctx context.Context, id string) (*domain.Election, error) {
	election, err := getElection(ctx, r.db, id, "")
	return election, mapErr(err)
}

func (r *ledgerRepository) ListElections(ctx context.Context) ([]*domain.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections ORDER BY start_time`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapErr(fmt.Errorf("failed to list elections: %w", err))
	}
	defer rows.Close()

	var elections []*domain.Election
	for rows.Next() {
		election, err := scanElection(rows)
		if err != nil {
			return nil, err
		}
		elections = append(elections, election)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(fmt.Errorf("error iterating elections: %w", err))
	}
	rows.Close()

	for _, election := range elections {
		if election.Candidates, err = fetchCandidates(ctx, r.db, election.ID); err != nil {
			return nil, mapErr(err)
		}
	}
	return elections, nil
}

// CloseElection locks the election row for the whole transaction. Ballot
// inserts hold a share lock on the same row, so none can land between the
// settlement of pending claims and the status change.
func (r *ledgerRepository) CloseElection(ctx context.Context, id string, decide func(*domain.Election) string) (*domain.Election, bool, error) {
	var (
		result  *domain.Election
		changed bool
	)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		election, err := getElection(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if election.Status.IsTerminal() {
			result = election
			return nil
		}

		if err := settleScope(ctx, tx, domain.TargetRef{Type: domain.TargetElection, ID: id}); err != nil {
			return err
		}

		// counters moved while settling
		if election, err = getElection(ctx, tx, id, ""); err != nil {
			return err
		}

		winner := decide(election)
		query := `UPDATE elections SET status = $2, winner_candidate_id = NULLIF($3, '') WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id, domain.StatusClosed, winner); err != nil {
			return fmt.Errorf("failed to close election: %w", err)
		}

		election.Status = domain.StatusClosed
		election.WinnerID = winner
		result, changed = election, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// getElection loads the election and its candidates. lock is appended to the
// election select, e.g. "FOR UPDATE".
func getElection(ctx context.Context, q querier, id, lock string) (*domain.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections WHERE id = $1 ` + lock
	election, err := scanElection(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if election.Candidates, err = fetchCandidates(ctx, q, election.ID); err != nil {
		return nil, err
	}
	return election, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (*domain.Election, error) {
	var (
		election domain.Election
		winner   sql.NullString
	)
	err := row.Scan(
		&election.ID, &election.Title, &election.Description, &election.Position,
		&election.Country, &election.Region, &election.StartTime, &election.EndTime,
		&election.Status, &election.MaxVotesPerVoter, &election.TotalVotes,
		&election.TotalVoters, &winner, &election.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to scan election: %w", err)
	}
	election.WinnerID = winner.String
	return &election, nil
}

func fetchCandidates(ctx context.Context, q querier, electionID string) ([]domain.Candidate, error) {
	query := `
		SELECT id, election_id, display_name, affiliation, position, votes_received
		FROM candidates
		WHERE election_id = $1
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.ElectionID, &c.DisplayName, &c.Affiliation, &c.Position, &c.VotesReceived); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}
