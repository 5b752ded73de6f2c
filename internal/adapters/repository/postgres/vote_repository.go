package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

const electionVoteColumns = `
	id, election_id, voter_id, candidate_id, vote_count, proof_hash, proof_sequence, tally_state, cast_at
`

const voteColumns = `
	id, voter_id, target_id, target_type, choice, category, proof_hash, proof_sequence, tally_state, cast_at
`

// InsertElectionVote runs under a share lock on the election row, which
// CloseElection must wait out. The audit sequence row lock orders inserts
// for the same election, and a duplicate rolls the sequence back with the
// rest of the transaction.
func (r *ledgerRepository) InsertElectionVote(ctx context.Context, vote *domain.ElectionVote, seal domain.SealFunc) error {
	row := *vote
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var status domain.Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM elections WHERE id = $1 FOR SHARE`, row.ElectionID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrTargetNotFound
			}
			return fmt.Errorf("failed to lock election: %w", err)
		}
		if status.IsTerminal() {
			return domain.ErrVotingClosed
		}

		seq, err := nextSequence(ctx, tx, row.Scope())
		if err != nil {
			return err
		}
		row.ProofSequence = seq
		row.ProofHash = seal(seq)
		row.TallyState = domain.TallyPending

		query := `
			INSERT INTO election_votes (id, election_id, voter_id, candidate_id, vote_count,
				proof_hash, proof_sequence, tally_state, cast_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (election_id, voter_id) DO NOTHING
			RETURNING id
		`
		var id string
		err = tx.QueryRowContext(ctx, query,
			row.ID, row.ElectionID, row.VoterID, row.CandidateID, row.VoteCount,
			row.ProofHash, row.ProofSequence, row.TallyState, row.CastAt,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrDuplicateVote
		}
		if err != nil {
			return fmt.Errorf("failed to insert election vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	*vote = row
	return nil
}

func (r *ledgerRepository) InsertVote(ctx context.Context, vote *domain.Vote, seal domain.SealFunc) error {
	row := *vote
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		status, err := lockScope(ctx, tx, row.Scope(), "FOR SHARE")
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			return domain.ErrVotingClosed
		}

		seq, err := nextSequence(ctx, tx, row.Scope())
		if err != nil {
			return err
		}
		row.ProofSequence = seq
		row.ProofHash = seal(seq)
		row.TallyState = domain.TallyPending

		query := `
			INSERT INTO votes (id, voter_id, target_id, target_type, choice, category,
				proof_hash, proof_sequence, tally_state, cast_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (voter_id, target_id, target_type) DO NOTHING
			RETURNING id
		`
		var id string
		err = tx.QueryRowContext(ctx, query,
			row.ID, row.VoterID, row.TargetID, row.TargetType, row.Choice, row.Category,
			row.ProofHash, row.ProofSequence, row.TallyState, row.CastAt,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrDuplicateVote
		}
		if err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	*vote = row
	return nil
}

// nextSequence hands out the target's audit sequences starting at 1.
func nextSequence(ctx context.Context, tx *sql.Tx, scope domain.TargetRef) (int64, error) {
	query := `
		INSERT INTO audit_sequences (target_type, target_id, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (target_type, target_id) DO UPDATE
		SET last_seq = audit_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := tx.QueryRowContext(ctx, query, scope.Type, scope.ID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance audit sequence for %s %s: %w", scope.Type, scope.ID, err)
	}
	return seq, nil
}

func (r *ledgerRepository) GetElectionVote(ctx context.Context, electionID, voterID string) (*domain.ElectionVote, error) {
	query := `SELECT ` + electionVoteColumns + ` FROM election_votes WHERE election_id = $1 AND voter_id = $2`
	vote, err := scanElectionVote(r.db.QueryRowContext(ctx, query, electionID, voterID))
	return vote, mapErr(err)
}

func (r *ledgerRepository) GetVote(ctx context.Context, voterID string, targetType domain.TargetType, targetID string) (*domain.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE voter_id = $1 AND target_type = $2 AND target_id = $3`
	vote, err := scanVote(r.db.QueryRowContext(ctx, query, voterID, targetType, targetID))
	return vote, mapErr(err)
}

func (r *ledgerRepository) ListElectionVotes(ctx context.Context, electionID string, limit, offset int) ([]*domain.ElectionVote, int, error) {
	if limit < 0 || offset < 0 {
		return nil, 0, fmt.Errorf("%w: negative limit or offset", domain.ErrInvalidInput)
	}

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM election_votes WHERE election_id = $1`, electionID).Scan(&total)
	if err != nil {
		return nil, 0, mapErr(fmt.Errorf("failed to count election votes: %w", err))
	}

	query := `
		SELECT ` + electionVoteColumns + `
		FROM election_votes
		WHERE election_id = $1
		ORDER BY proof_sequence
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, electionID, limit, offset)
	if err != nil {
		return nil, 0, mapErr(fmt.Errorf("failed to list election votes: %w", err))
	}
	defer rows.Close()

	votes := []*domain.ElectionVote{}
	for rows.Next() {
		vote, err := scanElectionVote(rows)
		if err != nil {
			return nil, 0, err
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(fmt.Errorf("error iterating election votes: %w", err))
	}
	return votes, total, nil
}

func (r *ledgerRepository) FindElectionVoteByProof(ctx context.Context, electionID, proofHash string) (*domain.ElectionVote, error) {
	query := `SELECT ` + electionVoteColumns + ` FROM election_votes WHERE election_id = $1 AND proof_hash = $2`
	vote, err := scanElectionVote(r.db.QueryRowContext(ctx, query, electionID, proofHash))
	return vote, mapErr(err)
}

func (r *ledgerRepository) ListVotesByVoter(ctx context.Context, voterID string, limit int) ([]*domain.Vote, error) {
	query := `
		SELECT ` + voteColumns + `
		FROM votes
		WHERE voter_id = $1
		ORDER BY cast_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, voterID, limit)
	if err != nil {
		return nil, mapErr(fmt.Errorf("failed to list votes by voter: %w", err))
	}
	defer rows.Close()

	votes := []*domain.Vote{}
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(fmt.Errorf("error iterating votes: %w", err))
	}
	return votes, nil
}

func scanElectionVote(row rowScanner) (*domain.ElectionVote, error) {
	var v domain.ElectionVote
	err := row.Scan(
		&v.ID, &v.ElectionID, &v.VoterID, &v.CandidateID, &v.VoteCount,
		&v.ProofHash, &v.ProofSequence, &v.TallyState, &v.CastAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to scan election vote: %w", err)
	}
	return &v, nil
}

func scanVote(row rowScanner) (*domain.Vote, error) {
	var v domain.Vote
	err := row.Scan(
		&v.ID, &v.VoterID, &v.TargetID, &v.TargetType, &v.Choice, &v.Category,
		&v.ProofHash, &v.ProofSequence, &v.TallyState, &v.CastAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to scan vote: %w", err)
	}
	return &v, nil
}
