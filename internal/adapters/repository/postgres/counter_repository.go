package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

var terminalStatuses = pq.StringArray{
	string(domain.StatusClosed),
	string(domain.StatusPassed),
	string(domain.StatusRejected),
	string(domain.StatusExpired),
	string(domain.StatusRetired),
}

// IncrementCounters takes the same row lock on the vote's election, proposal
// or target that the UPDATEs below would take anyway, before touching the
// ballot row. Every writer locks in that order.
func (r *ledgerRepository) IncrementCounters(ctx context.Context, claim domain.ClaimRef, deltas []domain.CounterDelta) ([]int64, error) {
	var values []int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		scope, err := claimScope(ctx, tx, claim)
		if err != nil {
			return err
		}
		if _, err := lockScope(ctx, tx, scope, "FOR NO KEY UPDATE"); err != nil {
			return err
		}

		values, err = settle(ctx, tx, claim, deltas)
		return err
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func claimScope(ctx context.Context, tx *sql.Tx, claim domain.ClaimRef) (domain.TargetRef, error) {
	var (
		scope domain.TargetRef
		err   error
	)
	switch claim.Kind {
	case domain.ClaimElection:
		scope.Type = domain.TargetElection
		err = tx.QueryRowContext(ctx, `SELECT election_id FROM election_votes WHERE id = $1`, claim.VoteID).Scan(&scope.ID)
	case domain.ClaimGeneric:
		err = tx.QueryRowContext(ctx, `SELECT target_type, target_id FROM votes WHERE id = $1`, claim.VoteID).Scan(&scope.Type, &scope.ID)
	default:
		return scope, fmt.Errorf("%w: unknown claim kind %q", domain.ErrInvalidInput, claim.Kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return scope, domain.ErrVoteNotFound
	}
	if err != nil {
		return scope, fmt.Errorf("failed to find vote %s: %w", claim.VoteID, err)
	}
	return scope, nil
}

// lockScope locks the row that owns the scope's window and returns its status.
func lockScope(ctx context.Context, tx *sql.Tx, scope domain.TargetRef, lock string) (domain.Status, error) {
	var row *sql.Row
	switch scope.Type {
	case domain.TargetElection:
		row = tx.QueryRowContext(ctx, `SELECT status FROM elections WHERE id = $1 `+lock, scope.ID)
	case domain.TargetProposal:
		row = tx.QueryRowContext(ctx, `SELECT status FROM proposals WHERE id = $1 `+lock, scope.ID)
	case domain.TargetGenius, domain.TargetProject:
		row = tx.QueryRowContext(ctx, `SELECT status FROM targets WHERE type = $1 AND id = $2 `+lock, scope.Type, scope.ID)
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidTargetType, scope.Type)
	}

	var status domain.Status
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrTargetNotFound
		}
		return "", fmt.Errorf("failed to lock %s %s: %w", scope.Type, scope.ID, err)
	}
	return status, nil
}

// settle flips the claim from pending to counted and applies its deltas.
// The conditional update is what makes a repeated settle a no-op.
func settle(ctx context.Context, tx *sql.Tx, claim domain.ClaimRef, deltas []domain.CounterDelta) ([]int64, error) {
	table := "votes"
	if claim.Kind == domain.ClaimElection {
		table = "election_votes"
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET tally_state = 'counted' WHERE id = $1 AND tally_state = 'pending'`,
		claim.VoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark vote %s counted: %w", claim.VoteID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to mark vote %s counted: %w", claim.VoteID, err)
	}
	if n == 0 {
		return nil, domain.ErrAlreadyCounted
	}

	values := make([]int64, 0, len(deltas))
	for _, d := range deltas {
		query, args, err := counterUpdate(d)
		if err != nil {
			return nil, err
		}

		var v int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s %s", domain.ErrTargetNotFound, d.Ref.Type, d.Ref.ID)
			}
			return nil, fmt.Errorf("failed to increment %s on %s %s: %w", d.Field, d.Ref.Type, d.Ref.ID, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// counterUpdate maps a delta to a fixed statement; field names never reach
// the SQL text from outside this switch.
func counterUpdate(d domain.CounterDelta) (string, []any, error) {
	switch d.Ref.Type {
	case domain.TargetCandidate:
		if d.Field == domain.FieldVotesReceived {
			return `UPDATE candidates SET votes_received = votes_received + $1
				WHERE id = $2 AND election_id = $3 RETURNING votes_received`,
				[]any{d.Delta, d.Ref.ID, d.Ref.ParentID}, nil
		}

	case domain.TargetElection:
		switch d.Field {
		case domain.FieldTotalVotes:
			return `UPDATE elections SET total_votes = total_votes + $1 WHERE id = $2 RETURNING total_votes`,
				[]any{d.Delta, d.Ref.ID}, nil
		case domain.FieldTotalVoters:
			return `UPDATE elections SET total_voters = total_voters + $1 WHERE id = $2 RETURNING total_voters`,
				[]any{d.Delta, d.Ref.ID}, nil
		}

	case domain.TargetProposal:
		switch d.Field {
		case domain.FieldVotesFor:
			return `UPDATE proposals SET votes_for = votes_for + $1 WHERE id = $2 RETURNING votes_for`,
				[]any{d.Delta, d.Ref.ID}, nil
		case domain.FieldVotesAgainst:
			return `UPDATE proposals SET votes_against = votes_against + $1 WHERE id = $2 RETURNING votes_against`,
				[]any{d.Delta, d.Ref.ID}, nil
		case domain.FieldVotesAbstain:
			return `UPDATE proposals SET votes_abstain = votes_abstain + $1 WHERE id = $2 RETURNING votes_abstain`,
				[]any{d.Delta, d.Ref.ID}, nil
		}

	case domain.TargetGenius, domain.TargetProject:
		if d.Field == domain.FieldVotesCount {
			return `UPDATE targets SET votes_count = votes_count + $1
				WHERE type = $2 AND id = $3 RETURNING votes_count`,
				[]any{d.Delta, d.Ref.Type, d.Ref.ID}, nil
		}
	}
	return "", nil, fmt.Errorf("%w: no counter %s on %s", domain.ErrInvalidInput, d.Field, d.Ref.Type)
}

// settleScope applies every pending claim recorded against scope. The caller
// holds the scope row lock.
func settleScope(ctx context.Context, tx *sql.Tx, scope domain.TargetRef) error {
	claims, err := pendingClaims(ctx, tx, domain.PendingFilter{Scope: &scope}, "FOR UPDATE")
	if err != nil {
		return err
	}

	for _, claim := range claims {
		if _, err := settle(ctx, tx, claim.Ref, claim.Deltas); err != nil {
			return fmt.Errorf("failed to settle vote %s: %w", claim.Ref.VoteID, err)
		}
	}
	return nil
}

func (r *ledgerRepository) Retire(ctx context.Context, ref domain.TargetRef) (bool, error) {
	var query string
	args := []any{domain.StatusRetired, ref.ID}
	switch ref.Type {
	case domain.TargetElection:
		query = `UPDATE elections SET status = $1 WHERE id = $2`
	case domain.TargetProposal:
		query = `UPDATE proposals SET status = $1 WHERE id = $2`
	case domain.TargetGenius, domain.TargetProject:
		query = `UPDATE targets SET status = $1 WHERE id = $2 AND type = $3`
		args = append(args, ref.Type)
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidTargetType, ref.Type)
	}

	changed := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		status, err := lockScope(ctx, tx, ref, "FOR UPDATE")
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			return nil
		}

		if err := settleScope(ctx, tx, ref); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to retire %s %s: %w", ref.Type, ref.ID, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *ledgerRepository) ListPendingClaims(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingClaim, error) {
	claims, err := pendingClaims(ctx, r.db, filter, "")
	return claims, mapErr(err)
}

func pendingClaims(ctx context.Context, q querier, filter domain.PendingFilter, lock string) ([]domain.PendingClaim, error) {
	castBefore := sql.NullTime{Time: filter.CastBefore, Valid: !filter.CastBefore.IsZero()}
	limit := sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0}

	claims := []domain.PendingClaim{}

	if filter.Scope == nil || filter.Scope.Type == domain.TargetElection {
		var electionID string
		if filter.Scope != nil {
			electionID = filter.Scope.ID
		}
		query := `
			SELECT ` + electionVoteColumns + `
			FROM election_votes
			WHERE tally_state = 'pending'
				AND ($1::timestamptz IS NULL OR cast_at < $1)
				AND ($2::text = '' OR election_id = $2)
			ORDER BY cast_at
			LIMIT $3
		` + lock
		rows, err := q.QueryContext(ctx, query, castBefore, electionID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending election votes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scanElectionVote(rows)
			if err != nil {
				return nil, err
			}
			claims = append(claims, domain.PendingClaim{Ref: v.Claim(), Scope: v.Scope(), Deltas: v.Deltas(), CastAt: v.CastAt})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating pending election votes: %w", err)
		}
		rows.Close()
	}

	if filter.Scope == nil || filter.Scope.Type != domain.TargetElection {
		var targetType, targetID string
		if filter.Scope != nil {
			targetType, targetID = string(filter.Scope.Type), filter.Scope.ID
		}
		query := `
			SELECT ` + voteColumns + `
			FROM votes
			WHERE tally_state = 'pending'
				AND ($1::timestamptz IS NULL OR cast_at < $1)
				AND ($2::text = '' OR (target_type = $2 AND target_id = $3))
			ORDER BY cast_at
			LIMIT $4
		` + lock
		rows, err := q.QueryContext(ctx, query, castBefore, targetType, targetID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending votes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scanVote(rows)
			if err != nil {
				return nil, err
			}
			claims = append(claims, domain.PendingClaim{Ref: v.Claim(), Scope: v.Scope(), Deltas: v.Deltas(), CastAt: v.CastAt})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating pending votes: %w", err)
		}
	}

	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].CastAt.Before(claims[j].CastAt)
	})
	if filter.Limit > 0 && len(claims) > filter.Limit {
		claims = claims[:filter.Limit]
	}
	return claims, nil
}

func (r *ledgerRepository) ActivateDue(ctx context.Context, now time.Time) (int, error) {
	activated := 0
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		statements := []struct {
			query string
			from  domain.Status
		}{
			{`UPDATE elections SET status = 'active' WHERE status = $1 AND start_time <= $2`, domain.StatusUpcoming},
			{`UPDATE proposals SET status = 'active' WHERE status = $1 AND start_time <= $2`, domain.StatusDraft},
		}
		for _, st := range statements {
			res, err := tx.ExecContext(ctx, st.query, st.from, now)
			if err != nil {
				return fmt.Errorf("failed to activate due windows: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to activate due windows: %w", err)
			}
			activated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return activated, nil
}

func (r *ledgerRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.TargetRef, error) {
	query := `
		SELECT 'election', id FROM elections WHERE status <> ALL($1) AND end_time < $2
		UNION ALL
		SELECT 'proposal', id FROM proposals WHERE status <> ALL($1) AND end_time < $2
	`
	rows, err := r.db.QueryContext(ctx, query, terminalStatuses, now)
	if err != nil {
		return nil, mapErr(fmt.Errorf("failed to list expired windows: %w", err))
	}
	defer rows.Close()

	var refs []domain.TargetRef
	for rows.Next() {
		var ref domain.TargetRef
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return nil, fmt.Errorf("failed to scan expired window: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(fmt.Errorf("error iterating expired windows: %w", err))
	}
	return refs, nil
}
