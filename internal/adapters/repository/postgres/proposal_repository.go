package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

const proposalColumns = `
	id, title, description, category, proposer_id, status, votes_for, votes_against,
	votes_abstain, quorum_required, passing_threshold_pct, start_time, end_time, created_at
`

func (r *ledgerRepository) SaveProposal(ctx context.Context, proposal *domain.Proposal) error {
	query := `
		INSERT INTO proposals (id, title, description, category, proposer_id, status,
			quorum_required, passing_threshold_pct, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		proposal.ID, proposal.Title, proposal.Description, proposal.Category,
		proposal.ProposerID, proposal.Status, proposal.QuorumRequired,
		proposal.PassingThresholdPct, proposal.StartTime, proposal.EndTime, proposal.CreatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("failed to save proposal: %w", err))
	}
	return nil
}

func (r *ledgerRepository) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	proposal, err := getProposal(ctx, r.db, id, "")
	return proposal, mapErr(err)
}

func (r *ledgerRepository) ListProposals(ctx context.Context) ([]*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapErr(fmt.Errorf("failed to list proposals: %w", err))
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(fmt.Errorf("error iterating proposals: %w", err))
	}
	return proposals, nil
}

func (r *ledgerRepository) ResolveProposal(ctx context.Context, id string, decide func(*domain.Proposal) domain.Status) (*domain.Proposal, bool, error) {
	var (
		result  *domain.Proposal
		changed bool
	)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		proposal, err := getProposal(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if proposal.Status.IsTerminal() {
			result = proposal
			return nil
		}

		if err := settleScope(ctx, tx, domain.TargetRef{Type: domain.TargetProposal, ID: id}); err != nil {
			return err
		}

		if proposal, err = getProposal(ctx, tx, id, ""); err != nil {
			return err
		}

		status := decide(proposal)
		if !status.IsTerminal() {
			return fmt.Errorf("%w: %q is not a terminal status", domain.ErrInvalidInput, status)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE proposals SET status = $2 WHERE id = $1`, id, status); err != nil {
			return fmt.Errorf("failed to resolve proposal: %w", err)
		}

		proposal.Status = status
		result, changed = proposal, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (r *ledgerRepository) SaveTarget(ctx context.Context, target *domain.Target) error {
	query := `
		INSERT INTO targets (type, id, display_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, target.Type, target.ID, target.DisplayName, target.Status, target.CreatedAt)
	if err != nil {
		return mapErr(fmt.Errorf("failed to save target: %w", err))
	}
	return nil
}

func (r *ledgerRepository) GetTarget(ctx context.Context, targetType domain.TargetType, id string) (*domain.Target, error) {
	query := `
		SELECT type, id, display_name, status, votes_count, created_at
		FROM targets
		WHERE type = $1 AND id = $2
	`
	var target domain.Target
	err := r.db.QueryRowContext(ctx, query, targetType, id).Scan(
		&target.Type, &target.ID, &target.DisplayName, &target.Status, &target.VotesCount, &target.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, mapErr(fmt.Errorf("failed to get target: %w", err))
	}
	return &target, nil
}

func getProposal(ctx context.Context, q querier, id, lock string) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 ` + lock
	return scanProposal(q.QueryRowContext(ctx, query, id))
}

func scanProposal(row rowScanner) (*domain.Proposal, error) {
	var p domain.Proposal
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Category, &p.ProposerID, &p.Status,
		&p.VotesFor, &p.VotesAgainst, &p.VotesAbstain, &p.QuorumRequired,
		&p.PassingThresholdPct, &p.StartTime, &p.EndTime, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to scan proposal: %w", err)
	}
	return &p, nil
}
