package ports

import (
	"context"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type OutcomeService interface {
	ElectionResults(ctx context.Context, electionID string) (*domain.ElectionResults, error)
	ProposalStatus(ctx context.Context, proposalID string) (*domain.ProposalStatus, error)
	// ResolveProposal decides an active proposal once its window has passed,
	// or at once when force is set. Resolved proposals are returned unchanged.
	ResolveProposal(ctx context.Context, proposalID string, force bool) (*domain.ProposalStatus, error)
	ResolveElection(ctx context.Context, electionID string, force bool) (*domain.ElectionResults, error)
	ResolveDue(ctx context.Context) (int, error)
}
