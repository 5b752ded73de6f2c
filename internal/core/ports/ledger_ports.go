package ports

import (
	"context"
	"time"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

// LedgerRepository is the durable store behind the tallying core. Every
// method that mutates shared state is a single atomic unit in the backend.
type LedgerRepository interface {
	SaveElection(ctx context.Context, election *domain.Election) error
	GetElection(ctx context.Context, id string) (*domain.Election, error)
	ListElections(ctx context.Context) ([]*domain.Election, error)

	SaveProposal(ctx context.Context, proposal *domain.Proposal) error
	GetProposal(ctx context.Context, id string) (*domain.Proposal, error)
	ListProposals(ctx context.Context) ([]*domain.Proposal, error)

	SaveTarget(ctx context.Context, target *domain.Target) error
	GetTarget(ctx context.Context, targetType domain.TargetType, id string) (*domain.Target, error)

	// InsertElectionVote claims the (election, voter) slot, assigns the next
	// audit sequence for the election, seals the row and stores it as
	// pending, all in one step. It fails with domain.ErrDuplicateVote when the
	// slot is taken and domain.ErrVotingClosed when the election has already
	// reached a terminal status. On success vote carries its sequence and hash.
	InsertElectionVote(ctx context.Context, vote *domain.ElectionVote, seal domain.SealFunc) error
	// InsertVote is InsertElectionVote for the generic (voter, target, type) slot.
	InsertVote(ctx context.Context, vote *domain.Vote, seal domain.SealFunc) error
	// IncrementCounters marks the claim counted and applies every delta in
	// one step, returning the new counter values in delta order. A claim
	// that was already counted yields domain.ErrAlreadyCounted.
	IncrementCounters(ctx context.Context, claim domain.ClaimRef, deltas []domain.CounterDelta) ([]int64, error)
	ListPendingClaims(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingClaim, error)

	GetElectionVote(ctx context.Context, electionID, voterID string) (*domain.ElectionVote, error)
	GetVote(ctx context.Context, voterID string, targetType domain.TargetType, targetID string) (*domain.Vote, error)
	ListElectionVotes(ctx context.Context, electionID string, limit, offset int) ([]*domain.ElectionVote, int, error)
	FindElectionVoteByProof(ctx context.Context, electionID, proofHash string) (*domain.ElectionVote, error)
	ListVotesByVoter(ctx context.Context, voterID string, limit int) ([]*domain.Vote, error)

	// ActivateDue moves upcoming elections and draft proposals whose start
	// time has passed to active.
	ActivateDue(ctx context.Context, now time.Time) (int, error)
	// ListExpired returns non-terminal elections and proposals whose end time
	// has passed.
	ListExpired(ctx context.Context, now time.Time) ([]domain.TargetRef, error)
	// CloseElection applies the election's pending claims, asks decide for the
	// winner and moves the election to closed, in one step that no concurrent
	// vote can interleave with. It reports false, with the stored election,
	// when the election was already terminal.
	CloseElection(ctx context.Context, id string, decide func(*domain.Election) string) (*domain.Election, bool, error)
	// ResolveProposal is CloseElection for proposals; decide returns the
	// terminal status computed from the fully applied counters.
	ResolveProposal(ctx context.Context, id string, decide func(*domain.Proposal) domain.Status) (*domain.Proposal, bool, error)
	// Retire takes an election, proposal or generic target out of voting
	// without deleting it or its ballots. Pending claims are applied first so
	// the counters stay complete. It reports false when the record was
	// already terminal.
	Retire(ctx context.Context, ref domain.TargetRef) (bool, error)
}
