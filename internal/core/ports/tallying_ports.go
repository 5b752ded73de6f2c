package ports

import (
	"context"
	"time"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type CastElectionVoteInput struct {
	ElectionID  string
	VoterID     string
	CandidateID string
	VoteCount   int
}

type CastProposalVoteInput struct {
	ProposalID string
	VoterID    string
	Choice     string
}

type CastGenericVoteInput struct {
	TargetType string
	TargetID   string
	VoterID    string
	Choice     string
	Category   string
}

type CreateElectionInput struct {
	Title            string
	Description      string
	Position         string
	Country          string
	Region           string
	StartTime        time.Time
	EndTime          time.Time
	MaxVotesPerVoter int
	Candidates       []CreateCandidateInput
}

type CreateCandidateInput struct {
	DisplayName string
	Affiliation string
}

type CreateProposalInput struct {
	Title               string
	Description         string
	Category            string
	ProposerID          string
	QuorumRequired      int64
	PassingThresholdPct *int
	StartTime           time.Time
	EndTime             time.Time
}

type CreateTargetInput struct {
	ID          string
	Type        string
	DisplayName string
}

type ListElectionsInput struct {
	Status  string
	Country string
}

type ListProposalsInput struct {
	Status   string
	Category string
}

type ListVotesInput struct {
	ElectionID string
	Page       int
	Limit      int
}

// TallyingService is the boundary the HTTP layer and admin jobs call.
type TallyingService interface {
	CastElectionVote(ctx context.Context, input CastElectionVoteInput) (*domain.TallyReceipt, error)
	CastProposalVote(ctx context.Context, input CastProposalVoteInput) (*domain.TallyReceipt, error)
	CastGenericVote(ctx context.Context, input CastGenericVoteInput) (*domain.TallyReceipt, error)

	GetElectionResults(ctx context.Context, electionID string) (*domain.ElectionResults, error)
	GetProposalStatus(ctx context.Context, proposalID string) (*domain.ProposalStatus, error)
	CheckHasVoted(ctx context.Context, electionID, voterID string) (*domain.HasVoted, error)
	CheckHasVotedTarget(ctx context.Context, targetType, targetID, voterID string) (*domain.HasVotedTarget, error)
	CloseProposal(ctx context.Context, proposalID string) (*domain.ProposalStatus, error)
	CloseElection(ctx context.Context, electionID string) (*domain.ElectionResults, error)
	RetireElection(ctx context.Context, electionID string) (*domain.ElectionResults, error)
	RetireProposal(ctx context.Context, proposalID string) (*domain.ProposalStatus, error)
	RetireTarget(ctx context.Context, targetType, targetID string) (*domain.Target, error)

	GetElection(ctx context.Context, electionID string) (*domain.Election, error)
	ListElections(ctx context.Context, input ListElectionsInput) ([]*domain.Election, error)
	ListProposals(ctx context.Context, input ListProposalsInput) ([]*domain.Proposal, error)
	GetTarget(ctx context.Context, targetType, targetID string) (*domain.Target, error)
	ListElectionVotes(ctx context.Context, input ListVotesInput) (*domain.VotePage, error)
	VerifyProof(ctx context.Context, electionID, proofHash string) (*domain.ProofVerification, error)
	VotingHistory(ctx context.Context, voterID string) ([]*domain.HistoryEntry, error)

	CreateElection(ctx context.Context, input CreateElectionInput) (*domain.Election, error)
	CreateProposal(ctx context.Context, input CreateProposalInput) (*domain.Proposal, error)
	CreateTarget(ctx context.Context, input CreateTargetInput) (*domain.Target, error)
}
