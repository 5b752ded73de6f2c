package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type admissionService struct {
	ledger ports.LedgerRepository
	now    ports.Clock
}

func NewAdmissionService(ledger ports.LedgerRepository, clock ports.Clock) ports.AdmissionService {
	if clock == nil {
		clock = time.Now
	}
	return &admissionService{
		ledger: ledger,
		now:    clock,
	}
}

// Admit runs the eligibility checks in order and stops at the first failure:
// target exists, window open, candidate or choice valid, weight in bounds.
// It never checks for a prior vote; the ledger insert is the only arbiter.
func (s *admissionService) Admit(ctx context.Context, req domain.VoteRequest) (*domain.AdmittedVote, error) {
	voterID := strings.TrimSpace(req.VoterID)
	if voterID == "" {
		return nil, fmt.Errorf("%w: voter id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.TargetID) == "" {
		return nil, fmt.Errorf("%w: target id is required", domain.ErrInvalidInput)
	}
	req.VoterID = voterID

	switch req.TargetType {
	case domain.TargetElection:
		return s.admitElectionVote(ctx, req)
	case domain.TargetProposal:
		return s.admitProposalVote(ctx, req)
	case domain.TargetGenius, domain.TargetProject:
		return s.admitGenericVote(ctx, req)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTargetType, req.TargetType)
}

func (s *admissionService) admitElectionVote(ctx context.Context, req domain.VoteRequest) (*domain.AdmittedVote, error) {
	election, err := s.ledger.GetElection(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	if !election.IsOpen(s.now()) {
		return nil, domain.ErrVotingClosed
	}

	if _, ok := election.Candidate(req.CandidateID); !ok {
		return nil, domain.ErrInvalidCandidate
	}

	if req.VoteCount < 1 || req.VoteCount > election.MaxVotes() {
		return nil, fmt.Errorf("%w: must be between 1 and %d", domain.ErrInvalidWeight, election.MaxVotes())
	}

	return &domain.AdmittedVote{
		VoterID:     req.VoterID,
		Target:      domain.TargetRef{Type: domain.TargetElection, ID: election.ID},
		CandidateID: req.CandidateID,
		VoteCount:   req.VoteCount,
	}, nil
}

func (s *admissionService) admitProposalVote(ctx context.Context, req domain.VoteRequest) (*domain.AdmittedVote, error) {
	proposal, err := s.ledger.GetProposal(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	if !proposal.IsOpen(s.now()) {
		return nil, domain.ErrVotingClosed
	}

	choice, err := domain.ParseChoice(req.Choice)
	if err != nil {
		return nil, err
	}

	if req.VoteCount != 1 {
		return nil, fmt.Errorf("%w: proposal votes carry a weight of 1", domain.ErrInvalidWeight)
	}

	return &domain.AdmittedVote{
		VoterID:   req.VoterID,
		Target:    domain.TargetRef{Type: domain.TargetProposal, ID: proposal.ID},
		Choice:    choice,
		VoteCount: 1,
		Category:  req.Category,
	}, nil
}

func (s *admissionService) admitGenericVote(ctx context.Context, req domain.VoteRequest) (*domain.AdmittedVote, error) {
	target, err := s.ledger.GetTarget(ctx, req.TargetType, req.TargetID)
	if err != nil {
		return nil, err
	}

	if !target.IsOpen() {
		return nil, domain.ErrVotingClosed
	}

	if req.VoteCount != 1 {
		return nil, fmt.Errorf("%w: %s votes carry a weight of 1", domain.ErrInvalidWeight, req.TargetType)
	}

	return &domain.AdmittedVote{
		VoterID:   req.VoterID,
		Target:    domain.TargetRef{Type: target.Type, ID: target.ID},
		VoteCount: 1,
		Category:  strings.TrimSpace(req.Category),
	}, nil
}
