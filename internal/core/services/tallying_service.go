package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const (
	defaultVotePageLimit = 50
	maxVotePageLimit     = 200
	votingHistoryLimit   = 100
)

type TallyingConfig struct {
	// ClaimRetries is how many times a cast is retried after the store
	// reports itself unavailable.
	ClaimRetries uint64
	// DefaultMaxVotesPerVoter applies to elections created without one.
	DefaultMaxVotesPerVoter int
}

type tallyingService struct {
	ledger    ports.LedgerRepository
	admission ports.AdmissionService
	tally     ports.TallyService
	outcomes  ports.OutcomeService
	now       ports.Clock
	cfg       TallyingConfig
	log       logrus.FieldLogger
}

func NewTallyingService(
	ledger ports.LedgerRepository,
	admission ports.AdmissionService,
	tally ports.TallyService,
	outcomes ports.OutcomeService,
	clock ports.Clock,
	cfg TallyingConfig,
	log logrus.FieldLogger,
) ports.TallyingService {
	if clock == nil {
		clock = time.Now
	}
	if cfg.DefaultMaxVotesPerVoter <= 0 {
		cfg.DefaultMaxVotesPerVoter = domain.DefaultMaxVotesPerVoter
	}
	return &tallyingService{
		ledger:    ledger,
		admission: admission,
		tally:     tally,
		outcomes:  outcomes,
		now:       clock,
		cfg:       cfg,
		log:       log,
	}
}

func (s *tallyingService) CastElectionVote(ctx context.Context, input ports.CastElectionVoteInput) (*domain.TallyReceipt, error) {
	return s.cast(ctx, domain.VoteRequest{
		VoterID:     input.VoterID,
		TargetType:  domain.TargetElection,
		TargetID:    input.ElectionID,
		CandidateID: input.CandidateID,
		VoteCount:   input.VoteCount,
	})
}

func (s *tallyingService) CastProposalVote(ctx context.Context, input ports.CastProposalVoteInput) (*domain.TallyReceipt, error) {
	return s.cast(ctx, domain.VoteRequest{
		VoterID:    input.VoterID,
		TargetType: domain.TargetProposal,
		TargetID:   input.ProposalID,
		Choice:     input.Choice,
		VoteCount:  1,
	})
}

func (s *tallyingService) CastGenericVote(ctx context.Context, input ports.CastGenericVoteInput) (*domain.TallyReceipt, error) {
	targetType, err := domain.ParseVoteTargetType(input.TargetType)
	if err != nil {
		return nil, err
	}

	if targetType == domain.TargetProposal {
		return s.CastProposalVote(ctx, ports.CastProposalVoteInput{
			ProposalID: input.TargetID,
			VoterID:    input.VoterID,
			Choice:     input.Choice,
		})
	}

	return s.cast(ctx, domain.VoteRequest{
		VoterID:    input.VoterID,
		TargetType: targetType,
		TargetID:   input.TargetID,
		VoteCount:  1,
		Category:   input.Category,
	})
}

// cast runs admission and the tally engine in sequence. Only a store outage
// is retried; once the claim is granted the engine owns the vote, so a retry
// that lands after a lost acknowledgement sees ErrDuplicateVote.
func (s *tallyingService) cast(ctx context.Context, req domain.VoteRequest) (*domain.TallyReceipt, error) {
	var receipt *domain.TallyReceipt

	op := func() error {
		admitted, err := s.admission.Admit(ctx, req)
		if err != nil {
			return retryable(err)
		}

		receipt, err = s.tally.CastVote(ctx, admitted)
		return retryable(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.ClaimRetries), ctx)
	notify := func(err error, wait time.Duration) {
		s.log.WithError(err).WithFields(logrus.Fields{
			"target_type": req.TargetType,
			"target_id":   req.TargetID,
			"retry_in":    wait,
		}).Warn("vote claim failed, retrying")
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"vote_id":     receipt.VoteID,
		"target_type": receipt.TargetType,
		"target_id":   receipt.TargetID,
		"sequence":    receipt.Sequence,
	})
	if receipt.Pending {
		entry.Warn("vote recorded, counters pending")
	} else {
		entry.Debug("vote recorded")
	}

	return receipt, nil
}

func retryable(err error) error {
	if err == nil || errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return backoff.Permanent(err)
}

func (s *tallyingService) GetElectionResults(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	return s.outcomes.ElectionResults(ctx, electionID)
}

func (s *tallyingService) GetProposalStatus(ctx context.Context, proposalID string) (*domain.ProposalStatus, error) {
	return s.outcomes.ProposalStatus(ctx, proposalID)
}

func (s *tallyingService) CheckHasVoted(ctx context.Context, electionID, voterID string) (*domain.HasVoted, error) {
	if strings.TrimSpace(voterID) == "" {
		return nil, fmt.Errorf("%w: voter id is required", domain.ErrInvalidInput)
	}
	if _, err := s.ledger.GetElection(ctx, electionID); err != nil {
		return nil, err
	}

	vote, err := s.ledger.GetElectionVote(ctx, electionID, voterID)
	if errors.Is(err, domain.ErrVoteNotFound) {
		return &domain.HasVoted{HasVoted: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.HasVoted{HasVoted: true, Vote: vote}, nil
}

func (s *tallyingService) CheckHasVotedTarget(ctx context.Context, targetType, targetID, voterID string) (*domain.HasVotedTarget, error) {
	t, err := domain.ParseVoteTargetType(targetType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(voterID) == "" {
		return nil, fmt.Errorf("%w: voter id is required", domain.ErrInvalidInput)
	}

	if t == domain.TargetProposal {
		_, err = s.ledger.GetProposal(ctx, targetID)
	} else {
		_, err = s.ledger.GetTarget(ctx, t, targetID)
	}
	if err != nil {
		return nil, err
	}

	vote, err := s.ledger.GetVote(ctx, voterID, t, targetID)
	if errors.Is(err, domain.ErrVoteNotFound) {
		return &domain.HasVotedTarget{HasVoted: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.HasVotedTarget{HasVoted: true, Vote: vote}, nil
}

func (s *tallyingService) CloseProposal(ctx context.Context, proposalID string) (*domain.ProposalStatus, error) {
	return s.outcomes.ResolveProposal(ctx, proposalID, true)
}

func (s *tallyingService) CloseElection(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	return s.outcomes.ResolveElection(ctx, electionID, true)
}

// RetireElection stops an election from taking votes without closing it, so
// no winner is declared. Ballots and counters are kept.
func (s *tallyingService) RetireElection(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	if err := s.retire(ctx, domain.TargetRef{Type: domain.TargetElection, ID: electionID}); err != nil {
		return nil, err
	}
	return s.outcomes.ElectionResults(ctx, electionID)
}

func (s *tallyingService) RetireProposal(ctx context.Context, proposalID string) (*domain.ProposalStatus, error) {
	if err := s.retire(ctx, domain.TargetRef{Type: domain.TargetProposal, ID: proposalID}); err != nil {
		return nil, err
	}
	return s.outcomes.ProposalStatus(ctx, proposalID)
}

func (s *tallyingService) RetireTarget(ctx context.Context, targetType, targetID string) (*domain.Target, error) {
	t, err := parseTargetType(targetType)
	if err != nil {
		return nil, err
	}
	if err := s.retire(ctx, domain.TargetRef{Type: t, ID: targetID}); err != nil {
		return nil, err
	}
	return s.ledger.GetTarget(ctx, t, targetID)
}

func (s *tallyingService) retire(ctx context.Context, ref domain.TargetRef) error {
	changed, err := s.ledger.Retire(ctx, ref)
	if err != nil {
		return err
	}
	if changed {
		s.log.WithFields(logrus.Fields{
			"target_type": ref.Type,
			"target_id":   ref.ID,
		}).Info("target retired")
	}
	return nil
}

func (s *tallyingService) GetElection(ctx context.Context, electionID string) (*domain.Election, error) {
	election, err := s.ledger.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	election.Status = election.EffectiveStatus(s.now())
	return election, nil
}

func (s *tallyingService) ListElections(ctx context.Context, input ports.ListElectionsInput) ([]*domain.Election, error) {
	filter, err := parseStatusFilter(input.Status)
	if err != nil {
		return nil, err
	}

	elections, err := s.ledger.ListElections(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	country := strings.TrimSpace(input.Country)
	result := make([]*domain.Election, 0, len(elections))
	for _, e := range elections {
		e.Status = e.EffectiveStatus(now)
		if filter != "" && e.Status != filter {
			continue
		}
		if country != "" && !strings.EqualFold(e.Country, country) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *tallyingService) ListProposals(ctx context.Context, input ports.ListProposalsInput) ([]*domain.Proposal, error) {
	filter, err := parseStatusFilter(input.Status)
	if err != nil {
		return nil, err
	}

	var category string
	if strings.TrimSpace(input.Category) != "" {
		if category, err = domain.ParseProposalCategory(input.Category); err != nil {
			return nil, err
		}
	}

	proposals, err := s.ledger.ListProposals(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*domain.Proposal, 0, len(proposals))
	for _, p := range proposals {
		p.Status = p.EffectiveStatus(now)
		if filter != "" && p.Status != filter {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func parseStatusFilter(raw string) (domain.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return domain.ParseStatus(raw)
}

func (s *tallyingService) GetTarget(ctx context.Context, targetType, targetID string) (*domain.Target, error) {
	t, err := parseTargetType(targetType)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetTarget(ctx, t, targetID)
}

// parseTargetType accepts the types stored as generic targets. Proposals are
// vote targets too but live in their own table.
func parseTargetType(raw string) (domain.TargetType, error) {
	t, err := domain.ParseVoteTargetType(raw)
	if err != nil {
		return "", err
	}
	if t == domain.TargetProposal {
		return "", fmt.Errorf("%w: proposals are not generic targets", domain.ErrInvalidTargetType)
	}
	return t, nil
}

// ListElectionVotes pages through an election's ballots with voter ids removed.
func (s *tallyingService) ListElectionVotes(ctx context.Context, input ports.ListVotesInput) (*domain.VotePage, error) {
	if _, err := s.ledger.GetElection(ctx, input.ElectionID); err != nil {
		return nil, err
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 {
		limit = defaultVotePageLimit
	}
	if limit > maxVotePageLimit {
		limit = maxVotePageLimit
	}
	// past this page the offset no longer fits in an int
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	votes, total, err := s.ledger.ListElectionVotes(ctx, input.ElectionID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	for _, v := range votes {
		v.VoterID = ""
	}

	return &domain.VotePage{
		Votes: votes,
		Page:  page,
		Limit: limit,
		Total: total,
	}, nil
}

func (s *tallyingService) VerifyProof(ctx context.Context, electionID, proofHash string) (*domain.ProofVerification, error) {
	if _, err := s.ledger.GetElection(ctx, electionID); err != nil {
		return nil, err
	}

	vote, err := s.ledger.FindElectionVoteByProof(ctx, electionID, strings.ToLower(strings.TrimSpace(proofHash)))
	if err != nil {
		return nil, err
	}

	verified := s.tally.VerifyElectionVote(vote)
	vote.VoterID = ""

	return &domain.ProofVerification{Verified: verified, Vote: vote}, nil
}

func (s *tallyingService) VotingHistory(ctx context.Context, voterID string) ([]*domain.HistoryEntry, error) {
	if strings.TrimSpace(voterID) == "" {
		return nil, fmt.Errorf("%w: voter id is required", domain.ErrInvalidInput)
	}

	votes, err := s.ledger.ListVotesByVoter(ctx, voterID, votingHistoryLimit)
	if err != nil {
		return nil, err
	}

	names := map[domain.TargetRef]string{}
	entries := make([]*domain.HistoryEntry, 0, len(votes))
	for _, v := range votes {
		ref := v.Scope()
		name, ok := names[ref]
		if !ok {
			if name, err = s.targetName(ctx, ref); err != nil {
				return nil, err
			}
			names[ref] = name
		}
		entries = append(entries, &domain.HistoryEntry{Vote: v, TargetName: name})
	}
	return entries, nil
}

func (s *tallyingService) targetName(ctx context.Context, ref domain.TargetRef) (string, error) {
	var (
		name string
		err  error
	)
	if ref.Type == domain.TargetProposal {
		var p *domain.Proposal
		if p, err = s.ledger.GetProposal(ctx, ref.ID); err == nil {
			name = p.Title
		}
	} else {
		var t *domain.Target
		if t, err = s.ledger.GetTarget(ctx, ref.Type, ref.ID); err == nil {
			name = t.DisplayName
		}
	}
	if errors.Is(err, domain.ErrTargetNotFound) {
		return "", nil
	}
	return name, err
}

func (s *tallyingService) CreateElection(ctx context.Context, input ports.CreateElectionInput) (*domain.Election, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if len(input.Candidates) < 2 {
		return nil, fmt.Errorf("%w: an election needs at least two candidates", domain.ErrInvalidInput)
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", domain.ErrInvalidInput)
	}
	if input.MaxVotesPerVoter < 0 {
		return nil, fmt.Errorf("%w: max votes per voter must be positive", domain.ErrInvalidInput)
	}

	now := s.now().UTC()
	election := &domain.Election{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		Position:         input.Position,
		Country:          input.Country,
		Region:           input.Region,
		StartTime:        input.StartTime.UTC(),
		EndTime:          input.EndTime.UTC(),
		Status:           domain.StatusUpcoming,
		MaxVotesPerVoter: input.MaxVotesPerVoter,
		CreatedAt:        now,
	}
	if election.MaxVotesPerVoter == 0 {
		election.MaxVotesPerVoter = s.cfg.DefaultMaxVotesPerVoter
	}
	if !now.Before(election.StartTime) {
		election.Status = domain.StatusActive
	}

	for i, c := range input.Candidates {
		name := strings.TrimSpace(c.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("%w: candidate %d has no display name", domain.ErrInvalidInput, i+1)
		}
		election.Candidates = append(election.Candidates, domain.Candidate{
			ID:          uuid.NewString(),
			ElectionID:  election.ID,
			DisplayName: name,
			Affiliation: c.Affiliation,
			Position:    i,
		})
	}

	if err := s.ledger.SaveElection(ctx, election); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"election_id": election.ID,
		"candidates":  len(election.Candidates),
		"status":      election.Status,
	}).Info("election created")

	return election, nil
}

func (s *tallyingService) CreateProposal(ctx context.Context, input ports.CreateProposalInput) (*domain.Proposal, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	category, err := domain.ParseProposalCategory(input.Category)
	if err != nil {
		return nil, err
	}
	if input.QuorumRequired < 0 {
		return nil, fmt.Errorf("%w: quorum cannot be negative", domain.ErrInvalidInput)
	}

	threshold := domain.DefaultPassingThreshold
	if input.PassingThresholdPct != nil {
		threshold = *input.PassingThresholdPct
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("%w: passing threshold must be between 0 and 100", domain.ErrInvalidInput)
	}

	now := s.now().UTC()
	start := input.StartTime.UTC()
	if input.StartTime.IsZero() {
		start = now
	}
	if !input.EndTime.After(start) {
		return nil, fmt.Errorf("%w: end time must be after start time", domain.ErrInvalidInput)
	}

	proposal := &domain.Proposal{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(input.Title),
		Description:         input.Description,
		Category:            category,
		ProposerID:          input.ProposerID,
		Status:              domain.StatusDraft,
		QuorumRequired:      input.QuorumRequired,
		PassingThresholdPct: threshold,
		StartTime:           start,
		EndTime:             input.EndTime.UTC(),
		CreatedAt:           now,
	}
	if proposal.QuorumRequired == 0 {
		proposal.QuorumRequired = domain.DefaultQuorumRequired
	}
	if !now.Before(start) {
		proposal.Status = domain.StatusActive
	}

	if err := s.ledger.SaveProposal(ctx, proposal); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"proposal_id": proposal.ID,
		"category":    proposal.Category,
		"status":      proposal.Status,
	}).Info("proposal created")

	return proposal, nil
}

func (s *tallyingService) CreateTarget(ctx context.Context, input ports.CreateTargetInput) (*domain.Target, error) {
	t, err := parseTargetType(input.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", domain.ErrInvalidInput)
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}

	target := &domain.Target{
		ID:          id,
		Type:        t,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Status:      domain.StatusActive,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.ledger.SaveTarget(ctx, target); err != nil {
		return nil, err
	}

	return target, nil
}
