package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type outcomeService struct {
	ledger ports.LedgerRepository
	now    ports.Clock
	log    logrus.FieldLogger
}

func NewOutcomeService(ledger ports.LedgerRepository, clock ports.Clock, log logrus.FieldLogger) ports.OutcomeService {
	if clock == nil {
		clock = time.Now
	}
	return &outcomeService{
		ledger: ledger,
		now:    clock,
		log:    log,
	}
}

func (s *outcomeService) ElectionResults(ctx context.Context, electionID string) (*domain.ElectionResults, error) {
	election, err := s.ledger.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	return s.electionResults(election), nil
}

func (s *outcomeService) ProposalStatus(ctx context.Context, proposalID string) (*domain.ProposalStatus, error) {
	proposal, err := s.ledger.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return s.proposalStatus(proposal), nil
}

func (s *outcomeService) ResolveProposal(ctx context.Context, proposalID string, force bool) (*domain.ProposalStatus, error) {
	proposal, err := s.ledger.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status.IsTerminal() || (!force && !proposal.IsDue(s.now())) {
		return s.proposalStatus(proposal), nil
	}

	resolved, changed, err := s.ledger.ResolveProposal(ctx, proposalID, func(p *domain.Proposal) domain.Status {
		return p.Decide()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve proposal %s: %w", proposalID, err)
	}

	if changed {
		s.log.WithFields(logrus.Fields{
			"proposal_id": resolved.ID,
			"status":      resolved.Status,
			"total_votes": resolved.TotalVotes(),
			"forced":      force,
		}).Info("proposal resolved")
	}

	return s.proposalStatus(resolved), nil
}

func (s *outcomeService) ResolveElection(ctx context.Context, electionID string, force bool) (*domain.ElectionResults, error) {
	election, err := s.ledger.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if election.Status.IsTerminal() || (!force && !election.IsDue(s.now())) {
		return s.electionResults(election), nil
	}

	closed, changed, err := s.ledger.CloseElection(ctx, electionID, func(e *domain.Election) string {
		winner, ok := e.Winner()
		if !ok {
			return ""
		}
		return winner.ID
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close election %s: %w", electionID, err)
	}

	if changed {
		s.log.WithFields(logrus.Fields{
			"election_id": closed.ID,
			"winner_id":   closed.WinnerID,
			"total_votes": closed.TotalVotes,
			"forced":      force,
		}).Info("election closed")
	}

	return s.electionResults(closed), nil
}

// ResolveDue persists lazy activations, then resolves every window that has
// passed. Resolutions run concurrently; the first error is returned once all
// of them finish.
func (s *outcomeService) ResolveDue(ctx context.Context) (int, error) {
	now := s.now()

	activated, err := s.ledger.ActivateDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to activate due windows: %w", err)
	}
	if activated > 0 {
		s.log.WithField("activated", activated).Info("voting windows opened")
	}

	expired, err := s.ledger.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired windows: %w", err)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(expired))

	for _, ref := range expired {
		wg.Add(1)
		go func(ref domain.TargetRef) {
			defer wg.Done()
			if err := s.resolve(ctx, ref); err != nil {
				errChan <- err
			}
		}(ref)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return len(expired), err
		}
	}

	return len(expired), nil
}

func (s *outcomeService) resolve(ctx context.Context, ref domain.TargetRef) error {
	switch ref.Type {
	case domain.TargetElection:
		_, err := s.ResolveElection(ctx, ref.ID, false)
		return err
	case domain.TargetProposal:
		_, err := s.ResolveProposal(ctx, ref.ID, false)
		return err
	}
	return fmt.Errorf("%w: cannot resolve %q", domain.ErrInvalidTargetType, ref.Type)
}

// electionResults never writes: a window that has passed but not been closed
// yet still reports its stored status until a resolver closes it.
func (s *outcomeService) electionResults(e *domain.Election) *domain.ElectionResults {
	ranked := e.RankedCandidates()
	results := make([]domain.CandidateResult, 0, len(ranked))
	for i, c := range ranked {
		results = append(results, domain.CandidateResult{
			CandidateID:   c.ID,
			DisplayName:   c.DisplayName,
			Affiliation:   c.Affiliation,
			VotesReceived: c.VotesReceived,
			Percentage:    e.PercentageFor(c),
			Rank:          i + 1,
		})
	}

	return &domain.ElectionResults{
		ElectionID:  e.ID,
		Title:       e.Title,
		Status:      e.EffectiveStatus(s.now()),
		TotalVotes:  e.TotalVotes,
		TotalVoters: e.TotalVoters,
		WinnerID:    e.WinnerID,
		Results:     results,
	}
}

func (s *outcomeService) proposalStatus(p *domain.Proposal) *domain.ProposalStatus {
	now := s.now()
	view := *p
	view.Status = p.EffectiveStatus(now)
	return &domain.ProposalStatus{
		Proposal: &view,
		Summary:  p.Summary(now),
	}
}
