package bolt

import (
	"context"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

func claimKey(ref domain.ClaimRef) []byte {
	return key(string(ref.Kind), ref.VoteID)
}

func putPending(tx *bbolt.Tx, claim domain.PendingClaim) error {
	return put(tx.Bucket(bucketPending), claimKey(claim.Ref), claim)
}

func (s *Store) IncrementCounters(ctx context.Context, claim domain.ClaimRef, deltas []domain.CounterDelta) ([]int64, error) {
	var values []int64
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		c := newCounterTx(tx)
		var err error
		if values, err = c.settle(claim, deltas); err != nil {
			return err
		}
		return c.flush()
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Store) ListPendingClaims(ctx context.Context, filter domain.PendingFilter) ([]domain.PendingClaim, error) {
	claims := []domain.PendingClaim{}
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketPending), func(c *domain.PendingClaim) error {
			if filter.Scope != nil && c.Scope != *filter.Scope {
				return nil
			}
			if !filter.CastBefore.IsZero() && !c.CastAt.Before(filter.CastBefore) {
				return nil
			}
			claims = append(claims, *c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}

	sort.Slice(claims, func(i, j int) bool {
		return claims[i].CastAt.Before(claims[j].CastAt)
	})
	if filter.Limit > 0 && len(claims) > filter.Limit {
		claims = claims[:filter.Limit]
	}
	return claims, nil
}

func (s *Store) CloseElection(ctx context.Context, id string, decide func(*domain.Election) string) (*domain.Election, bool, error) {
	var (
		result  *domain.Election
		changed bool
	)
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		c := newCounterTx(tx)
		election, err := c.election(id)
		if err != nil {
			return err
		}
		if election.Status.IsTerminal() {
			result = election
			return nil
		}

		if err := c.settleScope(domain.TargetRef{Type: domain.TargetElection, ID: id}); err != nil {
			return err
		}

		election.WinnerID = decide(election)
		election.Status = domain.StatusClosed
		result, changed = election, true
		return c.flush()
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *Store) ResolveProposal(ctx context.Context, id string, decide func(*domain.Proposal) domain.Status) (*domain.Proposal, bool, error) {
	var (
		result  *domain.Proposal
		changed bool
	)
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		c := newCounterTx(tx)
		proposal, err := c.proposal(id)
		if err != nil {
			return err
		}
		if proposal.Status.IsTerminal() {
			result = proposal
			return nil
		}

		if err := c.settleScope(domain.TargetRef{Type: domain.TargetProposal, ID: id}); err != nil {
			return err
		}

		status := decide(proposal)
		if !status.IsTerminal() {
			return fmt.Errorf("%w: %q is not a terminal status", domain.ErrInvalidInput, status)
		}
		proposal.Status = status
		result, changed = proposal, true
		return c.flush()
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *Store) Retire(ctx context.Context, ref domain.TargetRef) (bool, error) {
	changed := false
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		c := newCounterTx(tx)
		var status *domain.Status
		switch ref.Type {
		case domain.TargetElection:
			e, err := c.election(ref.ID)
			if err != nil {
				return err
			}
			status = &e.Status
		case domain.TargetProposal:
			p, err := c.proposal(ref.ID)
			if err != nil {
				return err
			}
			status = &p.Status
		case domain.TargetGenius, domain.TargetProject:
			t, err := c.target(ref.Type, ref.ID)
			if err != nil {
				return err
			}
			status = &t.Status
		default:
			return fmt.Errorf("%w: %q", domain.ErrInvalidTargetType, ref.Type)
		}
		if status.IsTerminal() {
			return nil
		}

		if err := c.settleScope(ref); err != nil {
			return err
		}
		*status = domain.StatusRetired
		changed = true
		return c.flush()
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// counterTx caches the records a transaction touches so that several deltas
// against one election land on the same copy, then writes them back once.
type counterTx struct {
	tx        *bbolt.Tx
	elections map[string]*domain.Election
	proposals map[string]*domain.Proposal
	targets   map[string]*domain.Target
}

func newCounterTx(tx *bbolt.Tx) *counterTx {
	return &counterTx{
		tx:        tx,
		elections: map[string]*domain.Election{},
		proposals: map[string]*domain.Proposal{},
		targets:   map[string]*domain.Target{},
	}
}

func (c *counterTx) election(id string) (*domain.Election, error) {
	if e, ok := c.elections[id]; ok {
		return e, nil
	}
	e, err := loadElection(c.tx, id)
	if err != nil {
		return nil, err
	}
	c.elections[id] = e
	return e, nil
}

func (c *counterTx) proposal(id string) (*domain.Proposal, error) {
	if p, ok := c.proposals[id]; ok {
		return p, nil
	}
	p, err := loadProposal(c.tx, id)
	if err != nil {
		return nil, err
	}
	c.proposals[id] = p
	return p, nil
}

func (c *counterTx) target(t domain.TargetType, id string) (*domain.Target, error) {
	k := string(targetKey(t, id))
	if target, ok := c.targets[k]; ok {
		return target, nil
	}
	target, err := loadTarget(c.tx, t, id)
	if err != nil {
		return nil, err
	}
	c.targets[k] = target
	return target, nil
}

// settle flips the claim to counted and applies its deltas.
func (c *counterTx) settle(claim domain.ClaimRef, deltas []domain.CounterDelta) ([]int64, error) {
	pending := c.tx.Bucket(bucketPending)
	k := claimKey(claim)
	if pending.Get(k) == nil {
		if err := c.ballotExists(claim); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyCounted
	}

	values := make([]int64, 0, len(deltas))
	for _, d := range deltas {
		v, err := c.apply(d)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	if err := c.markCounted(claim); err != nil {
		return nil, err
	}
	return values, pending.Delete(k)
}

// settleScope applies every pending claim recorded against scope.
func (c *counterTx) settleScope(scope domain.TargetRef) error {
	var claims []domain.PendingClaim
	err := each(c.tx.Bucket(bucketPending), func(p *domain.PendingClaim) error {
		if p.Scope == scope {
			claims = append(claims, *p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, claim := range claims {
		if _, err := c.settle(claim.Ref, claim.Deltas); err != nil {
			return fmt.Errorf("failed to settle vote %s: %w", claim.Ref.VoteID, err)
		}
	}
	return nil
}

func (c *counterTx) ballotExists(claim domain.ClaimRef) error {
	var err error
	switch claim.Kind {
	case domain.ClaimElection:
		_, err = loadElectionVote(c.tx, claim.VoteID)
	case domain.ClaimGeneric:
		_, err = loadVote(c.tx, claim.VoteID)
	default:
		err = fmt.Errorf("%w: unknown claim kind %q", domain.ErrInvalidInput, claim.Kind)
	}
	return err
}

func (c *counterTx) markCounted(claim domain.ClaimRef) error {
	switch claim.Kind {
	case domain.ClaimElection:
		v, err := loadElectionVote(c.tx, claim.VoteID)
		if err != nil {
			return err
		}
		v.TallyState = domain.TallyCounted
		return put(c.tx.Bucket(bucketElectionVotes), []byte(v.ID), v)
	case domain.ClaimGeneric:
		v, err := loadVote(c.tx, claim.VoteID)
		if err != nil {
			return err
		}
		v.TallyState = domain.TallyCounted
		return put(c.tx.Bucket(bucketVotes), []byte(v.ID), v)
	}
	return fmt.Errorf("%w: unknown claim kind %q", domain.ErrInvalidInput, claim.Kind)
}

func (c *counterTx) apply(d domain.CounterDelta) (int64, error) {
	switch d.Ref.Type {
	case domain.TargetCandidate:
		e, err := c.election(d.Ref.ParentID)
		if err != nil {
			return 0, err
		}
		candidate, ok := e.Candidate(d.Ref.ID)
		if !ok || d.Field != domain.FieldVotesReceived {
			break
		}
		candidate.VotesReceived += d.Delta
		return candidate.VotesReceived, nil

	case domain.TargetElection:
		e, err := c.election(d.Ref.ID)
		if err != nil {
			return 0, err
		}
		switch d.Field {
		case domain.FieldTotalVotes:
			e.TotalVotes += d.Delta
			return e.TotalVotes, nil
		case domain.FieldTotalVoters:
			e.TotalVoters += d.Delta
			return e.TotalVoters, nil
		}

	case domain.TargetProposal:
		p, err := c.proposal(d.Ref.ID)
		if err != nil {
			return 0, err
		}
		switch d.Field {
		case domain.FieldVotesFor:
			p.VotesFor += d.Delta
			return p.VotesFor, nil
		case domain.FieldVotesAgainst:
			p.VotesAgainst += d.Delta
			return p.VotesAgainst, nil
		case domain.FieldVotesAbstain:
			p.VotesAbstain += d.Delta
			return p.VotesAbstain, nil
		}

	case domain.TargetGenius, domain.TargetProject:
		t, err := c.target(d.Ref.Type, d.Ref.ID)
		if err != nil {
			return 0, err
		}
		if d.Field == domain.FieldVotesCount {
			t.VotesCount += d.Delta
			return t.VotesCount, nil
		}
	}

	return 0, fmt.Errorf("%w: no counter %s on %s %s", domain.ErrInvalidInput, d.Field, d.Ref.Type, d.Ref.ID)
}

func (c *counterTx) flush() error {
	for id, e := range c.elections {
		if err := put(c.tx.Bucket(bucketElections), []byte(id), e); err != nil {
			return err
		}
	}
	for id, p := range c.proposals {
		if err := put(c.tx.Bucket(bucketProposals), []byte(id), p); err != nil {
			return err
		}
	}
	for k, t := range c.targets {
		if err := put(c.tx.Bucket(bucketTargets), []byte(k), t); err != nil {
			return err
		}
	}
	return nil
}
