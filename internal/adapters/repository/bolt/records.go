package bolt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

func (s *Store) SaveElection(ctx context.Context, election *domain.Election) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketElections)
		if b.Get([]byte(election.ID)) != nil {
			return fmt.Errorf("%w: election %s", domain.ErrTargetExists, election.ID)
		}
		return put(b, []byte(election.ID), election)
	})
}

func (s *Store) GetElection(ctx context.Context, id string) (*domain.Election, error) {
	var election *domain.Election
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		var err error
		election, err = loadElection(tx, id)
		return err
	})
	return election, err
}

func (s *Store) ListElections(ctx context.Context) ([]*domain.Election, error) {
	var elections []*domain.Election
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketElections), func(e *domain.Election) error {
			elections = append(elections, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}

	sort.Slice(elections, func(i, j int) bool {
		return elections[i].StartTime.Before(elections[j].StartTime)
	})
	return elections, nil
}

func (s *Store) SaveProposal(ctx context.Context, proposal *domain.Proposal) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProposals)
		if b.Get([]byte(proposal.ID)) != nil {
			return fmt.Errorf("%w: proposal %s", domain.ErrTargetExists, proposal.ID)
		}
		return put(b, []byte(proposal.ID), proposal)
	})
}

func (s *Store) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var proposal *domain.Proposal
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		var err error
		proposal, err = loadProposal(tx, id)
		return err
	})
	return proposal, err
}

func (s *Store) ListProposals(ctx context.Context) ([]*domain.Proposal, error) {
	var proposals []*domain.Proposal
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketProposals), func(p *domain.Proposal) error {
			proposals = append(proposals, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].CreatedAt.After(proposals[j].CreatedAt)
	})
	return proposals, nil
}

func (s *Store) SaveTarget(ctx context.Context, target *domain.Target) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTargets)
		k := targetKey(target.Type, target.ID)
		if b.Get(k) != nil {
			return fmt.Errorf("%w: %s %s", domain.ErrTargetExists, target.Type, target.ID)
		}
		return put(b, k, target)
	})
}

func (s *Store) GetTarget(ctx context.Context, targetType domain.TargetType, id string) (*domain.Target, error) {
	var target *domain.Target
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		var err error
		target, err = loadTarget(tx, targetType, id)
		return err
	})
	return target, err
}

func (s *Store) ActivateDue(ctx context.Context, now time.Time) (int, error) {
	activated := 0
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		elections := tx.Bucket(bucketElections)
		var dueElections []*domain.Election
		err := each(elections, func(e *domain.Election) error {
			if e.Status == domain.StatusUpcoming && !now.Before(e.StartTime) {
				dueElections = append(dueElections, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range dueElections {
			e.Status = domain.StatusActive
			if err := put(elections, []byte(e.ID), e); err != nil {
				return err
			}
		}

		proposals := tx.Bucket(bucketProposals)
		var dueProposals []*domain.Proposal
		err = each(proposals, func(p *domain.Proposal) error {
			if p.Status == domain.StatusDraft && !now.Before(p.StartTime) {
				dueProposals = append(dueProposals, p)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, p := range dueProposals {
			p.Status = domain.StatusActive
			if err := put(proposals, []byte(p.ID), p); err != nil {
				return err
			}
		}

		activated = len(dueElections) + len(dueProposals)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to activate due windows: %w", err)
	}
	return activated, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]domain.TargetRef, error) {
	var refs []domain.TargetRef
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		err := each(tx.Bucket(bucketElections), func(e *domain.Election) error {
			if e.IsDue(now) {
				refs = append(refs, domain.TargetRef{Type: domain.TargetElection, ID: e.ID})
			}
			return nil
		})
		if err != nil {
			return err
		}
		return each(tx.Bucket(bucketProposals), func(p *domain.Proposal) error {
			if p.IsDue(now) {
				refs = append(refs, domain.TargetRef{Type: domain.TargetProposal, ID: p.ID})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expired windows: %w", err)
	}
	return refs, nil
}

func loadElection(tx *bbolt.Tx, id string) (*domain.Election, error) {
	e, ok, err := get[domain.Election](tx.Bucket(bucketElections), []byte(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return e, nil
}

func loadProposal(tx *bbolt.Tx, id string) (*domain.Proposal, error) {
	p, ok, err := get[domain.Proposal](tx.Bucket(bucketProposals), []byte(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return p, nil
}

func loadTarget(tx *bbolt.Tx, targetType domain.TargetType, id string) (*domain.Target, error) {
	t, ok, err := get[domain.Target](tx.Bucket(bucketTargets), targetKey(targetType, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return t, nil
}
