package bolt

import (
	"context"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

func (s *Store) InsertElectionVote(ctx context.Context, vote *domain.ElectionVote, seal domain.SealFunc) error {
	row := *vote
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		election, err := loadElection(tx, row.ElectionID)
		if err != nil {
			return err
		}
		if election.Status.IsTerminal() {
			return domain.ErrVotingClosed
		}

		slots := tx.Bucket(bucketElectionSlots)
		slot := key(row.ElectionID, row.VoterID)
		if slots.Get(slot) != nil {
			return domain.ErrDuplicateVote
		}

		seq, err := nextSequence(tx, row.Scope())
		if err != nil {
			return err
		}
		row.ProofSequence = seq
		row.ProofHash = seal(seq)
		row.TallyState = domain.TallyPending

		if err := put(tx.Bucket(bucketElectionVotes), []byte(row.ID), &row); err != nil {
			return err
		}
		if err := slots.Put(slot, []byte(row.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketProofs).Put(key(row.ElectionID, row.ProofHash), []byte(row.ID)); err != nil {
			return err
		}
		return putPending(tx, domain.PendingClaim{
			Ref:    row.Claim(),
			Scope:  row.Scope(),
			Deltas: row.Deltas(),
			CastAt: row.CastAt,
		})
	})
	if err != nil {
		return err
	}

	*vote = row
	return nil
}

func (s *Store) InsertVote(ctx context.Context, vote *domain.Vote, seal domain.SealFunc) error {
	row := *vote
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		var status domain.Status
		if row.TargetType == domain.TargetProposal {
			proposal, err := loadProposal(tx, row.TargetID)
			if err != nil {
				return err
			}
			status = proposal.Status
		} else {
			target, err := loadTarget(tx, row.TargetType, row.TargetID)
			if err != nil {
				return err
			}
			status = target.Status
		}
		if status.IsTerminal() {
			return domain.ErrVotingClosed
		}

		slots := tx.Bucket(bucketVoteSlots)
		slot := key(string(row.TargetType), row.TargetID, row.VoterID)
		if slots.Get(slot) != nil {
			return domain.ErrDuplicateVote
		}

		seq, err := nextSequence(tx, row.Scope())
		if err != nil {
			return err
		}
		row.ProofSequence = seq
		row.ProofHash = seal(seq)
		row.TallyState = domain.TallyPending

		if err := put(tx.Bucket(bucketVotes), []byte(row.ID), &row); err != nil {
			return err
		}
		if err := slots.Put(slot, []byte(row.ID)); err != nil {
			return err
		}
		return putPending(tx, domain.PendingClaim{
			Ref:    row.Claim(),
			Scope:  row.Scope(),
			Deltas: row.Deltas(),
			CastAt: row.CastAt,
		})
	})
	if err != nil {
		return err
	}

	*vote = row
	return nil
}

// nextSequence hands out the target's audit sequences starting at 1.
func nextSequence(tx *bbolt.Tx, scope domain.TargetRef) (int64, error) {
	b, err := tx.Bucket(bucketAudit).CreateBucketIfNotExists(targetKey(scope.Type, scope.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to open audit sequence for %s %s: %w", scope.Type, scope.ID, err)
	}
	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to advance audit sequence for %s %s: %w", scope.Type, scope.ID, err)
	}
	return int64(seq), nil
}

func (s *Store) GetElectionVote(ctx context.Context, electionID, voterID string) (*domain.ElectionVote, error) {
	var vote *domain.ElectionVote
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketElectionSlots).Get(key(electionID, voterID))
		if id == nil {
			return domain.ErrVoteNotFound
		}
		var err error
		vote, err = loadElectionVote(tx, string(id))
		return err
	})
	return vote, err
}

func (s *Store) GetVote(ctx context.Context, voterID string, targetType domain.TargetType, targetID string) (*domain.Vote, error) {
	var vote *domain.Vote
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketVoteSlots).Get(key(string(targetType), targetID, voterID))
		if id == nil {
			return domain.ErrVoteNotFound
		}
		var err error
		vote, err = loadVote(tx, string(id))
		return err
	})
	return vote, err
}

// ListElectionVotes returns one page of the election's ballots in audit
// sequence order, plus the total ballot count.
func (s *Store) ListElectionVotes(ctx context.Context, electionID string, limit, offset int) ([]*domain.ElectionVote, int, error) {
	if limit < 0 || offset < 0 {
		return nil, 0, fmt.Errorf("%w: negative limit or offset", domain.ErrInvalidInput)
	}

	var votes []*domain.ElectionVote
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketElectionVotes), func(v *domain.ElectionVote) error {
			if v.ElectionID == electionID {
				votes = append(votes, v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list election votes: %w", err)
	}

	sort.Slice(votes, func(i, j int) bool {
		return votes[i].ProofSequence < votes[j].ProofSequence
	})

	total := len(votes)
	if offset >= total {
		return []*domain.ElectionVote{}, total, nil
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return votes[offset:end], total, nil
}

func (s *Store) FindElectionVoteByProof(ctx context.Context, electionID, proofHash string) (*domain.ElectionVote, error) {
	var vote *domain.ElectionVote
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketProofs).Get(key(electionID, proofHash))
		if id == nil {
			return domain.ErrVoteNotFound
		}
		var err error
		vote, err = loadElectionVote(tx, string(id))
		return err
	})
	return vote, err
}

// ListVotesByVoter returns the voter's generic votes, newest first.
func (s *Store) ListVotesByVoter(ctx context.Context, voterID string, limit int) ([]*domain.Vote, error) {
	votes := []*domain.Vote{}
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketVotes), func(v *domain.Vote) error {
			if v.VoterID == voterID {
				votes = append(votes, v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list votes by voter: %w", err)
	}

	sort.Slice(votes, func(i, j int) bool {
		return votes[i].CastAt.After(votes[j].CastAt)
	})
	if limit > 0 && len(votes) > limit {
		votes = votes[:limit]
	}
	return votes, nil
}

func loadElectionVote(tx *bbolt.Tx, id string) (*domain.ElectionVote, error) {
	v, ok, err := get[domain.ElectionVote](tx.Bucket(bucketElectionVotes), []byte(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrVoteNotFound
	}
	return v, nil
}

func loadVote(tx *bbolt.Tx, id string) (*domain.Vote, error) {
	v, ok, err := get[domain.Vote](tx.Bucket(bucketVotes), []byte(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrVoteNotFound
	}
	return v, nil
}
