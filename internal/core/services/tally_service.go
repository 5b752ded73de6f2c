package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type TallyConfig struct {
	// IncrementBudget bounds how long CastVote keeps retrying the counter
	// increment before leaving the claim to reconciliation. Zero retries
	// until the increment succeeds.
	IncrementBudget time.Duration
	// ReconcileBatch caps how many pending claims one Reconcile call reads.
	ReconcileBatch int
}

type tallyService struct {
	ledger ports.LedgerRepository
	signer ports.AuditSigner
	now    ports.Clock
	cfg    TallyConfig
	log    logrus.FieldLogger
}

func NewTallyService(ledger ports.LedgerRepository, signer ports.AuditSigner, clock ports.Clock, cfg TallyConfig, log logrus.FieldLogger) ports.TallyService {
	if clock == nil {
		clock = time.Now
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 500
	}
	return &tallyService{
		ledger: ledger,
		signer: signer,
		now:    clock,
		cfg:    cfg,
		log:    log,
	}
}

// CastVote records the admitted vote and applies its counters.
//
// The ledger insert both records the vote and claims its uniqueness slot,
// so a concurrent duplicate fails there with domain.ErrDuplicateVote. Once
// the insert succeeds the claim is never rolled back: the counter step runs
// detached from the caller's context and, if it cannot finish within the
// budget, the claim stays pending for Reconcile.
func (s *tallyService) CastVote(ctx context.Context, vote *domain.AdmittedVote) (*domain.TallyReceipt, error) {
	castAt := s.now().UTC()

	if vote.Target.Type == domain.TargetElection {
		row := &domain.ElectionVote{
			ID:          uuid.NewString(),
			ElectionID:  vote.Target.ID,
			VoterID:     vote.VoterID,
			CandidateID: vote.CandidateID,
			VoteCount:   vote.VoteCount,
			TallyState:  domain.TallyPending,
			CastAt:      castAt,
		}
		key := row.AuditKey()
		if err := s.ledger.InsertElectionVote(ctx, row, s.sealer(key)); err != nil {
			return nil, err
		}

		counted := s.applyCounters(ctx, row.Claim(), row.Deltas())
		return &domain.TallyReceipt{
			VoteID:     row.ID,
			TargetType: domain.TargetElection,
			TargetID:   row.ElectionID,
			ProofHash:  row.ProofHash,
			Sequence:   row.ProofSequence,
			CastAt:     row.CastAt,
			Pending:    !counted,
		}, nil
	}

	row := &domain.Vote{
		ID:         uuid.NewString(),
		VoterID:    vote.VoterID,
		TargetID:   vote.Target.ID,
		TargetType: vote.Target.Type,
		Choice:     vote.Choice,
		Category:   vote.Category,
		TallyState: domain.TallyPending,
		CastAt:     castAt,
	}
	if err := s.ledger.InsertVote(ctx, row, s.sealer(row.AuditKey())); err != nil {
		return nil, err
	}

	counted := s.applyCounters(ctx, row.Claim(), row.Deltas())
	return &domain.TallyReceipt{
		VoteID:     row.ID,
		TargetType: row.TargetType,
		TargetID:   row.TargetID,
		ProofHash:  row.ProofHash,
		Sequence:   row.ProofSequence,
		CastAt:     row.CastAt,
		Pending:    !counted,
	}, nil
}

// Reconcile applies the counters of claims left pending by CastVote.
func (s *tallyService) Reconcile(ctx context.Context, filter domain.PendingFilter) (int, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.ReconcileBatch
	}

	claims, err := s.ledger.ListPendingClaims(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending claims: %w", err)
	}

	applied := 0
	var errs []error
	for _, claim := range claims {
		_, err := s.ledger.IncrementCounters(ctx, claim.Ref, claim.Deltas)
		if errors.Is(err, domain.ErrAlreadyCounted) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to reconcile vote %s: %w", claim.Ref.VoteID, err))
			continue
		}
		applied++
		s.log.WithFields(logrus.Fields{
			"vote_id":     claim.Ref.VoteID,
			"target_type": claim.Scope.Type,
			"target_id":   claim.Scope.ID,
		}).Info("reconciled pending vote")
	}

	return applied, errors.Join(errs...)
}

func (s *tallyService) VerifyElectionVote(vote *domain.ElectionVote) bool {
	return s.signer.Verify(vote.AuditKey(), vote.ProofSequence, vote.ProofHash)
}

func (s *tallyService) sealer(key string) domain.SealFunc {
	return func(sequence int64) string {
		return s.signer.Seal(key, sequence)
	}
}

// applyCounters reports whether the claim's counters are confirmed applied.
func (s *tallyService) applyCounters(ctx context.Context, claim domain.ClaimRef, deltas []domain.CounterDelta) bool {
	// A caller that gives up after the claim succeeded must not stop the count.
	ctx = context.WithoutCancel(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = s.cfg.IncrementBudget

	log := s.log.WithField("vote_id", claim.VoteID)

	op := func() error {
		_, err := s.ledger.IncrementCounters(ctx, claim, deltas)
		if errors.Is(err, domain.ErrAlreadyCounted) {
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("counter increment failed")
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		log.WithError(err).Error("counter increment gave up, vote left pending for reconciliation")
		return false
	}
	return true
}
