package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/tally/internal/adapters/repository/bolt"
	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyLedger fails chosen ledger calls with a storage outage.
type flakyLedger struct {
	ports.LedgerRepository

	failIncrements atomic.Bool
	failInserts    atomic.Int32
	inserts        atomic.Int32
}

func (l *flakyLedger) IncrementCounters(ctx context.Context, claim domain.ClaimRef, deltas []domain.CounterDelta) ([]int64, error) {
	if l.failIncrements.Load() {
		return nil, fmt.Errorf("increment: %w", domain.ErrStorageUnavailable)
	}
	return l.LedgerRepository.IncrementCounters(ctx, claim, deltas)
}

func (l *flakyLedger) InsertElectionVote(ctx context.Context, vote *domain.ElectionVote, seal domain.SealFunc) error {
	l.inserts.Add(1)
	if l.failInserts.Add(-1) >= 0 {
		return fmt.Errorf("insert: %w", domain.ErrStorageUnavailable)
	}
	return l.LedgerRepository.InsertElectionVote(ctx, vote, seal)
}

type fixture struct {
	ledger   *flakyLedger
	clock    *testClock
	tally    ports.TallyService
	outcomes ports.OutcomeService
	service  ports.TallyingService
	sweeper  *Sweeper
}

type fixtureConfig struct {
	incrementBudget time.Duration
	claimRetries    uint64
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "tally.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if cfg.incrementBudget == 0 {
		cfg.incrementBudget = time.Second
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := &testClock{now: baseTime}
	ledger := &flakyLedger{LedgerRepository: store}

	admission := NewAdmissionService(ledger, clock.Now)
	tally := NewTallyService(ledger, NewAuditSigner("audit-secret"), clock.Now, TallyConfig{IncrementBudget: cfg.incrementBudget}, log)
	outcomes := NewOutcomeService(ledger, clock.Now, log)
	service := NewTallyingService(ledger, admission, tally, outcomes, clock.Now, TallyingConfig{
		ClaimRetries:            cfg.claimRetries,
		DefaultMaxVotesPerVoter: 4,
	}, log)

	return &fixture{
		ledger:   ledger,
		clock:    clock,
		tally:    tally,
		outcomes: outcomes,
		service:  service,
		sweeper:  NewSweeper(tally, outcomes, clock.Now, time.Minute, log),
	}
}

func (f *fixture) election(t *testing.T, candidates ...string) *domain.Election {
	t.Helper()
	if len(candidates) == 0 {
		candidates = []string{"Ada", "Grace"}
	}

	input := ports.CreateElectionInput{
		Title:     "Board seat",
		Position:  "director",
		Country:   "PT",
		StartTime: baseTime.Add(-time.Hour),
		EndTime:   baseTime.Add(time.Hour),
	}
	for _, c := range candidates {
		input.Candidates = append(input.Candidates, ports.CreateCandidateInput{DisplayName: c})
	}

	election, err := f.service.CreateElection(context.Background(), input)
	require.NoError(t, err)
	return election
}

func (f *fixture) proposal(t *testing.T, quorum int64, threshold int) *domain.Proposal {
	t.Helper()
	proposal, err := f.service.CreateProposal(context.Background(), ports.CreateProposalInput{
		Title:               "Open the library on Sundays",
		Category:            "community",
		QuorumRequired:      quorum,
		PassingThresholdPct: &threshold,
		EndTime:             baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	return proposal
}

func (f *fixture) vote(t *testing.T, e *domain.Election, voter string, candidate, count int) *domain.TallyReceipt {
	t.Helper()
	receipt, err := f.service.CastElectionVote(context.Background(), ports.CastElectionVoteInput{
		ElectionID:  e.ID,
		VoterID:     voter,
		CandidateID: e.Candidates[candidate].ID,
		VoteCount:   count,
	})
	require.NoError(t, err)
	return receipt
}
