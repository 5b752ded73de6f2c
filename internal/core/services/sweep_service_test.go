package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

func TestSweeperRunOnce(t *testing.T) {
	f := newFixture(t, fixtureConfig{incrementBudget: 50 * time.Millisecond})
	ctx := context.Background()
	election := f.election(t)
	proposal := f.proposal(t, 1, 50)

	f.ledger.failIncrements.Store(true)
	assert.True(t, f.vote(t, election, "alice", 0, 2).Pending)
	f.ledger.failIncrements.Store(false)

	report, err := f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Reconciled, "claims younger than the reconcile delay are left alone")
	assert.Zero(t, report.Resolved)

	f.clock.Advance(2 * time.Hour)
	report, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reconciled)
	assert.Equal(t, 2, report.Resolved)

	results, err := f.service.GetElectionResults(ctx, election.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, results.Status)
	assert.Equal(t, int64(2), results.TotalVotes)

	status, err := f.service.GetProposalStatus(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, status.Proposal.Status)

	report, err = f.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestSweeperReportsReconcileFailures(t *testing.T) {
	f := newFixture(t, fixtureConfig{incrementBudget: 50 * time.Millisecond})
	election := f.election(t)

	f.ledger.failIncrements.Store(true)
	f.vote(t, election, "alice", 0, 1)
	f.clock.Advance(time.Minute + time.Second)

	_, err := f.sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestSweeperStartStops(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sweeper.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
