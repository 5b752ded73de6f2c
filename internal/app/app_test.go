package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/tally/internal/config"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

func TestNewWithBoltLedger(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		LedgerDriver:         config.DriverBolt,
		BoltPath:             filepath.Join(t.TempDir(), "tally.db"),
		AuditSecret:          "audit",
		MaxVotesPerVoter:     4,
		ClaimRetries:         1,
		IncrementRetryBudget: time.Second,
		ReconcileAfter:       time.Minute,
	}

	ctx := context.Background()
	app, err := New(ctx, cfg, log)
	require.NoError(t, err)
	defer app.Close()

	target, err := app.Tallying.CreateTarget(ctx, ports.CreateTargetInput{Type: "project", DisplayName: "Compiler"})
	require.NoError(t, err)

	receipt, err := app.Tallying.CastGenericVote(ctx, ports.CastGenericVoteInput{
		TargetType: "project",
		TargetID:   target.ID,
		VoterID:    "alice",
	})
	require.NoError(t, err)
	assert.False(t, receipt.Pending)

	report, err := app.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Reconciled)
}

func TestOpenLedgerUnknownDriver(t *testing.T) {
	_, _, err := OpenLedger(context.Background(), &config.Config{LedgerDriver: "mysql"}, logrus.New())
	assert.Error(t, err)
}
