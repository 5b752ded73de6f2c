package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

// Sweeper repairs and closes voting windows in the background: it applies
// claims the tally engine left pending and resolves windows that have ended.
type Sweeper struct {
	tally          ports.TallyService
	outcomes       ports.OutcomeService
	now            ports.Clock
	reconcileAfter time.Duration
	log            logrus.FieldLogger
}

func NewSweeper(tally ports.TallyService, outcomes ports.OutcomeService, clock ports.Clock, reconcileAfter time.Duration, log logrus.FieldLogger) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		tally:          tally,
		outcomes:       outcomes,
		now:            clock,
		reconcileAfter: reconcileAfter,
		log:            log,
	}
}

type SweepReport struct {
	Reconciled int
	Resolved   int
}

// RunOnce reconciles stale pending claims, then resolves every expired
// window. Both steps run even if the first one fails.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	reconciled, reconcileErr := s.tally.Reconcile(ctx, domain.PendingFilter{
		CastBefore: s.now().Add(-s.reconcileAfter),
	})
	report.Reconciled = reconciled
	if reconcileErr != nil {
		reconcileErr = fmt.Errorf("failed to reconcile pending votes: %w", reconcileErr)
	}

	resolved, resolveErr := s.outcomes.ResolveDue(ctx)
	report.Resolved = resolved
	if resolveErr != nil {
		resolveErr = fmt.Errorf("failed to resolve expired windows: %w", resolveErr)
	}

	return report, errors.Join(reconcileErr, resolveErr)
}

// Start runs RunOnce every interval until ctx is done. It blocks.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.WithField("interval", interval).Info("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			entry := s.log.WithFields(logrus.Fields{
				"reconciled": report.Reconciled,
				"resolved":   report.Resolved,
			})
			if err != nil {
				entry.WithError(err).Warn("sweep finished with errors")
				continue
			}
			if report.Reconciled > 0 || report.Resolved > 0 {
				entry.Info("sweep finished")
			}
		}
	}
}
