package ports

import (
	"context"
	"time"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

// AdmissionService validates a vote request without side effects.
type AdmissionService interface {
	Admit(ctx context.Context, req domain.VoteRequest) (*domain.AdmittedVote, error)
}

// TallyService is the only component that mutates counters.
type TallyService interface {
	CastVote(ctx context.Context, vote *domain.AdmittedVote) (*domain.TallyReceipt, error)
	Reconcile(ctx context.Context, filter domain.PendingFilter) (int, error)
	VerifyElectionVote(vote *domain.ElectionVote) bool
}

// AuditSigner produces and checks the local, tamper-evident proof hashes.
type AuditSigner interface {
	Seal(key string, sequence int64) string
	Verify(key string, sequence int64, proofHash string) bool
}

type Clock func() time.Time
