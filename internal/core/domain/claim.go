package domain

import "time"

type ClaimKind string

const (
	ClaimElection ClaimKind = "election"
	ClaimGeneric  ClaimKind = "generic"
)

// ClaimRef identifies a recorded vote whose counters may still be pending.
type ClaimRef struct {
	Kind   ClaimKind `json:"kind"`
	VoteID string    `json:"vote_id"`
}

// TargetRef names a counter owner. ParentID is set for candidates.
type TargetRef struct {
	Type     TargetType `json:"type"`
	ID       string     `json:"id"`
	ParentID string     `json:"parent_id,omitempty"`
}

type CounterField string

const (
	FieldTotalVotes    CounterField = "total_votes"
	FieldTotalVoters   CounterField = "total_voters"
	FieldVotesReceived CounterField = "votes_received"
	FieldVotesFor      CounterField = "votes_for"
	FieldVotesAgainst  CounterField = "votes_against"
	FieldVotesAbstain  CounterField = "votes_abstain"
	FieldVotesCount    CounterField = "votes_count"
)

func ChoiceField(c Choice) CounterField {
	switch c {
	case ChoiceFor:
		return FieldVotesFor
	case ChoiceAgainst:
		return FieldVotesAgainst
	}
	return FieldVotesAbstain
}

type CounterDelta struct {
	Ref   TargetRef    `json:"ref"`
	Field CounterField `json:"field"`
	Delta int64        `json:"delta"`
}

// SealFunc turns the audit sequence assigned at insert time into a proof hash.
type SealFunc func(sequence int64) string

// PendingClaim is a recorded vote whose counters have not been applied.
type PendingClaim struct {
	Ref    ClaimRef
	Scope  TargetRef
	Deltas []CounterDelta
	CastAt time.Time
}

type PendingFilter struct {
	// Scope restricts the scan to one election, proposal or target.
	Scope *TargetRef
	// CastBefore skips claims younger than this instant.
	CastBefore time.Time
	Limit      int
}
