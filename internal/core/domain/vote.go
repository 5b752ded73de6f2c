package domain

import (
	"fmt"
	"time"
)

// ElectionVote is an append-only ledger row. At most one exists per
// (ElectionID, VoterID).
type ElectionVote struct {
	ID            string     `json:"vote_id"`
	ElectionID    string     `json:"election_id"`
	VoterID       string     `json:"voter_id,omitempty"`
	CandidateID   string     `json:"candidate_id"`
	VoteCount     int        `json:"vote_count"`
	ProofHash     string     `json:"proof_hash"`
	ProofSequence int64      `json:"proof_sequence"`
	TallyState    TallyState `json:"tally_state"`
	CastAt        time.Time  `json:"cast_at"`
}

// Vote is the generic ledger row for genius, project and proposal votes.
// At most one exists per (VoterID, TargetID, TargetType).
type Vote struct {
	ID            string     `json:"vote_id"`
	VoterID       string     `json:"voter_id"`
	TargetID      string     `json:"target_id"`
	TargetType    TargetType `json:"target_type"`
	Choice        Choice     `json:"choice,omitempty"`
	Category      string     `json:"category,omitempty"`
	ProofHash     string     `json:"proof_hash"`
	ProofSequence int64      `json:"proof_sequence"`
	TallyState    TallyState `json:"tally_state"`
	CastAt        time.Time  `json:"cast_at"`
}

// Target is a generic vote target (a genius profile or a project).
type Target struct {
	ID          string     `json:"target_id"`
	Type        TargetType `json:"target_type"`
	DisplayName string     `json:"display_name"`
	Status      Status     `json:"status"`
	VotesCount  int64      `json:"votes_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t *Target) IsOpen() bool {
	return t.Status == StatusActive
}

// AuditKey is the uniqueness key the proof hash is derived from.
func (v *ElectionVote) AuditKey() string {
	return fmt.Sprintf("%s:%s:%s", TargetElection, v.ElectionID, v.VoterID)
}

func (v *ElectionVote) Scope() TargetRef {
	return TargetRef{Type: TargetElection, ID: v.ElectionID}
}

func (v *ElectionVote) Claim() ClaimRef {
	return ClaimRef{Kind: ClaimElection, VoteID: v.ID}
}

func (v *ElectionVote) Deltas() []CounterDelta {
	n := int64(v.VoteCount)
	return []CounterDelta{
		{Ref: TargetRef{Type: TargetCandidate, ID: v.CandidateID, ParentID: v.ElectionID}, Field: FieldVotesReceived, Delta: n},
		{Ref: TargetRef{Type: TargetElection, ID: v.ElectionID}, Field: FieldTotalVotes, Delta: n},
		{Ref: TargetRef{Type: TargetElection, ID: v.ElectionID}, Field: FieldTotalVoters, Delta: 1},
	}
}

func (v *Vote) AuditKey() string {
	return fmt.Sprintf("%s:%s:%s", v.TargetType, v.TargetID, v.VoterID)
}

func (v *Vote) Scope() TargetRef {
	return TargetRef{Type: v.TargetType, ID: v.TargetID}
}

func (v *Vote) Claim() ClaimRef {
	return ClaimRef{Kind: ClaimGeneric, VoteID: v.ID}
}

func (v *Vote) Deltas() []CounterDelta {
	ref := v.Scope()
	if v.TargetType == TargetProposal {
		return []CounterDelta{{Ref: ref, Field: ChoiceField(v.Choice), Delta: 1}}
	}
	return []CounterDelta{{Ref: ref, Field: FieldVotesCount, Delta: 1}}
}
