package domain

import "time"

// VoteRequest is what a client submits, before admission.
type VoteRequest struct {
	VoterID     string
	TargetType  TargetType
	TargetID    string
	CandidateID string
	Choice      string
	VoteCount   int
	Category    string
}

// AdmittedVote is a validated, normalized VoteRequest.
type AdmittedVote struct {
	VoterID     string
	Target      TargetRef
	CandidateID string
	Choice      Choice
	VoteCount   int
	Category    string
}

type TallyReceipt struct {
	VoteID     string     `json:"vote_id"`
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`
	ProofHash  string     `json:"proof_hash"`
	Sequence   int64      `json:"sequence"`
	CastAt     time.Time  `json:"cast_at"`
	// Pending is true when the counters were not confirmed before the
	// receipt was issued. The vote still counts; reconciliation applies it.
	Pending bool `json:"pending,omitempty"`
}

type CandidateResult struct {
	CandidateID   string `json:"candidate_id"`
	DisplayName   string `json:"display_name"`
	Affiliation   string `json:"affiliation,omitempty"`
	VotesReceived int64  `json:"votes_received"`
	Percentage    int    `json:"percentage"`
	Rank          int    `json:"rank"`
}

type ElectionResults struct {
	ElectionID  string            `json:"election_id"`
	Title       string            `json:"title"`
	Status      Status            `json:"status"`
	TotalVotes  int64             `json:"total_votes"`
	TotalVoters int64             `json:"total_voters"`
	WinnerID    string            `json:"winner_candidate_id,omitempty"`
	Results     []CandidateResult `json:"results"`
}

type ProposalStatus struct {
	Proposal *Proposal       `json:"proposal"`
	Summary  ProposalSummary `json:"summary"`
}

type HasVoted struct {
	HasVoted bool          `json:"has_voted"`
	Vote     *ElectionVote `json:"vote,omitempty"`
}

type HasVotedTarget struct {
	HasVoted bool  `json:"has_voted"`
	Vote     *Vote `json:"vote,omitempty"`
}

type ProofVerification struct {
	Verified bool          `json:"verified"`
	Vote     *ElectionVote `json:"vote"`
}

type VotePage struct {
	Votes []*ElectionVote `json:"votes"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

// HistoryEntry is a vote from a voter's history with the name of what it was
// cast for. TargetName is empty when the target no longer resolves.
type HistoryEntry struct {
	*Vote
	TargetName string `json:"target_name"`
}
