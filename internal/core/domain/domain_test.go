package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(5, 0))
	assert.Equal(t, 100, Percentage(3, 3))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 50, Percentage(1, 2))
}

func TestElectionRankingAndWinner(t *testing.T) {
	e := &Election{
		TotalVotes: 6,
		Candidates: []Candidate{
			{ID: "a", Position: 0, VotesReceived: 2},
			{ID: "b", Position: 1, VotesReceived: 4},
			{ID: "c", Position: 2, VotesReceived: 0},
		},
	}

	ranked := e.RankedCandidates()
	assert.Equal(t, []string{"b", "a", "c"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
	assert.Equal(t, 67, e.PercentageFor(ranked[0]))
	assert.Equal(t, "a", e.Candidates[0].ID, "ranking must not reorder the election")

	winner, ok := e.Winner()
	require.True(t, ok)
	assert.Equal(t, "b", winner.ID)

	t.Run("ties keep registration order", func(t *testing.T) {
		tied := &Election{Candidates: []Candidate{
			{ID: "late", Position: 1, VotesReceived: 3},
			{ID: "early", Position: 0, VotesReceived: 3},
		}}
		winner, ok := tied.Winner()
		require.True(t, ok)
		assert.Equal(t, "early", winner.ID)
	})

	t.Run("no votes means no winner", func(t *testing.T) {
		_, ok := (&Election{Candidates: []Candidate{{ID: "a"}}}).Winner()
		assert.False(t, ok)
	})
}

func TestElectionWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := &Election{Status: StatusUpcoming, StartTime: start, EndTime: start.Add(time.Hour)}

	assert.Equal(t, StatusUpcoming, e.EffectiveStatus(start.Add(-time.Second)))
	assert.False(t, e.IsOpen(start.Add(-time.Second)))

	assert.Equal(t, StatusActive, e.EffectiveStatus(start))
	assert.True(t, e.IsOpen(start))
	assert.True(t, e.IsOpen(start.Add(time.Hour)), "the end instant is still inside the window")
	assert.False(t, e.IsOpen(start.Add(time.Hour+time.Nanosecond)))

	assert.False(t, e.IsDue(start.Add(time.Hour)))
	assert.True(t, e.IsDue(start.Add(2*time.Hour)))

	e.Status = StatusClosed
	assert.False(t, e.IsOpen(start.Add(time.Minute)))
	assert.False(t, e.IsDue(start.Add(2*time.Hour)))
}

func TestElectionMaxVotes(t *testing.T) {
	assert.Equal(t, DefaultMaxVotesPerVoter, (&Election{}).MaxVotes())
	assert.Equal(t, 2, (&Election{MaxVotesPerVoter: 2}).MaxVotes())
}

func TestProposalDecide(t *testing.T) {
	cases := []struct {
		name     string
		proposal Proposal
		want     Status
	}{
		{
			name:     "quorum missed",
			proposal: Proposal{QuorumRequired: 100, PassingThresholdPct: 60, VotesFor: 80, VotesAgainst: 10},
			want:     StatusExpired,
		},
		{
			name:     "passes above threshold",
			proposal: Proposal{QuorumRequired: 50, PassingThresholdPct: 60, VotesFor: 40, VotesAgainst: 20},
			want:     StatusPassed,
		},
		{
			name:     "exact threshold passes",
			proposal: Proposal{QuorumRequired: 60, PassingThresholdPct: 60, VotesFor: 36, VotesAgainst: 20, VotesAbstain: 4},
			want:     StatusPassed,
		},
		{
			name:     "abstentions count against the share",
			proposal: Proposal{QuorumRequired: 10, PassingThresholdPct: 50, VotesFor: 5, VotesAgainst: 1, VotesAbstain: 6},
			want:     StatusRejected,
		},
		{
			name:     "zero quorum with no votes",
			proposal: Proposal{QuorumRequired: 0, PassingThresholdPct: 50},
			want:     StatusPassed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.proposal.Decide())
		})
	}
}

func TestProposalSummary(t *testing.T) {
	now := time.Now()
	p := &Proposal{
		Status:              StatusDraft,
		StartTime:           now.Add(-time.Minute),
		EndTime:             now.Add(time.Hour),
		QuorumRequired:      100,
		PassingThresholdPct: 50,
		VotesFor:            80,
		VotesAgainst:        10,
		VotesAbstain:        30,
	}

	s := p.Summary(now)
	assert.Equal(t, int64(120), s.TotalVotes)
	assert.True(t, s.QuorumMet)
	assert.Equal(t, 1.0, s.QuorumProgress)
	assert.Equal(t, 67, s.PercentageFor)
	assert.Equal(t, StatusActive, s.Outcome)

	p.VotesFor, p.VotesAgainst, p.VotesAbstain = 20, 5, 0
	assert.InDelta(t, 0.25, p.QuorumProgress(), 1e-9)
	assert.Equal(t, int64(5), p.Counter(ChoiceAgainst))
}

func TestParsers(t *testing.T) {
	s, err := ParseStatus(" Passed ")
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, s)
	_, err = ParseStatus("pending")
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err := ParseChoice("FOR")
	require.NoError(t, err)
	assert.Equal(t, ChoiceFor, c)
	_, err = ParseChoice("maybe")
	assert.ErrorIs(t, err, ErrInvalidChoice)

	tt, err := ParseVoteTargetType("genius")
	require.NoError(t, err)
	assert.Equal(t, TargetGenius, tt)
	_, err = ParseVoteTargetType("election")
	assert.ErrorIs(t, err, ErrInvalidTargetType)

	cat, err := ParseProposalCategory("Funding")
	require.NoError(t, err)
	assert.Equal(t, "funding", cat)
	_, err = ParseProposalCategory("gossip")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestVoteDeltas(t *testing.T) {
	ev := &ElectionVote{ID: "v1", ElectionID: "e1", VoterID: "alice", CandidateID: "c1", VoteCount: 3}
	assert.Equal(t, []CounterDelta{
		{Ref: TargetRef{Type: TargetCandidate, ID: "c1", ParentID: "e1"}, Field: FieldVotesReceived, Delta: 3},
		{Ref: TargetRef{Type: TargetElection, ID: "e1"}, Field: FieldTotalVotes, Delta: 3},
		{Ref: TargetRef{Type: TargetElection, ID: "e1"}, Field: FieldTotalVoters, Delta: 1},
	}, ev.Deltas())
	assert.Equal(t, "election:e1:alice", ev.AuditKey())

	pv := &Vote{TargetType: TargetProposal, TargetID: "p1", Choice: ChoiceAgainst}
	assert.Equal(t, []CounterDelta{{Ref: TargetRef{Type: TargetProposal, ID: "p1"}, Field: FieldVotesAgainst, Delta: 1}}, pv.Deltas())

	gv := &Vote{TargetType: TargetProject, TargetID: "x"}
	assert.Equal(t, FieldVotesCount, gv.Deltas()[0].Field)
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(ErrInvalidWeight))
	assert.True(t, IsValidationError(ErrVotingClosed))
	assert.False(t, IsValidationError(ErrDuplicateVote))
	assert.False(t, IsValidationError(ErrStorageUnavailable))
}
