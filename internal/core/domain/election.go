package domain

import (
	"math"
	"sort"
	"time"
)

const DefaultMaxVotesPerVoter = 4

type Election struct {
	ID               string      `json:"election_id"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	Position         string      `json:"position"`
	Country          string      `json:"country"`
	Region           string      `json:"region,omitempty"`
	StartTime        time.Time   `json:"start_time"`
	EndTime          time.Time   `json:"end_time"`
	Status           Status      `json:"status"`
	MaxVotesPerVoter int         `json:"max_votes_per_voter"`
	Candidates       []Candidate `json:"candidates"`
	TotalVotes       int64       `json:"total_votes"`
	TotalVoters      int64       `json:"total_voters"`
	WinnerID         string      `json:"winner_candidate_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

type Candidate struct {
	ID          string `json:"candidate_id"`
	ElectionID  string `json:"election_id"`
	DisplayName string `json:"display_name"`
	Affiliation string `json:"affiliation,omitempty"`
	// Registration order inside the election, used to break ties.
	Position      int   `json:"position"`
	VotesReceived int64 `json:"votes_received"`
}

// EffectiveStatus applies the lazy upcoming -> active transition.
func (e *Election) EffectiveStatus(now time.Time) Status {
	if e.Status.isPending() && !now.Before(e.StartTime) {
		return StatusActive
	}
	return e.Status
}

// IsOpen reports whether a vote cast at now falls inside the voting window.
func (e *Election) IsOpen(now time.Time) bool {
	return e.EffectiveStatus(now) == StatusActive &&
		!now.Before(e.StartTime) && !now.After(e.EndTime)
}

// IsDue reports whether the window has passed and the election can be closed.
func (e *Election) IsDue(now time.Time) bool {
	return !e.Status.IsTerminal() && now.After(e.EndTime)
}

func (e *Election) Candidate(id string) (*Candidate, bool) {
	for i := range e.Candidates {
		if e.Candidates[i].ID == id {
			return &e.Candidates[i], true
		}
	}
	return nil, false
}

// MaxVotes returns the per-voter weight ceiling, falling back to the default.
func (e *Election) MaxVotes() int {
	if e.MaxVotesPerVoter <= 0 {
		return DefaultMaxVotesPerVoter
	}
	return e.MaxVotesPerVoter
}

// PercentageFor rounds the candidate's share of all weighted votes to the
// nearest integer percent.
func (e *Election) PercentageFor(c Candidate) int {
	return Percentage(c.VotesReceived, e.TotalVotes)
}

// RankedCandidates orders candidates by votes received, highest first.
// Ties keep registration order.
func (e *Election) RankedCandidates() []Candidate {
	ranked := make([]Candidate, len(e.Candidates))
	copy(ranked, e.Candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].VotesReceived != ranked[j].VotesReceived {
			return ranked[i].VotesReceived > ranked[j].VotesReceived
		}
		return ranked[i].Position < ranked[j].Position
	})
	return ranked
}

// Winner returns the leading candidate, or false when nobody has votes.
func (e *Election) Winner() (Candidate, bool) {
	ranked := e.RankedCandidates()
	if len(ranked) == 0 || ranked[0].VotesReceived == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

func Percentage(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
