package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DefaultQuorumRequired   = 100
	DefaultPassingThreshold = 50
)

var proposalCategories = []string{"policy", "funding", "governance", "community", "technical"}

// ParseProposalCategory normalizes a category and rejects unknown ones.
func ParseProposalCategory(raw string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(raw))
	for _, known := range proposalCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: category must be one of %s", ErrInvalidInput, strings.Join(proposalCategories, ", "))
}

type Proposal struct {
	ID                  string    `json:"proposal_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	Category            string    `json:"category"`
	ProposerID          string    `json:"proposer_id,omitempty"`
	Status              Status    `json:"status"`
	VotesFor            int64     `json:"votes_for"`
	VotesAgainst        int64     `json:"votes_against"`
	VotesAbstain        int64     `json:"votes_abstain"`
	QuorumRequired      int64     `json:"quorum_required"`
	PassingThresholdPct int       `json:"passing_threshold_pct"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	CreatedAt           time.Time `json:"created_at"`
}

func (p *Proposal) TotalVotes() int64 {
	return p.VotesFor + p.VotesAgainst + p.VotesAbstain
}

func (p *Proposal) EffectiveStatus(now time.Time) Status {
	if p.Status.isPending() && !now.Before(p.StartTime) {
		return StatusActive
	}
	return p.Status
}

func (p *Proposal) IsOpen(now time.Time) bool {
	return p.EffectiveStatus(now) == StatusActive &&
		!now.Before(p.StartTime) && !now.After(p.EndTime)
}

func (p *Proposal) IsDue(now time.Time) bool {
	return !p.Status.IsTerminal() && now.After(p.EndTime)
}

func (p *Proposal) QuorumMet() bool {
	return p.TotalVotes() >= p.QuorumRequired
}

// QuorumProgress is the share of the quorum reached, capped at 1.
func (p *Proposal) QuorumProgress() float64 {
	if p.QuorumRequired <= 0 {
		return 1
	}
	return math.Min(float64(p.TotalVotes())/float64(p.QuorumRequired), 1)
}

// PercentageFor is the share of "for" votes among all votes cast.
func (p *Proposal) PercentageFor() float64 {
	total := p.TotalVotes()
	if total == 0 {
		return 0
	}
	return float64(p.VotesFor) / float64(total) * 100
}

// Decide computes the terminal status from the current counters.
// The threshold comparison stays in integers so 60% of 60 is exactly 36.
func (p *Proposal) Decide() Status {
	if !p.QuorumMet() {
		return StatusExpired
	}
	if p.VotesFor*100 >= int64(p.PassingThresholdPct)*p.TotalVotes() {
		return StatusPassed
	}
	return StatusRejected
}

func (p *Proposal) Counter(c Choice) int64 {
	switch c {
	case ChoiceFor:
		return p.VotesFor
	case ChoiceAgainst:
		return p.VotesAgainst
	case ChoiceAbstain:
		return p.VotesAbstain
	}
	return 0
}

type ProposalSummary struct {
	TotalVotes     int64   `json:"total_votes"`
	QuorumMet      bool    `json:"quorum_met"`
	QuorumProgress float64 `json:"quorum_progress"`
	PercentageFor  int     `json:"percentage_for"`
	Outcome        Status  `json:"outcome"`
}

func (p *Proposal) Summary(now time.Time) ProposalSummary {
	return ProposalSummary{
		TotalVotes:     p.TotalVotes(),
		QuorumMet:      p.QuorumMet(),
		QuorumProgress: p.QuorumProgress(),
		PercentageFor:  int(math.Round(p.PercentageFor())),
		Outcome:        p.EffectiveStatus(now),
	}
}
