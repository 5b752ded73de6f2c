package domain

import (
	"fmt"
	"strings"
)

// Status is shared by elections, proposals and generic targets.
// Elections and proposals move upcoming|draft -> active -> terminal.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusClosed   Status = "closed"
	StatusPassed   Status = "passed"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusRetired  Status = "retired"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusPassed, StatusRejected, StatusExpired, StatusRetired:
		return true
	}
	return false
}

func (s Status) isPending() bool {
	return s == StatusUpcoming || s == StatusDraft
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusUpcoming, StatusDraft, StatusActive, StatusClosed,
		StatusPassed, StatusRejected, StatusExpired, StatusRetired:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
}

type TargetType string

const (
	TargetGenius   TargetType = "genius"
	TargetProject  TargetType = "project"
	TargetProposal TargetType = "proposal"

	// Counter and audit scopes only; never accepted as a generic vote target.
	TargetElection  TargetType = "election"
	TargetCandidate TargetType = "candidate"
)

// ParseVoteTargetType accepts the target types a generic Vote may reference.
func ParseVoteTargetType(raw string) (TargetType, error) {
	t := TargetType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TargetGenius, TargetProject, TargetProposal:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTargetType, raw)
}

type Choice string

const (
	ChoiceNone    Choice = ""
	ChoiceFor     Choice = "for"
	ChoiceAgainst Choice = "against"
	ChoiceAbstain Choice = "abstain"
)

func ParseChoice(raw string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain:
		return c, nil
	}
	return ChoiceNone, fmt.Errorf("%w: got %q", ErrInvalidChoice, raw)
}

// TallyState tracks whether a recorded vote has reached its counters yet.
type TallyState string

const (
	TallyPending TallyState = "pending"
	TallyCounted TallyState = "counted"
)
