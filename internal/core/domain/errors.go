package domain

import "errors"

var (
	ErrTargetNotFound     = errors.New("target not found")
	ErrTargetExists       = errors.New("target already exists")
	ErrVotingClosed       = errors.New("voting is closed")
	ErrInvalidCandidate   = errors.New("invalid candidate for this election")
	ErrInvalidChoice      = errors.New("invalid choice, expected for, against or abstain")
	ErrInvalidWeight      = errors.New("vote count out of bounds")
	ErrInvalidTargetType  = errors.New("invalid target type")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateVote      = errors.New("voter has already voted")
	ErrVoteNotFound       = errors.New("vote not found")
	ErrAlreadyCounted     = errors.New("vote already counted")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsValidationError reports whether err is an admission-time rejection.
// These are terminal and never retried.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrVotingClosed) ||
		errors.Is(err, ErrInvalidCandidate) ||
		errors.Is(err, ErrInvalidChoice) ||
		errors.Is(err, ErrInvalidWeight) ||
		errors.Is(err, ErrInvalidTargetType) ||
		errors.Is(err, ErrInvalidInput)
}
