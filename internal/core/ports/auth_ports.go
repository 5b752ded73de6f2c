package ports

import "context"

// VoterClaims is what a verified access token says about the caller.
type VoterClaims struct {
	VoterID string
}

// TokenVerifier resolves an access token to the voter it was issued for.
// Voter accounts live outside this service; only the opaque ID is used.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*VoterClaims, error)
}
