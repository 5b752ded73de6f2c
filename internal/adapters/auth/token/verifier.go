package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

var ErrInvalidToken = errors.New("invalid access token")

// Verifier checks HS256 access tokens minted by the identity service.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) ports.TokenVerifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*ports.VoterClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: subject not found in claims", ErrInvalidToken)
	}

	return &ports.VoterClaims{VoterID: sub}, nil
}
