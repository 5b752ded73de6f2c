package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type contextKey string

const VoterIDKey contextKey = "voterID"

const accessTokenCookie = "access_token"

// Authenticate accepts a Bearer token or the access_token cookie and puts
// the token subject in the request context under VoterIDKey.
func Authenticate(verifier ports.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing access token")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), VoterIDKey, claims.VoterID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminKey guards the administrative routes with a shared key sent
// in the X-Admin-Key header.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get("X-Admin-Key")
			if given == "" {
				writeError(w, http.StatusUnauthorized, "missing admin key")
				return
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				writeError(w, http.StatusForbidden, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	cookie, err := r.Cookie(accessTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func voterID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(VoterIDKey).(string)
	return id, ok && id != ""
}
