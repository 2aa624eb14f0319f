// Package auth handles bearer token authentication: it issues signed tokens,
// extracts them from requests and carries the authenticated user id in the
// request context. Token liveness (logout, password change) is checked through
// a TokenVerifier so the package stays free of storage concerns.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/diewo77/go-tasks/httpx"
)

type ctxKey string

const (
	userIDCtxKey  = ctxKey("userID")
	tokenIDCtxKey = ctxKey("tokenID")
)

// TokenVerifier reports whether token tokenID is still live for user uid
// (not revoked, user still active).
type TokenVerifier func(ctx context.Context, uid uint, tokenID string) bool

// Authenticator turns bearer tokens into request identities.
type Authenticator struct {
	issuer *Issuer
	verify TokenVerifier
}

// NewAuthenticator creates an Authenticator. verify may be nil, in which case
// only the token signature and expiry are checked.
func NewAuthenticator(issuer *Issuer, verify TokenVerifier) *Authenticator {
	return &Authenticator{issuer: issuer, verify: verify}
}

// Issuer returns the token issuer used by the authenticator.
func (a *Authenticator) Issuer() *Issuer { return a.issuer }

// BearerToken returns the token carried in the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	v := ctx.Value(userIDCtxKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// WithTokenID stores the id of the token that authenticated the request.
func WithTokenID(ctx context.Context, tokenID string) context.Context {
	return context.WithValue(ctx, tokenIDCtxKey, tokenID)
}

// TokenIDFromContext extracts the token id.
func TokenIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tokenIDCtxKey).(string)
	return id, ok && id != ""
}

// Middleware attaches the user id to the request context when a valid bearer
// token is present. Requests without an Authorization header pass through as
// anonymous; a header carrying a bad, expired or revoked token is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := BearerToken(r)
		if !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "invalid_token", nil)
			return
		}
		claims, err := a.issuer.Parse(raw)
		if err != nil {
			httpx.JSONError(w, http.StatusUnauthorized, "invalid_token", nil)
			return
		}
		if a.verify != nil && !a.verify(r.Context(), claims.UserID, claims.TokenID) {
			httpx.JSONError(w, http.StatusUnauthorized, "invalid_token", nil)
			return
		}
		ctx := WithTokenID(WithUserID(r.Context(), claims.UserID), claims.TokenID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth answers 401 JSON when the request carries no identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "authentication_required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
