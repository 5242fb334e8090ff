// Package auth integrates the external identity provider and exposes
// the authenticated session to the rest of the application.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Common auth errors.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired")
	ErrRefreshFailed  = errors.New("token refresh failed")
)

// Session is the authenticated user state. It is owned by the identity
// provider integration and read-only to the wizard.
type Session struct {
	// UserID is the identity-provider subject.
	UserID string

	// DisplayName is the user's full name.
	DisplayName string

	// Email is the user's email address.
	Email string

	// IsSetupComplete reports whether account setup has finished.
	IsSetupComplete bool

	// ExpiresAt is when the access token expires.
	ExpiresAt time.Time
}

// IsAuthenticated returns true for a valid, non-expired session.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != "" && time.Now().Before(s.ExpiresAt)
}

type sessionContextKey struct{}

// WithSession attaches a session to a context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext retrieves the session, or nil when unauthenticated.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}

// IsAuthenticated reports whether the context carries a valid session.
func IsAuthenticated(ctx context.Context) bool {
	return SessionFromContext(ctx).IsAuthenticated()
}

// RequireAuth is middleware that rejects unauthenticated requests.
func RequireAuth(onUnauthorized func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAuthenticated(r.Context()) {
				if onUnauthorized != nil {
					onUnauthorized(w, r)
					return
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
