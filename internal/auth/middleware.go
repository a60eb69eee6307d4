package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

type contextKey string

const identityKey contextKey = "identity"

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	// Secure should be true whenever the site is served over HTTPS.
	Secure bool
}

// SetSessionCookie writes token as the session cookie.
//
// COOKIE FLAGS:
//   - HttpOnly: page scripts cannot read it, so an XSS bug cannot steal it.
//   - SameSite=Lax: sent on top-level navigation but not on cross-site
//     POSTs, which blunts CSRF against the form endpoints.
//   - Secure: HTTPS only, switched on by configuration.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken returns the raw session cookie value, or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// LoadSession resolves the session cookie on every request and, when it
// names a live session, stores the Identity on the request context.
// Requests without a valid session pass through anonymously; a stale
// cookie is cleared so the browser stops sending it. A storage error
// leaves the cookie alone.
func LoadSession(sessions *SessionManager, opts CookieOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrNoSession) {
					ClearSessionCookie(w, opts)
				} else {
					// Storage trouble: keep the cookie so the session
					// survives once the store recovers.
					logger.Error("resolving session", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth lets only authenticated requests through. Anonymous requests
// are handed to deny, which decides how to send the visitor to the login
// page.
func RequireAuth(deny http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				deny.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller's identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}
