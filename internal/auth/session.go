package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
)

// DefaultSessionTTL is how long a login lasts when the config leaves it unset.
const DefaultSessionTTL = 7 * 24 * time.Hour

// ErrNoSession is returned by Resolve when the token does not name a live
// session: it was never issued, was logged out, or has expired.
var ErrNoSession = errors.New("auth: no active session")

// Identity is the authenticated caller. Handlers read it from the request
// context and pass it to services explicitly.
type Identity struct {
	UserID    string
	SessionID string
}

// SessionManager issues and resolves logins.
//
// TWO HALVES:
// A row in the sessions table is the source of truth. The browser gets a
// signed token naming that row. Resolve needs both: a valid signature and
// a row that still exists and has not expired.
type SessionManager struct {
	sessions repository.SessionRepository
	tokens   *TokenService
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSessionManager(sessions repository.SessionRepository, tokens *TokenService, ttl time.Duration, logger *slog.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: sessions,
		tokens:   tokens,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Create starts a session for userID and returns the signed token along
// with its expiry.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, time.Time, error) {
	now := m.now().UTC()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: storing session: %w", err)
	}

	token, err := m.tokens.Generate(userID, session.ID, session.ExpiresAt)
	if err != nil {
		return "", time.Time{}, err
	}

	m.logger.Info("session created", slog.String("userID", userID), slog.String("sessionID", session.ID))
	return token, session.ExpiresAt, nil
}

// Resolve turns a cookie token into an Identity.
func (m *SessionManager) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := m.tokens.Validate(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	session, err := m.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return Identity{}, ErrNoSession
		}
		return Identity{}, fmt.Errorf("auth: loading session: %w", err)
	}

	// The token's subject must agree with the row, otherwise a token
	// signed for one user could ride on another user's session ID.
	if session.UserID != claims.UserID || session.Expired(m.now()) {
		return Identity{}, ErrNoSession
	}

	return Identity{UserID: session.UserID, SessionID: session.ID}, nil
}

// Destroy ends the session named by token. Unknown, expired or garbage
// tokens are ignored; logout always succeeds from the user's point of view.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	claims, err := m.tokens.Validate(token)
	if err != nil {
		// An expired token's row is collected by PurgeExpired.
		return nil
	}

	if err := m.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("auth: deleting session: %w", err)
	}

	m.logger.Info("session destroyed", slog.String("userID", claims.UserID), slog.String("sessionID", claims.SessionID))
	return nil
}

// PurgeExpired removes sessions past their expiry.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpiredSessions(ctx, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("auth: purging sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("expired sessions purged", slog.Int64("count", n))
	}
	return n, nil
}

// RunJanitor calls PurgeExpired every interval until ctx is done.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.PurgeExpired(ctx); err != nil {
				m.logger.Error("session purge failed", slog.String("error", err.Error()))
			}
		}
	}
}
