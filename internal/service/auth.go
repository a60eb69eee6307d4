package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/recipe-share/internal/apperror"
	"github.com/sakif/recipe-share/internal/auth"
	"github.com/sakif/recipe-share/internal/model"
	"github.com/sakif/recipe-share/internal/repository"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username        string `form:"username" validate:"required,min=2,max=20"`
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required,max=72"`
	ConfirmPassword string `form:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// LoginResult is what the handler needs to set the session cookie.
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// AuthService owns registration, login and logout.
//
// Passwords are hashed by auth.PasswordService and sessions are issued by
// auth.SessionManager; this type only sequences those steps and maps their
// failures onto apperror values the handlers understand.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	sessions  *auth.SessionManager
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	sessions *auth.SessionManager,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		sessions:  sessions,
		logger:    logger,
	}
}

// normalizeEmail makes "  Alice@Example.COM " and "alice@example.com" the
// same account.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. A taken email yields ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)

	if err := validateInput(in); err != nil {
		return nil, err
	}
	// validator counts runes; bcrypt's limit is in bytes.
	if len(in.Password) > 72 {
		return nil, apperror.ValidationFailed("password", "Password is too long.")
	}

	// The pre-check gives a friendly error in the common case. The UNIQUE
	// constraint still decides a race between two sign-ups.
	n, err := s.users.CountUsersByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}
	if n > 0 {
		return nil, emailTaken(in.Email)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, emailTaken(in.Email)
		}
		s.logger.Error("failed to create user",
			slog.String("email", in.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

func emailTaken(email string) *apperror.AppError {
	e := apperror.Conflict("user", email)
	e.Message = "That email is already registered."
	e.Field = "email"
	e.Fields = map[string]string{"email": e.Message}
	return e
}

// Login checks credentials and starts a session. Unknown email and wrong
// password produce the same ErrAuthentication so the response does not
// reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = normalizeEmail(in.Email)

	if err := validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("login failed", slog.String("reason", "unknown email"))
			return nil, apperror.AuthenticationFailed()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed",
				slog.String("reason", "wrong password"),
				slog.String("userID", user.ID),
			)
			return nil, apperror.AuthenticationFailed()
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	token, expires, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &LoginResult{User: user, Token: token, ExpiresAt: expires}, nil
}

// Logout ends the session behind token. It never fails from the caller's
// point of view; storage errors are logged.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.sessions.Destroy(ctx, token); err != nil {
		s.logger.Error("failed to destroy session", slog.String("error", err.Error()))
	}
}

