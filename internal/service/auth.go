// Package service contains the business rules of the records API.
//
//	Handler (HTTP) → Service (rules, ownership, orchestration) → Repository (SQL)
//
// Services take plain Go values, never *http.Request, and return apperror
// values that the handler layer maps onto HTTP status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/auth"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/repository"
)

var _ auth.IdentityResolver = (*AuthService)(nil)

// AuthService handles registration, login and token resolution.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the authenticated user and the issued access token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an active account.
//
// Uniqueness is checked email first, then username, so a request colliding
// on both reports the email. A concurrent registration that slips past the
// checks is still caught by the UNIQUE constraints and reported the same way.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if taken {
		return nil, apperror.Conflict("email", "Email already registered")
	}

	taken, err = s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if taken {
		return nil, apperror.Conflict("username", "Username already taken")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login verifies credentials and issues an access token whose subject is the
// user ID. Unknown user and wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Incorrect username or password")
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed", slog.String("username", username))
		return nil, apperror.Unauthorized("Incorrect username or password")
	}

	if !user.IsActive {
		return nil, apperror.Forbidden("Inactive user")
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// Resolve validates a bearer token and returns the ID of the active user it
// names. Used by auth.RequireAuth.
func (s *AuthService) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return "", apperror.Unauthorized("Could not validate credentials")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("Could not validate credentials")
		}
		return "", fmt.Errorf("loading user %s: %w", userID, err)
	}
	if !user.IsActive {
		return "", apperror.Forbidden("Inactive user")
	}

	return user.ID, nil
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}
