package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/auth"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

// AccountService owns user records and the tokens that identify them.
//
//	handler → AccountService → UserQueries (DB)
//	                         ↘ TokenService (JWT)
//
// There is no password or OAuth login: an admin creates accounts and hands
// out the token returned here.
type AccountService struct {
	users  repository.UserQueries
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAccountService(users repository.UserQueries, tokens *auth.TokenService, logger *slog.Logger) *AccountService {
	return &AccountService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult bundles a user with a freshly issued token so the handler can
// answer (or set a cookie) in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// NewAccount is the input to Register.
type NewAccount struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Register creates a user and issues a token for it. A taken email is a
// Conflict.
func (s *AccountService) Register(ctx context.Context, in NewAccount) (*AuthResult, error) {
	u, err := newUser(in)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service: creating user %q: %w", u.Email, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", u.ID),
		slog.String("role", u.Role),
	)
	return s.issue(u)
}

// EnsureAccount returns a token for the user with in.Email, creating the
// user first when there is none. The stored role wins over in.Role.
func (s *AccountService) EnsureAccount(ctx context.Context, in NewAccount) (*AuthResult, error) {
	u, err := newUser(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, u.Email)
	switch {
	case err == nil:
		return s.issue(existing)
	case errors.Is(err, apperror.ErrNotFound):
		return s.Register(ctx, in)
	default:
		return nil, fmt.Errorf("service: looking up user %q: %w", u.Email, err)
	}
}

// Me returns the user a token identifies.
func (s *AccountService) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: fetching user %d: %w", userID, err)
	}
	return u, nil
}

func (s *AccountService) issue(u *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(u.ID, u.Role, auth.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("service: issuing token for user %d: %w", u.ID, err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

func newUser(in NewAccount) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperror.ValidationFailed("email", "email is not a valid address")
	}

	name := strings.TrimSpace(in.Name)
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name", fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}

	role := in.Role
	switch role {
	case "":
		role = model.RoleUser
	case model.RoleAdmin, model.RoleUser:
	default:
		return nil, apperror.ValidationFailed("role", "role must be admin or user")
	}

	return &model.User{Email: email, Name: name, Role: role}, nil
}
