package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/auth"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

const MaxUsernameLength = 50

// AuthService registers accounts and exchanges credentials for tokens.
//
//	AuthHandler (HTTP) → AuthService (rules) → repository.Store (users)
//	                   ↘ TokenService (JWT) / PasswordService (bcrypt)
type AuthService struct {
	store     repository.Store
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued token for the login response.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the data a new account starts with.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	City     string
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if len(username) > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if strings.ContainsAny(username, "/ \t") {
		return "", apperror.ValidationFailed("username", "username must not contain spaces or slashes")
	}
	return username, nil
}

func validateCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", apperror.ValidationFailed("city", "city is required")
	}
	return city, nil
}

// hashPassword maps policy failures to validation errors.
func hashPassword(passwords *auth.PasswordService, field, plaintext string) (string, error) {
	hash, err := passwords.Hash(plaintext)
	if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperror.ValidationFailed(field, err.Error())
	}
	return hash, err
}

// Register creates an account in LOCAL mode. Duplicate usernames or emails
// are Conflict errors.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, apperror.ValidationFailed("email", "email address is invalid")
	}
	city, err := validateCity(in.City)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(s.passwords, "password", in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        strings.ToLower(addr.Address),
		PasswordHash: hash,
		City:         city,
		Mode:         model.ModeLocal,
		Role:         model.RoleUser,
	}
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to register user", err, slog.String("username", username))
		return nil, fmt.Errorf("registering user %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.String("city", user.City),
	)
	return user, nil
}

// Login verifies email and password and issues a token. Unknown email and
// wrong password produce the same Unauthorized error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user *model.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUserByEmail(ctx, email)
		return err
	})
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login rejected", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("logging in: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}
