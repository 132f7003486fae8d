package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"whisper_service/internal/lib/jwt"
	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/models"
	"whisper_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid token")
)

// Auth issues and revokes session tokens. The token carries the account's
// id, username, verification flag and acceptance flag; logout keeps the
// token in the revocation store until its natural expiry.
type Auth struct {
	log         *slog.Logger
	accounts    AccountProvider
	revoked     TokenRevoker
	tokenTTL    time.Duration
	tokenSecret string
}

type AccountProvider interface {
	AccountByLogin(ctx context.Context, identifier string) (models.Account, error)
}

type TokenRevoker interface {
	RevokeToken(ctx context.Context, token string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
}

func New(
	log *slog.Logger,
	accounts AccountProvider,
	revoked TokenRevoker,
	tokenTTL time.Duration,
	tokenSecret string,
) *Auth {
	return &Auth{
		log:         log,
		accounts:    accounts,
		revoked:     revoked,
		tokenTTL:    tokenTTL,
		tokenSecret: tokenSecret,
	}
}

// Login exchanges a username-or-email identifier and password for a
// session token. Not-found, not-verified and wrong-password are
// distinguished internally; the first and last collapse to
// ErrInvalidCredentials at the boundary.
func (a *Auth) Login(
	ctx context.Context,
	identifier, password string,
) (string, models.Identity, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	account, err := a.accounts.AccountByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return "", models.Identity{}, ErrInvalidCredentials
		}

		log.Error("failed to get account", sl.Err(err))
		return "", models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	if !account.IsVerified {
		log.Info("login attempt on unverified account")
		return "", models.Identity{}, ErrEmailNotVerified
	}

	if err := bcrypt.CompareHashAndPassword(account.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return "", models.Identity{}, ErrInvalidCredentials
	}

	token, err := jwt.NewToken(account, a.tokenSecret, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	identity := models.Identity{
		ID:          account.ID,
		Username:    account.Username,
		IsVerified:  account.IsVerified,
		IsAccepting: account.IsAccepting,
	}

	log.Info("user logged in successfully", slog.Int64("uid", account.ID))

	return token, identity, nil
}

// Logout revokes a session token for the remainder of its lifetime.
func (a *Auth) Logout(ctx context.Context, token string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if _, err := jwt.ParseToken(token, a.tokenSecret); err != nil {
		log.Warn("logout with invalid token", sl.Err(err))
		return ErrInvalidToken
	}

	expiry, err := jwt.Expiry(token)
	if err != nil {
		return ErrInvalidToken
	}

	if err := a.revoked.RevokeToken(ctx, token, time.Until(expiry)); err != nil {
		log.Error("failed to revoke token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful")

	return nil
}

// Identity validates a session token and returns the identity it carries.
func (a *Auth) Identity(ctx context.Context, token string) (models.Identity, error) {
	const op = "auth.Identity"

	identity, err := jwt.ParseToken(token, a.tokenSecret)
	if err != nil {
		return models.Identity{}, ErrInvalidToken
	}

	revoked, err := a.revoked.IsTokenRevoked(ctx, token)
	if err != nil {
		a.log.Error("failed to check token revocation", slog.String("op", op), sl.Err(err))
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		return models.Identity{}, ErrInvalidToken
	}

	return identity, nil
}
