package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/lib/verification"
	"whisper_service/internal/models"
	"whisper_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already taken")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrNotificationFailed = errors.New("failed to send verification email")
)

// Service owns the account verification lifecycle: registration mints a
// time-boxed one-time code and queues its delivery, VerifyCode moves the
// account to its terminal verified state.
type Service struct {
	log      *slog.Logger
	saver    AccountSaver
	provider AccountProvider
	notifier Notifier
	codeTTL  time.Duration
}

type AccountSaver interface {
	SaveAccount(ctx context.Context, email, username string, passHash []byte, code string, codeExpiry time.Time, accepting bool) (int64, error)
	RefreshPending(ctx context.Context, id int64, passHash []byte, code string, codeExpiry time.Time) error
	MarkVerified(ctx context.Context, id int64) error
}

type AccountProvider interface {
	AccountByUsername(ctx context.Context, username string) (models.Account, error)
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	VerifiedAccountByUsername(ctx context.Context, username string) (models.Account, error)
}

type Notifier interface {
	SendEmail(ctx context.Context, msg models.EmailMessage) error
}

func New(
	log *slog.Logger,
	saver AccountSaver,
	provider AccountProvider,
	notifier Notifier,
	codeTTL time.Duration,
) *Service {
	return &Service{
		log:      log,
		saver:    saver,
		provider: provider,
		notifier: notifier,
		codeTTL:  codeTTL,
	}
}

// Register creates an unverified account, or refreshes an existing
// unverified one in place when the email was already registered. New
// accounts accept messages by default. The code state is persisted before
// the email job is published; a publish failure is reported to the caller,
// and re-registering regenerates the code.
func (s *Service) Register(
	ctx context.Context,
	username, email, password string,
) (int64, error) {
	const op = "accounts.Register"

	log := s.log.With(slog.String("op", op))

	_, err := s.provider.VerifiedAccountByUsername(ctx, username)
	if err == nil {
		log.Info("username already taken by verified account")
		return 0, ErrUsernameTaken
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		log.Error("failed to check username", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	code, err := verification.NewCode()
	if err != nil {
		log.Error("failed to generate verification code", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	codeExpiry := time.Now().Add(s.codeTTL)

	var id int64

	existing, err := s.provider.AccountByEmail(ctx, email)
	switch {
	case err == nil && existing.IsVerified:
		log.Info("email already taken by verified account")
		return 0, ErrEmailTaken

	case err == nil:
		// Re-registration of a pending account reuses the row.
		if err := s.saver.RefreshPending(ctx, existing.ID, passHash, code, codeExpiry); err != nil {
			log.Error("failed to refresh pending account", sl.Err(err))
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		id = existing.ID

	case errors.Is(err, storage.ErrAccountNotFound):
		id, err = s.saver.SaveAccount(ctx, email, username, passHash, code, codeExpiry, true)
		if err != nil {
			if errors.Is(err, storage.ErrAccountExists) {
				log.Warn("account already exists")
				return 0, ErrUsernameTaken
			}

			log.Error("failed to save account", sl.Err(err))
			return 0, fmt.Errorf("%s: %w", op, err)
		}

	default:
		log.Error("failed to look up account by email", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	msg := models.EmailMessage{
		Email:    email,
		Username: username,
		Code:     code,
		Subject:  "Whisper | Verification Code",
	}

	if err := s.notifier.SendEmail(ctx, msg); err != nil {
		log.Error("failed to publish verification email", sl.Err(err))
		return id, fmt.Errorf("%s: %w", op, ErrNotificationFailed)
	}

	log.Info("account registered", slog.Int64("id", id))

	return id, nil
}

// VerifyCode moves an account from pending to verified. Verified is
// terminal: the code and its expiry are cleared in the same update and no
// path leads back. A wrong or expired code leaves the state untouched.
func (s *Service) VerifyCode(ctx context.Context, username, code string) error {
	const op = "accounts.VerifyCode"

	log := s.log.With(slog.String("op", op))

	account, err := s.provider.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Info("account not found")
			return ErrAccountNotFound
		}

		log.Error("failed to get account", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if account.IsVerified {
		return ErrAlreadyVerified
	}

	if account.VerifyCode != code {
		log.Info("verification code mismatch")
		return ErrInvalidCode
	}

	if !time.Now().Before(account.CodeExpiry) {
		log.Info("verification code expired")
		return ErrCodeExpired
	}

	if err := s.saver.MarkVerified(ctx, account.ID); err != nil {
		log.Error("failed to mark account verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account verified", slog.Int64("id", account.ID))

	return nil
}

// CheckUsername reports whether a username is still free. Only verified
// accounts count as taken, matching the registration rules.
func (s *Service) CheckUsername(ctx context.Context, username string) (bool, error) {
	const op = "accounts.CheckUsername"

	_, err := s.provider.VerifiedAccountByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, storage.ErrAccountNotFound) {
		return true, nil
	}

	return false, fmt.Errorf("%s: %w", op, err)
}
