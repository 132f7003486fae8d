package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/models"
	"whisper_service/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrNotAccepting      = errors.New("recipient is not accepting messages")
	ErrAccountNotFound   = errors.New("account not found")
)

// Service manages the per-account inbox and its acceptance flag.
type Service struct {
	log   *slog.Logger
	store MessageStore
}

type MessageStore interface {
	AccountByUsername(ctx context.Context, username string) (models.Account, error)
	AccountByID(ctx context.Context, id int64) (models.Account, error)
	AppendMessage(ctx context.Context, id int64, msg models.Message) error
	RemoveMessage(ctx context.Context, id int64, messageID string) error
	Messages(ctx context.Context, id int64) ([]models.Message, error)
	SetAcceptance(ctx context.Context, id int64, accepting bool) error
}

func New(log *slog.Logger, store MessageStore) *Service {
	return &Service{
		log:   log,
		store: store,
	}
}

// SendMessage appends an anonymous message to the recipient's inbox.
// No sender identity is taken or recorded. The storage append re-checks
// the acceptance flag inside the update, so a toggle racing this call
// cannot let a message through.
func (s *Service) SendMessage(ctx context.Context, recipientUsername, content string) (models.Message, error) {
	const op = "inbox.SendMessage"

	log := s.log.With(slog.String("op", op))

	recipient, err := s.store.AccountByUsername(ctx, recipientUsername)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Info("recipient not found")
			return models.Message{}, ErrRecipientNotFound
		}

		log.Error("failed to get recipient", sl.Err(err))
		return models.Message{}, fmt.Errorf("%s: %w", op, err)
	}

	if !recipient.IsAccepting {
		log.Info("recipient is not accepting messages")
		return models.Message{}, ErrNotAccepting
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := s.store.AppendMessage(ctx, recipient.ID, msg); err != nil {
		if errors.Is(err, storage.ErrNotAccepting) {
			return models.Message{}, ErrNotAccepting
		}

		log.Error("failed to append message", sl.Err(err))
		return models.Message{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("message delivered", slog.Int64("recipient_id", recipient.ID))

	return msg, nil
}

// DeleteMessage removes one message from the caller's inbox. Deleting an
// id that was never there succeeds: the pull-style update does not
// distinguish "deleted" from "absent".
func (s *Service) DeleteMessage(ctx context.Context, accountID int64, messageID string) error {
	const op = "inbox.DeleteMessage"

	log := s.log.With(slog.String("op", op))

	if err := s.store.RemoveMessage(ctx, accountID, messageID); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}

		log.Error("failed to remove message", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Messages returns the full inbox, in store order.
func (s *Service) Messages(ctx context.Context, accountID int64) ([]models.Message, error) {
	const op = "inbox.Messages"

	messages, err := s.store.Messages(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return messages, nil
}

// SetAcceptance unconditionally overwrites the acceptance flag.
func (s *Service) SetAcceptance(ctx context.Context, accountID int64, accepting bool) error {
	const op = "inbox.SetAcceptance"

	log := s.log.With(slog.String("op", op))

	if err := s.store.SetAcceptance(ctx, accountID, accepting); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}

		log.Error("failed to set acceptance flag", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("acceptance flag updated", slog.Int64("id", accountID), slog.Bool("accepting", accepting))

	return nil
}

// Acceptance reads the current flag. Enforcement happens in SendMessage;
// this read hydrates the dashboard.
func (s *Service) Acceptance(ctx context.Context, accountID int64) (bool, error) {
	const op = "inbox.Acceptance"

	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return false, ErrAccountNotFound
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return account.IsAccepting, nil
}
