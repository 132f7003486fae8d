package inbox_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"whisper_service/internal/accounts"
	"whisper_service/internal/inbox"
	"whisper_service/internal/models"
	"whisper_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements both the inbox and accounts storage interfaces so
// the full register -> verify -> send flow can run against one state.
type memStore struct {
	nextID   int64
	accounts map[int64]*models.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: map[int64]*models.Account{}}
}

func (m *memStore) add(a models.Account) *models.Account {
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = &a
	return m.accounts[a.ID]
}

func (m *memStore) byUsername(username string) *models.Account {
	for _, a := range m.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}

func (m *memStore) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	if a := m.byUsername(username); a != nil {
		return *a, nil
	}
	return models.Account{}, storage.ErrAccountNotFound
}

func (m *memStore) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email {
			return *a, nil
		}
	}
	return models.Account{}, storage.ErrAccountNotFound
}

func (m *memStore) VerifiedAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	if a := m.byUsername(username); a != nil && a.IsVerified {
		return *a, nil
	}
	return models.Account{}, storage.ErrAccountNotFound
}

func (m *memStore) AccountByID(ctx context.Context, id int64) (models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return *a, nil
	}
	return models.Account{}, storage.ErrAccountNotFound
}

func (m *memStore) SaveAccount(ctx context.Context, email, username string, passHash []byte, code string, codeExpiry time.Time, accepting bool) (int64, error) {
	a := m.add(models.Account{
		Username:    username,
		Email:       email,
		PassHash:    passHash,
		VerifyCode:  code,
		CodeExpiry:  codeExpiry,
		IsAccepting: accepting,
	})
	return a.ID, nil
}

func (m *memStore) RefreshPending(ctx context.Context, id int64, passHash []byte, code string, codeExpiry time.Time) error {
	a, ok := m.accounts[id]
	if !ok || a.IsVerified {
		return storage.ErrAccountNotFound
	}
	a.PassHash = passHash
	a.VerifyCode = code
	a.CodeExpiry = codeExpiry
	return nil
}

func (m *memStore) MarkVerified(ctx context.Context, id int64) error {
	a, ok := m.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	a.IsVerified = true
	a.VerifyCode = ""
	a.CodeExpiry = time.Time{}
	return nil
}

func (m *memStore) AppendMessage(ctx context.Context, id int64, msg models.Message) error {
	a, ok := m.accounts[id]
	if !ok || !a.IsAccepting {
		return storage.ErrNotAccepting
	}
	a.Messages = append(a.Messages, msg)
	return nil
}

func (m *memStore) RemoveMessage(ctx context.Context, id int64, messageID string) error {
	a, ok := m.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	kept := a.Messages[:0]
	for _, msg := range a.Messages {
		if msg.ID != messageID {
			kept = append(kept, msg)
		}
	}
	a.Messages = kept
	return nil
}

func (m *memStore) Messages(ctx context.Context, id int64) ([]models.Message, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	return append([]models.Message(nil), a.Messages...), nil
}

func (m *memStore) SetAcceptance(ctx context.Context, id int64, accepting bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	a.IsAccepting = accepting
	return nil
}

type captureNotifier struct {
	last models.EmailMessage
}

func (c *captureNotifier) SendEmail(ctx context.Context, msg models.EmailMessage) error {
	c.last = msg
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendMessage_Accepting(t *testing.T) {
	store := newMemStore()
	recipient := store.add(models.Account{Username: "alice", IsVerified: true, IsAccepting: true})
	s := inbox.New(discardLogger(), store)

	msg, err := s.SendMessage(context.Background(), "alice", "hi there")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hi there", msg.Content)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, 5*time.Second)

	require.Len(t, recipient.Messages, 1)
	assert.Equal(t, msg.ID, recipient.Messages[0].ID)
}

func TestSendMessage_NotAccepting(t *testing.T) {
	store := newMemStore()
	recipient := store.add(models.Account{Username: "alice", IsVerified: true, IsAccepting: false})
	s := inbox.New(discardLogger(), store)

	_, err := s.SendMessage(context.Background(), "alice", "hi there")
	assert.ErrorIs(t, err, inbox.ErrNotAccepting)
	assert.Empty(t, recipient.Messages, "nothing is appended")
}

func TestSendMessage_RecipientNotFound(t *testing.T) {
	s := inbox.New(discardLogger(), newMemStore())

	_, err := s.SendMessage(context.Background(), "ghost", "hi")
	assert.ErrorIs(t, err, inbox.ErrRecipientNotFound)
}

func TestDeleteMessage_Idempotent(t *testing.T) {
	store := newMemStore()
	recipient := store.add(models.Account{
		Username:    "alice",
		IsAccepting: true,
		Messages: []models.Message{
			{ID: "m1", Content: "first"},
			{ID: "m2", Content: "second"},
		},
	})
	s := inbox.New(discardLogger(), store)

	require.NoError(t, s.DeleteMessage(context.Background(), recipient.ID, "m1"))
	require.Len(t, recipient.Messages, 1)
	assert.Equal(t, "m2", recipient.Messages[0].ID)

	// Deleting an id that is not there is a successful no-op.
	require.NoError(t, s.DeleteMessage(context.Background(), recipient.ID, "never-existed"))
	require.Len(t, recipient.Messages, 1)
}

func TestSetAcceptance_NotFound(t *testing.T) {
	s := inbox.New(discardLogger(), newMemStore())

	err := s.SetAcceptance(context.Background(), 42, false)
	assert.ErrorIs(t, err, inbox.ErrAccountNotFound)
}

func TestAcceptance_Read(t *testing.T) {
	store := newMemStore()
	recipient := store.add(models.Account{Username: "alice", IsAccepting: true})
	s := inbox.New(discardLogger(), store)

	accepting, err := s.Acceptance(context.Background(), recipient.ID)
	require.NoError(t, err)
	assert.True(t, accepting)

	require.NoError(t, s.SetAcceptance(context.Background(), recipient.ID, false))

	accepting, err = s.Acceptance(context.Background(), recipient.ID)
	require.NoError(t, err)
	assert.False(t, accepting)
}

// Full lifecycle: register, verify within the hour, receive a message,
// toggle acceptance off, second send bounces.
func TestAccountLifecycle(t *testing.T) {
	store := newMemStore()
	notifier := &captureNotifier{}
	log := discardLogger()

	accountService := accounts.New(log, store, store, notifier, time.Hour)
	inboxService := inbox.New(log, store)

	ctx := context.Background()

	id, err := accountService.Register(ctx, "alice", "alice@x.com", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, notifier.last.Code)

	require.NoError(t, accountService.VerifyCode(ctx, "alice", notifier.last.Code))

	account, err := store.AccountByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.IsVerified)
	assert.Empty(t, account.VerifyCode, "code is cleared on verification")
	assert.True(t, account.CodeExpiry.IsZero(), "expiry is cleared on verification")

	// Verified is terminal: the same code is rejected.
	err = accountService.VerifyCode(ctx, "alice", notifier.last.Code)
	assert.ErrorIs(t, err, accounts.ErrAlreadyVerified)

	_, err = inboxService.SendMessage(ctx, "alice", "hi")
	require.NoError(t, err)

	msgs, err := inboxService.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, inboxService.SetAcceptance(ctx, id, false))

	_, err = inboxService.SendMessage(ctx, "alice", "hi again")
	assert.ErrorIs(t, err, inbox.ErrNotAccepting)

	msgs, err = inboxService.Messages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "inbox length is unchanged")
}
