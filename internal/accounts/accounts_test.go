package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"whisper_service/internal/models"
	"whisper_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var codeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// --- fakes ---

type fakeSaver struct {
	savedEmail    string
	savedUsername string
	savedHash     []byte
	savedCode     string
	savedExpiry   time.Time
	savedAccept   bool
	saveErr       error

	refreshedID     int64
	refreshedHash   []byte
	refreshedCode   string
	refreshedExpiry time.Time

	verifiedID int64
}

func (f *fakeSaver) SaveAccount(ctx context.Context, email, username string, passHash []byte, code string, codeExpiry time.Time, accepting bool) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.savedEmail = email
	f.savedUsername = username
	f.savedHash = passHash
	f.savedCode = code
	f.savedExpiry = codeExpiry
	f.savedAccept = accepting
	return 1, nil
}

func (f *fakeSaver) RefreshPending(ctx context.Context, id int64, passHash []byte, code string, codeExpiry time.Time) error {
	f.refreshedID = id
	f.refreshedHash = passHash
	f.refreshedCode = code
	f.refreshedExpiry = codeExpiry
	return nil
}

func (f *fakeSaver) MarkVerified(ctx context.Context, id int64) error {
	f.verifiedID = id
	return nil
}

type fakeProvider struct {
	byUsername map[string]models.Account
	byEmail    map[string]models.Account
}

func (f *fakeProvider) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	a, ok := f.byUsername[username]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeProvider) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	a, ok := f.byEmail[email]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeProvider) VerifiedAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	a, ok := f.byUsername[username]
	if !ok || !a.IsVerified {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return a, nil
}

type fakeNotifier struct {
	sent []models.EmailMessage
	err  error
}

func (f *fakeNotifier) SendEmail(ctx context.Context, msg models.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newService(saver *fakeSaver, provider *fakeProvider, notifier *fakeNotifier) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, saver, provider, notifier, time.Hour)
}

// --- Register ---

func TestRegister_NewAccount(t *testing.T) {
	saver := &fakeSaver{}
	provider := &fakeProvider{byUsername: map[string]models.Account{}, byEmail: map[string]models.Account{}}
	notifier := &fakeNotifier{}
	s := newService(saver, provider, notifier)

	id, err := s.Register(context.Background(), "alice", "alice@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	assert.Equal(t, "alice@x.com", saver.savedEmail)
	assert.Equal(t, "alice", saver.savedUsername)
	assert.True(t, saver.savedAccept, "new accounts accept messages by default")
	assert.Regexp(t, codeRe, saver.savedCode)
	assert.WithinDuration(t, time.Now().Add(time.Hour), saver.savedExpiry, 5*time.Second)

	require.NoError(t, bcrypt.CompareHashAndPassword(saver.savedHash, []byte("secret123")))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, saver.savedCode, notifier.sent[0].Code, "emailed code matches the persisted one")
	assert.Equal(t, "alice@x.com", notifier.sent[0].Email)
}

func TestRegister_UnverifiedEmailIsRefreshedInPlace(t *testing.T) {
	existing := models.Account{
		ID:         7,
		Username:   "alice",
		Email:      "alice@x.com",
		VerifyCode: "111111",
		CodeExpiry: time.Now().Add(-time.Minute),
		IsVerified: false,
	}
	saver := &fakeSaver{}
	provider := &fakeProvider{
		byUsername: map[string]models.Account{"alice": existing},
		byEmail:    map[string]models.Account{"alice@x.com": existing},
	}
	notifier := &fakeNotifier{}
	s := newService(saver, provider, notifier)

	id, err := s.Register(context.Background(), "alice", "alice@x.com", "newpassword")
	require.NoError(t, err)

	assert.Equal(t, int64(7), id, "row identity is reused")
	assert.Equal(t, int64(7), saver.refreshedID)
	assert.Empty(t, saver.savedEmail, "no new record is created")
	assert.NotEqual(t, "111111", saver.refreshedCode, "code is regenerated")
	assert.Regexp(t, codeRe, saver.refreshedCode)
	require.NoError(t, bcrypt.CompareHashAndPassword(saver.refreshedHash, []byte("newpassword")))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, saver.refreshedCode, notifier.sent[0].Code)
}

func TestRegister_VerifiedUsernameTaken(t *testing.T) {
	provider := &fakeProvider{
		byUsername: map[string]models.Account{
			"alice": {ID: 1, Username: "alice", IsVerified: true},
		},
		byEmail: map[string]models.Account{},
	}
	s := newService(&fakeSaver{}, provider, &fakeNotifier{})

	_, err := s.Register(context.Background(), "alice", "other@x.com", "secret123")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegister_VerifiedEmailUnderDifferentUsername(t *testing.T) {
	// The email is owned by a verified account under another username:
	// the username probe passes, the email check must still reject.
	verified := models.Account{ID: 3, Username: "alice", Email: "alice@x.com", IsVerified: true}
	saver := &fakeSaver{}
	provider := &fakeProvider{
		byUsername: map[string]models.Account{"alice": verified},
		byEmail:    map[string]models.Account{"alice@x.com": verified},
	}
	notifier := &fakeNotifier{}
	s := newService(saver, provider, notifier)

	_, err := s.Register(context.Background(), "bob", "alice@x.com", "secret123")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Empty(t, saver.savedEmail)
	assert.Zero(t, saver.refreshedID)
	assert.Empty(t, notifier.sent)
}

func TestRegister_NotificationFailureAfterPersist(t *testing.T) {
	saver := &fakeSaver{}
	provider := &fakeProvider{byUsername: map[string]models.Account{}, byEmail: map[string]models.Account{}}
	notifier := &fakeNotifier{err: errors.New("broker down")}
	s := newService(saver, provider, notifier)

	_, err := s.Register(context.Background(), "alice", "alice@x.com", "secret123")
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.Equal(t, "alice@x.com", saver.savedEmail, "code state was persisted before dispatch")
}

// --- VerifyCode ---

func pending(code string, expiry time.Time) models.Account {
	return models.Account{
		ID:         1,
		Username:   "alice",
		Email:      "alice@x.com",
		VerifyCode: code,
		CodeExpiry: expiry,
	}
}

func TestVerifyCode_Success(t *testing.T) {
	saver := &fakeSaver{}
	provider := &fakeProvider{
		byUsername: map[string]models.Account{"alice": pending("123456", time.Now().Add(time.Hour))},
	}
	s := newService(saver, provider, &fakeNotifier{})

	err := s.VerifyCode(context.Background(), "alice", "123456")
	require.NoError(t, err)
	assert.Equal(t, int64(1), saver.verifiedID)
}

func TestVerifyCode_AccountNotFound(t *testing.T) {
	s := newService(&fakeSaver{}, &fakeProvider{byUsername: map[string]models.Account{}}, &fakeNotifier{})

	err := s.VerifyCode(context.Background(), "ghost", "123456")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestVerifyCode_AlreadyVerifiedIsTerminal(t *testing.T) {
	saver := &fakeSaver{}
	provider := &fakeProvider{
		byUsername: map[string]models.Account{
			"alice": {ID: 1, Username: "alice", IsVerified: true},
		},
	}
	s := newService(saver, provider, &fakeNotifier{})

	err := s.VerifyCode(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Zero(t, saver.verifiedID)
}

func TestVerifyCode_WrongCodeCheckedBeforeExpiry(t *testing.T) {
	saver := &fakeSaver{}
	provider := &fakeProvider{
		// Expired AND wrong: the mismatch wins.
		byUsername: map[string]models.Account{"alice": pending("123456", time.Now().Add(-time.Minute))},
	}
	s := newService(saver, provider, &fakeNotifier{})

	err := s.VerifyCode(context.Background(), "alice", "654321")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Zero(t, saver.verifiedID, "state is unchanged")
}

func TestVerifyCode_ExpiredMatchingCode(t *testing.T) {
	saver := &fakeSaver{}
	provider := &fakeProvider{
		byUsername: map[string]models.Account{"alice": pending("123456", time.Now().Add(-time.Second))},
	}
	s := newService(saver, provider, &fakeNotifier{})

	err := s.VerifyCode(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Zero(t, saver.verifiedID, "state is unchanged")
}

// --- CheckUsername ---

func TestCheckUsername(t *testing.T) {
	provider := &fakeProvider{
		byUsername: map[string]models.Account{
			"taken":   {ID: 1, Username: "taken", IsVerified: true},
			"pending": {ID: 2, Username: "pending", IsVerified: false},
		},
	}
	s := newService(&fakeSaver{}, provider, &fakeNotifier{})

	available, err := s.CheckUsername(context.Background(), "taken")
	require.NoError(t, err)
	assert.False(t, available)

	// Unverified holders do not reserve a username.
	available, err = s.CheckUsername(context.Background(), "pending")
	require.NoError(t, err)
	assert.True(t, available)

	available, err = s.CheckUsername(context.Background(), "free")
	require.NoError(t, err)
	assert.True(t, available)
}
