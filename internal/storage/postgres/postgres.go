package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"whisper_service/internal/config"
	"whisper_service/internal/models"
	"whisper_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo persists accounts. The message collection is a JSONB array
// embedded in the account row, so every message append/remove and every
// flag update is one atomic row update.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveAccount(
	ctx context.Context,
	email, username string,
	passHash []byte,
	code string,
	codeExpiry time.Time,
	accepting bool,
) (int64, error) {
	const op = "storage.postgres.SaveAccount"

	query := `
		INSERT INTO accounts (email, username, password_hash, verify_code, verify_code_expiry, is_accepting)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, email, username, string(passHash), code, codeExpiry, accepting).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, storage.ErrAccountExists
		}

		return 0, fmt.Errorf("%s: failed to save account: %w", op, err)
	}

	return id, nil
}

// RefreshPending overwrites the password hash and verification code of an
// account that is still unverified. The row keeps its identity.
func (r *PostgresRepo) RefreshPending(
	ctx context.Context,
	id int64,
	passHash []byte,
	code string,
	codeExpiry time.Time,
) error {
	const op = "storage.postgres.RefreshPending"

	query := `
		UPDATE accounts
		SET password_hash = $2, verify_code = $3, verify_code_expiry = $4
		WHERE id = $1 AND NOT is_verified;
	`

	tag, err := r.pool.Exec(ctx, query, id, string(passHash), code, codeExpiry)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

// MarkVerified flips the verified flag and clears the code and its expiry
// in a single update.
func (r *PostgresRepo) MarkVerified(ctx context.Context, id int64) error {
	const op = "storage.postgres.MarkVerified"

	query := `
		UPDATE accounts
		SET is_verified = TRUE, verify_code = NULL, verify_code_expiry = NULL
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func (r *PostgresRepo) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	query := accountQuery + `WHERE username = $1;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, username))
}

func (r *PostgresRepo) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	query := accountQuery + `WHERE email = $1;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) AccountByID(ctx context.Context, id int64) (models.Account, error) {
	query := accountQuery + `WHERE id = $1;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

// AccountByLogin resolves a login identifier that may be either
// a username or an email.
func (r *PostgresRepo) AccountByLogin(ctx context.Context, identifier string) (models.Account, error) {
	query := accountQuery + `WHERE username = $1 OR email = $1;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, identifier))
}

// VerifiedAccountByUsername finds an account only if it is verified.
// Username uniqueness probes consider verified accounts only.
func (r *PostgresRepo) VerifiedAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	query := accountQuery + `WHERE username = $1 AND is_verified;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, username))
}

func (r *PostgresRepo) SetAcceptance(ctx context.Context, id int64, accepting bool) error {
	const op = "storage.postgres.SetAcceptance"

	query := `UPDATE accounts SET is_accepting = $2 WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, id, accepting)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

// AppendMessage appends one message to the embedded collection. The
// acceptance flag is re-checked inside the same update, so a concurrent
// toggle cannot slip a message past it.
func (r *PostgresRepo) AppendMessage(ctx context.Context, id int64, msg models.Message) error {
	const op = "storage.postgres.AppendMessage"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		UPDATE accounts
		SET messages = messages || $2::jsonb
		WHERE id = $1 AND is_accepting;
	`

	tag, err := r.pool.Exec(ctx, query, id, string(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotAccepting
	}

	return nil
}

// RemoveMessage filters one message out of the embedded collection.
// Removing an id that is not there leaves the row unchanged and is
// not an error.
func (r *PostgresRepo) RemoveMessage(ctx context.Context, id int64, messageID string) error {
	const op = "storage.postgres.RemoveMessage"

	query := `
		UPDATE accounts
		SET messages = COALESCE(
			(SELECT jsonb_agg(m) FROM jsonb_array_elements(messages) m WHERE m->>'id' <> $2),
			'[]'::jsonb
		)
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query, id, messageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func (r *PostgresRepo) Messages(ctx context.Context, id int64) ([]models.Message, error) {
	const op = "storage.postgres.Messages"

	query := `SELECT messages FROM accounts WHERE id = $1;`

	var raw []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var messages []models.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return messages, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

const accountQuery = `
	SELECT id, email, username, password_hash, verify_code, verify_code_expiry, is_verified, is_accepting
	FROM accounts
`

func (r *PostgresRepo) scanAccount(row pgx.Row) (models.Account, error) {
	var (
		a      models.Account
		code   *string
		expiry *time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&a.PassHash,
		&code,
		&expiry,
		&a.IsVerified,
		&a.IsAccepting,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, err
	}

	if code != nil {
		a.VerifyCode = *code
	}
	if expiry != nil {
		a.CodeExpiry = *expiry
	}

	return a, nil
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
