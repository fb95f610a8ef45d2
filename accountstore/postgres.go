package accountstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DBTX is the subset of *sql.DB and *sql.Tx the Postgres store needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres reads and writes the accounts table.
type Postgres struct {
	db DBTX
}

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Open connects through the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *Postgres) Create(ctx context.Context, account Account) error {
	query :=
		`INSERT INTO accounts (identifier, password_hash, totp_secret, totp_enabled, status)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query,
		Normalize(account.Identifier), account.PasswordHash, account.TOTPSecret, account.TOTPEnabled, int16(account.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Postgres) GetByIdentifier(ctx context.Context, identifier string) (Account, error) {
	query :=
		`SELECT identifier, password_hash, totp_secret, totp_enabled, status FROM accounts
		 WHERE identifier = $1
		 `

	var (
		account Account
		status  int16
	)
	err := r.db.QueryRowContext(ctx, query, Normalize(identifier)).
		Scan(&account.Identifier, &account.PasswordHash, &account.TOTPSecret, &account.TOTPEnabled, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("db error: %w", err)
	}
	account.Status = Status(status)
	return account, nil
}

func (r *Postgres) UpdatePasswordHash(ctx context.Context, identifier, hash string) error {
	query :=
		`UPDATE accounts SET password_hash = $2, updated_at = now()
		 WHERE identifier = $1
		 `
	return r.exec(ctx, query, Normalize(identifier), hash)
}

// UpdateTOTP stores the TOTP state. An empty secret clears the column.
func (r *Postgres) UpdateTOTP(ctx context.Context, identifier string, enabled bool, secret string) error {
	query :=
		`UPDATE accounts SET totp_enabled = $2, totp_secret = $3, updated_at = now()
		 WHERE identifier = $1
		 `
	return r.exec(ctx, query, Normalize(identifier), enabled, secret)
}

func (r *Postgres) SetStatus(ctx context.Context, identifier string, status Status) error {
	query :=
		`UPDATE accounts SET status = $2, updated_at = now()
		 WHERE identifier = $1
		 `
	return r.exec(ctx, query, Normalize(identifier), int16(status))
}

func (r *Postgres) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
