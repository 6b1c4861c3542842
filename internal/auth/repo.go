package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrimart/backoffice/internal/platform/db"
	"github.com/agrimart/backoffice/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	CreateSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
	SetPassword(ctx context.Context, accountID, hash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, now: time.Now}
}

// FindByEmail fetches the credential of an account, matching e-mail case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	const q = `SELECT id, email, password_hash, status FROM accounts WHERE lower(email) = lower($1) LIMIT 1`
	var c Credential
	err := r.pool.QueryRow(ctx, q, strings.TrimSpace(email)).Scan(&c.AccountID, &c.Email, &c.PasswordHash, &c.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateSession stores the session row and stamps the account's last login
// in one transaction.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	now := r.now().UTC()
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, account_id, expires_at, ip, user_agent, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.AccountID,
			pgtype.Timestamptz{Time: rec.ExpiresAt.UTC(), Valid: true},
			rec.IP, rec.UserAgent,
			pgtype.Timestamptz{Time: now, Valid: true},
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE accounts SET last_login_at = $1 WHERE id = $2`,
			pgtype.Timestamptz{Time: now, Valid: true}, rec.AccountID)
		return err
	})
}

// DeleteSession removes a session row.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// SetPassword replaces the stored password hash of an account.
func (r *PGRepository) SetPassword(ctx context.Context, accountID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $1, updated_at = now() WHERE id = $2`, hash, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
