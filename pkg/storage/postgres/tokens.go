package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/auth"
)

const tokenColumns = `id, account_id, token_hash, token_prefix, expires_at, last_used_at, created_at, revoked_at`

// TokenStore implements auth.TokenStore on PostgreSQL
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a PostgreSQL-backed token store
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Insert persists a new token and returns it with its assigned key
func (s *TokenStore) Insert(ctx context.Context, token *auth.Token) (*auth.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (account_id, token_hash, token_prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+tokenColumns,
		token.AccountID, token.TokenHash, token.TokenPrefix, token.ExpiresAt, token.CreatedAt,
	)
	return scanToken(row)
}

// FindByHash returns the token with the given SHA-256 hash
func (s *TokenStore) FindByHash(ctx context.Context, hash string) (*auth.Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = $1`, hash)
	return scanToken(row)
}

// TouchLastUsed stamps the token's last-used time
func (s *TokenStore) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// Revoke marks the token revoked
func (s *TokenStore) Revoke(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return requireRow(result)
}

// DeleteExpired removes tokens expired or revoked before the cutoff
func (s *TokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM api_tokens
		WHERE (expires_at IS NOT NULL AND expires_at < $1)
		   OR (revoked_at IS NOT NULL AND revoked_at < $1)`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}

// RevokeAllForAccount revokes every live token of an account. Used when an
// account is deactivated.
func (s *TokenStore) RevokeAllForAccount(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE account_id = $2 AND revoked_at IS NULL`, at, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke account tokens: %w", err)
	}
	return result.RowsAffected()
}

func scanToken(row rowScanner) (*auth.Token, error) {
	var t auth.Token
	var expiresAt, lastUsedAt, revokedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.AccountID, &t.TokenHash, &t.TokenPrefix,
		&expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}
