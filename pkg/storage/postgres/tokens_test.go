package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/auth"
)

var tokenRowColumns = []string{
	"id", "account_id", "token_hash", "token_prefix", "expires_at", "last_used_at", "created_at", "revoked_at",
}

func setupMockTokenStore(t *testing.T) (*TokenStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTokenStore(db), mock
}

func TestTokenStore_Insert(t *testing.T) {
	store, mock := setupMockTokenStore(t)

	created := time.Now()
	mock.ExpectQuery(`INSERT INTO api_tokens`).
		WithArgs(int64(7), "hash64", "roster_abcd1234", nil, created).
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).
			AddRow(1, 7, "hash64", "roster_abcd1234", nil, nil, created, nil))

	token, err := store.Insert(context.Background(), &auth.Token{
		AccountID:   7,
		TokenHash:   "hash64",
		TokenPrefix: "roster_abcd1234",
		CreatedAt:   created,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), token.ID)
	assert.Nil(t, token.ExpiresAt)
}

func TestTokenStore_FindByHash(t *testing.T) {
	store, mock := setupMockTokenStore(t)

	t.Run("found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT .+ FROM api_tokens WHERE token_hash = \$1`).
			WithArgs("hash64").
			WillReturnRows(sqlmock.NewRows(tokenRowColumns).
				AddRow(1, 7, "hash64", "roster_abcd1234", nil, nil, now, nil))

		token, err := store.FindByHash(context.Background(), "hash64")
		require.NoError(t, err)
		assert.Equal(t, int64(7), token.AccountID)
		assert.False(t, token.Revoked())
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM api_tokens WHERE token_hash = \$1`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindByHash(context.Background(), "nope")
		assert.ErrorIs(t, err, accounts.ErrNotFound)
	})
}

func TestTokenStore_Revoke(t *testing.T) {
	store, mock := setupMockTokenStore(t)

	at := time.Now()

	t.Run("revokes live token", func(t *testing.T) {
		mock.ExpectExec(`UPDATE api_tokens SET revoked_at = \$1 WHERE id = \$2 AND revoked_at IS NULL`).
			WithArgs(at, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Revoke(context.Background(), 1, at))
	})

	t.Run("already revoked", func(t *testing.T) {
		mock.ExpectExec(`UPDATE api_tokens SET revoked_at = \$1 WHERE id = \$2 AND revoked_at IS NULL`).
			WithArgs(at, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Revoke(context.Background(), 1, at), accounts.ErrNotFound)
	})
}

func TestTokenStore_DeleteExpired(t *testing.T) {
	store, mock := setupMockTokenStore(t)

	cutoff := time.Now()
	mock.ExpectExec(`DELETE FROM api_tokens`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestTokenStore_RevokeAllForAccount(t *testing.T) {
	store, mock := setupMockTokenStore(t)

	at := time.Now()
	mock.ExpectExec(`UPDATE api_tokens SET revoked_at = \$1 WHERE account_id = \$2 AND revoked_at IS NULL`).
		WithArgs(at, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	revoked, err := store.RevokeAllForAccount(context.Background(), 7, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)
}
