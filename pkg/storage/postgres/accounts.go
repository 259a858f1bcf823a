package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/zuristack/roster/pkg/accounts"
)

const accountColumns = `id, email, first_name, last_name, password_hash, slug,
	is_staff, is_superuser, is_active, COALESCE(avatar_key, ''), created_at, updated_at, last_login_at`

// AccountStore implements accounts.Store on PostgreSQL
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore creates a PostgreSQL-backed account store
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Insert persists a new account and returns it with its assigned key
func (s *AccountStore) Insert(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, first_name, last_name, password_hash, slug, is_staff, is_superuser, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+accountColumns,
		account.Email, account.FirstName, account.LastName, account.PasswordHash,
		account.Slug, account.IsStaff, account.IsSuperuser, account.IsActive,
	)

	inserted, err := scanAccount(row)
	if err != nil {
		return nil, translateConstraintError(err)
	}
	return inserted, nil
}

// FindBySlug returns the active account with the given slug
func (s *AccountStore) FindBySlug(ctx context.Context, slug string) (*accounts.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE slug = $1 AND is_active = TRUE`, slug)
	return scanAccount(row)
}

// FindByID returns the active account with the given numeric key
func (s *AccountStore) FindByID(ctx context.Context, id int64) (*accounts.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND is_active = TRUE`, id)
	return scanAccount(row)
}

// FindByEmail returns the active account with the given email
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1 AND is_active = TRUE`, email)
	return scanAccount(row)
}

// SlugExists reports whether any account, active or not, holds the slug.
// Deactivated accounts keep their slug reserved.
func (s *AccountStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return exists, nil
}

// Update applies the non-nil patch fields and returns the updated account
func (s *AccountStore) Update(ctx context.Context, id int64, patch accounts.Patch) (*accounts.Account, error) {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.Slug != nil {
		add("slug", *patch.Slug)
	}

	if len(sets) == 0 {
		return s.FindByID(ctx, id)
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE accounts SET %s WHERE id = $%d AND is_active = TRUE RETURNING %s`,
		strings.Join(sets, ", "), len(args), accountColumns,
	)

	updated, err := scanAccount(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translateConstraintError(err)
	}
	return updated, nil
}

// List returns all active accounts ordered by email
func (s *AccountStore) List(ctx context.Context) ([]*accounts.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_active = TRUE ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var result []*accounts.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	return result, rows.Err()
}

// Deactivate soft-deletes the account
func (s *AccountStore) Deactivate(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	return requireRow(result)
}

// RecordLogin stamps the account's last login time
func (s *AccountStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return requireRow(result)
}

// SetAvatarKey stores the object key of the account's avatar
func (s *AccountStore) SetAvatarKey(ctx context.Context, id int64, key string) error {
	var value interface{}
	if key != "" {
		value = key
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET avatar_key = $1, updated_at = NOW() WHERE id = $2 AND is_active = TRUE`, value, id)
	if err != nil {
		return fmt.Errorf("failed to set avatar key: %w", err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*accounts.Account, error) {
	var a accounts.Account
	var lastLogin sql.NullTime

	err := row.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.Slug,
		&a.IsStaff, &a.IsSuperuser, &a.IsActive, &a.AvatarKey,
		&a.CreatedAt, &a.UpdatedAt, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return &a, nil
}

// translateConstraintError maps unique-violation errors to the duplicate-key
// taxonomy by constraint name.
func translateConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "accounts_email_key":
			return &accounts.DuplicateKeyError{Field: "email"}
		case "accounts_slug_key":
			return &accounts.DuplicateKeyError{Field: "slug"}
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.ErrNotFound
	}
	return err
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}
