package accounts

import (
	"context"
	"time"
)

// Store is the storage collaborator for accounts. Implementations must
// enforce uniqueness on email and slug atomically and surface violations as
// *DuplicateKeyError; the service never trusts an earlier existence check.
type Store interface {
	// Insert persists a new account and returns it with its assigned key
	Insert(ctx context.Context, account *Account) (*Account, error)

	// FindBySlug returns the account with the given slug, or ErrNotFound
	FindBySlug(ctx context.Context, slug string) (*Account, error)

	// FindByID returns the account with the given numeric key, or ErrNotFound
	FindByID(ctx context.Context, id int64) (*Account, error)

	// FindByEmail returns the account with the given email, or ErrNotFound
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// SlugExists reports whether any account holds the slug
	SlugExists(ctx context.Context, slug string) (bool, error)

	// Update applies the non-nil patch fields and returns the updated account
	Update(ctx context.Context, id int64, patch Patch) (*Account, error)

	// List returns all accounts ordered by email
	List(ctx context.Context) ([]*Account, error)

	// Deactivate soft-deletes the account
	Deactivate(ctx context.Context, id int64) error

	// RecordLogin stamps the account's last login time
	RecordLogin(ctx context.Context, id int64, at time.Time) error

	// SetAvatarKey stores the object key of the account's avatar; an empty
	// key clears it
	SetAvatarKey(ctx context.Context, id int64, key string) error
}

// PasswordHasher is the credential-store collaborator. The service never
// stores or compares plaintext.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

// PasswordPolicy validates password strength at registration time
type PasswordPolicy interface {
	Validate(password string) error
}
