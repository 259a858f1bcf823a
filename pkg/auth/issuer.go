package auth

import (
	"context"
	"errors"
	"time"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/observability"
)

var (
	// ErrInvalidCredentials is returned when the email/password pair does
	// not match an active account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned for malformed, unknown, revoked, or
	// expired tokens.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenStore persists bearer tokens
type TokenStore interface {
	Insert(ctx context.Context, token *Token) (*Token, error)
	FindByHash(ctx context.Context, hash string) (*Token, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	Revoke(ctx context.Context, id int64, at time.Time) error
	// RevokeAllForAccount revokes every live token for the account and
	// returns how many were revoked.
	RevokeAllForAccount(ctx context.Context, accountID int64, at time.Time) (int64, error)
	// DeleteExpired removes tokens expired or revoked before the cutoff
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AccountSource is the slice of the account store the issuer needs
type AccountSource interface {
	FindByEmail(ctx context.Context, email string) (*accounts.Account, error)
	FindByID(ctx context.Context, id int64) (*accounts.Account, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}

// Issuer issues, validates, and revokes bearer tokens for accounts
type Issuer struct {
	tokens    TokenStore
	accounts  AccountSource
	hasher    accounts.PasswordHasher
	generator *TokenGenerator
	ttl       time.Duration
	logger    *observability.Logger
	now       func() time.Time
}

// NewIssuer creates a token issuer. A zero ttl means issued tokens never
// expire.
func NewIssuer(tokens TokenStore, source AccountSource, hasher accounts.PasswordHasher, ttl time.Duration, logger *observability.Logger) *Issuer {
	return &Issuer{
		tokens:    tokens,
		accounts:  source,
		hasher:    hasher,
		generator: NewTokenGenerator(),
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// IssueWithPassword exchanges an email/password pair for a fresh token. The
// plaintext token is returned exactly once.
func (i *Issuer) IssueWithPassword(ctx context.Context, email, password string) (*accounts.Account, *Token, string, error) {
	account, err := i.accounts.FindByEmail(ctx, accounts.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			// Burn a hash comparison anyway so response timing does not
			// reveal whether the email exists.
			i.hasher.Verify("$2a$10$0000000000000000000000000000000000000000000000000000", password)
			return nil, nil, "", ErrInvalidCredentials
		}
		return nil, nil, "", err
	}

	if !account.IsActive || !i.hasher.Verify(account.PasswordHash, password) {
		return nil, nil, "", ErrInvalidCredentials
	}

	token, plaintext, err := i.IssueForAccount(ctx, account)
	if err != nil {
		return nil, nil, "", err
	}

	if err := i.accounts.RecordLogin(ctx, account.ID, i.now()); err != nil {
		i.logger.WithError(err).WithField("account_id", account.ID).Warn("failed to record login time")
	}

	return account, token, plaintext, nil
}

// IssueForAccount mints a token for an already-authenticated account. Used
// by the SSO callback after the identity provider vouched for the user.
func (i *Issuer) IssueForAccount(ctx context.Context, account *accounts.Account) (*Token, string, error) {
	plaintext, hash, prefix, err := i.generator.GenerateToken()
	if err != nil {
		return nil, "", err
	}

	token := &Token{
		AccountID:   account.ID,
		TokenHash:   hash,
		TokenPrefix: prefix,
		CreatedAt:   i.now(),
	}
	// Only a zero ttl means "never expires"; negative ttls mint
	// already-expired tokens and are valid.
	if i.ttl != 0 {
		expires := i.now().Add(i.ttl)
		token.ExpiresAt = &expires
	}

	stored, err := i.tokens.Insert(ctx, token)
	if err != nil {
		return nil, "", err
	}

	return stored, plaintext, nil
}

// Authenticate resolves a bearer token to its account. Any failure collapses
// to ErrTokenInvalid so callers cannot distinguish unknown from revoked.
func (i *Issuer) Authenticate(ctx context.Context, bearer string) (*accounts.Account, *Token, error) {
	if err := i.generator.ValidateTokenFormat(bearer); err != nil {
		return nil, nil, ErrTokenInvalid
	}

	token, err := i.tokens.FindByHash(ctx, i.generator.HashToken(bearer))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}

	now := i.now()
	if token.Revoked() || token.Expired(now) {
		return nil, nil, ErrTokenInvalid
	}

	account, err := i.accounts.FindByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}
	if !account.IsActive {
		return nil, nil, ErrTokenInvalid
	}

	if err := i.tokens.TouchLastUsed(ctx, token.ID, now); err != nil {
		i.logger.WithError(err).WithField("token_prefix", token.TokenPrefix).Warn("failed to touch token last-used time")
	} else {
		token.LastUsedAt = &now
	}

	return account, token, nil
}

// Revoke invalidates the given bearer token
func (i *Issuer) Revoke(ctx context.Context, bearer string) error {
	if err := i.generator.ValidateTokenFormat(bearer); err != nil {
		return ErrTokenInvalid
	}

	token, err := i.tokens.FindByHash(ctx, i.generator.HashToken(bearer))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if token.Revoked() {
		return nil
	}

	return i.tokens.Revoke(ctx, token.ID, i.now())
}

// RevokeAllForAccount invalidates every live token the account holds. Called
// when an account is deactivated so its credentials die with it.
func (i *Issuer) RevokeAllForAccount(ctx context.Context, accountID int64) (int64, error) {
	return i.tokens.RevokeAllForAccount(ctx, accountID, i.now())
}
