package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/observability"
)

// ErrAccountDeactivated is returned when the identity's email belongs to a
// soft-deleted account. Logging in through the provider must not resurrect
// it.
var ErrAccountDeactivated = errors.New("account is deactivated")

// Provisioner resolves a verified identity to a local account, creating one
// on first login. Matching is by normalized email, so an account registered
// with a password and one provisioned through SSO are the same account.
type Provisioner struct {
	store  accounts.Store
	hasher accounts.PasswordHasher
	logger *observability.Logger
}

// NewProvisioner creates a provisioner backed by the account store
func NewProvisioner(store accounts.Store, hasher accounts.PasswordHasher, logger *observability.Logger) *Provisioner {
	return &Provisioner{store: store, hasher: hasher, logger: logger}
}

// FindOrCreate returns the account for the identity, provisioning it if
// this is the first login. Deactivated accounts are not resurrected.
func (p *Provisioner) FindOrCreate(ctx context.Context, identity *Identity) (*accounts.Account, error) {
	email := accounts.NormalizeEmail(identity.Email)

	account, err := p.store.FindByEmail(ctx, email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, accounts.ErrNotFound) {
		return nil, err
	}

	slug, err := accounts.GenerateUniqueSlug(ctx, identity.FirstName, identity.LastName, p.store.SlugExists)
	if err != nil {
		return nil, err
	}

	// SSO accounts get a random password they can never guess; login is
	// only possible through the provider.
	hash, err := p.unusablePasswordHash()
	if err != nil {
		return nil, err
	}

	account, err = p.store.Insert(ctx, &accounts.Account{
		Email:        email,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		PasswordHash: hash,
		Slug:         slug,
		IsActive:     true,
	})
	if err != nil {
		var dup *accounts.DuplicateKeyError
		if errors.As(err, &dup) && dup.Field == "email" {
			// Either we lost a provisioning race for the same identity, or
			// a deactivated row holds the email. FindByEmail only sees
			// active rows, so a second miss means the latter.
			winner, err := p.store.FindByEmail(ctx, email)
			if errors.Is(err, accounts.ErrNotFound) {
				return nil, ErrAccountDeactivated
			}
			return winner, err
		}
		return nil, err
	}

	p.logger.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"slug":       account.Slug,
	}).Info("provisioned account from SSO login")

	return account, nil
}

func (p *Provisioner) unusablePasswordHash() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate placeholder password: %w", err)
	}
	return p.hasher.Hash(base64.RawURLEncoding.EncodeToString(buf))
}
