package accounts

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"

	"github.com/zuristack/roster/pkg/authz"
	"github.com/zuristack/roster/pkg/observability"
)

// Service is the account resource manager. Every read and mutation flows
// through the policy evaluator; creation additionally owns validation and
// slug assignment.
type Service struct {
	store   Store
	hasher  PasswordHasher
	policy  PasswordPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates the account resource manager. A nil metrics disables
// instrumentation.
func NewService(store Store, hasher PasswordHasher, policy PasswordPolicy, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		hasher:  hasher,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
	}
}

// RequesterFor converts an account (or nil, for anonymous callers) into the
// policy evaluator's requester shape.
func RequesterFor(a *Account) authz.Requester {
	if a == nil {
		return authz.Anonymous
	}
	return authz.Requester{
		ID:            a.ID,
		Authenticated: true,
		Staff:         a.IsStaff,
		Superuser:     a.IsSuperuser,
	}
}

// Create registers a new account. Registration is open to any caller; the
// policy table allows create for everyone including anonymous.
func (s *Service) Create(ctx context.Context, reg Registration) (*Account, error) {
	if err := s.validateRegistration(reg); err != nil {
		return nil, err
	}

	email := NormalizeEmail(reg.Email)

	slug := reg.Slug
	if slug == "" {
		attempts := 0
		exists := func(ctx context.Context, candidate string) (bool, error) {
			attempts++
			return s.store.SlugExists(ctx, candidate)
		}

		generated, err := GenerateUniqueSlug(ctx, reg.FirstName, reg.LastName, exists)
		if s.metrics != nil {
			s.metrics.SlugGenerationAttempts.Observe(float64(attempts))
		}
		if err != nil {
			if errors.Is(err, ErrSlugExhausted) {
				if s.metrics != nil {
					s.metrics.SlugExhaustionsTotal.Inc()
				}
				s.logger.WithField("email", email).Error("slug generation exhausted retries; entropy source or existence check is broken")
			}
			return nil, err
		}
		slug = generated
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		Email:        email,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PasswordHash: hash,
		Slug:         slug,
		IsActive:     true,
	}

	return s.store.Insert(ctx, account)
}

// Resolve looks up an account by slug first, then by numeric key if the
// string is all digits. The order is load-bearing: an account whose slug is
// "123" must shadow the account whose numeric key is 123.
func (s *Service) Resolve(ctx context.Context, key string) (*Account, error) {
	account, err := s.store.FindBySlug(ctx, key)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if id, ok := numericKey(key); ok {
		return s.store.FindByID(ctx, id)
	}
	return nil, ErrNotFound
}

// Retrieve returns the public target account if the requester may read it.
// The policy check runs even when the target is missing, so an anonymous
// caller gets an authentication error rather than an existence oracle.
func (s *Service) Retrieve(ctx context.Context, requester authz.Requester, key string) (*Account, error) {
	target, err := s.resolveForPolicy(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(requester, authz.ActionRetrieve, target); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNotFound
	}
	return target, nil
}

// List returns all accounts; only staff and superusers may enumerate.
func (s *Service) List(ctx context.Context, requester authz.Requester) ([]*Account, error) {
	if err := s.authorize(requester, authz.ActionList, nil); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Update applies a partial update to the target account. Fields absent from
// the patch are left untouched. Only the owner or a superuser may mutate.
func (s *Service) Update(ctx context.Context, requester authz.Requester, key string, patch Patch) (*Account, error) {
	target, err := s.resolveForPolicy(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(requester, authz.ActionUpdate, target); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNotFound
	}

	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return target, nil
	}

	return s.store.Update(ctx, target.ID, patch)
}

// Delete soft-deletes the target account and returns it, so callers can
// clean up dependent state (issued tokens, in particular). The policy is
// identical to update's: owner or superuser.
func (s *Service) Delete(ctx context.Context, requester authz.Requester, key string) (*Account, error) {
	target, err := s.resolveForPolicy(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(requester, authz.ActionDelete, target); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNotFound
	}
	if err := s.store.Deactivate(ctx, target.ID); err != nil {
		return nil, err
	}
	return target, nil
}

// AuthorizeModify resolves the target account and verifies the requester may
// mutate it, without changing anything. Callers that do side work between
// the check and the write (an avatar upload, for instance) use this to fail
// before the side work happens.
func (s *Service) AuthorizeModify(ctx context.Context, requester authz.Requester, key string) (*Account, error) {
	target, err := s.resolveForPolicy(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(requester, authz.ActionUpdate, target); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNotFound
	}
	return target, nil
}

// SetAvatar records the object key of the account's avatar. An empty key
// clears it. Policy matches update's: owner or superuser.
func (s *Service) SetAvatar(ctx context.Context, requester authz.Requester, key, avatarKey string) (*Account, error) {
	target, err := s.AuthorizeModify(ctx, requester, key)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAvatarKey(ctx, target.ID, avatarKey); err != nil {
		return nil, err
	}
	target.AvatarKey = avatarKey
	return target, nil
}

// NormalizeEmail lowercases and trims an email for storage and comparison
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// resolveForPolicy resolves a key but maps "not found" to a nil target, so
// the policy evaluator always runs before existence is revealed.
func (s *Service) resolveForPolicy(ctx context.Context, key string) (*Account, error) {
	target, err := s.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return target, nil
}

// authorize translates a deny into the boundary error taxonomy: no identity
// yields ErrUnauthenticated, an insufficient one yields ErrDenied.
func (s *Service) authorize(requester authz.Requester, action authz.Action, target *Account) error {
	var t *authz.Target
	if target != nil {
		t = &authz.Target{ID: target.ID}
	}
	if authz.Evaluate(requester, action, t) == authz.Allow {
		return nil
	}
	if !requester.Authenticated {
		return ErrUnauthenticated
	}
	return ErrDenied
}

func (s *Service) validateRegistration(reg Registration) error {
	fields := map[string]string{}

	if strings.TrimSpace(reg.Email) == "" {
		fields["email"] = "this field is required"
	} else if _, err := mail.ParseAddress(NormalizeEmail(reg.Email)); err != nil {
		fields["email"] = "enter a valid email address"
	}
	if reg.FirstName == "" {
		fields["first_name"] = "this field is required"
	}
	if reg.LastName == "" {
		fields["last_name"] = "this field is required"
	}

	switch {
	case reg.Password == "" || reg.Password2 == "":
		fields["password"] = "both password fields are required"
	case reg.Password != reg.Password2:
		fields["password"] = "password fields must match"
	default:
		if err := s.policy.Validate(reg.Password); err != nil {
			fields["password"] = err.Error()
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validatePatch(patch *Patch) error {
	fields := map[string]string{}

	if patch.Email != nil {
		normalized := NormalizeEmail(*patch.Email)
		if normalized == "" {
			fields["email"] = "this field may not be blank"
		} else if _, err := mail.ParseAddress(normalized); err != nil {
			fields["email"] = "enter a valid email address"
		} else {
			patch.Email = &normalized
		}
	}
	if patch.FirstName != nil && *patch.FirstName == "" {
		fields["first_name"] = "this field may not be blank"
	}
	if patch.LastName != nil && *patch.LastName == "" {
		fields["last_name"] = "this field may not be blank"
	}
	if patch.Slug != nil && *patch.Slug == "" {
		fields["slug"] = "this field may not be blank"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// numericKey reports whether the key is a plain decimal numeric id
func numericKey(key string) (int64, bool) {
	if key == "" {
		return 0, false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
