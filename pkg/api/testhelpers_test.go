package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/observability"
	"github.com/zuristack/roster/pkg/storage/s3"
)

// memAccountStore is an in-memory accounts.Store with the same semantics as
// the PostgreSQL store: soft deletes hide rows from reads but keep slugs
// reserved, and uniqueness violations surface as DuplicateKeyError.
type memAccountStore struct {
	mu     sync.Mutex
	byID   map[int64]*accounts.Account
	nextID int64
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{byID: make(map[int64]*accounts.Account), nextID: 1}
}

func (s *memAccountStore) Insert(_ context.Context, account *accounts.Account) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.Email == account.Email {
			return nil, &accounts.DuplicateKeyError{Field: "email"}
		}
		if existing.Slug == account.Slug {
			return nil, &accounts.DuplicateKeyError{Field: "slug"}
		}
	}

	stored := *account
	stored.ID = s.nextID
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.nextID++
	s.byID[stored.ID] = &stored

	copied := stored
	return &copied, nil
}

func (s *memAccountStore) FindBySlug(_ context.Context, slug string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.byID {
		if account.Slug == slug && account.IsActive {
			copied := *account
			return &copied, nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (s *memAccountStore) FindByID(_ context.Context, id int64) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.byID[id]; ok && account.IsActive {
		copied := *account
		return &copied, nil
	}
	return nil, accounts.ErrNotFound
}

func (s *memAccountStore) FindByEmail(_ context.Context, email string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.byID {
		if account.Email == email && account.IsActive {
			copied := *account
			return &copied, nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (s *memAccountStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Deactivated rows keep their slug reserved.
	for _, account := range s.byID {
		if account.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccountStore) Update(_ context.Context, id int64, patch accounts.Patch) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok || !account.IsActive {
		return nil, accounts.ErrNotFound
	}

	for otherID, other := range s.byID {
		if otherID == id {
			continue
		}
		if patch.Email != nil && other.Email == *patch.Email {
			return nil, &accounts.DuplicateKeyError{Field: "email"}
		}
		if patch.Slug != nil && other.Slug == *patch.Slug {
			return nil, &accounts.DuplicateKeyError{Field: "slug"}
		}
	}

	if patch.Email != nil {
		account.Email = *patch.Email
	}
	if patch.FirstName != nil {
		account.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		account.LastName = *patch.LastName
	}
	if patch.Slug != nil {
		account.Slug = *patch.Slug
	}
	account.UpdatedAt = time.Now()

	copied := *account
	return &copied, nil
}

func (s *memAccountStore) List(_ context.Context) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*accounts.Account
	for _, account := range s.byID {
		if account.IsActive {
			copied := *account
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Email < active[j].Email })
	return active, nil
}

func (s *memAccountStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.byID[id]; ok && account.IsActive {
		account.IsActive = false
		return nil
	}
	return accounts.ErrNotFound
}

func (s *memAccountStore) RecordLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.byID[id]; ok {
		account.LastLoginAt = &at
		return nil
	}
	return accounts.ErrNotFound
}

func (s *memAccountStore) SetAvatarKey(_ context.Context, id int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.byID[id]; ok && account.IsActive {
		account.AvatarKey = key
		return nil
	}
	return accounts.ErrNotFound
}

// memTokenStore is an in-memory auth.TokenStore
type memTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*auth.Token
	nextID int64
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byHash: make(map[string]*auth.Token), nextID: 1}
}

func (s *memTokenStore) Insert(_ context.Context, token *auth.Token) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *token
	stored.ID = s.nextID
	s.nextID++
	s.byHash[stored.TokenHash] = &stored
	copied := stored
	return &copied, nil
}

func (s *memTokenStore) FindByHash(_ context.Context, hash string) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.byHash[hash]; ok {
		copied := *token
		return &copied, nil
	}
	return nil, accounts.ErrNotFound
}

func (s *memTokenStore) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.byHash {
		if token.ID == id {
			token.LastUsedAt = &at
			return nil
		}
	}
	return accounts.ErrNotFound
}

func (s *memTokenStore) Revoke(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.byHash {
		if token.ID == id && token.RevokedAt == nil {
			token.RevokedAt = &at
			return nil
		}
	}
	return accounts.ErrNotFound
}

func (s *memTokenStore) RevokeAllForAccount(_ context.Context, accountID int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked int64
	for _, token := range s.byHash {
		if token.AccountID == accountID && token.RevokedAt == nil {
			token.RevokedAt = &at
			revoked++
		}
	}
	return revoked, nil
}

func (s *memTokenStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for hash, token := range s.byHash {
		if (token.ExpiresAt != nil && token.ExpiresAt.Before(before)) ||
			(token.RevokedAt != nil && token.RevokedAt.Before(before)) {
			delete(s.byHash, hash)
			removed++
		}
	}
	return removed, nil
}

// plainHasher avoids bcrypt's cost in handler tests
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) { return "plain:" + plaintext, nil }
func (plainHasher) Verify(hash, plaintext string) bool    { return hash == "plain:"+plaintext }

// memAvatarStorage is an in-memory AvatarStorage
type memAvatarStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemAvatarStorage() *memAvatarStorage {
	return &memAvatarStorage{objects: make(map[string][]byte)}
}

func (s *memAvatarStorage) Upload(_ context.Context, accountID int64, content io.Reader, contentType string) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", &s3.ErrUnsupportedContentType{ContentType: contentType}
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("avatars/%d/test.%s", accountID, strings.TrimPrefix(contentType, "image/"))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return key, nil
}

func (s *memAvatarStorage) PresignGet(_ context.Context, key string) (string, error) {
	return "https://avatars.test/" + key + "?signed", nil
}

func (s *memAvatarStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// memAuditRecorder captures audit events for assertions
type memAuditRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *memAuditRecorder) Record(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *memAuditRecorder) Search(_ context.Context, _ audit.Filter) ([]*audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.Event(nil), r.events...), nil
}

func (r *memAuditRecorder) Cleanup(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *memAuditRecorder) byAction(action audit.Action) []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*audit.Event
	for _, event := range r.events {
		if event.Action == action {
			matched = append(matched, event)
		}
	}
	return matched
}

// fixture bundles a server with direct access to its collaborators
type fixture struct {
	server   *Server
	store    *memAccountStore
	tokens   *memTokenStore
	avatars  *memAvatarStorage
	trail    *memAuditRecorder
	issuer   *auth.Issuer
	accounts *accounts.Service
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	store := newMemAccountStore()
	tokens := newMemTokenStore()
	avatars := newMemAvatarStorage()
	trail := &memAuditRecorder{}

	hasher := plainHasher{}
	service := accounts.NewService(store, hasher, auth.NewStrengthPolicy(), logger, metrics)
	issuer := auth.NewIssuer(tokens, store, hasher, time.Hour, logger)

	opts := Options{
		Accounts: service,
		Issuer:   issuer,
		Logger:   logger,
		Metrics:  metrics,
		Audit:    trail,
		Avatars:  avatars,
	}
	for _, m := range mutate {
		m(&opts)
	}
	server := NewServer(opts)

	return &fixture{
		server:   server,
		store:    store,
		tokens:   tokens,
		avatars:  avatars,
		trail:    trail,
		issuer:   issuer,
		accounts: service,
	}
}

// seedAccount inserts an account directly, bypassing the API
func (f *fixture) seedAccount(t *testing.T, email, firstName, lastName, slug string, staff, superuser bool) *accounts.Account {
	t.Helper()
	account, err := f.store.Insert(context.Background(), &accounts.Account{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: "plain:sturdy-passphrase",
		Slug:         slug,
		IsStaff:      staff,
		IsSuperuser:  superuser,
		IsActive:     true,
	})
	require.NoError(t, err)
	return account
}

// tokenFor mints a bearer token for the account
func (f *fixture) tokenFor(t *testing.T, account *accounts.Account) string {
	t.Helper()
	_, plaintext, err := f.issuer.IssueForAccount(context.Background(), account)
	require.NoError(t, err)
	return plaintext
}

// do runs a request through the full middleware chain
func (f *fixture) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}
