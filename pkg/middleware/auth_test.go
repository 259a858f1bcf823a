package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/auth"
)

type stubAuthenticator struct {
	account *accounts.Account
	token   *auth.Token
	err     error
	seen    string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, bearer string) (*accounts.Account, *auth.Token, error) {
	s.seen = bearer
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.account, s.token, nil
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	account := &accounts.Account{ID: 7, Email: "jane@example.com", IsActive: true}
	stub := &stubAuthenticator{account: account, token: &auth.Token{ID: 1, AccountID: 7}}

	var session *Session
	handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session = GetSession(r)
	}))

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer roster_sometoken")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, session)
	assert.Equal(t, int64(7), session.Account.ID)
	assert.Equal(t, "roster_sometoken", stub.seen)
}

func TestAuthMiddleware_NoHeaderPassesAnonymous(t *testing.T) {
	stub := &stubAuthenticator{err: auth.ErrTokenInvalid}

	var called bool
	var session *Session
	handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		session = GetSession(r)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/users", nil))

	assert.True(t, called, "anonymous request should reach the handler")
	assert.Nil(t, session)
	assert.Empty(t, stub.seen, "authenticator should not run without credentials")
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	stub := &stubAuthenticator{err: auth.ErrTokenInvalid}

	var called bool
	handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer roster_expired")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.False(t, called, "invalid token must not reach the handler")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_StoreFailure(t *testing.T) {
	stub := &stubAuthenticator{err: errors.New("database down")}

	handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer roster_sometoken")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "database down")
}

func TestRequester(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		requester := Requester(req)
		assert.False(t, requester.Authenticated)
	})

	t.Run("authenticated staff", func(t *testing.T) {
		account := &accounts.Account{ID: 3, IsStaff: true}
		stub := &stubAuthenticator{account: account, token: &auth.Token{}}

		handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester := Requester(r)
			assert.True(t, requester.Authenticated)
			assert.True(t, requester.Staff)
			assert.Equal(t, int64(3), requester.ID)
		}))

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer roster_sometoken")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})
}
