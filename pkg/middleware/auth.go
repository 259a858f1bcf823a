package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/authz"
	"github.com/zuristack/roster/pkg/contextkeys"
	"github.com/zuristack/roster/pkg/httputil"
)

// Session is the authenticated identity attached to a request
type Session struct {
	Account *accounts.Account
	Token   *auth.Token
}

// Authenticator resolves a bearer token to its account. Implemented by
// auth.Issuer and the caching token store wrapper.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*accounts.Account, *auth.Token, error)
}

// AuthMiddleware attaches a Session to requests carrying a valid bearer
// token. Requests without an Authorization header pass through anonymously;
// the policy layer downstream decides what anonymous callers may do.
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := httputil.BearerToken(r)
		if bearer == "" {
			// No credentials at all: anonymous request.
			next.ServeHTTP(w, r)
			return
		}

		account, token, err := m.authenticator.Authenticate(r.Context(), bearer)
		if err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			httputil.WriteInternalError(w)
			return
		}

		session := &Session{Account: account, Token: token}
		ctx := contextkeys.WithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession extracts the session from a request, or nil for anonymous
func GetSession(r *http.Request) *Session {
	value := r.Context().Value(contextkeys.SessionKey)
	if value == nil {
		return nil
	}
	session, ok := value.(*Session)
	if !ok {
		return nil
	}
	return session
}

// Requester converts the request's session into the policy evaluator's
// requester shape; anonymous requests yield the anonymous requester.
func Requester(r *http.Request) authz.Requester {
	session := GetSession(r)
	if session == nil {
		return accounts.RequesterFor(nil)
	}
	return accounts.RequesterFor(session.Account)
}
