package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/httputil"
	"github.com/zuristack/roster/pkg/middleware"
	"github.com/zuristack/roster/pkg/observability"
	"github.com/zuristack/roster/pkg/sso"
)

// AvatarStorage is the slice of object storage the avatar endpoints need
type AvatarStorage interface {
	Upload(ctx context.Context, accountID int64, content io.Reader, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Options wires the server's collaborators. Accounts, Issuer, Logger, and
// Metrics are required; the rest enable their endpoints or middleware when
// set.
type Options struct {
	Accounts *accounts.Service
	Issuer   *auth.Issuer
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// Audit is optional; a nil recorder disables the trail
	Audit audit.Recorder

	// Avatars enables the avatar endpoints
	Avatars AvatarStorage

	// SSO enables the login-via-provider endpoints
	SSOProvider    *sso.Provider
	SSOProvisioner *sso.Provisioner

	// RateLimit runs after authentication when set, so authenticated
	// clients are limited per account rather than per IP
	RateLimit func(http.Handler) http.Handler

	// MaxBodyBytes caps request bodies; zero disables the cap
	MaxBodyBytes int64
}

// Server is the HTTP API for the account service
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
	metrics *observability.Metrics

	accounts *accounts.Service
	issuer   *auth.Issuer
	trail    audit.Recorder
}

// NewServer builds the router and middleware chain
func NewServer(opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		accounts: opts.Accounts,
		issuer:   opts.Issuer,
		trail:    opts.Audit,
	}

	accountHandlers := &AccountHandlers{server: s, avatars: opts.Avatars}
	accountHandlers.RegisterRoutes(s.router)

	tokenHandlers := &TokenHandlers{server: s}
	tokenHandlers.RegisterRoutes(s.router)

	if opts.SSOProvider != nil && opts.SSOProvisioner != nil {
		ssoHandlers := &SSOHandlers{
			server:      s,
			provider:    opts.SSOProvider,
			provisioner: opts.SSOProvisioner,
		}
		ssoHandlers.RegisterRoutes(s.router)
	}

	chain := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		observability.HTTPMetricsMiddleware(opts.Metrics),
	}
	chain = append(chain, middleware.NewAuthMiddleware(opts.Issuer).Handler)
	if opts.RateLimit != nil {
		chain = append(chain, opts.RateLimit)
	}
	chain = append(chain, jsonBodyMiddleware)
	if opts.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}

	s.handler = httputil.Chain(chain...)(s.router)
	return s
}

// Handler returns the server's handler with the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// jsonBodyMiddleware enforces JSON bodies everywhere except avatar uploads,
// which carry the image's own content type.
func jsonBodyMiddleware(next http.Handler) http.Handler {
	enforced := httputil.ContentTypeMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/avatar") {
			next.ServeHTTP(w, r)
			return
		}
		enforced.ServeHTTP(w, r)
	})
}

// recordDecision counts a policy outcome for an action
func (s *Server) recordDecision(action string, err error) {
	decision := "allow"
	if isDenial(err) {
		decision = "deny"
	}
	s.metrics.AuthDecisionsTotal.WithLabelValues(action, decision).Inc()
}

// recordAudit writes a best-effort audit event for the request. Failures are
// logged and never fail the request itself.
func (s *Server) recordAudit(r *http.Request, action audit.Action, targetKey string, err error) {
	if s.trail == nil {
		return
	}

	outcome := audit.OutcomeSuccess
	switch {
	case isDenial(err):
		outcome = audit.OutcomeDenied
	case err != nil:
		outcome = audit.OutcomeFailure
	}

	event := audit.EventFromRequest(r, action, outcome)
	event.TargetKey = targetKey
	if session := middleware.GetSession(r); session != nil && session.Account != nil {
		id := session.Account.ID
		event.AccountID = &id
	}

	if recordErr := s.trail.Record(r.Context(), event); recordErr != nil {
		s.logger.WithError(recordErr).WithField("action", string(action)).Warn("failed to record audit event")
	}
}
