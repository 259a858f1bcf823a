package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/httputil"
	"github.com/zuristack/roster/pkg/sso"
)

const ssoStateCookie = "roster_sso_state"

// SSOHandlers serves the OIDC login flow
type SSOHandlers struct {
	server      *Server
	provider    *sso.Provider
	provisioner *sso.Provisioner
}

// RegisterRoutes registers the SSO routes
func (h *SSOHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/sso/login", h.login).Methods("GET")
	router.HandleFunc("/api/v1/sso/callback", h.callback).Methods("GET")
}

// login handles GET /api/v1/sso/login with a redirect to the provider
func (h *SSOHandlers) login(w http.ResponseWriter, r *http.Request) {
	state, err := sso.NewState()
	if err != nil {
		h.server.logger.WithError(err).Error("failed to generate SSO state")
		httputil.WriteInternalError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     ssoStateCookie,
		Value:    state,
		Path:     "/api/v1/sso",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// callback handles GET /api/v1/sso/callback: state check, code exchange,
// provisioning, and token issuance
func (h *SSOHandlers) callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(ssoStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteBadRequest(w, "invalid or missing state parameter")
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:     ssoStateCookie,
		Value:    "",
		Path:     "/api/v1/sso",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.server.logger.WithError(err).Warn("SSO code exchange failed")
		h.server.recordAudit(r, audit.ActionSSOLogin, "", err)
		httputil.WriteUnauthorized(w, "SSO login failed")
		return
	}

	account, err := h.provisioner.FindOrCreate(r.Context(), identity)
	if err != nil {
		h.server.recordAudit(r, audit.ActionSSOLogin, identity.Email, err)
		if errors.Is(err, sso.ErrAccountDeactivated) {
			httputil.WriteUnauthorized(w, "account is deactivated")
			return
		}
		writeServiceError(w, h.server.logger, err)
		return
	}
	if !account.IsActive {
		h.server.recordAudit(r, audit.ActionSSOLogin, account.Slug, auth.ErrInvalidCredentials)
		httputil.WriteUnauthorized(w, "account is deactivated")
		return
	}

	token, plaintext, err := h.server.issuer.IssueForAccount(r.Context(), account)
	if err != nil {
		h.server.recordAudit(r, audit.ActionSSOLogin, account.Slug, err)
		writeServiceError(w, h.server.logger, err)
		return
	}

	h.server.metrics.TokensIssuedTotal.WithLabelValues("sso").Inc()
	h.server.recordAudit(r, audit.ActionSSOLogin, account.Slug, nil)

	httputil.WriteCreated(w, tokenResponse{
		Token:     plaintext,
		ExpiresAt: token.ExpiresAt,
		Account:   account.Profile(),
	})
}
