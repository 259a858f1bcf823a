package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/httputil"
)

// TokenHandlers serves token issuance and revocation
type TokenHandlers struct {
	server *Server
}

// RegisterRoutes registers the token routes
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/tokens", h.issue).Methods("POST")
	router.HandleFunc("/api/v1/tokens/current", h.revoke).Methods("DELETE")
}

type tokenResponse struct {
	// Token is the plaintext credential, returned exactly once
	Token     string           `json:"token"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Account   accounts.Profile `json:"account"`
}

// issue handles POST /api/v1/tokens
func (h *TokenHandlers) issue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	account, token, plaintext, err := h.server.issuer.IssueWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.server.recordAudit(r, audit.ActionLoginFailed, accounts.NormalizeEmail(req.Email), err)
		writeServiceError(w, h.server.logger, err)
		return
	}

	h.server.metrics.TokensIssuedTotal.WithLabelValues("password").Inc()
	h.server.recordAudit(r, audit.ActionLogin, account.Slug, nil)

	httputil.WriteCreated(w, tokenResponse{
		Token:     plaintext,
		ExpiresAt: token.ExpiresAt,
		Account:   account.Profile(),
	})
}

// revoke handles DELETE /api/v1/tokens/current, invalidating the bearer
// token that authenticates the request itself
func (h *TokenHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	bearer := httputil.BearerToken(r)
	if bearer == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	err := h.server.issuer.Revoke(r.Context(), bearer)
	h.server.recordAudit(r, audit.ActionTokenRevoke, "", err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	h.server.metrics.TokensRevokedTotal.Inc()
	httputil.WriteNoContent(w)
}
