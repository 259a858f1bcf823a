package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/httputil"
	"github.com/zuristack/roster/pkg/middleware"
	"github.com/zuristack/roster/pkg/storage/s3"
)

// AccountHandlers serves the account resource endpoints
type AccountHandlers struct {
	server  *Server
	avatars AvatarStorage
}

// RegisterRoutes registers the account routes. Avatar routes are only
// registered when object storage is configured.
func (h *AccountHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/users", h.create).Methods("POST")
	router.HandleFunc("/api/v1/users", h.list).Methods("GET")
	router.HandleFunc("/api/v1/users/{key}", h.retrieve).Methods("GET")
	router.HandleFunc("/api/v1/users/{key}", h.update).Methods("PATCH", "PUT")
	router.HandleFunc("/api/v1/users/{key}", h.delete).Methods("DELETE")

	if h.avatars != nil {
		router.HandleFunc("/api/v1/users/{key}/avatar", h.uploadAvatar).Methods("POST")
		router.HandleFunc("/api/v1/users/{key}/avatar", h.getAvatar).Methods("GET")
		router.HandleFunc("/api/v1/users/{key}/avatar", h.deleteAvatar).Methods("DELETE")
	}
}

// create handles POST /api/v1/users. Registration is open to anonymous
// callers.
func (h *AccountHandlers) create(w http.ResponseWriter, r *http.Request) {
	var reg accounts.Registration
	if !httputil.ParseJSONOrError(w, r, &reg) {
		return
	}

	account, err := h.server.accounts.Create(r.Context(), reg)
	h.server.recordDecision("create", err)
	h.server.recordAudit(r, audit.ActionAccountCreate, reg.Email, err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	httputil.WriteCreated(w, account.Profile())
}

// list handles GET /api/v1/users
func (h *AccountHandlers) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.server.accounts.List(r.Context(), middleware.Requester(r))
	h.server.recordDecision("list", err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	profiles := make([]accounts.Profile, 0, len(all))
	for _, account := range all {
		profiles = append(profiles, account.Profile())
	}
	httputil.WriteSuccess(w, profiles)
}

// retrieve handles GET /api/v1/users/{key}
func (h *AccountHandlers) retrieve(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}

	account, err := h.server.accounts.Retrieve(r.Context(), middleware.Requester(r), key)
	h.server.recordDecision("retrieve", err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	httputil.WriteSuccess(w, account.Profile())
}

// update handles PATCH and PUT /api/v1/users/{key}
func (h *AccountHandlers) update(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}

	var patch accounts.Patch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	account, err := h.server.accounts.Update(r.Context(), middleware.Requester(r), key, patch)
	h.server.recordDecision("update", err)
	h.server.recordAudit(r, audit.ActionAccountUpdate, key, err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	httputil.WriteSuccess(w, account.Profile())
}

// delete handles DELETE /api/v1/users/{key}
func (h *AccountHandlers) delete(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}

	account, err := h.server.accounts.Delete(r.Context(), middleware.Requester(r), key)
	h.server.recordDecision("delete", err)
	h.server.recordAudit(r, audit.ActionAccountDelete, key, err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	// A deactivated account must not keep working credentials. Best-effort:
	// the janitor sweeps anything missed here, and Authenticate rejects
	// inactive accounts regardless.
	if _, err := h.server.issuer.RevokeAllForAccount(r.Context(), account.ID); err != nil {
		h.server.logger.WithError(err).WithField("account_id", account.ID).Warn("failed to revoke tokens for deactivated account")
	}

	httputil.WriteNoContent(w)
}

// uploadAvatar handles POST /api/v1/users/{key}/avatar. The body is the raw
// image; its Content-Type selects the format.
func (h *AccountHandlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}
	requester := middleware.Requester(r)

	// Authorization runs before any bytes land in object storage.
	account, err := h.server.accounts.AuthorizeModify(r.Context(), requester, key)
	h.server.recordDecision("update", err)
	if err != nil {
		h.server.recordAudit(r, audit.ActionAvatarUpload, key, err)
		writeServiceError(w, h.server.logger, err)
		return
	}

	previousKey := account.AvatarKey

	avatarKey, err := h.avatars.Upload(r.Context(), account.ID, r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		h.server.recordAudit(r, audit.ActionAvatarUpload, key, err)
		var unsupported *s3.ErrUnsupportedContentType
		if errors.As(err, &unsupported) || errors.Is(err, s3.ErrAvatarTooLarge) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.server.logger.WithError(err).Error("avatar upload failed")
		httputil.WriteInternalError(w)
		return
	}

	if _, err := h.server.accounts.SetAvatar(r.Context(), requester, key, avatarKey); err != nil {
		h.server.recordAudit(r, audit.ActionAvatarUpload, key, err)
		writeServiceError(w, h.server.logger, err)
		return
	}

	if previousKey != "" && previousKey != avatarKey {
		if err := h.avatars.Delete(r.Context(), previousKey); err != nil {
			h.server.logger.WithError(err).WithField("avatar_key", previousKey).Warn("failed to delete replaced avatar")
		}
	}

	url, err := h.avatars.PresignGet(r.Context(), avatarKey)
	if err != nil {
		h.server.logger.WithError(err).Error("failed to presign avatar URL")
		httputil.WriteInternalError(w)
		return
	}

	h.server.recordAudit(r, audit.ActionAvatarUpload, key, nil)
	httputil.WriteCreated(w, map[string]string{"avatar_url": url})
}

// getAvatar handles GET /api/v1/users/{key}/avatar with a redirect to a
// time-limited download URL
func (h *AccountHandlers) getAvatar(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}

	account, err := h.server.accounts.Retrieve(r.Context(), middleware.Requester(r), key)
	h.server.recordDecision("retrieve", err)
	if err != nil {
		writeServiceError(w, h.server.logger, err)
		return
	}

	if account.AvatarKey == "" {
		httputil.WriteNotFoundError(w, "avatar not set")
		return
	}

	url, err := h.avatars.PresignGet(r.Context(), account.AvatarKey)
	if err != nil {
		h.server.logger.WithError(err).Error("failed to presign avatar URL")
		httputil.WriteInternalError(w)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// deleteAvatar handles DELETE /api/v1/users/{key}/avatar
func (h *AccountHandlers) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.ParsePathStringOrError(w, r, "key")
	if !ok {
		return
	}
	requester := middleware.Requester(r)

	account, err := h.server.accounts.AuthorizeModify(r.Context(), requester, key)
	h.server.recordDecision("update", err)
	if err != nil {
		h.server.recordAudit(r, audit.ActionAvatarDelete, key, err)
		writeServiceError(w, h.server.logger, err)
		return
	}

	if account.AvatarKey == "" {
		httputil.WriteNotFoundError(w, "avatar not set")
		return
	}

	if _, err := h.server.accounts.SetAvatar(r.Context(), requester, key, ""); err != nil {
		h.server.recordAudit(r, audit.ActionAvatarDelete, key, err)
		writeServiceError(w, h.server.logger, err)
		return
	}

	if err := h.avatars.Delete(r.Context(), account.AvatarKey); err != nil {
		h.server.logger.WithError(err).WithField("avatar_key", account.AvatarKey).Warn("failed to delete avatar object")
	}

	h.server.recordAudit(r, audit.ActionAvatarDelete, key, nil)
	httputil.WriteNoContent(w)
}
