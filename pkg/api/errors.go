package api

import (
	"errors"
	"net/http"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/httputil"
	"github.com/zuristack/roster/pkg/observability"
)

// writeServiceError maps the service error taxonomy to HTTP status codes.
// Anything unrecognized is a 500 with a generic body; the detail goes to the
// log, not the client.
func writeServiceError(w http.ResponseWriter, logger *observability.Logger, err error) {
	var validation *accounts.ValidationError
	if errors.As(err, &validation) {
		httputil.WriteFieldErrors(w, validation.Fields)
		return
	}

	var duplicate *accounts.DuplicateKeyError
	if errors.As(err, &duplicate) {
		httputil.WriteConflict(w, duplicate.Error())
		return
	}

	switch {
	case errors.Is(err, accounts.ErrNotFound):
		httputil.WriteNotFoundError(w, "account not found")
	case errors.Is(err, accounts.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, accounts.ErrDenied):
		httputil.WriteForbidden(w, "you do not have permission to perform this action")
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrTokenInvalid):
		httputil.WriteUnauthorized(w, "invalid or expired token")
	default:
		logger.WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
	}
}

// isDenial reports whether the error is a policy denial rather than an
// operational failure
func isDenial(err error) bool {
	return errors.Is(err, accounts.ErrUnauthenticated) || errors.Is(err, accounts.ErrDenied)
}
