package audit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zuristack/roster/pkg/contextkeys"
)

// Action identifies the operation an audit event records
type Action string

const (
	ActionAccountCreate Action = "account.create"
	ActionAccountRead   Action = "account.read"
	ActionAccountList   Action = "account.list"
	ActionAccountUpdate Action = "account.update"
	ActionAccountDelete Action = "account.delete"

	ActionLogin       Action = "auth.login"
	ActionLoginFailed Action = "auth.login_failed"
	ActionTokenRevoke Action = "auth.token_revoke"

	ActionAvatarUpload Action = "avatar.upload"
	ActionAvatarDelete Action = "avatar.delete"

	ActionSSOLogin Action = "sso.login"
)

// Outcome represents how the recorded operation ended
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is a single audit trail entry
type Event struct {
	ID int64 `json:"id"`

	// AccountID is the acting account; nil for anonymous requests and for
	// rows whose account was later hard-deleted.
	AccountID *int64 `json:"account_id,omitempty"`

	Action    Action  `json:"action"`
	TargetKey string  `json:"target_key,omitempty"`
	Outcome   Outcome `json:"outcome"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventFromRequest starts an event populated with the request's client
// address, user agent, and request ID.
func EventFromRequest(r *http.Request, action Action, outcome Outcome) *Event {
	return &Event{
		Action:    action,
		Outcome:   outcome,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.RequestID(r.Context()),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Filter narrows an audit trail search
type Filter struct {
	AccountID *int64
	Action    Action
	Outcome   Outcome
	Start     *time.Time
	End       *time.Time

	Limit  int
	Offset int
}
