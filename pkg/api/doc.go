// Package api exposes the account service over HTTP: account CRUD, token
// issuance and revocation, avatar storage, and the SSO login flow. Handlers
// translate the service error taxonomy to status codes; all policy decisions
// stay in the service layer.
package api
