// Package middleware provides authentication and rate limiting middleware
// for the HTTP API.
//
// Authentication is bearer-token based and deliberately optional at this
// layer: unauthenticated requests pass through with no session attached, and
// the resource manager's policy evaluation decides whether anonymous access
// is acceptable for the operation. A present-but-invalid token is always
// rejected here with 401.
//
// Rate limiting comes in two flavors: a Redis-backed limiter shared across
// instances, and an in-process token bucket fallback for deployments
// without Redis. Both fail open.
package middleware
