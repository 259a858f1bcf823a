// Package audit records a durable trail of security-relevant operations:
// account lifecycle changes, login attempts, token revocations, and denied
// requests. Events are written to PostgreSQL and aged out by the janitor.
package audit
