// Package postgres implements the account and token stores on PostgreSQL.
//
// Uniqueness of email and slug is enforced by database constraints, not by
// read-then-write checks; constraint violations surface as
// *accounts.DuplicateKeyError so concurrent registrations race safely.
//
// Deletion is a soft delete: rows get is_active = FALSE and drop out of
// every read path, but email and slug stay reserved.
package postgres
