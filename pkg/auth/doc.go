// Package auth implements credential handling: opaque bearer tokens,
// password hashing and strength checks, and the issuer that ties them to
// accounts. Tokens are stored hashed; the plaintext is returned exactly once
// at issuance.
package auth
