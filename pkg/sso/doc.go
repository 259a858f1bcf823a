// Package sso implements OpenID Connect single sign-on. A configured
// upstream identity provider authenticates the user; accounts are then
// matched by email, with just-in-time provisioning for first-time logins.
package sso
