// Package auth issues and validates the bearer tokens that guard the
// bridge's HTTP trigger surface.
//
// Tokens are HS256 JWTs carrying a subject, an expiry and a list of
// scopes. The API requires ScopePublish on POST /api/v1/publish when a
// secret is configured; read-only endpoints stay open.
package auth
