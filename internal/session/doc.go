// Package session implements the stateless, client-held session used by the web service.
//
// # Signed Tokens
//
// [Codec] produces HS256 JWTs carrying an arbitrary JSON payload, an expiry and a purpose tag.
// Decoding checks the signature in constant time, the issuer, the expiry and the purpose, and
// collapses every failure into [ErrInvalidToken].
//
// Two purposes exist:
//   - [PurposeSession] : the auth cookie, a [Session] valid for one hour
//   - [PurposeOAuthState] : the CSRF state cookie, an [OAuthState] valid for ten minutes
//
// A state token never decodes as a session and vice versa.
//
// # Sessions
//
// [Manager] mints and parses tokens with the configured lifetimes. Sessions are immutable: filling
// in a user id after login produces a new token that replaces the old cookie.
package session
