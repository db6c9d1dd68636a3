// Package auth implements the login state machine and the session resolver.
//
// # Login
//
// [Flow.Start] sends a browser to the provider with a fresh random state and returns that state
// signed as a short-lived token for the state cookie. [Flow.Callback] verifies the cookie and the
// query state before the authorization code is ever exchanged, then mints a session.
//
//	START → REDIRECT_TO_PROVIDER → AWAITING_CALLBACK → STATE_VERIFIED | STATE_MISMATCH
//	      → TOKEN_EXCHANGED | EXCHANGE_FAILED → SESSION_ISSUED
//
// Codes are single use, so neither a mismatch nor a failed exchange is retried.
//
// # Resolving Callers
//
// [Resolver.Resolve] validates the session cookie of an API request. Sessions minted before the
// user id was known get it filled in by one identity lookup, and the caller receives a replacement
// token to store.
package auth
