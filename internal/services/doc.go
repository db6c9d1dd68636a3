// Package services implements the Spotify collaborators of the web service.
//
// # Interfaces
//
// Handlers and the auth flow depend on small interfaces rather than on [SpotifyService] directly:
//   - [Authorizer] : authorization URL and code exchange
//   - [IdentityLookup] : access token to user id
//   - [AppTokenSource] : app-level token for anonymous search
//   - [Searcher] : playlist search passthrough
//   - [PlaylistCopier] : save a copy of a playlist for the current user
//
// # Spotify Implementation
//
// [SpotifyService] uses [oauth2.Config] for the authorization-code and refresh-token grants. The
// redirect URI is rebuilt per request from the configured protocol and the request host, and the
// exchange sends the same value. Web API responses are read with gjson rather than decoded into
// structs; only ids, URIs and pagination links are needed.
//
// # Client Credentials
//
// [ClientCredentials] fetches app tokens through [clientcredentials.Config] and keeps one in a
// [TokenCache]. An entry expires five minutes before the provider's expires_in (3600 seconds when
// omitted). Concurrent misses share a single request and failures are never cached. [ClientCredentials.Run]
// keeps the cache warm from a background goroutine.
//
// # Error Handling
//
// Services wrap sentinel errors from the shared package:
//   - [shared.ErrMissingCredentials] : client id or secret not configured
//   - [shared.ErrAuthFailed] : client-credentials grant rejected
//   - [shared.ErrExchangeFailed] : authorization code rejected or unreachable provider
//   - [shared.ErrRefreshFailed] : refresh token rejected
//   - [shared.ErrIdentityLookup] : /me failed
//   - [shared.ErrAPIRequest] : any other Web API failure, usually as an [APIError]
package services
