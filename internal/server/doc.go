// Package server provides HTTP routing, middleware, and handlers for the save-a-playlist web service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns internally.
//
// # Routes
//
//   - GET /login, GET /login/callback : [OAuthHandler], the authorization-code login
//   - GET /search : playlist search, with the caller's token or the app token
//   - POST /save : copy a playlist into the caller's account, behind [RequireSession]
//   - GET /getConfig : login status and frontend search settings
//   - POST /clearOAuthState : drop the state cookie of an abandoned login
//   - GET /success, GET /error : pages shown in the login popup
//   - GET /healthz : liveness
//
// # Cookies
//
// [Cookies] manages the signed session cookie (auth_token) and the signed OAuth-state cookie
// (oauth_state). Cookie values are produced and verified by the session package; nothing is
// stored server-side.
//
// # Middleware
//
// Every response passes through [Recoverer], [RequestLogger] (request ids from uuid) and
// [SecurityHeaders]. [RequireSession] maps resolver errors to JSON {status, message} responses
// and reissues the session cookie when a user id was filled in.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
