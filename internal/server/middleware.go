package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/auth"
	"github.com/desertthunder/save-a-playlist/internal/shared"
)

// RequestIDHeader carries the id assigned to each request by [RequestLogger].
const RequestIDHeader = "X-Request-ID"

// ContentSecurityPolicy allows the Spotify login, embeds and image CDNs.
const ContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://accounts.spotify.com https://open.spotify.com; " +
	"style-src 'self' 'unsafe-inline' https://accounts.spotify.com https://fonts.googleapis.com; " +
	"img-src 'self' data: https://*.scdn.co https://*.spotifycdn.com; " +
	"connect-src 'self' https://api.spotify.com https://accounts.spotify.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"frame-src https://open.spotify.com https://accounts.spotify.com; " +
	"form-action 'self' https://accounts.spotify.com; " +
	"base-uri 'self'"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogger tags each request with a request id and logs it on completion.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := shared.GenerateID()
			w.Header().Set(RequestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			logger.Info("request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start).Round(time.Microsecond),
			)
		})
	}
}

// Recoverer turns a handler panic into a 500 response.
//
// Register it inside [RequestLogger] so panicking requests are still logged with their id.
func Recoverer(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic",
						"request_id", w.Header().Get(RequestIDHeader),
						"path", r.URL.Path,
						"panic", rec,
					)
					writeJSON(w, http.StatusInternalServerError, statusMessage{
						Status:  http.StatusInternalServerError,
						Message: "Internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the browser hardening headers on every response. HSTS is only sent in production.
func SecurityHeaders(production bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", ContentSecurityPolicy)
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests without a usable session and stores the caller in the request context.
//
// When the resolver fills in a missing user id, the replacement session cookie is set before the handler runs.
func RequireSession(resolver *auth.Resolver, cookies Cookies, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := resolver.Resolve(r.Context(), cookies.Session(r))
			if err != nil {
				status, message := rejection(err)
				logger.Debug("session rejected", "path", r.URL.Path, "status", status, "error", err)
				writeJSON(w, status, statusMessage{Status: status, Message: message})
				return
			}

			if res.Reissued != "" {
				cookies.SetSession(w, res.Reissued)
			}

			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), res)))
		})
	}
}

// rejection maps a resolver error to the response status and message shown to the browser.
func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrNotConnected):
		return http.StatusUnauthorized, "Spotify account not connected"
	case errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, auth.ErrIdentityLookup):
		return http.StatusForbidden, "Could not get user id"
	case errors.Is(err, auth.ErrNoAccessToken):
		return http.StatusUnauthorized, "No valid Spotify token"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// statusMessage is the JSON body of session and save responses.
type statusMessage struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// errorMessage is the JSON body of search and generic errors.
type errorMessage struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
