package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/auth"
	"github.com/desertthunder/save-a-playlist/internal/services"
	"github.com/desertthunder/save-a-playlist/internal/session"
	"github.com/desertthunder/save-a-playlist/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, security headers, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own several routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Spotify is the provider surface the web service needs.
type Spotify interface {
	services.Authorizer
	services.IdentityLookup
	services.TokenRefresher
	services.Searcher
	services.PlaylistCopier
}

// Deps are the collaborators of a [Server].
type Deps struct {
	Config    *shared.Config
	Sessions  *session.Manager
	Spotify   Spotify
	AppTokens services.AppTokenSource
	Logger    *log.Logger
}

// Server is the save-a-playlist HTTP service.
type Server struct {
	config  *shared.Config
	router  *BasicRouter
	logger  *log.Logger
	started chan string
}

// New wires handlers and middleware for every route.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Sessions == nil || deps.Spotify == nil || deps.AppTokens == nil {
		return nil, fmt.Errorf("%w: server requires config, sessions, spotify and app tokens", shared.ErrMissingArgument)
	}
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}

	cfg := deps.Config
	logger := shared.WithLogger(deps.Logger, "component", "server")
	cookies := NewCookies(cfg)

	flow := auth.NewFlow(deps.Spotify, deps.Sessions, deps.Logger)
	resolver := auth.NewResolver(deps.Sessions, deps.Spotify, deps.Logger)

	oauth := NewOAuthHandler(OAuthHandlerOpts{
		Flow:         flow,
		Cookies:      cookies,
		CallbackPath: cfg.Credentials.Spotify.RedirectPath,
		SuccessPath:  cfg.Server.SuccessPath,
		ErrorPath:    cfg.Server.ErrorPath,
		Logger:       deps.Logger,
	})

	apiBaseURL := cfg.Credentials.Spotify.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = "https://api.spotify.com/v1"
	}
	api := NewAPIHandler(APIHandlerOpts{
		Sessions:  deps.Sessions,
		Cookies:   cookies,
		AppTokens: deps.AppTokens,
		Searcher:  deps.Spotify,
		Copier:    deps.Spotify,
		Refresher: deps.Spotify,
		Validator: NewValidator(apiBaseURL),
		Search:    cfg.Search,
		Logger:    deps.Logger,
	})

	router := NewBasicRouter()
	router.Use(RequestLogger(logger), Recoverer(logger), SecurityHeaders(cfg.IsProduction()))

	router.Handler(oauth)
	router.Handle(http.MethodGet, "/search", http.HandlerFunc(api.Search))
	router.Handle(http.MethodPost, "/save", RequireSession(resolver, cookies, logger)(http.HandlerFunc(api.Save)))
	router.Handle(http.MethodGet, "/getConfig", http.HandlerFunc(api.Config))
	router.Handle(http.MethodPost, "/clearOAuthState", http.HandlerFunc(api.ClearOAuthState))
	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(api.Health))
	router.Handle(http.MethodGet, pathOr(cfg.Server.SuccessPath, "/success"), http.HandlerFunc(SuccessPage))
	router.Handle(http.MethodGet, pathOr(cfg.Server.ErrorPath, "/error"), http.HandlerFunc(ErrorPage))

	return &Server{config: cfg, router: router, logger: logger, started: make(chan string, 1)}, nil
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Started receives the listen address once the server accepts connections.
func (s *Server) Started() <-chan string {
	return s.started
}

// Run serves on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %v", ln.Addr())
		select {
		case s.started <- ln.Addr().String():
		default:
		}
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down", "timeout", timeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
