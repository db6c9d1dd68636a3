package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/auth"
	"github.com/desertthunder/save-a-playlist/internal/shared"
)

// OAuthHandler serves the login redirect and the provider callback.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	flow         *auth.Flow
	cookies      Cookies
	loginPath    string
	callbackPath string
	successPath  string
	errorPath    string
	logger       *log.Logger
}

// OAuthHandlerOpts contains configuration options for creating an OAuthHandler.
type OAuthHandlerOpts struct {
	Flow         *auth.Flow
	Cookies      Cookies
	LoginPath    string
	CallbackPath string
	SuccessPath  string
	ErrorPath    string
	Logger       *log.Logger
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(opts OAuthHandlerOpts) *OAuthHandler {
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/login/callback"
	}
	if opts.SuccessPath == "" {
		opts.SuccessPath = "/success"
	}
	if opts.ErrorPath == "" {
		opts.ErrorPath = "/error"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &OAuthHandler{
		flow:         opts.Flow,
		cookies:      opts.Cookies,
		loginPath:    opts.LoginPath,
		callbackPath: opts.CallbackPath,
		successPath:  opts.SuccessPath,
		errorPath:    opts.ErrorPath,
		logger:       shared.WithLogger(opts.Logger, "component", "oauth_handler"),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.loginPath, h.callbackPath}
}

// ServeHTTP dispatches to the login or callback step.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, errorMessage{Error: "Method not allowed"})
		return
	}

	switch r.URL.Path {
	case h.loginPath:
		h.login(w, r)
	case h.callbackPath:
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login sends the browser to the provider, or straight to the success page when already signed in.
func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request) {
	res, err := h.flow.Start(h.cookies.Session(r), r.Host)
	if err != nil {
		h.logger.Error("failed to start login", "error", err)
		http.Redirect(w, r, h.errorPath, http.StatusFound)
		return
	}

	if res.AlreadyAuthenticated {
		http.Redirect(w, r, h.successPath, http.StatusFound)
		return
	}

	h.cookies.SetState(w, res.StateToken)
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

// callback finishes the login. The state cookie is cleared whatever the outcome.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	res, err := h.flow.Callback(r.Context(), auth.CallbackRequest{
		Host:          r.Host,
		State:         q.Get("state"),
		StateToken:    h.cookies.State(r),
		Code:          q.Get("code"),
		ProviderError: q.Get("error"),
	})

	h.cookies.ClearState(w)

	if err != nil {
		stage := auth.StageExchangeFailed
		if res != nil {
			stage = res.Stage
		}
		h.logger.Warn("login failed", "stage", stage, "error", err)
		http.Redirect(w, r, h.errorPath, http.StatusFound)
		return
	}

	h.cookies.SetSession(w, res.SessionToken)
	http.Redirect(w, r, h.successPath, http.StatusFound)
}
