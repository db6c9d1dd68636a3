package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/auth"
	"github.com/desertthunder/save-a-playlist/internal/services"
	"github.com/desertthunder/save-a-playlist/internal/session"
	"github.com/desertthunder/save-a-playlist/internal/shared"
)

const maxSaveBodyBytes = 64 << 10

// APIHandler serves the JSON endpoints used by the frontend.
type APIHandler struct {
	sessions  *session.Manager
	cookies   Cookies
	appTokens services.AppTokenSource
	searcher  services.Searcher
	copier    services.PlaylistCopier
	refresher services.TokenRefresher
	validator *Validator
	search    shared.SearchConfig
	now       func() time.Time
	logger    *log.Logger
}

// APIHandlerOpts contains configuration options for creating an APIHandler.
type APIHandlerOpts struct {
	Sessions  *session.Manager
	Cookies   Cookies
	AppTokens services.AppTokenSource
	Searcher  services.Searcher
	Copier    services.PlaylistCopier
	Refresher services.TokenRefresher // optional; enables one retry of a save rejected with 401
	Validator *Validator
	Search    shared.SearchConfig
	Now       func() time.Time
	Logger    *log.Logger
}

// NewAPIHandler creates the JSON API handler.
func NewAPIHandler(opts APIHandlerOpts) *APIHandler {
	if opts.Validator == nil {
		opts.Validator = NewValidator("https://api.spotify.com/v1")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &APIHandler{
		sessions:  opts.Sessions,
		cookies:   opts.Cookies,
		appTokens: opts.AppTokens,
		searcher:  opts.Searcher,
		copier:    opts.Copier,
		refresher: opts.Refresher,
		validator: opts.Validator,
		search:    opts.Search,
		now:       opts.Now,
		logger:    shared.WithLogger(opts.Logger, "component", "api"),
	}
}

// Search proxies a playlist search. Signed-in callers search with their own token, everyone
// else with the app's client-credentials token.
func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if strings.TrimSpace(raw) == "" {
		writeJSON(w, http.StatusBadRequest, errorMessage{Error: "Search query is required"})
		return
	}

	query, err := h.validator.SearchQuery(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorMessage{Error: inputMessage(err)})
		return
	}
	typeahead := r.URL.Query().Get("typeahead") == "true"

	token, err := h.searchToken(r)
	if err != nil {
		h.logger.Error("no token for search", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorMessage{Error: "Search failed"})
		return
	}

	result, err := h.searcher.Search(r.Context(), token, query, typeahead)
	if err != nil {
		h.logger.Error("search failed", "query", query, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorMessage{Error: "Search failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (h *APIHandler) searchToken(r *http.Request) (string, error) {
	if cookie := h.cookies.Session(r); cookie != "" {
		if s, err := h.sessions.Parse(cookie); err == nil && s.HasAccessToken() {
			return s.Tokens.AccessToken, nil
		}
	}
	return h.appTokens.Token(r.Context())
}

// saveRequest is the body of a save call, sent as a form or as JSON.
type saveRequest struct {
	Name        string `json:"name"`
	TracksURL   string `json:"tracksUrl"`
	DateTimeStr string `json:"dateTimeStr"`
}

// Save copies a playlist into the caller's account. Requires [RequireSession].
func (h *APIHandler) Save(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, statusMessage{Status: http.StatusUnauthorized, Message: "Spotify account not connected"})
		return
	}

	req, err := parseSaveRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusMessage{Status: http.StatusBadRequest, Message: "Invalid request body"})
		return
	}

	name, err := h.validator.PlaylistName(decodeName(req.Name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusMessage{Status: http.StatusBadRequest, Message: inputMessage(err)})
		return
	}
	tracksURL, err := h.validator.TracksURL(req.TracksURL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusMessage{Status: http.StatusBadRequest, Message: inputMessage(err)})
		return
	}

	date := FormatSaveDate(req.DateTimeStr, h.now())
	details := services.PlaylistDetails{
		Name:        fmt.Sprintf("%s - Saved on %s", name, date),
		Description: fmt.Sprintf("This playlist was copied from \"%s\" on %s.", name, date),
		Public:      false,
		TracksURL:   tracksURL,
	}

	result, err := h.copier.CopyPlaylist(r.Context(), caller.AccessToken(), caller.UserID(), details)
	if err != nil && result == nil && services.IsUnauthorized(err) {
		result, err = h.retryWithRefresh(w, r, caller, details)
	}
	if err != nil {
		h.logger.Error("save failed", "user_id", caller.UserID(), "error", err)
		writeJSON(w, http.StatusInternalServerError, statusMessage{
			Status:  http.StatusInternalServerError,
			Message: "Something is wrong. Spotify could not save the playlist.",
		})
		return
	}

	h.logger.Info("playlist saved", "user_id", caller.UserID(), "playlist_id", result.PlaylistID, "tracks", result.TrackCount)
	writeJSON(w, http.StatusOK, statusMessage{Status: http.StatusOK, Message: "Playlist successfully saved."})
}

// retryWithRefresh refreshes the caller's access token once, reissues the session cookie and
// repeats the copy. It is only used when nothing was created by the first attempt.
func (h *APIHandler) retryWithRefresh(w http.ResponseWriter, r *http.Request, caller *auth.Resolution, details services.PlaylistDetails) (*services.CopyResult, error) {
	refreshToken := caller.Session.Tokens.RefreshToken
	if h.refresher == nil || refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	tokens, err := h.refresher.RefreshTokens(r.Context(), refreshToken)
	if err != nil {
		return nil, err
	}

	refreshed := session.Tokens{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}

	token, _, err := h.sessions.Mint(refreshed, caller.UserID())
	if err != nil {
		return nil, err
	}
	h.cookies.SetSession(w, token)
	h.logger.Debug("access token refreshed for save", "user_id", caller.UserID())

	return h.copier.CopyPlaylist(r.Context(), refreshed.AccessToken, caller.UserID(), details)
}

func parseSaveRequest(w http.ResponseWriter, r *http.Request) (saveRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSaveBodyBytes)

	var req saveRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Name = r.PostForm.Get("name")
	req.TracksURL = r.PostForm.Get("tracksUrl")
	req.DateTimeStr = r.PostForm.Get("dateTimeStr")
	return req, nil
}

// decodeName undoes the frontend's percent-encoding of the playlist name. Plus signs are kept.
func decodeName(name string) string {
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return name
	}
	return decoded
}

var saveDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006",
	time.RFC1123,
	time.RFC1123Z,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// FormatSaveDate renders the client's timestamp as MM/DD/YYYY in now's location,
// using now when it cannot be parsed.
//
// Accepted inputs are RFC 3339, a browser Date string (the trailing zone name in
// parentheses is ignored), a few common date layouts, or unix milliseconds.
// Inputs without an offset are read in now's location.
func FormatSaveDate(dateTimeStr string, now time.Time) string {
	loc := now.Location()
	s := strings.TrimSpace(dateTimeStr)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).In(loc).Format("01/02/2006")
	}
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range saveDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc).Format("01/02/2006")
		}
	}
	return now.Format("01/02/2006")
}

// Config reports whether the caller is signed in, along with frontend search tuning.
func (h *APIHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		IsLoggedIn bool `json:"isLoggedIn"`
		shared.SearchConfig
	}{
		IsLoggedIn:   h.sessions.LoggedIn(h.cookies.Session(r)),
		SearchConfig: h.search,
	})
}

// ClearOAuthState drops the state cookie of an abandoned login popup.
func (h *APIHandler) ClearOAuthState(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearState(w)
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Success: true, Message: "OAuth state cleared"})
}

// Health is a liveness probe.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// inputMessage turns a validation error into a sentence for the browser.
func inputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), shared.ErrInvalidInput.Error()+": ")
	if msg == "" {
		return "Invalid input"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
