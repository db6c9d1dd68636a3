// package testing contains shared testing utilities
package testing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Fixed credentials and tokens understood by [FakeSpotify].
const (
	ClientID     = "test_client_id"
	ClientSecret = "test_client_secret"
	ValidCode    = "good-code"

	UserAccessToken      = "user-access"
	UserRefreshToken     = "user-refresh"
	RefreshedAccessToken = "user-access-refreshed"
	FakeUserID           = "fake-user"
	CreatedPlaylistID    = "newPlaylist123"
)

// FakeSpotify is an in-process stand-in for the Spotify accounts service and Web API.
//
// Exported fields script failures; change them through [FakeSpotify.Configure] once the server is running.
type FakeSpotify struct {
	Server *httptest.Server

	// ExpiresIn is returned from client-credentials grants; 0 omits the field.
	ExpiresIn int
	// IncludeUserID adds user_id to authorization-code responses.
	IncludeUserID bool
	// Tracks are the URIs listed by every playlist tracks endpoint.
	Tracks   []string
	PageSize int

	FailClientCredentials bool
	FailMe                bool
	FailSearch            bool

	mu           sync.Mutex
	calls        map[string]int
	rejected     map[string]bool
	redirectURIs []string
	searches     []url.Values
	created      []map[string]any
	added        [][]string
	bearers      []string
}

// NewFakeSpotify starts a fake Spotify server that is closed when t finishes.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()

	f := &FakeSpotify{
		ExpiresIn: 3600,
		PageSize:  100,
		calls:     make(map[string]int),
		rejected:  make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", f.handleToken)
	mux.HandleFunc("GET /v1/me", f.withBearer("me", f.handleMe))
	mux.HandleFunc("GET /v1/search", f.withBearer("search", f.handleSearch))
	mux.HandleFunc("POST /v1/users/{user}/playlists", f.withBearer("create_playlist", f.handleCreate))
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", f.withBearer("list_tracks", f.handleListTracks))
	mux.HandleFunc("POST /v1/playlists/{id}/tracks", f.withBearer("add_tracks", f.handleAddTracks))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Configure applies fn while holding the fake's lock.
func (f *FakeSpotify) Configure(fn func(f *FakeSpotify)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *FakeSpotify) AuthURL() string    { return f.Server.URL + "/authorize" }
func (f *FakeSpotify) TokenURL() string   { return f.Server.URL + "/api/token" }
func (f *FakeSpotify) APIBaseURL() string { return f.Server.URL + "/v1" }

// TracksURL is the API URL listing the tracks of playlistID.
func (f *FakeSpotify) TracksURL(playlistID string) string {
	return f.APIBaseURL() + "/playlists/" + playlistID + "/tracks"
}

// Calls returns how many requests reached the named endpoint.
//
// Token endpoint names are the grant types: client_credentials, authorization_code, refresh_token.
func (f *FakeSpotify) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Reject makes every Web API call authenticated with token fail with 401.
func (f *FakeSpotify) Reject(token string) {
	f.mu.Lock()
	f.rejected[token] = true
	f.mu.Unlock()
}

// RedirectURIs returns the redirect_uri of every authorization-code exchange.
func (f *FakeSpotify) RedirectURIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.redirectURIs...)
}

// Searches returns the query parameters of every search request.
func (f *FakeSpotify) Searches() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.searches...)
}

// Bearers returns the access token presented on every Web API request.
func (f *FakeSpotify) Bearers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bearers...)
}

// CreatedPlaylists returns the JSON bodies of every create-playlist request.
func (f *FakeSpotify) CreatedPlaylists() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.created...)
}

// AddedBatches returns the URI batches of every add-tracks request.
func (f *FakeSpotify) AddedBatches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.added...)
}

func (f *FakeSpotify) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *FakeSpotify) handleToken(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}

	grant := r.PostForm.Get("grant_type")
	f.count(grant)

	switch grant {
	case "client_credentials":
		f.mu.Lock()
		n := f.calls[grant]
		fail := f.FailClientCredentials
		expiresIn := f.ExpiresIn
		f.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
			return
		}
		body := map[string]any{"access_token": "app-token-" + strconv.Itoa(n), "token_type": "Bearer"}
		if expiresIn > 0 {
			body["expires_in"] = expiresIn
		}
		writeJSON(w, http.StatusOK, body)
	case "authorization_code":
		f.mu.Lock()
		f.redirectURIs = append(f.redirectURIs, r.PostForm.Get("redirect_uri"))
		includeUser := f.IncludeUserID
		f.mu.Unlock()

		if r.PostForm.Get("code") != ValidCode {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		body := map[string]any{
			"access_token":  UserAccessToken,
			"refresh_token": UserRefreshToken,
			"token_type":    "Bearer",
			"expires_in":    3600,
		}
		if includeUser {
			body["user_id"] = FakeUserID
		}
		writeJSON(w, http.StatusOK, body)
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != UserRefreshToken {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": RefreshedAccessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (f *FakeSpotify) withBearer(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.count(name)

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		f.bearers = append(f.bearers, token)
		rejected := f.rejected[token]
		f.mu.Unlock()

		if !ok || token == "" || rejected {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"status": 401, "message": "The access token expired"},
			})
			return
		}
		next(w, r)
	}
}

func (f *FakeSpotify) handleMe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	fail := f.FailMe
	f.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"status": 500, "message": "Server error"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": FakeUserID, "display_name": "Fake User"})
}

func (f *FakeSpotify) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.searches = append(f.searches, r.URL.Query())
	fail := f.FailSearch
	f.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": map[string]any{"status": 502, "message": "Bad gateway"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"playlists": map[string]any{
			"items": []map[string]any{{"id": "abc123", "name": "Result for " + r.URL.Query().Get("q")}},
			"total": 1,
		},
	})
}

func (f *FakeSpotify) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "bad body"}})
		return
	}
	body["owner"] = r.PathValue("user")

	f.mu.Lock()
	f.created = append(f.created, body)
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            CreatedPlaylistID,
		"external_urls": map[string]any{"spotify": "https://open.spotify.com/playlist/" + CreatedPlaylistID},
	})
}

func (f *FakeSpotify) handleListTracks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	tracks := f.Tracks
	pageSize := max(f.PageSize, 1)
	f.mu.Unlock()

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	end := min(offset+pageSize, len(tracks))
	offset = min(offset, end)

	items := make([]map[string]any, 0, end-offset)
	for _, uri := range tracks[offset:end] {
		items = append(items, map[string]any{"track": map[string]any{"uri": uri}})
	}

	var next any
	if end < len(tracks) {
		next = fmt.Sprintf("%s/playlists/%s/tracks?offset=%d", f.APIBaseURL(), r.PathValue("id"), end)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next": next, "total": len(tracks)})
}

func (f *FakeSpotify) handleAddTracks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "bad body"}})
		return
	}

	f.mu.Lock()
	f.added = append(f.added, body.URIs)
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"snapshot_id": "snapshot"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// FindCookie returns the cookie named name set by resp, or nil.
func FindCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MustReadBody reads and closes resp.Body.
func MustReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(data)
}
