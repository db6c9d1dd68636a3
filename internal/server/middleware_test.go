package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/save-a-playlist/internal/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("development", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SecurityHeaders(false)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		h := rec.Header()
		assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
		assert.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
		assert.Contains(t, h.Get("Content-Security-Policy"), "https://*.scdn.co")
		assert.Contains(t, h.Get("Content-Security-Policy"), "https://*.spotifycdn.com")
		assert.Empty(t, h.Get("Strict-Transport-Security"))
	})

	t.Run("production", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SecurityHeaders(true)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	})

	t.Run("applied to every route", func(t *testing.T) {
		h := newHarness(t)
		for _, path := range []string{"/healthz", "/getConfig", "/login", "/success"} {
			resp := h.do(httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), path)
			assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"), path)
		}
	})

	t.Run("applied to unmatched routes", func(t *testing.T) {
		h := newHarness(t)
		for _, tc := range []struct {
			method, path string
			status       int
		}{
			{http.MethodGet, "/nope", http.StatusNotFound},
			{http.MethodPost, "/search", http.StatusMethodNotAllowed},
		} {
			resp := h.do(httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.status, resp.StatusCode, tc.path)
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), tc.path)
			assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"), tc.path)
			assert.NotEmpty(t, resp.Header.Get(RequestIDHeader), tc.path)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := shared.NewLogger(&buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err, "request id should be a uuid")

	out := buf.String()
	assert.Contains(t, out, id)
	assert.Contains(t, out, "/brew")
	assert.Contains(t, out, "418")
}

func TestRecoverer(t *testing.T) {
	logger := shared.NewLogger(io.Discard)
	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestCookies(t *testing.T) {
	c := Cookies{SessionName: "auth_token", StateName: "oauth_state", SessionTTL: time.Hour, StateTTL: 10 * time.Minute, Secure: true}

	rec := httptest.NewRecorder()
	c.SetSession(rec, "tok")
	c.ClearState(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	assert.Equal(t, "auth_token", cookies[0].Name)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	assert.Equal(t, "oauth_state", cookies[1].Name)
	assert.Empty(t, cookies[1].Value)
	assert.True(t, strings.Contains(rec.Header().Values("Set-Cookie")[1], "Max-Age=0"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, c.Session(req))
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: "abc"})
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "def"})
	assert.Equal(t, "abc", c.Session(req))
	assert.Equal(t, "def", c.State(req))
}

func TestValidator(t *testing.T) {
	v := NewValidator("https://api.spotify.com/v1/")

	t.Run("tracks url", func(t *testing.T) {
		valid := []string{
			"https://api.spotify.com/v1/playlists/37i9dQZF1DXcBWIGoYBM5M/tracks",
			"https://api.spotify.com/v1/playlists/abc123/tracks?offset=100&limit=100",
		}
		for _, u := range valid {
			_, err := v.TracksURL(u)
			assert.NoError(t, err, u)
		}

		invalid := []string{
			"",
			"http://api.spotify.com/v1/playlists/abc/tracks",
			"https://api.spotify.com.evil.com/v1/playlists/abc/tracks",
			"https://api.spotify.com/v1/playlists/abc/tracksX",
			"https://api.spotify.com/v1/playlists/a-b/tracks",
			"https://api.spotify.com/v1/users/abc/playlists",
		}
		for _, u := range invalid {
			_, err := v.TracksURL(u)
			assert.ErrorIs(t, err, shared.ErrInvalidInput, u)
		}
	})

	t.Run("text", func(t *testing.T) {
		got, err := v.SearchQuery("  lo-fi beats  ")
		require.NoError(t, err)
		assert.Equal(t, "lo-fi beats", got)

		_, err = v.SearchQuery(strings.Repeat("é", 200))
		assert.NoError(t, err, "length counts characters, not bytes")

		for _, bad := range []string{"JavaScript:alert(1)", "x onerror=y", "<SCRIPT src=x>", "data:text/html"} {
			_, err := v.SearchQuery(bad)
			assert.ErrorIs(t, err, shared.ErrInvalidInput, bad)
		}

		_, err = v.PlaylistName(strings.Repeat("n", 101))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		_, err = v.PlaylistName("Drop the Beat: Select Cuts")
		assert.NoError(t, err)
	})
}
