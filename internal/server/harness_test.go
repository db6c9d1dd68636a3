package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/save-a-playlist/internal/services"
	"github.com/desertthunder/save-a-playlist/internal/session"
	"github.com/desertthunder/save-a-playlist/internal/shared"
	tu "github.com/desertthunder/save-a-playlist/internal/testing"
	"github.com/stretchr/testify/require"
)

// harness is a fully wired server talking to a fake Spotify.
type harness struct {
	fake     *tu.FakeSpotify
	cfg      *shared.Config
	sessions *session.Manager
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fake := tu.NewFakeSpotify(t)
	logger := shared.NewLogger(io.Discard)

	cfg := shared.DefaultConfig()
	cfg.Session.Secret = "server-test-secret-0123456789abcdefghij"
	cfg.Credentials.Spotify.ClientID = tu.ClientID
	cfg.Credentials.Spotify.ClientSecret = tu.ClientSecret
	cfg.Credentials.Spotify.AuthURL = fake.AuthURL()
	cfg.Credentials.Spotify.TokenURL = fake.TokenURL()
	cfg.Credentials.Spotify.APIBaseURL = fake.APIBaseURL()

	codec, err := session.NewCodec([]byte(cfg.Session.Secret), session.WithIssuer(cfg.Session.Issuer))
	require.NoError(t, err)
	sessions, err := session.NewManager(session.ManagerOpts{Codec: codec, TTL: cfg.Session.TTL, StateTTL: cfg.Session.StateTTL})
	require.NoError(t, err)

	spotify, err := services.NewSpotifyServiceFromConfig(cfg, logger)
	require.NoError(t, err)

	srv, err := New(Deps{
		Config:    cfg,
		Sessions:  sessions,
		Spotify:   spotify,
		AppTokens: services.NewClientCredentialsFromConfig(cfg, logger),
		Logger:    logger,
	})
	require.NoError(t, err)

	return &harness{fake: fake, cfg: cfg, sessions: sessions, handler: srv.Handler()}
}

func (h *harness) do(req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec.Result()
}

// mint returns a session cookie for the given tokens and user id.
func (h *harness) mint(t *testing.T, tokens session.Tokens, userID string) *http.Cookie {
	t.Helper()
	token, _, err := h.sessions.Mint(tokens, userID)
	require.NoError(t, err)
	return &http.Cookie{Name: h.cfg.Session.CookieName, Value: token}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
