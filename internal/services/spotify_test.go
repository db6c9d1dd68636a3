package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/desertthunder/save-a-playlist/internal/shared"
	tu "github.com/desertthunder/save-a-playlist/internal/testing"
)

func newTestSpotify(t *testing.T, fake *tu.FakeSpotify) *SpotifyService {
	t.Helper()
	srv, err := NewSpotifyService(SpotifyOpts{
		ClientID:     tu.ClientID,
		ClientSecret: tu.ClientSecret,
		Protocol:     "https://",
		Scopes:       []string{"playlist-read-private", "playlist-modify-private"},
		AuthURL:      fake.AuthURL(),
		TokenURL:     fake.TokenURL(),
		APIBaseURL:   fake.APIBaseURL(),
		RateLimit:    1000,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return srv
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(SpotifyOpts{ClientSecret: "secret"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(SpotifyOpts{ClientID: "id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Defaults", func(t *testing.T) {
			srv, err := NewSpotifyService(SpotifyOpts{ClientID: "id", ClientSecret: "secret"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.apiBaseURL != spotifyBaseURL {
				t.Errorf("expected default API base URL, got %s", srv.apiBaseURL)
			}
			if srv.httpClient.Timeout != DefaultRequestTimeout {
				t.Errorf("expected %v timeout, got %v", DefaultRequestTimeout, srv.httpClient.Timeout)
			}
			if srv.typeaheadCount != DefaultTypeaheadCount {
				t.Errorf("expected typeahead count %d, got %d", DefaultTypeaheadCount, srv.typeaheadCount)
			}
		})

		t.Run("From Config", func(t *testing.T) {
			cfg := shared.DefaultConfig()
			cfg.Credentials.Spotify.ClientID = "id"
			cfg.Credentials.Spotify.ClientSecret = "secret"
			srv, err := NewSpotifyServiceFromConfig(cfg, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			got, _ := srv.RedirectURI("localhost:3000")
			if got != "http://localhost:3000/login/callback" {
				t.Errorf("unexpected redirect URI %s", got)
			}
		})
	})

	t.Run("RedirectURI", func(t *testing.T) {
		srv := newTestSpotify(t, tu.NewFakeSpotify(t))

		got, err := srv.RedirectURI("playlists.example.com")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != "https://playlists.example.com/login/callback" {
			t.Errorf("unexpected redirect URI %s", got)
		}

		for _, host := range []string{"", "evil.com/path", "a@b.com", "x?y"} {
			if _, err := srv.RedirectURI(host); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument for host %q, got %v", host, err)
			}
		}
	})

	t.Run("AuthURLWithState", func(t *testing.T) {
		fake := tu.NewFakeSpotify(t)
		srv := newTestSpotify(t, fake)

		req, err := srv.AuthURLWithState("localhost:3000")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(req.State) != StateLength {
			t.Errorf("expected %d character state, got %q", StateLength, req.State)
		}

		u, err := url.Parse(req.URL)
		if err != nil {
			t.Fatalf("auth URL does not parse: %v", err)
		}
		q := u.Query()
		if !strings.HasPrefix(req.URL, fake.AuthURL()) {
			t.Errorf("auth URL should point at the provider, got %s", req.URL)
		}
		if q.Get("client_id") != tu.ClientID {
			t.Errorf("expected client_id, got %s", q.Get("client_id"))
		}
		if q.Get("response_type") != "code" {
			t.Errorf("expected response_type=code, got %s", q.Get("response_type"))
		}
		if q.Get("state") != req.State {
			t.Errorf("URL state %s does not match returned state %s", q.Get("state"), req.State)
		}
		if q.Get("redirect_uri") != "https://localhost:3000/login/callback" {
			t.Errorf("unexpected redirect_uri %s", q.Get("redirect_uri"))
		}
		if q.Get("scope") != "playlist-read-private playlist-modify-private" {
			t.Errorf("unexpected scope %s", q.Get("scope"))
		}

		other, _ := srv.AuthURLWithState("localhost:3000")
		if other.State == req.State {
			t.Error("expected a fresh state per call")
		}
	})

	t.Run("ExchangeCode", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			srv := newTestSpotify(t, fake)

			tokens, err := srv.ExchangeCode(context.Background(), tu.ValidCode, "localhost:3000")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tokens.AccessToken != tu.UserAccessToken || tokens.RefreshToken != tu.UserRefreshToken {
				t.Errorf("unexpected tokens %+v", tokens)
			}
			if tokens.ExpiresIn < 3590 || tokens.ExpiresIn > 3600 {
				t.Errorf("expected expires_in near 3600, got %d", tokens.ExpiresIn)
			}
			if tokens.UserID != "" {
				t.Errorf("expected no user id, got %s", tokens.UserID)
			}

			uris := fake.RedirectURIs()
			if len(uris) != 1 || uris[0] != "https://localhost:3000/login/callback" {
				t.Errorf("exchange should send the matching redirect URI, got %v", uris)
			}
		})

		t.Run("With User ID", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			fake.Configure(func(f *tu.FakeSpotify) { f.IncludeUserID = true })
			srv := newTestSpotify(t, fake)

			tokens, err := srv.ExchangeCode(context.Background(), tu.ValidCode, "localhost:3000")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tokens.UserID != tu.FakeUserID {
				t.Errorf("expected user id %s, got %s", tu.FakeUserID, tokens.UserID)
			}
		})

		t.Run("Rejected Code", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			srv := newTestSpotify(t, fake)

			_, err := srv.ExchangeCode(context.Background(), "bad-code", "localhost:3000")
			if !errors.Is(err, shared.ErrExchangeFailed) {
				t.Errorf("expected ErrExchangeFailed, got %v", err)
			}
			if fake.Calls("authorization_code") != 1 {
				t.Errorf("expected exactly one exchange attempt, got %d", fake.Calls("authorization_code"))
			}
		})

		t.Run("Empty Code", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			srv := newTestSpotify(t, fake)

			_, err := srv.ExchangeCode(context.Background(), "", "localhost:3000")
			if !errors.Is(err, shared.ErrExchangeFailed) {
				t.Errorf("expected ErrExchangeFailed, got %v", err)
			}
			if fake.Calls("authorization_code") != 0 {
				t.Error("empty code should not reach the provider")
			}
		})
	})

	t.Run("RefreshTokens", func(t *testing.T) {
		fake := tu.NewFakeSpotify(t)
		srv := newTestSpotify(t, fake)

		tokens, err := srv.RefreshTokens(context.Background(), tu.UserRefreshToken)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tokens.AccessToken != tu.RefreshedAccessToken {
			t.Errorf("expected refreshed access token, got %s", tokens.AccessToken)
		}
		if tokens.RefreshToken != tu.UserRefreshToken {
			t.Errorf("expected the original refresh token to be kept, got %s", tokens.RefreshToken)
		}

		if _, err := srv.RefreshTokens(context.Background(), "unknown"); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if _, err := srv.RefreshTokens(context.Background(), ""); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("UserID", func(t *testing.T) {
		fake := tu.NewFakeSpotify(t)
		srv := newTestSpotify(t, fake)

		id, err := srv.UserID(context.Background(), tu.UserAccessToken)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != tu.FakeUserID {
			t.Errorf("expected %s, got %s", tu.FakeUserID, id)
		}

		fake.Reject("revoked")
		_, err = srv.UserID(context.Background(), "revoked")
		if !errors.Is(err, shared.ErrIdentityLookup) {
			t.Errorf("expected ErrIdentityLookup, got %v", err)
		}
		if !IsUnauthorized(err) {
			t.Errorf("expected a 401 API error, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		fake := tu.NewFakeSpotify(t)
		srv := newTestSpotify(t, fake)

		body, err := srv.Search(context.Background(), "app-token", "road trip", true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(string(body), "Result for road trip") {
			t.Errorf("unexpected body %s", body)
		}

		if _, err := srv.Search(context.Background(), "app-token", "jazz", false); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		searches := fake.Searches()
		if len(searches) != 2 {
			t.Fatalf("expected 2 searches, got %d", len(searches))
		}
		if searches[0].Get("type") != "playlist" || searches[0].Get("limit") != "7" {
			t.Errorf("unexpected typeahead params %v", searches[0])
		}
		if searches[1].Has("limit") {
			t.Errorf("full search should not be limited, got %v", searches[1])
		}

		fake.Configure(func(f *tu.FakeSpotify) { f.FailSearch = true })
		if _, err := srv.Search(context.Background(), "app-token", "jazz", false); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("CopyPlaylist", func(t *testing.T) {
		t.Run("Pages And Batches", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			tracks := make([]string, 0, 251)
			for i := range 250 {
				tracks = append(tracks, fmt.Sprintf("spotify:track:%04d", i))
			}
			tracks = append(tracks, "spotify:local:artist:album:song:120")
			fake.Configure(func(f *tu.FakeSpotify) {
				f.Tracks = tracks
				f.PageSize = 50
			})
			srv := newTestSpotify(t, fake)

			result, err := srv.CopyPlaylist(context.Background(), tu.UserAccessToken, tu.FakeUserID, PlaylistDetails{
				Name:        "Copy",
				Description: "desc",
				TracksURL:   fake.TracksURL("source1"),
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result.PlaylistID != tu.CreatedPlaylistID || result.TrackCount != 250 {
				t.Errorf("unexpected result %+v", result)
			}
			if !strings.HasSuffix(result.PlaylistURL, tu.CreatedPlaylistID) {
				t.Errorf("unexpected playlist URL %s", result.PlaylistURL)
			}

			if got := fake.Calls("list_tracks"); got != 6 {
				t.Errorf("expected 6 track pages, got %d", got)
			}

			batches := fake.AddedBatches()
			if len(batches) != 3 || len(batches[0]) != 100 || len(batches[2]) != 50 {
				t.Errorf("expected batches of 100/100/50, got %d batches", len(batches))
			}

			created := fake.CreatedPlaylists()
			if len(created) != 1 || created[0]["owner"] != tu.FakeUserID || created[0]["public"] != false {
				t.Errorf("unexpected create body %v", created)
			}
		})

		t.Run("Refuses Foreign Tracks URL", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			srv := newTestSpotify(t, fake)

			_, err := srv.CopyPlaylist(context.Background(), tu.UserAccessToken, tu.FakeUserID, PlaylistDetails{
				Name:      "Copy",
				TracksURL: "https://evil.example.com/v1/playlists/x/tracks",
			})
			if !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if len(fake.Bearers()) != 0 {
				t.Error("no request should be made")
			}
		})

		t.Run("Unauthorized", func(t *testing.T) {
			fake := tu.NewFakeSpotify(t)
			fake.Reject(tu.UserAccessToken)
			srv := newTestSpotify(t, fake)

			_, err := srv.CopyPlaylist(context.Background(), tu.UserAccessToken, tu.FakeUserID, PlaylistDetails{
				Name:      "Copy",
				TracksURL: fake.TracksURL("source1"),
			})
			if !IsUnauthorized(err) {
				t.Errorf("expected 401 API error, got %v", err)
			}
			if fake.Calls("create_playlist") != 0 {
				t.Error("playlist should not be created when the source cannot be read")
			}
		})

		t.Run("Missing Arguments", func(t *testing.T) {
			srv := newTestSpotify(t, tu.NewFakeSpotify(t))
			if _, err := srv.CopyPlaylist(context.Background(), "t", "", PlaylistDetails{TracksURL: "x"}); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
			if _, err := srv.CopyPlaylist(context.Background(), "t", "u", PlaylistDetails{}); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
		})
	})
}

func TestAPIError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &APIError{StatusCode: 401, Message: "expired"})
	if !errors.Is(err, shared.ErrAPIRequest) {
		t.Error("APIError should unwrap to ErrAPIRequest")
	}
	if !IsUnauthorized(err) {
		t.Error("expected IsUnauthorized")
	}
	if IsUnauthorized(&APIError{StatusCode: 500}) {
		t.Error("500 is not unauthorized")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("message missing from %s", err)
	}
}

func TestDoRequest(t *testing.T) {
	newWithTransport := func(t *testing.T, rt http.RoundTripper) *SpotifyService {
		t.Helper()
		srv, err := NewSpotifyService(SpotifyOpts{
			ClientID:     "id",
			ClientSecret: "secret",
			HTTPClient:   &http.Client{Transport: rt},
		})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		return srv
	}

	t.Run("Transport Error", func(t *testing.T) {
		srv := newWithTransport(t, tu.NewMockRoundTripper(nil, errors.New("connection refused")))

		_, err := srv.UserID(context.Background(), "token")
		if !errors.Is(err, shared.ErrIdentityLookup) || !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected identity lookup and API request errors, got %v", err)
		}
	})

	t.Run("Body Read Error", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
		srv := newWithTransport(t, tu.NewMockRoundTripper(resp, nil))

		_, err := srv.Search(context.Background(), "token", "jazz", false)
		if err == nil || !strings.Contains(err.Error(), "failed to read response") {
			t.Errorf("expected read error, got %v", err)
		}
	})

	t.Run("Error Message From Body", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusForbidden,
			Body:       io.NopCloser(strings.NewReader(`{"error":{"status":403,"message":"Insufficient client scope"}}`)),
			Header:     http.Header{},
		}
		srv := newWithTransport(t, tu.NewMockRoundTripper(resp, nil))

		_, err := srv.Search(context.Background(), "token", "jazz", false)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.StatusCode != http.StatusForbidden || apiErr.Message != "Insufficient client scope" {
			t.Errorf("unexpected APIError %+v", apiErr)
		}
	})

	t.Run("Missing Token", func(t *testing.T) {
		srv := newWithTransport(t, tu.NewMockRoundTripper(nil, errors.New("unreachable")))

		_, err := srv.Search(context.Background(), "", "jazz", false)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}
