// Spotify Web API implementation of [Authorizer], [IdentityLookup], [Searcher] and [PlaylistCopier]
//
// Endpoint reference: https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/shared"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// StateLength is the number of alphanumeric characters in a generated OAuth state.
	StateLength = 32

	DefaultRequestTimeout = 15 * time.Second
	DefaultTypeaheadCount = 7

	// maxTracksPerRequest is Spotify's cap on URIs per add-items call.
	maxTracksPerRequest = 100
)

// APIError is a non-2xx response from the Spotify Web API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return shared.ErrAPIRequest
}

// IsUnauthorized reports whether err is a Spotify 401, meaning the access token was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// SpotifyService talks to the Spotify accounts service and Web API on behalf of the web app.
//
// Uses [oauth2] for the authorization-code and refresh-token grants. Safe for concurrent use.
type SpotifyService struct {
	config         oauth2.Config
	protocol       string
	redirectPath   string
	apiBaseURL     string
	typeaheadCount int
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *log.Logger
}

// SpotifyOpts contains configuration options for creating a SpotifyService.
type SpotifyOpts struct {
	ClientID       string
	ClientSecret   string
	Protocol       string // "http://" or "https://"
	RedirectPath   string
	Scopes         []string
	AuthURL        string
	TokenURL       string
	APIBaseURL     string
	RequestTimeout time.Duration
	TypeaheadCount int
	RateLimit      float64 // write requests per second during playlist copy
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// NewSpotifyService creates a new Spotify service with the given app credentials.
func NewSpotifyService(opts SpotifyOpts) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	if opts.Protocol == "" {
		opts.Protocol = "http://"
	}
	if opts.RedirectPath == "" {
		opts.RedirectPath = "/login/callback"
	}
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = spotifyBaseURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.TypeaheadCount <= 0 {
		opts.TypeaheadCount = DefaultTypeaheadCount
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SpotifyService{
		config: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		protocol:       opts.Protocol,
		redirectPath:   opts.RedirectPath,
		apiBaseURL:     strings.TrimRight(opts.APIBaseURL, "/"),
		typeaheadCount: opts.TypeaheadCount,
		httpClient:     opts.HTTPClient,
		limiter:        rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		logger:         shared.WithLogger(opts.Logger, "component", "spotify"),
	}, nil
}

// NewSpotifyServiceFromConfig builds a SpotifyService from application configuration.
func NewSpotifyServiceFromConfig(cfg *shared.Config, logger *log.Logger) (*SpotifyService, error) {
	sp := cfg.Credentials.Spotify
	return NewSpotifyService(SpotifyOpts{
		ClientID:       sp.ClientID,
		ClientSecret:   sp.ClientSecret,
		Protocol:       cfg.Server.Protocol,
		RedirectPath:   sp.RedirectPath,
		Scopes:         sp.Scopes,
		AuthURL:        sp.AuthURL,
		TokenURL:       sp.TokenURL,
		APIBaseURL:     sp.APIBaseURL,
		RequestTimeout: sp.RequestTimeout,
		TypeaheadCount: cfg.Search.TypeaheadCount,
		Logger:         logger,
	})
}

// RedirectURI reconstructs the callback URL for a deployment reached via host.
func (s *SpotifyService) RedirectURI(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" || strings.ContainsAny(host, "/?#@ ") {
		return "", fmt.Errorf("%w: host %q", shared.ErrInvalidArgument, host)
	}
	return s.protocol + host + s.redirectPath, nil
}

// oauthConfig returns a copy of the base config with the redirect URL bound to host.
func (s *SpotifyService) oauthConfig(host string) (*oauth2.Config, error) {
	redirectURI, err := s.RedirectURI(host)
	if err != nil {
		return nil, err
	}
	conf := s.config
	conf.RedirectURL = redirectURI
	return &conf, nil
}

// clientContext makes [oauth2] use the service's HTTP client, and therefore its timeout.
func (s *SpotifyService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// AuthURLWithState returns the Spotify authorization URL for a fresh random state.
func (s *SpotifyService) AuthURLWithState(host string) (AuthRequest, error) {
	conf, err := s.oauthConfig(host)
	if err != nil {
		return AuthRequest{}, err
	}

	state, err := shared.RandomString(StateLength)
	if err != nil {
		return AuthRequest{}, fmt.Errorf("failed to generate state: %w", err)
	}

	return AuthRequest{URL: conf.AuthCodeURL(state), State: state}, nil
}

// ExchangeCode exchanges an authorization code for user tokens.
//
// Codes are single use, so failures are returned without retrying.
func (s *SpotifyService) ExchangeCode(ctx context.Context, code, host string) (*ProviderTokens, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", shared.ErrExchangeFailed)
	}

	conf, err := s.oauthConfig(host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrExchangeFailed, err)
	}

	token, err := conf.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in response", shared.ErrExchangeFailed)
	}

	return providerTokens(token), nil
}

// RefreshTokens uses a refresh token to obtain a new access token.
//
// Spotify may omit a new refresh token, in which case the old one is kept.
func (s *SpotifyService) RefreshTokens(ctx context.Context, refreshToken string) (*ProviderTokens, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	conf := s.config
	token, err := conf.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	return providerTokens(token), nil
}

func providerTokens(token *oauth2.Token) *ProviderTokens {
	pt := &ProviderTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		pt.ExpiresIn = int(time.Until(token.Expiry).Round(time.Second).Seconds())
	}
	if uid, ok := token.Extra("user_id").(string); ok {
		pt.UserID = uid
	}
	return pt
}

// doRequest performs an authenticated HTTP request to the Spotify API and returns the raw body.
//
// target is either a path under the API base URL or an absolute URL on the same host.
func (s *SpotifyService) doRequest(ctx context.Context, method, target, accessToken string, body any) ([]byte, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: no access token", shared.ErrNotAuthenticated)
	}

	apiURL := target
	if strings.HasPrefix(target, "/") {
		apiURL = s.apiBaseURL + target
	} else if !strings.HasPrefix(target, s.apiBaseURL+"/") {
		return nil, fmt.Errorf("%w: refusing to send credentials to %s", shared.ErrInvalidArgument, target)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(data, "error.message").String(),
		}
	}

	return data, nil
}

// UserID retrieves the Spotify user id owning accessToken.
func (s *SpotifyService) UserID(ctx context.Context, accessToken string) (string, error) {
	data, err := s.doRequest(ctx, http.MethodGet, "/me", accessToken, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrIdentityLookup, err)
	}

	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		return "", fmt.Errorf("%w: profile has no id", shared.ErrIdentityLookup)
	}
	return id, nil
}

// Search queries Spotify for playlists and returns the raw JSON response.
//
// Typeahead searches are limited to the configured result count.
func (s *SpotifyService) Search(ctx context.Context, accessToken, query string, typeahead bool) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "playlist")
	if typeahead {
		params.Set("limit", strconv.Itoa(s.typeaheadCount))
	}

	data, err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), accessToken, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: search response is not valid JSON", shared.ErrAPIRequest)
	}
	return json.RawMessage(data), nil
}

// CopyPlaylist creates a new playlist for userID and fills it with every track listed at details.TracksURL.
//
// Local files cannot be added through the API and are skipped. Add requests are rate limited.
func (s *SpotifyService) CopyPlaylist(ctx context.Context, accessToken, userID string, details PlaylistDetails) (*CopyResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	if details.TracksURL == "" {
		return nil, fmt.Errorf("%w: tracks url", shared.ErrMissingArgument)
	}

	uris, err := s.trackURIs(ctx, accessToken, details.TracksURL)
	if err != nil {
		return nil, err
	}

	created, err := s.doRequest(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/playlists", accessToken, map[string]any{
		"name":        details.Name,
		"description": details.Description,
		"public":      details.Public,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	result := &CopyResult{
		PlaylistID:  gjson.GetBytes(created, "id").String(),
		PlaylistURL: gjson.GetBytes(created, "external_urls.spotify").String(),
	}
	if result.PlaylistID == "" {
		return nil, fmt.Errorf("%w: created playlist has no id", shared.ErrAPIRequest)
	}

	s.logger.Debug("created playlist", "playlist_id", result.PlaylistID, "tracks", len(uris))

	for start := 0; start < len(uris); start += maxTracksPerRequest {
		end := min(start+maxTracksPerRequest, len(uris))

		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}

		endpoint := "/playlists/" + url.PathEscape(result.PlaylistID) + "/tracks"
		if _, err := s.doRequest(ctx, http.MethodPost, endpoint, accessToken, map[string]any{"uris": uris[start:end]}); err != nil {
			return result, fmt.Errorf("failed to add tracks %d-%d: %w", start, end, err)
		}
		result.TrackCount = end
	}

	return result, nil
}

// trackURIs walks the paginated tracks listing starting at tracksURL.
func (s *SpotifyService) trackURIs(ctx context.Context, accessToken, tracksURL string) ([]string, error) {
	var uris []string
	next := tracksURL
	for next != "" {
		page, err := s.doRequest(ctx, http.MethodGet, next, accessToken, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks: %w", err)
		}

		for _, uri := range gjson.GetBytes(page, "items.#.track.uri").Array() {
			u := uri.String()
			if u == "" || strings.HasPrefix(u, "spotify:local:") {
				continue
			}
			uris = append(uris, u)
		}

		next = gjson.GetBytes(page, "next").String()
	}
	return uris, nil
}
