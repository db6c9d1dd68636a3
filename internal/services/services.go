package services

import (
	"context"
	"encoding/json"
)

// Authorizer drives the provider side of the OAuth authorization-code flow.
type Authorizer interface {
	// AuthURLWithState builds the provider authorization URL for a redirect back to host.
	// The returned state is the raw CSRF value embedded in the URL.
	AuthURLWithState(host string) (AuthRequest, error)

	// ExchangeCode trades an authorization code for user tokens.
	// host must match the one used to build the authorization URL.
	ExchangeCode(ctx context.Context, code, host string) (*ProviderTokens, error)
}

// TokenRefresher trades a user refresh token for a new access token.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*ProviderTokens, error)
}

// IdentityLookup resolves the provider user id that owns an access token.
type IdentityLookup interface {
	UserID(ctx context.Context, accessToken string) (string, error)
}

// AppTokenSource yields an app-level bearer token for anonymous calls.
type AppTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Searcher proxies the provider search API.
type Searcher interface {
	Search(ctx context.Context, accessToken, query string, typeahead bool) (json.RawMessage, error)
}

// PlaylistCopier copies a playlist's tracks into a new playlist owned by userID.
type PlaylistCopier interface {
	CopyPlaylist(ctx context.Context, accessToken, userID string, details PlaylistDetails) (*CopyResult, error)
}

// AuthRequest is a provider authorization URL and the state it carries.
type AuthRequest struct {
	URL   string
	State string
}

// ProviderTokens is the provider's token endpoint response.
type ProviderTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id,omitempty"` // not always present; resolved lazily otherwise
}

// PlaylistDetails describes the playlist to create when saving a copy.
type PlaylistDetails struct {
	Name        string
	Description string
	Public      bool
	TracksURL   string // provider API URL listing the source playlist's tracks
}

// CopyResult summarizes a completed playlist copy.
type CopyResult struct {
	PlaylistID  string
	PlaylistURL string
	TrackCount  int
}
