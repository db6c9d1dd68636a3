package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/save-a-playlist/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultExpiresIn is assumed when the token endpoint omits expires_in.
	DefaultExpiresIn = 3600 * time.Second

	// ExpiryMargin is subtracted from a token's lifetime so it is replaced before the provider rejects it.
	ExpiryMargin = 5 * time.Minute

	DefaultRefreshInterval = 50 * time.Minute
)

// CachedToken is an app-level access token and the instant it stops being usable.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Usable reports whether the token can still be handed out at now.
func (t *CachedToken) Usable(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// TokenCache holds at most one [CachedToken].
//
// Implementations must make Store and Clear atomic with respect to Load.
type TokenCache interface {
	Load() *CachedToken
	Store(token *CachedToken)
	Clear()
}

// MemoryTokenCache is a process-local [TokenCache].
type MemoryTokenCache struct {
	current atomic.Pointer[CachedToken]
}

// NewMemoryTokenCache creates an empty in-memory token cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Load() *CachedToken       { return c.current.Load() }
func (c *MemoryTokenCache) Store(token *CachedToken) { c.current.Store(token) }
func (c *MemoryTokenCache) Clear()                   { c.current.Store(nil) }

// ClientCredentials manages the app-level token obtained through the client-credentials grant.
//
// Concurrent cache misses share a single token request. Failed requests are never cached.
type ClientCredentials struct {
	config     clientcredentials.Config
	cache      TokenCache
	httpClient *http.Client
	group      singleflight.Group
	now        func() time.Time
	logger     *log.Logger
}

// ClientCredentialsOpts contains configuration options for creating a ClientCredentials manager.
type ClientCredentialsOpts struct {
	ClientID       string
	ClientSecret   string
	TokenURL       string
	RequestTimeout time.Duration
	Cache          TokenCache
	HTTPClient     *http.Client
	Now            func() time.Time
	Logger         *log.Logger
}

// NewClientCredentials creates a client-credentials token manager.
//
// Missing credentials are not an error here; they surface on the first [ClientCredentials.Token] call.
func NewClientCredentials(opts ClientCredentialsOpts) *ClientCredentials {
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryTokenCache()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		cache:      opts.Cache,
		httpClient: opts.HTTPClient,
		now:        opts.Now,
		logger:     shared.WithLogger(opts.Logger, "component", "client_credentials"),
	}
}

// NewClientCredentialsFromConfig builds a ClientCredentials manager from application configuration.
func NewClientCredentialsFromConfig(cfg *shared.Config, logger *log.Logger) *ClientCredentials {
	sp := cfg.Credentials.Spotify
	return NewClientCredentials(ClientCredentialsOpts{
		ClientID:       sp.ClientID,
		ClientSecret:   sp.ClientSecret,
		TokenURL:       sp.TokenURL,
		RequestTimeout: sp.RequestTimeout,
		Logger:         logger,
	})
}

// Token returns the cached app token, fetching a new one when the cache is empty or stale.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	if cached := c.cache.Load(); cached.Usable(c.now()) {
		return cached.AccessToken, nil
	}
	return c.fetchShared(ctx, false)
}

// Refresh discards the cached token and fetches a new one.
func (c *ClientCredentials) Refresh(ctx context.Context) (string, error) {
	c.cache.Clear()
	return c.fetchShared(ctx, true)
}

// Cached returns the current cache entry without fetching. It may be nil or stale.
func (c *ClientCredentials) Cached() *CachedToken {
	return c.cache.Load()
}

// Run refreshes the token immediately and then every interval until ctx is cancelled.
//
// Failures are logged and retried on the next tick.
func (c *ClientCredentials) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	c.refreshAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("token warmer stopped")
			return
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *ClientCredentials) refreshAndLog(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		if ctx.Err() == nil {
			c.logger.Error("client credentials refresh failed", "error", err)
		}
		return
	}
	if cached := c.cache.Load(); cached != nil {
		c.logger.Debug("client credentials refreshed", "expires_at", cached.ExpiresAt.Format(time.RFC3339))
	}
}

// fetchShared runs fetch through the singleflight group. Unless forced, a fresh cache entry
// stored by a concurrent caller is returned instead of fetching again.
func (c *ClientCredentials) fetchShared(ctx context.Context, force bool) (string, error) {
	ch := c.group.DoChan("client_credentials", func() (any, error) {
		if !force {
			if cached := c.cache.Load(); cached.Usable(c.now()) {
				return cached.AccessToken, nil
			}
		}
		// Detached so one waiter giving up does not fail the others; the HTTP client timeout still bounds it.
		return c.fetch(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *ClientCredentials) fetch(ctx context.Context) (string, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return "", fmt.Errorf("%w: client id and secret are required", shared.ErrMissingCredentials)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in response", shared.ErrAuthFailed)
	}

	lifetime := expiresIn(token)
	c.cache.Store(&CachedToken{
		AccessToken: token.AccessToken,
		ExpiresAt:   c.now().Add(lifetime - ExpiryMargin),
	})

	return token.AccessToken, nil
}

// expiresIn reads the raw expires_in field of a token response.
func expiresIn(token *oauth2.Token) time.Duration {
	var seconds int64
	switch v := token.Extra("expires_in").(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case json.Number:
		seconds, _ = v.Int64()
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds <= 0 {
		return DefaultExpiresIn
	}
	return time.Duration(seconds) * time.Second
}
