package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/save-a-playlist/internal/services"
	"github.com/desertthunder/save-a-playlist/internal/ui"
	"github.com/urfave/cli/v3"
)

type clientTokenOutput struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenClient requests an application token with the client-credentials grant and prints it.
func (r *Runner) TokenClient(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	sp := config.Credentials.Spotify
	timeout := sp.RequestTimeout
	if timeout <= 0 {
		timeout = services.DefaultRequestTimeout
	}
	client := *r.httpClient
	client.Timeout = timeout

	tokens := services.NewClientCredentials(services.ClientCredentialsOpts{
		ClientID:       sp.ClientID,
		ClientSecret:   sp.ClientSecret,
		TokenURL:       sp.TokenURL,
		RequestTimeout: timeout,
		HTTPClient:     &client,
		Logger:         r.logger,
	})

	token, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client token: %w", err)
	}

	var expiresAt time.Time
	if cached := tokens.Cached(); cached != nil {
		expiresAt = cached.ExpiresAt
	}

	if cmd.Bool("json") {
		return r.writeJSON(clientTokenOutput{AccessToken: token, ExpiresAt: expiresAt}, true)
	}

	r.writePlainln("%s", r.palette.Title("Client credentials token"))
	r.writePlainln("%s", r.palette.Field("token", ui.Mask(token)))
	return r.writePlainln("%s", r.palette.Field("usable until", expiresAt.Format(time.RFC3339)))
}
