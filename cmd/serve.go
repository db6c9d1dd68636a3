package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/save-a-playlist/internal/server"
	"github.com/desertthunder/save-a-playlist/internal/services"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP server until interrupted.
//
// The client-credentials token is warmed in the background so the first search does not pay for it.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = port
	}
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}

	if err := config.Validate(); err != nil {
		return err
	}

	sessions, _, err := r.sessionManager(config)
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyServiceFromConfig(config, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	appTokens := services.NewClientCredentialsFromConfig(config, r.logger)

	srv, err := server.New(server.Deps{
		Config:    config,
		Sessions:  sessions,
		Spotify:   spotify,
		AppTokens: appTokens,
		Logger:    r.logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go appTokens.Run(ctx, config.Credentials.Spotify.RefreshInterval)

	r.logger.Info("starting server", "addr", config.Addr(), "environment", config.Environment)
	return srv.Run(ctx)
}
