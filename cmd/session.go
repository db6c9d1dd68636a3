package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/save-a-playlist/internal/session"
	"github.com/desertthunder/save-a-playlist/internal/shared"
	"github.com/desertthunder/save-a-playlist/internal/ui"
	"github.com/urfave/cli/v3"
)

type sessionOutput struct {
	Valid      bool      `json:"valid"`
	UserID     string    `json:"user_id,omitempty"`
	IsLoggedIn bool      `json:"isLoggedIn"`
	Refresh    bool      `json:"has_refresh_token"`
	IssuedAt   time.Time `json:"issued_at,omitzero"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// SessionMint signs a session token for the given provider tokens.
//
// Useful for exercising the API with curl against a running server.
func (r *Runner) SessionMint(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	manager, _, err := r.sessionManager(config)
	if err != nil {
		return err
	}

	token, _, err := manager.Mint(session.Tokens{
		AccessToken:  cmd.String("access-token"),
		RefreshToken: cmd.String("refresh-token"),
	}, cmd.String("user-id"))
	if err != nil {
		return fmt.Errorf("failed to mint session: %w", err)
	}

	return r.writePlainln("%s", token)
}

// SessionInspect verifies a session token and prints what it carries. Tokens are never printed back.
func (r *Runner) SessionInspect(ctx context.Context, cmd *cli.Command) error {
	raw := strings.TrimSpace(cmd.StringArg("token"))
	if raw == "" {
		return fmt.Errorf("%w: token", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	manager, codec, err := r.sessionManager(config)
	if err != nil {
		return err
	}

	out := sessionOutput{}
	s, err := manager.Parse(raw)
	if err == nil {
		out.Valid = true
		out.UserID = s.UserID
		out.IsLoggedIn = s.IsLoggedIn
		out.Refresh = s.Tokens.RefreshToken != ""
		out.IssuedAt = time.UnixMilli(s.Timestamp).UTC()
		if exp, err := codec.ExpiresAt(raw); err == nil {
			out.ExpiresAt = exp.UTC()
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	r.writePlainln("%s", r.palette.Title("Session"))
	if !out.Valid {
		r.writePlainln("%s", r.palette.Status(false, "invalid, expired or signed with another secret"))
		return nil
	}

	r.writePlainln("%s", r.palette.Status(true, "valid"))
	r.writePlainln("%s", r.palette.Field("user", orNone(out.UserID)))
	r.writePlainln("%s", r.palette.Field("logged in", out.IsLoggedIn))
	r.writePlainln("%s", r.palette.Field("refreshable", out.Refresh))
	r.writePlainln("%s", r.palette.Field("access token", ui.Mask(s.Tokens.AccessToken)))
	r.writePlainln("%s", r.palette.Field("issued", out.IssuedAt.Format(time.RFC3339)))
	return r.writePlainln("%s", r.palette.Field("expires", out.ExpiresAt.Format(time.RFC3339)))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
