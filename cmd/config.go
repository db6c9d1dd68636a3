package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/save-a-playlist/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigInit writes the example configuration to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	return r.writePlainln("%s Wrote %s. Set JWT_SECRET, CLIENT_ID and CLIENT_SECRET before running serve.",
		r.palette.OK("✓"), path)
}

// ConfigShow prints the effective configuration (file plus environment) with secrets masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := config.Redacted()
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// ConfigCheck validates the effective configuration and reports each problem.
func (r *Runner) ConfigCheck(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		r.writePlainln("%s", r.palette.Status(false, err.Error()))
		return err
	}

	return r.writePlainln("%s", r.palette.Status(true, fmt.Sprintf("configuration is valid (%s)", config.Environment)))
}
