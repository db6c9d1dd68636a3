// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// serveCommand runs the web service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to bind (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// configCommand handles the configuration file
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file operations",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigShow,
			},
			{
				Name:   "check",
				Usage:  "Validate the effective configuration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigCheck,
			},
		},
	}
}

// tokenCommand handles provider tokens
func tokenCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Spotify token operations",
		Commands: []*cli.Command{
			{
				Name:   "client",
				Usage:  "Request an application token with the client-credentials grant",
				Flags:  []cli.Flag{configFlag(), jsonFlag()},
				Action: r.TokenClient,
			},
		},
	}
}

// sessionCommand handles signed session tokens
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Signed session token operations",
		Commands: []*cli.Command{
			{
				Name:  "mint",
				Usage: "Sign a session token for the given provider tokens",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "access-token",
						Usage:    "Spotify access token",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "refresh-token",
						Usage: "Spotify refresh token",
					},
					&cli.StringFlag{
						Name:  "user-id",
						Usage: "Spotify user id",
					},
				},
				Action: r.SessionMint,
			},
			{
				Name:  "inspect",
				Usage: "Verify a session token and print its contents",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "token"},
				},
				Flags:  []cli.Flag{configFlag(), jsonFlag()},
				Action: r.SessionInspect,
			},
		},
	}
}
