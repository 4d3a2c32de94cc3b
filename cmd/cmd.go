// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes configuration and the database schema
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the configuration file and initialize the database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// serveCommand runs the HTTP server and the background sync loop
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API with the scheduled playlist sync loop",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

// syncCommand runs playlist synchronization operations
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize current song, recent history, and stream status",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "station",
				Aliases: []string{"s"},
				Usage:   "Station identifier to sync (defaults to configured station)",
			},
			&cli.IntFlag{
				Name:  "hours",
				Usage: "How many hours of history to backfill",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep syncing on an interval until interrupted",
			},
			&cli.IntFlag{
				Name:  "interval",
				Usage: "Seconds between sync runs in watch mode",
			},
		},
		Action: r.Sync,
	}
}

// connectCommand handles publishing platform connection lifecycle
func connectCommand(r *Runner) *cli.Command {
	userFlag := &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Local user identifier for the connection",
		Value:   "default",
	}

	return &cli.Command{
		Name:  "connect",
		Usage: "Publishing platform connection operations",
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Authorize with the publishing platform using OAuth2",
				Flags:  []cli.Flag{configFlag(), userFlag},
				Action: r.Connect,
			},
			{
				Name:  "status",
				Usage: "Report whether a usable connection exists",
				Flags: []cli.Flag{
					configFlag(),
					userFlag,
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.Status,
			},
			{
				Name:   "remove",
				Usage:  "Revoke and delete the stored connection",
				Flags:  []cli.Flag{configFlag(), userFlag},
				Action: r.Disconnect,
			},
		},
	}
}

// enrichCommand queries metadata providers for a track
func enrichCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "enrich",
		Usage: "Look up track metadata across all configured providers",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "artist",
				Aliases:  []string{"a"},
				Usage:    "Artist name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "title",
				Aliases:  []string{"t"},
				Usage:    "Track title",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Enrich,
	}
}
