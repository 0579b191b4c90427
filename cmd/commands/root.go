package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quotagate/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "quotagate",
		Usage: "Admin gateway for per-entry quota refresh",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewGatewayCommand(),
			NewRefreshCommand(),
			NewStatusCommand(),
			NewRunsCommand(),
			NewWatchCommand(),
		},
	}
}
