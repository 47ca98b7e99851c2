package main

import (
	"fmt"
	"os"

	"github.com/chmdznr/minio-audit-demo/internal/config"
	"github.com/chmdznr/minio-audit-demo/pkg/logger"
	"github.com/chmdznr/minio-audit-demo/pkg/version"
	"github.com/urfave/cli/v2"
)

// cfg is loaded once in the app's Before hook
var cfg *config.Config

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	if err := newApp().Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("auditdemo failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "auditdemo",
		Usage:                "Drive MinIO through a scripted set of calls so its audit webhook has events to ship",
		Version:              version.Short(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load (default: .env if present)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
		},
		Before: func(c *cli.Context) error {
			loaded, err := config.Load(c.String("env-file"))
			if err != nil {
				return err
			}
			if c.IsSet("log-level") {
				loaded.LogLevel = c.String("log-level")
			}
			logger.SetLevel(loaded.LogLevel)
			cfg = loaded
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			runCommand(),
			{
				Name:  "history",
				Usage: "List recent demo runs from the journal",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
				},
				Action: showHistory,
			},
			{
				Name:  "status",
				Usage: "Show the calls issued by a run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Run ID (default: latest run)",
					},
				},
				Action: showStatus,
			},
			{
				Name:  "export",
				Usage: "Export the journal of a run to .xlsx or .csv",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Run ID (default: latest run)",
					},
					&cli.StringFlag{
						Name:     "out",
						Usage:    "Output file, format taken from the extension",
						Required: true,
					},
				},
				Action: exportRun,
			},
		},
	}
}
