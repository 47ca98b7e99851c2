package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/chmdznr/minio-audit-demo/internal/config"
	"github.com/chmdznr/minio-audit-demo/internal/driver"
	"github.com/chmdznr/minio-audit-demo/internal/generator"
	"github.com/chmdznr/minio-audit-demo/internal/interactive"
	"github.com/chmdznr/minio-audit-demo/internal/journal"
	"github.com/chmdznr/minio-audit-demo/internal/storage"
	"github.com/chmdznr/minio-audit-demo/pkg/logger"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the demo sequence once",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint", Usage: "MinIO endpoint (host:port)"},
			&cli.StringFlag{Name: "access-key", Usage: "MinIO access key"},
			&cli.StringFlag{Name: "secret-key", Usage: "MinIO secret key"},
			&cli.BoolFlag{Name: "ssl", Usage: "Use HTTPS"},
			&cli.StringFlag{Name: "region", Usage: "Region used when creating the bucket"},
			&cli.StringFlag{Name: "bucket", Usage: "Bucket to create and fill"},
			&cli.IntFlag{Name: "min-files", Usage: "Minimum number of files to generate"},
			&cli.IntFlag{Name: "max-files", Usage: "Maximum number of files to generate"},
			&cli.Int64Flag{Name: "min-size", Usage: "Minimum file size in bytes"},
			&cli.Int64Flag{Name: "max-size", Usage: "Maximum file size in bytes"},
			&cli.IntFlag{Name: "download-limit", Usage: "Number of uploaded files to download back"},
			&cli.DurationFlag{Name: "delay", Usage: "Pause between uploads and between downloads"},
			&cli.StringFlag{Name: "upload-dir", Usage: "Scratch directory for generated files"},
			&cli.StringFlag{Name: "download-dir", Usage: "Directory for downloaded files"},
			&cli.StringFlag{Name: "journal", Usage: "sqlite journal path, empty to disable"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Wait for a keypress between steps"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Use an in-memory store instead of MinIO"},
			&cli.BoolFlag{Name: "progress", Usage: "Show progress bars", Value: true},
			&cli.Int64Flag{Name: "seed", Usage: "Seed for reproducible file generation (0 = random)"},
		},
		Action: runDemo,
	}
}

// applyRunFlags overrides configuration with the flags that were set
func applyRunFlags(c *cli.Context, cfg *config.Config) {
	strs := map[string]*string{
		"endpoint":     &cfg.MinIO.Endpoint,
		"access-key":   &cfg.MinIO.AccessKey,
		"secret-key":   &cfg.MinIO.SecretKey,
		"region":       &cfg.MinIO.Region,
		"bucket":       &cfg.MinIO.Bucket,
		"upload-dir":   &cfg.Paths.UploadDir,
		"download-dir": &cfg.Paths.DownloadDir,
		"journal":      &cfg.Paths.JournalPath,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	ints := map[string]*int{
		"min-files":      &cfg.Demo.MinFiles,
		"max-files":      &cfg.Demo.MaxFiles,
		"download-limit": &cfg.Demo.DownloadLimit,
	}
	for name, dst := range ints {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}

	if c.IsSet("min-size") {
		cfg.Demo.MinSize = c.Int64("min-size")
	}
	if c.IsSet("max-size") {
		cfg.Demo.MaxSize = c.Int64("max-size")
	}
	if c.IsSet("delay") {
		cfg.Demo.Delay = c.Duration("delay")
	}
	if c.IsSet("ssl") {
		cfg.MinIO.UseSSL = c.Bool("ssl")
	}
	if c.IsSet("interactive") {
		cfg.Demo.Interactive = c.Bool("interactive")
	}
}

func driverOptions(cfg *config.Config, endpoint string, progress bool) driver.Options {
	return driver.Options{
		Endpoint:      endpoint,
		Bucket:        cfg.MinIO.Bucket,
		Region:        cfg.MinIO.Region,
		UploadDir:     cfg.Paths.UploadDir,
		DownloadDir:   cfg.Paths.DownloadDir,
		DownloadLimit: cfg.Demo.DownloadLimit,
		Delay:         cfg.Demo.Delay,
		ListPrefix:    cfg.Demo.ListPrefix,
		MissingKey:    cfg.Demo.MissingKey,
		ShowProgress:  progress,
		Dashboard: driver.Dashboard{
			ParseableURL: cfg.Dashboard.ParseableURL,
			ConsoleURL:   cfg.Dashboard.ConsoleURL,
			AuditStream:  cfg.Dashboard.AuditStream,
			LogStream:    cfg.Dashboard.LogStream,
		},
	}
}

func runDemo(c *cli.Context) error {
	applyRunFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	var store storage.ObjectStore
	endpoint := cfg.MinIO.Endpoint
	if c.Bool("dry-run") {
		store = storage.NewMemoryStore()
		endpoint = "memory"
	} else {
		minioStore, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
		})
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		store = minioStore
	}

	options := []driver.Option{
		driver.WithLogger(logger.Log),
		driver.WithOutput(os.Stdout),
	}

	if cfg.Paths.JournalPath != "" {
		db, err := journal.New(cfg.Paths.JournalPath)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("journal disabled")
		} else {
			defer db.Close()
			options = append(options, driver.WithJournal(db))
		}
	}

	if cfg.Demo.Interactive {
		options = append(options, driver.WithPauser(interactive.New(os.Stdout)))
	}

	files := generator.New(generator.Options{
		Dir:      cfg.Paths.UploadDir,
		MinFiles: cfg.Demo.MinFiles,
		MaxFiles: cfg.Demo.MaxFiles,
		MinSize:  cfg.Demo.MinSize,
		MaxSize:  cfg.Demo.MaxSize,
		Seed:     c.Int64("seed"),
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := driver.New(store, files, driverOptions(cfg, endpoint, c.Bool("progress")), options...)
	res, err := d.Run(ctx)
	if err != nil {
		var fe *driver.FatalError
		if errors.As(err, &fe) {
			logger.Log.Error().Err(fe.Err).Str("step", fe.Step).Str("run", res.RunID).Msg("demo aborted")
		}
		return cli.Exit("demo aborted: "+err.Error(), 1)
	}

	logger.Log.Info().Str("run", res.RunID).Int("warnings", res.Warnings).Msg("demo finished")
	return nil
}
