package main

import (
	"fmt"

	"github.com/chmdznr/minio-audit-demo/internal/journal"
	"github.com/chmdznr/minio-audit-demo/internal/report"
	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/chmdznr/minio-audit-demo/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func openJournal() (*journal.DB, error) {
	if cfg.Paths.JournalPath == "" {
		return nil, fmt.Errorf("journal is disabled (AUDITDEMO_JOURNAL_PATH is empty)")
	}
	db, err := journal.New(cfg.Paths.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return db, nil
}

// selectRun returns the run named by --run, or the latest one
func selectRun(c *cli.Context, db *journal.DB) (*models.Run, error) {
	if id := c.String("run"); id != "" {
		return db.GetRun(id)
	}
	return db.LatestRun()
}

// showHistory prints the most recent runs, newest first
func showHistory(c *cli.Context) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %-9s  %-16s  %s  up %d / down %d\n",
			run.ID,
			run.Status,
			humanize.Time(run.StartedAt),
			run.Bucket,
			run.FilesUploaded,
			run.FilesDownloaded,
		)
	}
	return nil
}

// showStatus shows the calls issued by a run and how they went
func showStatus(c *cli.Context) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := selectRun(c, db)
	if err != nil {
		return err
	}
	stats, err := db.GetStats(run.ID)
	if err != nil {
		return err
	}
	ops, err := db.GetOperations(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get operations: %w", err)
	}

	fmt.Printf("Run: %s (%s)\n", run.ID, run.Status)
	fmt.Printf("Destination: %s/%s/\n", run.Endpoint, run.Bucket)
	fmt.Printf("Started: %s\n", humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Printf("Duration: %s\n", utils.FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	fmt.Printf("Files: %d generated, %d uploaded (%s), %d downloaded (%s)\n",
		run.FilesGenerated,
		run.FilesUploaded, utils.FormatSize(stats.UploadedSize),
		run.FilesDownloaded, utils.FormatSize(stats.DownloadedSize))
	fmt.Printf("Calls: %d total, %d ok, %d warnings, %d failed\n",
		stats.TotalOps, stats.OKOps, stats.WarnOps, stats.FailedOps)

	for _, op := range ops {
		line := fmt.Sprintf("  %3d %-18s %-7s %s", op.Seq, op.Name, op.Outcome, op.Key)
		if op.Error != "" {
			line += "  (" + op.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func exportRun(c *cli.Context) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := selectRun(c, db)
	if err != nil {
		return err
	}
	ops, err := db.GetOperations(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get operations: %w", err)
	}

	out := c.String("out")
	if err := report.Export(out, run, ops); err != nil {
		return fmt.Errorf("failed to export run %s: %w", run.ID, err)
	}
	fmt.Printf("Exported %d operations of run %s to %s\n", len(ops), run.ID, out)
	return nil
}
