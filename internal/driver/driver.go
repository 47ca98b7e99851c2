// Package driver runs the scripted sequence of object-storage calls that
// makes the storage server emit audit events.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chmdznr/minio-audit-demo/internal/journal"
	"github.com/chmdznr/minio-audit-demo/internal/storage"
	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/chmdznr/minio-audit-demo/pkg/utils"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FileSource produces the synthetic files for a run
type FileSource interface {
	Count() int
	Generate(n int) ([]models.SyntheticFile, error)
}

// Pauser blocks between steps until the presenter is ready
type Pauser interface {
	Pause(next string) error
}

type Dashboard struct {
	ParseableURL string
	ConsoleURL   string
	AuditStream  string
	LogStream    string
}

type Options struct {
	Endpoint      string
	Bucket        string
	Region        string
	UploadDir     string
	DownloadDir   string
	DownloadLimit int
	Delay         time.Duration
	ListPrefix    string
	MissingKey    string
	ShowProgress  bool
	Dashboard     Dashboard
}

// DefaultOptions mirrors the stock demo: 2 downloads, 500ms pacing
func DefaultOptions() Options {
	return Options{
		Bucket:        "demo-bucket",
		Region:        "us-east-1",
		UploadDir:     "./uploads",
		DownloadDir:   "./downloads",
		DownloadLimit: 2,
		Delay:         500 * time.Millisecond,
		ListPrefix:    "sample",
		MissingKey:    "non-existent-file.txt",
	}
}

// Result describes what a run did
type Result struct {
	RunID       string
	Generated   []models.SyntheticFile
	Uploaded    []models.SyntheticFile
	Listed      []models.ObjectRecord
	PrefixCount int
	Downloaded  []string
	Warnings    int
	Elapsed     time.Duration
}

type Driver struct {
	store   storage.ObjectStore
	files   FileSource
	opts    Options
	log     zerolog.Logger
	out     io.Writer
	journal journal.Recorder
	pauser  Pauser
	sleep   func(ctx context.Context, d time.Duration) error

	runID    string
	seq      int
	warnings int
}

type Option func(*Driver)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithOutput sets where the banner, progress bars and summary go
func WithOutput(w io.Writer) Option {
	return func(d *Driver) { d.out = w }
}

func WithJournal(r journal.Recorder) Option {
	return func(d *Driver) { d.journal = r }
}

func WithPauser(p Pauser) Option {
	return func(d *Driver) { d.pauser = p }
}

// WithSleep replaces the pacing delay implementation
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Driver) { d.sleep = fn }
}

func New(store storage.ObjectStore, files FileSource, opts Options, options ...Option) *Driver {
	d := &Driver{
		store:   store,
		files:   files,
		opts:    opts,
		log:     zerolog.Nop(),
		out:     os.Stdout,
		journal: journal.Nop{},
		sleep:   sleepContext,
	}
	for _, o := range options {
		o(d)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the whole sequence. The returned error is always a
// *FatalError; non-fatal failures only show up in logs and Result.Warnings.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	d.runID = uuid.NewString()
	d.seq = 0
	d.warnings = 0
	res := &Result{RunID: d.runID}

	run := &models.Run{
		ID:        d.runID,
		Endpoint:  d.opts.Endpoint,
		Bucket:    d.opts.Bucket,
		StartedAt: start,
		Status:    models.RunRunning,
	}
	if err := d.journal.StartRun(run); err != nil {
		d.log.Warn().Err(err).Msg("journal unavailable for this run")
	}

	err := d.run(ctx, res)

	res.Warnings = d.warnings
	res.Elapsed = time.Since(start)
	run.FinishedAt = time.Now()
	run.FilesGenerated = len(res.Generated)
	run.FilesUploaded = len(res.Uploaded)
	run.FilesDownloaded = len(res.Downloaded)
	run.Status = models.RunCompleted
	if err != nil {
		run.Status = models.RunFailed
	}
	if jerr := d.journal.FinishRun(run); jerr != nil {
		d.log.Warn().Err(jerr).Msg("failed to record run result")
	}

	if err != nil {
		return res, err
	}
	d.summary(res)
	return res, nil
}

func (d *Driver) run(ctx context.Context, res *Result) error {
	d.banner()

	for _, dir := range []string{d.opts.UploadDir, d.opts.DownloadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fatal("prepare", fmt.Errorf("failed to create directory %s: %w", dir, err))
		}
	}

	if err := d.EnsureBucket(ctx); err != nil {
		return err
	}

	if err := d.pause("generate files"); err != nil {
		return err
	}
	files, err := d.GenerateFiles(d.files.Count())
	res.Generated = files
	if err != nil {
		return err
	}

	if err := d.pause("upload"); err != nil {
		return err
	}
	res.Uploaded, err = d.UploadAll(ctx, files)
	if err != nil {
		return err
	}

	if err := d.pause("list objects"); err != nil {
		return err
	}
	res.Listed, res.PrefixCount = d.ListObjects(ctx)

	if err := d.pause("download"); err != nil {
		return err
	}
	res.Downloaded, err = d.DownloadSubset(ctx, res.Uploaded, d.opts.DownloadLimit)
	if err != nil {
		return err
	}

	if err := d.pause("probes"); err != nil {
		return err
	}
	d.AdditionalProbes(ctx)
	return nil
}

func (d *Driver) pause(next string) error {
	if d.pauser == nil {
		return nil
	}
	if err := d.pauser.Pause(next); err != nil {
		return fatal("pause", err)
	}
	return nil
}

// record journals one storage call. A nil err is "ok"; otherwise the
// outcome passed in decides whether it counts as a warning.
func (d *Driver) record(name, key string, size int64, started time.Time, err error, outcome string) {
	d.seq++
	op := &models.Operation{
		RunID:    d.runID,
		Seq:      d.seq,
		Name:     name,
		Key:      key,
		Size:     size,
		Outcome:  models.OutcomeOK,
		At:       started,
		Duration: time.Since(started),
	}
	if err != nil {
		op.Outcome = outcome
		op.Error = err.Error()
	}
	if jerr := d.journal.RecordOperation(op); jerr != nil {
		d.log.Debug().Err(jerr).Str("op", name).Msg("failed to journal operation")
	}
}

// warn starts a warning log event and counts it against the run
func (d *Driver) warn() *zerolog.Event {
	d.warnings++
	return d.log.Warn()
}

func (d *Driver) banner() {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintln(d.out, "Starting Parseable + MinIO audit demo")
	fmt.Fprintln(d.out, strings.Repeat("=", 50))
	fmt.Fprintf(d.out, "Endpoint: %s  Bucket: %s  Run: %s\n", d.opts.Endpoint, d.opts.Bucket, d.runID)
}

func (d *Driver) summary(res *Result) {
	var uploaded int64
	for _, f := range res.Uploaded {
		uploaded += f.Size
	}

	fmt.Fprintln(d.out)
	color.New(color.FgGreen, color.Bold).Fprintln(d.out, "Demo completed successfully!")
	fmt.Fprintf(d.out, "- Generated:  %d files\n", len(res.Generated))
	fmt.Fprintf(d.out, "- Uploaded:   %d files (%s)\n", len(res.Uploaded), utils.FormatSize(uploaded))
	fmt.Fprintf(d.out, "- Listed:     %d objects (%d with prefix %q)\n", len(res.Listed), res.PrefixCount, d.opts.ListPrefix)
	fmt.Fprintf(d.out, "- Downloaded: %d files\n", len(res.Downloaded))
	fmt.Fprintf(d.out, "- Warnings:   %d\n", res.Warnings)
	fmt.Fprintf(d.out, "- Elapsed:    %s\n", utils.FormatDuration(res.Elapsed))

	dash := d.opts.Dashboard
	if dash.ParseableURL != "" {
		fmt.Fprintf(d.out, "Check your Parseable dashboard at %s\n", dash.ParseableURL)
		if dash.AuditStream != "" {
			fmt.Fprintf(d.out, "   - Stream: %s (for MinIO audit logs)\n", dash.AuditStream)
		}
		if dash.LogStream != "" {
			fmt.Fprintf(d.out, "   - Stream: %s (for MinIO server logs)\n", dash.LogStream)
		}
	}
	if dash.ConsoleURL != "" {
		fmt.Fprintf(d.out, "Check your MinIO console at %s\n", dash.ConsoleURL)
	}
}
