package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chmdznr/minio-audit-demo/internal/generator"
	"github.com/chmdznr/minio-audit-demo/internal/storage"
	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	runs []*models.Run
	ops  []models.Operation
}

func (j *memJournal) StartRun(run *models.Run) error {
	cp := *run
	j.runs = append(j.runs, &cp)
	return nil
}

func (j *memJournal) RecordOperation(op *models.Operation) error {
	j.ops = append(j.ops, *op)
	return nil
}

func (j *memJournal) FinishRun(run *models.Run) error {
	cp := *run
	j.runs = append(j.runs, &cp)
	return nil
}

type countingPauser struct {
	steps []string
	err   error
}

func (p *countingPauser) Pause(next string) error {
	p.steps = append(p.steps, next)
	return p.err
}

type harness struct {
	store   *storage.MemoryStore
	journal *memJournal
	sleeps  []time.Duration
	out     bytes.Buffer
	opts    Options
	files   int
}

func newHarness(t *testing.T, files int) *harness {
	t.Helper()
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.Endpoint = "memory"
	opts.UploadDir = filepath.Join(dir, "uploads")
	opts.DownloadDir = filepath.Join(dir, "downloads")
	return &harness{
		store:   storage.NewMemoryStore(),
		journal: &memJournal{},
		opts:    opts,
		files:   files,
	}
}

func (h *harness) driver(extra ...Option) *Driver {
	genOpts := generator.DefaultOptions(h.opts.UploadDir)
	genOpts.MinFiles, genOpts.MaxFiles = h.files, h.files

	options := []Option{
		WithOutput(&h.out),
		WithJournal(h.journal),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}),
	}
	return New(h.store, generator.New(genOpts), h.opts, append(options, extra...)...)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestRunScenarioThreeFiles(t *testing.T) {
	h := newHarness(t, 3)

	res, err := h.driver().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, h.store.CountCalls(storage.OpMakeBucket))
	require.Len(t, res.Generated, 3)
	for _, f := range res.Generated {
		assert.GreaterOrEqual(t, f.Size, int64(1000))
		assert.LessOrEqual(t, f.Size, int64(50000))
	}
	assert.Len(t, res.Uploaded, 3)
	assert.Equal(t, 3, h.store.CountCalls(storage.OpPutObject))
	assert.Equal(t, 0, countFiles(t, h.opts.UploadDir))
	assert.Len(t, res.Listed, 3)
	assert.Len(t, res.Downloaded, 2)
	assert.Equal(t, 2, h.store.CountCalls(storage.OpGetObject))
	assert.Equal(t, 2, countFiles(t, h.opts.DownloadDir))
	assert.Equal(t, 0, res.Warnings)

	// two gaps between three uploads, one between two downloads
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, h.sleeps)

	assert.Contains(t, h.out.String(), "Demo completed successfully!")
}

func TestRunFileCounts(t *testing.T) {
	for n := 1; n <= 5; n++ {
		h := newHarness(t, n)

		res, err := h.driver().Run(context.Background())
		require.NoError(t, err)

		assert.Len(t, res.Generated, n)
		assert.Len(t, res.Uploaded, n)
		assert.Equal(t, 0, countFiles(t, h.opts.UploadDir), "n=%d", n)
		assert.Len(t, res.Downloaded, min(2, n), "n=%d", n)
	}
}

func TestRunCallOrder(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.driver().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		storage.OpBucketExists,
		storage.OpMakeBucket,
		storage.OpSetBucketPolicy,
		storage.OpPutObject,
		storage.OpListObjects,
		storage.OpListObjects,
		storage.OpGetObject,
		storage.OpGetBucketPolicy,
		storage.OpGetBucketLocation,
		storage.OpStatObject,
	}, h.store.Calls())

	require.Len(t, h.journal.ops, 10)
	for i, op := range h.journal.ops {
		assert.Equal(t, i+1, op.Seq)
		assert.Equal(t, models.OutcomeOK, op.Outcome, "op %s", op.Name)
	}
	require.Len(t, h.journal.runs, 2)
	final := h.journal.runs[1]
	assert.Equal(t, models.RunCompleted, final.Status)
	assert.Equal(t, 1, final.FilesUploaded)
	assert.Equal(t, 1, final.FilesDownloaded)
}

func TestRunUsesExistingBucket(t *testing.T) {
	h := newHarness(t, 2)
	require.NoError(t, h.store.MakeBucket(context.Background(), h.opts.Bucket, "eu-west-1"))

	_, err := h.driver().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.store.CountCalls(storage.OpMakeBucket))
}

func TestRunAttachesMetadata(t *testing.T) {
	h := newHarness(t, 1)

	res, err := h.driver().Run(context.Background())
	require.NoError(t, err)

	meta := h.store.Metadata(h.opts.Bucket, res.Uploaded[0].Name)
	assert.Equal(t, DemoApp, meta["demo-app"])
	assert.Equal(t, res.RunID, meta["run-id"])
	assert.Equal(t, res.Uploaded[0].Digest, meta["digest"])
	assert.NotEmpty(t, meta["upload-time"])
}

func TestRunBucketCreationFailureIsFatal(t *testing.T) {
	h := newHarness(t, 3)
	h.store.Failures[storage.OpMakeBucket] = errors.New("access denied")

	_, err := h.driver().Run(context.Background())
	require.Error(t, err)

	var fe *FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "ensure bucket", fe.Step)
	assert.Equal(t, 0, h.store.CountCalls(storage.OpPutObject))
	assert.Equal(t, 0, h.store.CountCalls(storage.OpGetObject))
	assert.Equal(t, 0, countFiles(t, h.opts.UploadDir))
	assert.Equal(t, models.RunFailed, h.journal.runs[len(h.journal.runs)-1].Status)
}

func TestRunBucketCheckFailureIsFatal(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Failures[storage.OpBucketExists] = errors.New("connection refused")

	_, err := h.driver().Run(context.Background())
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, h.store.CountCalls(storage.OpMakeBucket))
}

func TestRunPolicyFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 2)
	h.store.Failures[storage.OpSetBucketPolicy] = errors.New("not implemented")
	h.store.Failures[storage.OpGetBucketPolicy] = errors.New("NoSuchBucketPolicy")
	h.store.Failures[storage.OpGetBucketLocation] = errors.New("timeout")

	res, err := h.driver().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Warnings)
	assert.Len(t, res.Uploaded, 2)
}

func TestRunUploadFailureKeepsLocalFiles(t *testing.T) {
	h := newHarness(t, 3)
	h.store.Failures[storage.OpPutObject] = errors.New("disk full")

	res, err := h.driver().Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Uploaded)
	assert.Empty(t, res.Downloaded)
	assert.Equal(t, 3, countFiles(t, h.opts.UploadDir))
	assert.Equal(t, 0, h.store.CountCalls(storage.OpGetObject))
	assert.Equal(t, 3, res.Warnings)
}

func TestRunListingFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 2)
	h.store.Failures[storage.OpListObjects] = errors.New("throttled")

	res, err := h.driver().Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Listed)
	assert.Len(t, res.Downloaded, 2)
	assert.Equal(t, 2, res.Warnings)
}

func TestRunNotFoundProbe(t *testing.T) {
	t.Run("missing key is expected", func(t *testing.T) {
		h := newHarness(t, 1)
		res, err := h.driver().Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Warnings)
	})

	t.Run("probe failure is a warning", func(t *testing.T) {
		h := newHarness(t, 1)
		h.store.Failures[storage.OpStatObject] = errors.New("connection reset")
		res, err := h.driver().Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Warnings)
	})

	t.Run("missing bucket is a warning", func(t *testing.T) {
		h := newHarness(t, 1)
		h.store.Failures[storage.OpStatObject] = fmt.Errorf("bucket %s: %w", h.opts.Bucket, storage.ErrBucketNotFound)
		res, err := h.driver().Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Warnings)

		last := h.journal.ops[len(h.journal.ops)-1]
		assert.Equal(t, storage.OpStatObject, last.Name)
		assert.Equal(t, models.OutcomeWarn, last.Outcome)
	})

	t.Run("existing key is a warning", func(t *testing.T) {
		h := newHarness(t, 1)
		ctx := context.Background()
		require.NoError(t, h.store.MakeBucket(ctx, h.opts.Bucket, "us-east-1"))
		src := filepath.Join(t.TempDir(), "present")
		require.NoError(t, os.WriteFile(src, []byte("here"), 0644))
		_, err := h.store.PutFile(ctx, h.opts.Bucket, h.opts.MissingKey, src, storage.PutOptions{})
		require.NoError(t, err)

		res, err := h.driver().Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Warnings)
		assert.Len(t, res.Listed, 2)
	})
}

func TestRunCancelledDuringPacing(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	d := h.driver(WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	res, err := d.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Uploaded, 1)
	assert.Equal(t, 0, h.store.CountCalls(storage.OpGetObject))
}

func TestRunPausesBetweenSteps(t *testing.T) {
	h := newHarness(t, 1)
	p := &countingPauser{}

	_, err := h.driver(WithPauser(p)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"generate files", "upload", "list objects", "download", "probes"}, p.steps)
}

func TestRunPauserErrorAborts(t *testing.T) {
	h := newHarness(t, 1)
	p := &countingPauser{err: errors.New("interrupted")}

	_, err := h.driver(WithPauser(p)).Run(context.Background())
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "pause", fe.Step)
	assert.Equal(t, 0, h.store.CountCalls(storage.OpPutObject))
}

func TestDownloadSubsetLimit(t *testing.T) {
	h := newHarness(t, 4)
	d := h.driver()

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	got, err := d.DownloadSubset(context.Background(), res.Uploaded, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = d.DownloadSubset(context.Background(), res.Uploaded, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
